// Package graph implements store.GraphStore against a SQL-compatible
// backend: an embedded or server-mode Dolt database (github.com/dolthub/driver,
// github.com/go-sql-driver/mysql), the same two connection modes the
// teacher's storage layer supports. The property graph the engine's
// component spec describes as Cypher-matched nodes and relationships is
// projected onto two tables — graph_nodes and graph_edges — and the
// constrained set of MATCH/WHERE/RETURN shapes this module's own callers
// ever issue is translated into parameterized SQL, using a chain of
// graph_edges/graph_nodes JOINs for the handful of multi-hop traversals
// (chunk -> topic -> statement -> fact) the component spec requires.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/lexigraph/versionengine/internal/store"
)

// Config selects a connection mode and target database for Open.
type Config struct {
	// DSN is passed to database/sql.Open verbatim.
	DSN string
	// Embedded selects the dolthub/driver (CGO, no server) over
	// go-sql-driver/mysql (pure Go, dolt sql-server or any MySQL-wire
	// compatible server).
	Embedded bool
}

// SQLStore implements store.GraphStore.
type SQLStore struct {
	db     *sql.DB
	closed atomic.Bool
}

var graphTracer = otel.Tracer("github.com/lexigraph/versionengine/graph")

var graphMetrics struct {
	queryCount  metric.Int64Counter
	retryCount  metric.Int64Counter
	queryMillis metric.Float64Histogram
}

func init() {
	meter := otel.Meter("github.com/lexigraph/versionengine/graph")
	graphMetrics.queryCount, _ = meter.Int64Counter("graph_store.queries",
		metric.WithDescription("graph queries executed"))
	graphMetrics.retryCount, _ = meter.Int64Counter("graph_store.retries",
		metric.WithDescription("graph query retries due to transient backend errors"))
	graphMetrics.queryMillis, _ = meter.Float64Histogram("graph_store.query_duration_ms",
		metric.WithDescription("graph query duration in milliseconds"))
}

// Open connects to the backend cfg describes and verifies the connection
// with a ping.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	driverName := "mysql"
	if cfg.Embedded {
		driverName = "dolt"
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s connection: %v", store.ErrBackend, driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging %s: %v", store.ErrBackend, driverName, err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool. Safe to call more than
// once.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// NodeID renders the backend's identifier projection for fieldExpr. SQL
// tables use the same dotted field names the Cypher-shaped callers already
// pass, so this is an identity transform; it exists so callers never
// hardcode backend syntax themselves.
func (s *SQLStore) NodeID(fieldExpr string) string { return fieldExpr }

// PropertyAssignment renders a `key = $key` fragment for a MATCH...SET
// query, and the value to bind under that same parameter name.
func (s *SQLStore) PropertyAssignment(key string, value any) (string, any) {
	return fmt.Sprintf("%s = $%s", key, key), value
}

// ExecuteQuery runs a read-only MATCH...RETURN query with no retry.
func (s *SQLStore) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	return s.execute(ctx, query, params)
}

// ExecuteQueryWithRetry runs a mutating MATCH...SET/DELETE query, retrying
// transient backend errors with exponential-or-capped backoff (§4.A).
func (s *SQLStore) ExecuteQueryWithRetry(ctx context.Context, query string, params map[string]any, cfg store.RetryConfig) ([]store.Row, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = store.DefaultRetryConfig()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	if cfg.MaxWait > 0 {
		bo.MaxInterval = time.Duration(cfg.MaxWait) * time.Second
	}
	bounded := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))

	attempts := 0
	var rows []store.Row
	err := backoff.Retry(func() error {
		attempts++
		var err error
		rows, err = s.execute(ctx, query, params)
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bounded, ctx))

	if attempts > 1 {
		graphMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: exhausted %d attempts: %v", store.ErrBackend, attempts, err)
	}
	return rows, nil
}

func (s *SQLStore) execute(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	ctx, span := graphTracer.Start(ctx, "graph.execute")
	defer span.End()
	start := time.Now()
	graphMetrics.queryCount.Add(ctx, 1)

	sqlText, args, err := translate(query, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("graph.arg_count", len(args)))

	rows, err := s.runSQL(ctx, sqlText, args)
	graphMetrics.queryMillis.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

// runSQL distinguishes a mutating statement (SET/DELETE/INSERT) from a
// SELECT by its leading keyword, since database/sql requires ExecContext
// and QueryContext to be called on the right kind of statement.
func (s *SQLStore) runSQL(ctx context.Context, sqlText string, args []any) ([]store.Row, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(sqlText))
	if strings.HasPrefix(trimmed, "SELECT") {
		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}
	_, err := s.db.ExecContext(ctx, sqlText, args...)
	return nil, err
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// isRetryableError matches the transient-failure text a Dolt/MySQL-wire
// backend surfaces, the same categories the teacher's storage layer treats
// as worth a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"bad connection", "invalid connection", "broken pipe",
		"connection reset", "connection refused", "database is read only",
		"lost connection", "gone away", "i/o timeout", "unknown database",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
