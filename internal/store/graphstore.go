package store

import "context"

// Row is one result row from a graph query, keyed by the alias used in the
// query's RETURN/SELECT projection.
type Row map[string]any

// RetryConfig bounds a mutating graph write's retry behavior. Zero value
// means "use the backend's defaults".
type RetryConfig struct {
	MaxAttempts int
	MaxWait     int // seconds
}

// DefaultRetryConfig matches §4.A: up to 10 attempts, 7s max backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 10, MaxWait: 7}
}

// GraphStore is the minimal contract the engine needs from a property-graph
// backend. Concrete backends (an embedded or server-mode SQL-compatible
// graph store, a multi-tenant wrapper, a read-only wrapper, a dummy used in
// tests) all satisfy this interface; the engine never downcasts to one.
type GraphStore interface {
	// ExecuteQuery runs a read-only query. No retry is attempted; callers
	// that need retry semantics use ExecuteQueryWithRetry.
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Row, error)

	// ExecuteQueryWithRetry runs a mutating query, retrying transient
	// backend errors with exponential-or-capped backoff. Returns ErrBackend
	// (wrapped) once retries are exhausted.
	ExecuteQueryWithRetry(ctx context.Context, query string, params map[string]any, cfg RetryConfig) ([]Row, error)

	// NodeID renders the backend-specific projection of a node's canonical
	// identifier, given a field expression such as "s.source_id".
	NodeID(fieldExpr string) string

	// PropertyAssignment renders a backend-specific `column = value`
	// assignment fragment and parameter binding for key, coercing value to
	// the type the backend expects (timestamps, strings, ...).
	PropertyAssignment(key string, value any) (fragment string, bound any)

	// Close releases any resources the store holds (connections, locks).
	// Safe to call more than once.
	Close() error
}
