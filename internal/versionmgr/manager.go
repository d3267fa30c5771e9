// Package versionmgr streams nodes out of an indexing pipeline, resolves
// the bitemporal interval for each source node it sees, writes that
// resolution to the graph and every vector index, and stamps downstream
// chunk/topic/statement nodes with their source's resolved interval before
// passing them on (§4.C of the engine's component spec).
package versionmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lexigraph/versionengine/internal/interval"
	"github.com/lexigraph/versionengine/internal/store"
)

// Config wires a Manager to its backends. RetryConfig governs the graph
// writes; IndexRetryAttempts governs the linear per-index retry loop.
type Config struct {
	Graph              store.GraphStore
	Vectors            store.VectorStore
	RetryConfig        store.RetryConfig
	IndexRetryAttempts int
	Logger             *slog.Logger
}

// Manager is the streaming node processor described above. It is safe for
// a single in-flight Process call; callers wanting concurrent streams
// should construct one Manager per stream.
type Manager struct {
	graph       store.GraphStore
	vectors     store.VectorStore
	retry       store.RetryConfig
	idxAttempts int
	log         *slog.Logger

	mu       sync.Mutex
	resolved map[string]interval.Resolved // source_id -> resolved interval, memoized for downstream stamping
	failed   map[string]error             // source_id -> terminal failure, if any
}

// New builds a Manager from cfg, filling in defaults the same way the
// engine's retry helpers do when left zero.
func New(cfg Config) *Manager {
	if cfg.RetryConfig.MaxAttempts <= 0 {
		cfg.RetryConfig = store.DefaultRetryConfig()
	}
	if cfg.IndexRetryAttempts <= 0 {
		cfg.IndexRetryAttempts = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		graph:       cfg.Graph,
		vectors:     cfg.Vectors,
		retry:       cfg.RetryConfig,
		idxAttempts: cfg.IndexRetryAttempts,
		log:         cfg.Logger,
		resolved:    make(map[string]interval.Resolved),
		failed:      make(map[string]error),
	}
}

// Process consumes nodes and emits them, in order, once each has been
// annotated with its resolved interval. A source node is resolved inline,
// which means it is emitted only after its graph and vector-index writes
// land (or exhaust retries); a downstream node is emitted as soon as its
// source has been seen, drawing on the memoized resolution.
//
// A source whose resolution fails is logged and skipped (Failed(source_id)
// in the state machine below); its downstream nodes are passed through
// unstamped rather than dropped, so a single bad source doesn't stall the
// rest of the stream.
//
// State machine per source node: Seen -> ExistingQueried -> Resolved ->
// AdjustmentsApplied -> Emitted, or Failed(source_id) at any step.
func (m *Manager) Process(ctx context.Context, nodes <-chan Node) <-chan Node {
	out := make(chan Node)
	go func() {
		defer close(out)
		for n := range nodes {
			select {
			case <-ctx.Done():
				return
			default:
			}

			switch n.Kind {
			case KindSource:
				emitted, ok := m.processSource(ctx, n)
				if !ok {
					continue
				}
				n = emitted
			default:
				n = m.stampDownstream(n)
			}

			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// processSource runs the full per-source resolution pipeline. The boolean
// return is false when the source's resolution failed outright and it
// should not be emitted.
func (m *Manager) processSource(ctx context.Context, n Node) (Node, bool) {
	sourceID := n.ID

	vf, ok := validFrom(n)
	if !ok {
		m.fail(sourceID, fmt.Errorf("%w: source %s has no valid_from, extract_timestamp, or build_timestamp", store.ErrInput, sourceID))
		return n, false
	}

	existing, err := m.queryExisting(ctx, n)
	if err != nil {
		m.fail(sourceID, fmt.Errorf("querying existing versions for %s: %w", sourceID, err))
		return n, false
	}

	resolved, adjustments := interval.PlaceInterval(interval.New{SourceID: sourceID, ValidFrom: vf}, existing)
	idFieldNames, _ := identityFieldNames(n)

	if err := m.applyAdjustments(ctx, adjustments, idFieldNames); err != nil {
		m.fail(sourceID, fmt.Errorf("applying adjustments for %s: %w", sourceID, err))
		return n, false
	}

	prevVersions := make([]string, 0, len(adjustments))
	for _, a := range adjustments {
		prevVersions = append(prevVersions, a.SourceID)
	}

	if err := m.writeResolution(ctx, n, resolved, idFieldNames, prevVersions); err != nil {
		m.fail(sourceID, fmt.Errorf("writing resolution for %s: %w", sourceID, err))
		return n, false
	}

	m.mu.Lock()
	m.resolved[sourceID] = resolved
	m.mu.Unlock()

	n.Metadata[store.KeyValidFrom] = resolved.ValidFrom
	n.Metadata[store.KeyValidTo] = resolved.ValidTo
	n.Metadata[store.KeyPreviousVersions] = prevVersions
	return n, true
}

// stampDownstream annotates a chunk/topic/statement node with its source's
// memoized resolved interval, if known. A source that hasn't been seen yet
// (out-of-order stream) or that failed resolution leaves the node as-is.
func (m *Manager) stampDownstream(n Node) Node {
	m.mu.Lock()
	resolved, ok := m.resolved[n.SourceID]
	m.mu.Unlock()
	if !ok {
		return n
	}
	if n.Metadata == nil {
		n.Metadata = make(map[string]any, 2)
	}
	n.Metadata[store.KeyValidFrom] = resolved.ValidFrom
	n.Metadata[store.KeyValidTo] = resolved.ValidTo
	return n
}

func (m *Manager) fail(sourceID string, err error) {
	m.mu.Lock()
	m.failed[sourceID] = err
	m.mu.Unlock()
	m.log.Error("version resolution failed", "source_id", sourceID, "error", err)
}

// Failures returns the source IDs that failed resolution during this
// stream's lifetime, keyed by the error that ended their processing.
func (m *Manager) Failures() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.failed))
	for k, v := range m.failed {
		out[k] = v
	}
	return out
}

// queryExisting looks up every other version sharing n's identity fields,
// via the backend-agnostic NodeID/PropertyAssignment helpers on GraphStore
// so the Cypher-shaped query text stays portable across backends. The
// coalesce clause lets a legacy source that has never been versioned match
// too, so the first versioned ingest of a document adopts it; a missing
// interval on a matched row reads back as [LowerBound, UpperBound) the same
// way.
func (m *Manager) queryExisting(ctx context.Context, n Node) ([]interval.Existing, error) {
	names, ok := identityFieldNames(n)
	if !ok || len(names) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(names)+1)
	params := make(map[string]any, len(names)+2)
	for _, key := range names {
		frag, bound := m.graph.PropertyAssignment(key, n.Metadata[key])
		clauses = append(clauses, "n."+frag)
		params[key] = bound
	}
	clauses = append(clauses, fmt.Sprintf("coalesce(n.%s, $id_fields) = $id_fields", store.KeyVersionIndependentIDs))
	params["id_fields"] = formatIDFields(names)
	params["self_id"] = n.ID

	query := fmt.Sprintf(
		"MATCH (n) WHERE %s AND n.source_id <> $self_id "+
			"RETURN n.source_id AS source_id, n.%s AS valid_from, n.%s AS valid_to "+
			"ORDER BY n.%s DESC",
		strings.Join(clauses, " AND "), store.KeyValidFrom, store.KeyValidTo, store.KeyValidFrom,
	)

	rows, err := m.graph.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackend, err)
	}

	out := make([]interval.Existing, 0, len(rows))
	for _, row := range rows {
		id, _ := row["source_id"].(string)
		vf, ok := asInt64(row["valid_from"])
		if !ok {
			vf = store.TimestampLowerBound
		}
		vt, ok := asInt64(row["valid_to"])
		if !ok {
			vt = store.TimestampUpperBound
		}
		out = append(out, interval.Existing{SourceID: id, ValidFrom: vf, ValidTo: vt})
	}
	return out, nil
}

// formatIDFields renders the identity field-name list the way it is stored
// on a source node's version_independent_id_fields property, so equality
// against the stored value works byte for byte.
func formatIDFields(names []string) string {
	encoded, _ := json.Marshal(names)
	return string(encoded)
}

// writeResolution persists the resolved interval, and the identity field
// names and previous-version ids it was resolved against, onto the source
// node in the graph, retrying with the configured backoff discipline.
func (m *Manager) writeResolution(ctx context.Context, n Node, resolved interval.Resolved, idFieldNames, prevVersions []string) error {
	vfFrag, vfBound := m.graph.PropertyAssignment(store.KeyValidFrom, resolved.ValidFrom)
	vtFrag, vtBound := m.graph.PropertyAssignment(store.KeyValidTo, resolved.ValidTo)
	idFieldsFrag, idFieldsBound := m.graph.PropertyAssignment(store.KeyVersionIndependentIDs, idFieldNames)
	prevFrag, prevBound := m.graph.PropertyAssignment(store.KeyPreviousVersions, prevVersions)
	query := fmt.Sprintf("MATCH (n) WHERE n.source_id = $source_id SET n.%s, n.%s, n.%s, n.%s",
		vfFrag, vtFrag, idFieldsFrag, prevFrag)
	params := map[string]any{
		"source_id":                   n.ID,
		store.KeyValidFrom:             vfBound,
		store.KeyValidTo:               vtBound,
		store.KeyVersionIndependentIDs: idFieldsBound,
		store.KeyPreviousVersions:      prevBound,
	}
	_, err := m.graph.ExecuteQueryWithRetry(ctx, query, params, m.retry)
	return err
}

// applyAdjustments writes each adjustment's new valid_to and version
// identity fields to the graph and fans the new valid_to out to every
// vector index's dependent nodes, in the order the adjustments were
// computed.
func (m *Manager) applyAdjustments(ctx context.Context, adjustments []interval.Adjustment, idFieldNames []string) error {
	for _, a := range adjustments {
		vtFrag, vtBound := m.graph.PropertyAssignment(store.KeyValidTo, a.ValidTo)
		idFieldsFrag, idFieldsBound := m.graph.PropertyAssignment(store.KeyVersionIndependentIDs, idFieldNames)
		query := fmt.Sprintf("MATCH (n) WHERE n.source_id = $source_id SET n.%s, n.%s", vtFrag, idFieldsFrag)
		params := map[string]any{
			"source_id":                    a.SourceID,
			store.KeyValidTo:               vtBound,
			store.KeyVersionIndependentIDs: idFieldsBound,
		}
		if _, err := m.graph.ExecuteQueryWithRetry(ctx, query, params, m.retry); err != nil {
			return err
		}

		if err := m.updateIndexes(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// updateIndexes looks up the adjusted source's dependent node ids per
// vector index (chunks via direct edge, topics two-hop, statements
// three-hop, facts four-hop) and fans the new valid_to out to each index in
// batches of 100, retrying each batch independently with linear backoff. A
// dummy index is skipped outright; an index that exhausts its retries
// raises ErrIndex rather than letting a single backend stall the whole
// batch.
func (m *Manager) updateIndexes(ctx context.Context, a interval.Adjustment) error {
	if m.vectors == nil {
		return nil
	}

	dependents, err := store.DependentNodeIDs(ctx, m.graph, a.SourceID)
	if err != nil {
		return fmt.Errorf("%w: looking up dependents of %s: %v", store.ErrBackend, a.SourceID, err)
	}

	for _, idx := range m.vectors.AllIndexes() {
		if store.IsDummy(idx) {
			continue
		}
		for batch := range store.BatchesOf(dependents[idx.IndexName()], 100) {
			failed, err := store.WithLinearRetry(ctx, m.idxAttempts, func(attempt int) (bool, error) {
				failedIDs, err := idx.UpdateVersioning(ctx, a.ValidTo, batch)
				if err != nil {
					return true, err
				}
				return len(failedIDs) > 0, nil
			})
			if err != nil {
				return fmt.Errorf("%w: index %s: %v", store.ErrIndex, idx.IndexName(), err)
			}
			if failed {
				return fmt.Errorf("%w: index %s exhausted retries updating dependents of %s", store.ErrIndex, idx.IndexName(), a.SourceID)
			}
		}
	}
	return nil
}
