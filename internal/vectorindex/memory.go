// Package vectorindex provides vector-index backends the engine fans
// versioning updates out to: an in-memory index for tests and small
// deployments, and a dummy placeholder for artifact types a deployment
// doesn't index at all (§6 of the engine's component spec: a Dummy index
// is always skipped by every fan-out, never retried, never counted as a
// failure).
package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/lexigraph/versionengine/internal/store"
)

// entry is one embedded node tracked by MemoryIndex.
type entry struct {
	nodeID   string
	metadata map[string]any
	validTo  int64
	enabled  bool // true once EnableForVersioning has run for this node
}

// MemoryIndex is a map-backed store.VectorIndex. It does no actual vector
// search: TopK keeps the entries a predicate filter accepts, gives each the
// same score, and orders them by node ID rather than by cosine similarity,
// which is enough to exercise the bitemporal filter plumbing in tests
// without pulling in a real embedding backend.
type MemoryIndex struct {
	name store.IndexName

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryIndex builds an empty index for name.
func NewMemoryIndex(name store.IndexName) *MemoryIndex {
	return &MemoryIndex{name: name, entries: make(map[string]*entry)}
}

func (m *MemoryIndex) IndexName() store.IndexName { return m.name }

// Put seeds or replaces a node's embedding metadata, for test setup.
func (m *MemoryIndex) Put(nodeID string, metadata map[string]any, validTo int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[nodeID] = &entry{nodeID: nodeID, metadata: metadata, validTo: validTo}
}

// TopK returns up to k entries whose metadata satisfies filter, ordered by
// node ID for determinism (there being no real vector distance to rank by).
func (m *MemoryIndex) TopK(ctx context.Context, query string, k int, filter any) ([]store.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pred, _ := filter.(func(map[string]any) bool)
	var hits []store.Hit
	for _, e := range m.entries {
		if pred != nil && !pred(e.metadata) {
			continue
		}
		hits = append(hits, store.Hit{NodeID: e.nodeID, Score: 1, Metadata: e.metadata})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].NodeID < hits[j].NodeID })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// UpdateVersioning sets valid_to on every node in nodeIDs, reporting any
// that aren't present in the index as failed (matching a real backend that
// can't update an embedding it never received).
func (m *MemoryIndex) UpdateVersioning(ctx context.Context, validTo int64, nodeIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for _, id := range nodeIDs {
		e, ok := m.entries[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		e.validTo = validTo
		if e.metadata == nil {
			e.metadata = make(map[string]any, 2)
		}
		e.metadata[store.KeyValidTo] = validTo
	}
	return failed, nil
}

// EnableForVersioning marks every node in nodeIDs as carrying versioning
// metadata, the retrofit step the bulk upgrader drives.
func (m *MemoryIndex) EnableForVersioning(ctx context.Context, nodeIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for _, id := range nodeIDs {
		e, ok := m.entries[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		e.enabled = true
	}
	return failed, nil
}

// DeleteEmbeddings removes nodeIDs outright.
func (m *MemoryIndex) DeleteEmbeddings(ctx context.Context, nodeIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range nodeIDs {
		delete(m.entries, id)
	}
}

// Len reports how many entries the index currently holds, for tests.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
