package vectorindex

import "github.com/lexigraph/versionengine/internal/store"

// Store aggregates a fixed set of per-artifact-type indexes into a single
// store.VectorStore, the same role the teacher's factory types play for
// picking a concrete backend by name.
type Store struct {
	indexes map[store.IndexName]store.VectorIndex
	order   []store.IndexName
}

// NewStore builds a Store from a name-to-index map, preserving the order
// names are given in for AllIndexes (deterministic fan-out order matters
// for reproducible test output, if nothing else).
func NewStore(indexes map[store.IndexName]store.VectorIndex, order []store.IndexName) *Store {
	return &Store{indexes: indexes, order: order}
}

func (s *Store) AllIndexes() []store.VectorIndex {
	all := make([]store.VectorIndex, 0, len(s.order))
	for _, name := range s.order {
		if idx, ok := s.indexes[name]; ok {
			all = append(all, idx)
		}
	}
	return all
}

func (s *Store) Index(name store.IndexName) (store.VectorIndex, bool) {
	idx, ok := s.indexes[name]
	return idx, ok
}

// NewDefaultStore builds a Store with a MemoryIndex for chunk, topic,
// statement, and fact — the shape most tests and a single-process
// deployment want out of the box.
func NewDefaultStore() *Store {
	names := []store.IndexName{store.IndexChunk, store.IndexTopic, store.IndexStatement, store.IndexFact}
	indexes := make(map[store.IndexName]store.VectorIndex, len(names))
	for _, name := range names {
		indexes[name] = NewMemoryIndex(name)
	}
	return NewStore(indexes, names)
}
