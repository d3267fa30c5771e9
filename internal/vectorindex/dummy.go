package vectorindex

import (
	"context"

	"github.com/lexigraph/versionengine/internal/store"
)

// DummyIndex implements store.VectorIndex and store.Dummy for an artifact
// type a deployment chooses not to index at all. Every fan-out helper in
// this engine checks store.IsDummy before doing any work, so a Dummy's
// methods are never actually expected to run — they exist so the zero
// value satisfies the interface cleanly rather than panicking if a caller
// slips up.
type DummyIndex struct {
	name store.IndexName
}

// NewDummyIndex builds a placeholder index for name.
func NewDummyIndex(name store.IndexName) *DummyIndex {
	return &DummyIndex{name: name}
}

func (d *DummyIndex) IndexName() store.IndexName { return d.name }

func (d *DummyIndex) TopK(ctx context.Context, query string, k int, filter any) ([]store.Hit, error) {
	return nil, nil
}

func (d *DummyIndex) UpdateVersioning(ctx context.Context, validTo int64, nodeIDs []string) ([]string, error) {
	return nil, nil
}

func (d *DummyIndex) EnableForVersioning(ctx context.Context, nodeIDs []string) ([]string, error) {
	return nil, nil
}

func (d *DummyIndex) DeleteEmbeddings(ctx context.Context, nodeIDs []string) {}

// IsDummy satisfies store.Dummy.
func (d *DummyIndex) IsDummy() bool { return true }
