package store

import "context"

// Hit is a single top-k search result.
type Hit struct {
	NodeID   string
	Score    float64
	Metadata map[string]any
}

// VectorIndex is the minimal contract the engine needs from a dense-vector
// index over one artifact type.
type VectorIndex interface {
	// IndexName reports which artifact type this index embeds.
	IndexName() IndexName

	// TopK runs a similarity search, optionally constrained by filter (a
	// metadata-filter expression produced by the versioning package).
	TopK(ctx context.Context, query string, k int, filter any) ([]Hit, error)

	// UpdateVersioning sets valid_to on the given node ids, returning the
	// subset the backend reported as a retriable failure. An empty result
	// means every id succeeded.
	UpdateVersioning(ctx context.Context, validTo int64, nodeIDs []string) (failedIDs []string, err error)

	// EnableForVersioning is an idempotent one-time retrofit that
	// materializes a valid_to field on legacy vectors that predate
	// versioning. Returns ids the backend reported as failed.
	EnableForVersioning(ctx context.Context, nodeIDs []string) (failedIDs []string, err error)

	// DeleteEmbeddings removes vectors for the given node ids. Best-effort:
	// implementations log failures rather than returning them, matching
	// the "fire-and-report" semantics the deletion planner relies on.
	DeleteEmbeddings(ctx context.Context, nodeIDs []string)
}

// VectorStore groups the per-artifact-type indexes the engine fans writes
// out to.
type VectorStore interface {
	AllIndexes() []VectorIndex
	// Index returns the index for name, or (nil, false) if none is
	// configured for that artifact type.
	Index(name IndexName) (VectorIndex, bool)
}

// Dummy is implemented by index/store variants that answer every query
// with empty results and should be skipped by the engine's fan-out logic
// instead of being downcast to.
type Dummy interface {
	IsDummy() bool
}

// IsDummy reports whether idx is a no-op placeholder index.
func IsDummy(idx VectorIndex) bool {
	d, ok := idx.(Dummy)
	return ok && d.IsDummy()
}
