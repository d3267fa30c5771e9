package store

import "errors"

// Sentinel error kinds, wrapped via fmt.Errorf("...: %w", ErrX) at call
// sites so callers can errors.Is against them (§7 of the engine's component
// spec). There is deliberately no custom error-struct hierarchy here: a
// wrapped sentinel is enough for every caller in this codebase to branch on.
var (
	// ErrBackend indicates a graph query failed after all retries. Safe to
	// retry the enclosing operation — every write the engine issues is
	// idempotent under replay.
	ErrBackend = errors.New("graph backend error")

	// ErrIndex indicates a vector index reported failed ids after its
	// in-line retries were exhausted.
	ErrIndex = errors.New("vector index error")

	// ErrConfig indicates a VersioningConfig was constructed with
	// contradictory or incomplete settings.
	ErrConfig = errors.New("invalid versioning config")

	// ErrInput indicates malformed node metadata (e.g. a missing source id).
	// Handlers that hit this log a warning and pass the node through
	// untouched; it is never fatal.
	ErrInput = errors.New("invalid node input")
)
