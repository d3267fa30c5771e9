// Package versioning implements the query-time half of the engine: turning
// a versioning intent into a metadata-filter predicate (§4.F), and
// stripping internal versioning keys from retrieved source metadata before
// it reaches a caller (§4.G).
package versioning

import (
	"fmt"

	"github.com/lexigraph/versionengine/internal/store"
)

// Mode is the closed set of ways a query can be scoped in time.
type Mode int

const (
	NoVersioning Mode = iota
	Current
	Previous
	AtTimestamp
	BeforeTimestamp
	OnOrAfterTimestamp
)

// Config pairs a Mode with the timestamp it needs, if any.
type Config struct {
	Mode        Mode
	AtTimestamp int64
}

// NewConfig mirrors the source system's constructor: mode and timestamp
// together is the normal case; timestamp alone implies AtTimestamp; neither
// implies NoVersioning; mode alone uses the upper bound as its timestamp
// (unused by modes that don't need one). Pass nil for either argument to
// mean "not given".
func NewConfig(mode *Mode, at *int64) Config {
	switch {
	case mode != nil && at != nil:
		return Config{Mode: *mode, AtTimestamp: *at}
	case mode == nil && at == nil:
		return Config{Mode: NoVersioning, AtTimestamp: store.TimestampUpperBound}
	case mode == nil:
		return Config{Mode: AtTimestamp, AtTimestamp: *at}
	default: // mode given, no timestamp
		return Config{Mode: *mode, AtTimestamp: store.TimestampUpperBound}
	}
}

// NoVersioningConfig is the pass-through config.
func NoVersioningConfig() Config {
	return Config{Mode: NoVersioning, AtTimestamp: store.TimestampUpperBound}
}

// Apply turns c into a version predicate and AND-combines it with
// userFilter (§4.F's table, and P5: an empty user filter reduces to just
// the version predicate).
func (c Config) Apply(userFilter Filter) (Filter, error) {
	if c.Mode == NoVersioning {
		return userFilter, nil
	}

	versionFilter, err := c.predicate()
	if err != nil {
		return Filter{}, err
	}

	if userFilter.IsZero() {
		return versionFilter, nil
	}
	return Group(CondAnd, versionFilter, userFilter), nil
}

func (c Config) predicate() (Filter, error) {
	switch c.Mode {
	case Current:
		return Leaf(store.KeyValidTo, OpEQ, store.TimestampUpperBound), nil
	case Previous:
		return Leaf(store.KeyValidTo, OpLT, store.TimestampUpperBound), nil
	case AtTimestamp:
		return Group(CondAnd,
			Leaf(store.KeyValidFrom, OpLTE, c.AtTimestamp),
			Leaf(store.KeyValidTo, OpGT, c.AtTimestamp),
		), nil
	case BeforeTimestamp:
		return Leaf(store.KeyValidTo, OpLT, c.AtTimestamp), nil
	case OnOrAfterTimestamp:
		return Leaf(store.KeyValidFrom, OpGTE, c.AtTimestamp), nil
	default:
		return Filter{}, fmt.Errorf("%w: unknown versioning mode %d", store.ErrConfig, c.Mode)
	}
}

// Strip removes every key in store.VersioningMetadataKeys from metadata,
// returning a new map; the input is left untouched. Unknown keys survive
// the round trip intact (§9 design note).
func Strip(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	drop := make(map[string]struct{}, len(store.VersioningMetadataKeys))
	for _, k := range store.VersioningMetadataKeys {
		drop[k] = struct{}{}
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if _, ok := drop[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}
