package versionmgr

import (
	"strconv"

	"github.com/lexigraph/versionengine/internal/store"
)

// Kind distinguishes a source node, which the manager resolves an interval
// for, from a downstream node that merely inherits its source's interval.
type Kind int

const (
	KindSource Kind = iota
	KindChunk
	KindTopic
	KindStatement
)

// Node is one item flowing through the version manager's stream. A source
// node's ID is its source_id; downstream nodes carry SourceID so the
// manager can stamp them with their source's resolved interval once it is
// known.
type Node struct {
	Kind     Kind
	ID       string
	SourceID string
	Metadata map[string]any
}

// identityFieldNames reads the ordered list of metadata field names that
// identify n's logical document across versions, the value persisted back
// onto every source sharing n's identity as version_independent_id_fields.
func identityFieldNames(n Node) ([]string, bool) {
	raw, ok := n.Metadata[store.KeyVersionIndependentIDs]
	if !ok {
		return nil, false
	}
	names, ok := raw.([]string)
	return names, ok
}

// validFrom resolves the node's valid_from timestamp using the same
// fallback order as the system this engine replaces: an explicit
// valid_from wins, then extract_timestamp, then build_timestamp.
func validFrom(n Node) (int64, bool) {
	for _, key := range []string{store.KeyValidFrom, store.KeyExtractTimestamp, store.KeyBuildTimestamp} {
		if v, ok := n.Metadata[key]; ok {
			if ts, ok := asInt64(v); ok {
				return ts, true
			}
		}
	}
	return 0, false
}

// asInt64 normalizes the timestamp representations a metadata bag or a SQL
// driver can hand back: native ints, JSON-decoded floats, and the
// stringified column values JSON_EXTRACT projections scan as.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		parsed, err := strconv.ParseInt(t, 10, 64)
		return parsed, err == nil
	case []byte:
		parsed, err := strconv.ParseInt(string(t), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}
