// Package store defines the minimal backend contracts the versioning engine
// consumes: a property-graph store and a set of per-artifact-type vector
// indexes. Nothing outside this package downcasts to a concrete backend.
package store

// Timestamp sentinels bounding every valid_from/valid_to interval.
const (
	TimestampLowerBound int64 = -1
	TimestampUpperBound int64 = 10_000_000_000_000
)

// Metadata keys the engine reads and writes on source and derived nodes.
// Wire-exact with the system the engine replaces.
const (
	KeyValidFrom               = "__aws__versioning__valid_from__"
	KeyValidTo                 = "__aws__versioning__valid_to__"
	KeyExtractTimestamp        = "__aws__versioning__extract_timestamp__"
	KeyBuildTimestamp          = "__aws__versioning__build_timestamp__"
	KeyVersionIndependentIDs   = "__aws__versioning__id_fields__"
	KeyPreviousVersions        = "__aws__versioning__prev_versions__"
)

// VersioningMetadataKeys lists every key stripped from retrieved source
// metadata before it reaches a caller (§4.G of the engine's component spec).
var VersioningMetadataKeys = []string{
	KeyValidFrom,
	KeyValidTo,
	KeyExtractTimestamp,
	KeyBuildTimestamp,
	KeyVersionIndependentIDs,
	KeyPreviousVersions,
}

// Relation labels used by graph queries the engine emits.
const (
	RelExtractedFrom = "EXTRACTED_FROM"
	RelMentionedIn   = "MENTIONED_IN"
	RelBelongsTo     = "BELONGS_TO"
	RelSupports      = "SUPPORTS"
	RelSubject       = "SUBJECT"
	RelObject        = "OBJECT"
)

// IndexName identifies one of the per-artifact-type vector indexes.
type IndexName string

const (
	IndexChunk     IndexName = "chunk"
	IndexTopic     IndexName = "topic"
	IndexStatement IndexName = "statement"
	IndexFact      IndexName = "fact"
)
