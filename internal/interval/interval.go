// Package interval implements the pure placement algebra that decides how a
// newly arriving source version fits into the existing timeline of other
// versions sharing its identity, and which existing versions must have
// their valid_to adjusted as a result (§4.B of the engine's component
// spec). It has no dependency on any backend and is exercised directly by
// the version manager.
package interval

import (
	"sort"

	"github.com/lexigraph/versionengine/internal/store"
)

// Existing is one other version already on the timeline for a given
// identity, as read back from the graph.
type Existing struct {
	SourceID string
	ValidFrom int64
	ValidTo   int64
}

// New is the work item for the version currently being ingested. ValidTo is
// nil until PlaceInterval resolves it.
type New struct {
	SourceID  string
	ValidFrom int64
	ValidTo   *int64
}

// Adjustment is a valid_to update PlaceInterval says must be applied to an
// existing version.
type Adjustment struct {
	SourceID  string
	ValidFrom int64
	ValidTo   int64
}

// Resolved is New with ValidTo guaranteed non-nil.
type Resolved struct {
	SourceID  string
	ValidFrom int64
	ValidTo   int64
}

// PlaceInterval implements the semantics of §4.B step by step:
//
//  1. Existing versions are scanned most-recent-first by ValidFrom.
//  2. A re-ingest (same ValidFrom as an existing version) inherits that
//     version's ValidTo unchanged.
//  3. A version newer than some existing n takes n's successor's ValidFrom
//     as its own ValidTo (possibly still unresolved after the scan).
//  4. An unresolved ValidTo falls back to the next-higher ValidFrom seen,
//     or to TimestampUpperBound if new is the latest version overall.
//  5. If new lands as the current version, every existing "current"
//     version older than new is archived to end at new's ValidFrom.
//     Otherwise, every existing version new's interval property
//     fully supersedes is shortened to end at new's ValidFrom.
//
// The function is pure and idempotent: calling it again with resolved
// folded into existing yields zero adjustments (P3).
func PlaceInterval(n New, existing []Existing) (Resolved, []Adjustment) {
	sorted := make([]Existing, len(existing))
	copy(sorted, existing)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ValidFrom > sorted[j].ValidFrom })

	var prevValidFrom *int64
	validTo := n.ValidTo

	for _, e := range sorted {
		switch {
		case n.ValidFrom == e.ValidFrom:
			vt := e.ValidTo
			validTo = &vt
		case n.ValidFrom > e.ValidFrom:
			validTo = prevValidFrom
		default:
			vf := e.ValidFrom
			prevValidFrom = &vf
		}
	}

	if validTo == nil {
		if prevValidFrom != nil {
			validTo = prevValidFrom
		} else {
			upper := store.TimestampUpperBound
			validTo = &upper
		}
	}

	resolved := Resolved{SourceID: n.SourceID, ValidFrom: n.ValidFrom, ValidTo: *validTo}

	var adjustments []Adjustment
	if resolved.ValidTo == store.TimestampUpperBound {
		for _, e := range sorted {
			if resolved.ValidFrom > e.ValidFrom && e.ValidTo == store.TimestampUpperBound {
				adjustments = append(adjustments, Adjustment{SourceID: e.SourceID, ValidFrom: e.ValidFrom, ValidTo: resolved.ValidFrom})
			}
		}
	} else {
		for _, e := range sorted {
			if resolved.ValidFrom > e.ValidFrom && resolved.ValidFrom < e.ValidTo && resolved.ValidTo >= e.ValidTo {
				adjustments = append(adjustments, Adjustment{SourceID: e.SourceID, ValidFrom: e.ValidFrom, ValidTo: resolved.ValidFrom})
			}
		}
	}

	return resolved, adjustments
}
