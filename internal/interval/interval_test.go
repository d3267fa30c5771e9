package interval

import (
	"testing"

	"github.com/lexigraph/versionengine/internal/store"
)

func TestPlaceInterval_FirstIngestion(t *testing.T) {
	resolved, adjustments := PlaceInterval(New{SourceID: "s1", ValidFrom: 100}, nil)

	if resolved.ValidTo != store.TimestampUpperBound {
		t.Fatalf("ValidTo = %d, want %d", resolved.ValidTo, store.TimestampUpperBound)
	}
	if len(adjustments) != 0 {
		t.Fatalf("adjustments = %v, want none", adjustments)
	}
}

func TestPlaceInterval_SupersedeCurrent(t *testing.T) {
	existing := []Existing{{SourceID: "s1", ValidFrom: 100, ValidTo: store.TimestampUpperBound}}
	resolved, adjustments := PlaceInterval(New{SourceID: "s2", ValidFrom: 200}, existing)

	if resolved.ValidTo != store.TimestampUpperBound {
		t.Fatalf("ValidTo = %d, want upper bound", resolved.ValidTo)
	}
	if len(adjustments) != 1 || adjustments[0] != (Adjustment{SourceID: "s1", ValidFrom: 100, ValidTo: 200}) {
		t.Fatalf("adjustments = %+v, want [{s1 100 200}]", adjustments)
	}
}

func TestPlaceInterval_InsertHistorical(t *testing.T) {
	existing := []Existing{
		{SourceID: "s1", ValidFrom: 100, ValidTo: 200},
		{SourceID: "s2", ValidFrom: 200, ValidTo: store.TimestampUpperBound},
	}
	resolved, adjustments := PlaceInterval(New{SourceID: "s3", ValidFrom: 150}, existing)

	if resolved.ValidTo != 200 {
		t.Fatalf("ValidTo = %d, want 200", resolved.ValidTo)
	}
	if len(adjustments) != 1 || adjustments[0] != (Adjustment{SourceID: "s1", ValidFrom: 100, ValidTo: 150}) {
		t.Fatalf("adjustments = %+v, want [{s1 100 150}]", adjustments)
	}
}

func TestPlaceInterval_ReingestSameTimestamp(t *testing.T) {
	existing := []Existing{
		{SourceID: "s1", ValidFrom: 100, ValidTo: 200},
		{SourceID: "s2", ValidFrom: 200, ValidTo: store.TimestampUpperBound},
	}
	resolved, adjustments := PlaceInterval(New{SourceID: "s1-v2", ValidFrom: 100}, existing)

	if resolved.ValidTo != 200 {
		t.Fatalf("ValidTo = %d, want 200", resolved.ValidTo)
	}
	if len(adjustments) != 0 {
		t.Fatalf("adjustments = %v, want none", adjustments)
	}
}

// TestPlaceInterval_Idempotent exercises P3: folding the resolved interval
// (and its adjustments) back into existing and replaying yields no further
// adjustments.
func TestPlaceInterval_Idempotent(t *testing.T) {
	existing := []Existing{{SourceID: "s1", ValidFrom: 100, ValidTo: store.TimestampUpperBound}}
	resolved, adjustments := PlaceInterval(New{SourceID: "s2", ValidFrom: 200}, existing)

	next := []Existing{{SourceID: resolved.SourceID, ValidFrom: resolved.ValidFrom, ValidTo: resolved.ValidTo}}
	for _, a := range adjustments {
		next = append(next, Existing{SourceID: a.SourceID, ValidFrom: a.ValidFrom, ValidTo: a.ValidTo})
	}

	_, replay := PlaceInterval(New{SourceID: resolved.SourceID, ValidFrom: resolved.ValidFrom}, existingMinus(next, resolved.SourceID))
	if len(replay) != 0 {
		t.Fatalf("replay adjustments = %v, want none (idempotence)", replay)
	}
}

func existingMinus(all []Existing, id string) []Existing {
	var out []Existing
	for _, e := range all {
		if e.SourceID != id {
			out = append(out, e)
		}
	}
	return out
}

// TestPlaceInterval_SingleCurrent exercises P2 across a sequence of
// arrivals: at most one interval per identity ends at the upper bound.
func TestPlaceInterval_SingleCurrent(t *testing.T) {
	var timeline []Existing
	arrivals := []int64{100, 300, 200, 50, 400}

	for i, vf := range arrivals {
		resolved, adjustments := PlaceInterval(New{SourceID: sourceName(i), ValidFrom: vf}, timeline)
		for _, a := range adjustments {
			for j := range timeline {
				if timeline[j].SourceID == a.SourceID {
					timeline[j].ValidTo = a.ValidTo
				}
			}
		}
		timeline = append(timeline, Existing{SourceID: resolved.SourceID, ValidFrom: resolved.ValidFrom, ValidTo: resolved.ValidTo})
	}

	current := 0
	for _, e := range timeline {
		if e.ValidTo == store.TimestampUpperBound {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("current count = %d, want 1 (timeline: %+v)", current, timeline)
	}

	// P1: pairwise non-overlap.
	for i := range timeline {
		for j := range timeline {
			if i == j {
				continue
			}
			a, b := timeline[i], timeline[j]
			if a.ValidFrom < b.ValidTo && b.ValidFrom < a.ValidTo {
				t.Fatalf("overlap between %+v and %+v", a, b)
			}
		}
	}
}

func sourceName(i int) string {
	return string(rune('a' + i))
}
