package vectorindex

import (
	"context"
	"testing"

	"github.com/lexigraph/versionengine/internal/store"
)

func TestMemoryIndex_UpdateVersioning(t *testing.T) {
	idx := NewMemoryIndex(store.IndexChunk)
	idx.Put("c1", map[string]any{store.KeyValidTo: store.TimestampUpperBound}, store.TimestampUpperBound)

	failed, err := idx.UpdateVersioning(context.Background(), 200, []string{"c1", "missing"})
	if err != nil {
		t.Fatalf("UpdateVersioning: %v", err)
	}
	if len(failed) != 1 || failed[0] != "missing" {
		t.Fatalf("failed = %v, want [missing]", failed)
	}
	hits, err := idx.TopK(context.Background(), "", 10, nil)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(hits) != 1 || hits[0].Metadata[store.KeyValidTo] != int64(200) {
		t.Fatalf("hits = %+v, want valid_to=200", hits)
	}
}

func TestMemoryIndex_DeleteEmbeddings(t *testing.T) {
	idx := NewMemoryIndex(store.IndexFact)
	idx.Put("f1", nil, store.TimestampUpperBound)
	idx.Put("f2", nil, store.TimestampUpperBound)

	idx.DeleteEmbeddings(context.Background(), []string{"f1"})
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", idx.Len())
	}
}

func TestDummyIndex_IsDummy(t *testing.T) {
	d := NewDummyIndex(store.IndexFact)
	var vi store.VectorIndex = d
	if !store.IsDummy(vi) {
		t.Fatalf("IsDummy(dummy) = false, want true")
	}

	m := NewMemoryIndex(store.IndexFact)
	if store.IsDummy(m) {
		t.Fatalf("IsDummy(memory) = true, want false")
	}
}

func TestStore_AllIndexes_PreservesOrder(t *testing.T) {
	s := NewDefaultStore()
	var names []store.IndexName
	for _, idx := range s.AllIndexes() {
		names = append(names, idx.IndexName())
	}
	want := []store.IndexName{store.IndexChunk, store.IndexTopic, store.IndexStatement, store.IndexFact}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}
