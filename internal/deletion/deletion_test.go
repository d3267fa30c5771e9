package deletion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/lexigraph/versionengine/internal/store"
)

// fakeGraph is a tiny in-memory graph keyed by a flat edge/node list, just
// enough to exercise the peel-order queries and deletions without caring
// about the exact query text (a real backend parses it; this fake matches
// on which relationship label and filter the query mentions).
type fakeGraph struct {
	mu      sync.Mutex
	edges   []edge
	nodes   map[string]bool
	sources []store.Row // versioning metadata rows, for the sweeper's lookups
}

type edge struct {
	from, to, label, sourceID, statementID, factID string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]bool)}
}

func (f *fakeGraph) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(query, "RETURN c.chunk_id"):
		sourceID := params["source_id"].(string)
		var rows []store.Row
		for _, e := range f.edges {
			if e.label == "chunk" && e.sourceID == sourceID {
				rows = append(rows, store.Row{"id": e.from})
			}
		}
		return rows, nil
	case strings.Contains(query, "RETURN t.topic_id"):
		sourceID := params["source_id"].(string)
		var rows []store.Row
		for _, e := range f.edges {
			if e.label == "topic" && e.sourceID == sourceID {
				rows = append(rows, store.Row{"id": e.from})
			}
		}
		return rows, nil
	case strings.Contains(query, "RETURN st.statement_id"):
		sourceID := params["source_id"].(string)
		var rows []store.Row
		for _, e := range f.edges {
			if e.label == "statement" && e.sourceID == sourceID {
				rows = append(rows, store.Row{"id": e.from})
			}
		}
		return rows, nil
	case strings.Contains(query, "NOT EXISTS") && strings.Contains(query, "RETURN f.fact_id"):
		candidateIDs := toStringSlice(params["fact_ids"])
		statementExists := func(stID string) bool {
			for _, e := range f.edges {
				if e.label == "statement" && e.from == stID {
					return true
				}
			}
			return false
		}
		// A fact can have more than one SUPPORTS edge in this fake (one per
		// statement it supports); it's orphaned only once none of them point
		// at a surviving statement.
		seenCandidate := map[string]bool{}
		var order []string
		survives := map[string]bool{}
		for _, e := range f.edges {
			if e.label != "fact" || !contains(candidateIDs, e.from) {
				continue
			}
			if !seenCandidate[e.from] {
				seenCandidate[e.from] = true
				order = append(order, e.from)
			}
			if statementExists(e.statementID) {
				survives[e.from] = true
			}
		}
		var rows []store.Row
		for _, id := range order {
			if !survives[id] {
				rows = append(rows, store.Row{"id": id})
			}
		}
		return rows, nil
	case strings.Contains(query, "RETURN DISTINCT f.fact_id"):
		ids := toStringSlice(params["statement_ids"])
		var rows []store.Row
		for _, e := range f.edges {
			if e.label == "fact" && contains(ids, e.statementID) {
				rows = append(rows, store.Row{"id": e.from})
			}
		}
		return rows, nil
	case strings.Contains(query, "RETURN DISTINCT e.entity_id"):
		factIDs := toStringSlice(params["fact_ids"])
		// An entity survives if any live fact outside the candidate set
		// still references it, mirroring the NOT EXISTS survival check.
		survives := map[string]bool{}
		for _, e := range f.edges {
			if e.label == "entity" && !contains(factIDs, e.factID) && f.nodes[e.factID] {
				survives[e.from] = true
			}
		}
		seen := map[string]bool{}
		var rows []store.Row
		for _, e := range f.edges {
			if e.label == "entity" && contains(factIDs, e.factID) && !survives[e.from] && !seen[e.from] {
				seen[e.from] = true
				rows = append(rows, store.Row{"id": e.from})
			}
		}
		return rows, nil
	case strings.Contains(query, "AS valid_to"):
		if ids, ok := params["ids"].([]string); ok {
			var rows []store.Row
			for _, r := range f.sources {
				if id, _ := r["source_id"].(string); contains(ids, id) {
					rows = append(rows, r)
				}
			}
			return rows, nil
		}
		never, _ := params["never"].(int64)
		var rows []store.Row
		for _, r := range f.sources {
			if vt, _ := r["valid_to"].(int64); vt != never {
				rows = append(rows, r)
			}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("fakeGraph: unrecognized query %q", query)
}

func (f *fakeGraph) ExecuteQueryWithRetry(ctx context.Context, query string, params map[string]any, cfg store.RetryConfig) ([]store.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ids, ok := params["ids"].([]string); ok {
		for _, id := range ids {
			f.nodes[id] = false
		}
		var kept []edge
		for _, e := range f.edges {
			if !contains(ids, e.from) {
				kept = append(kept, e)
			}
		}
		f.edges = kept
	}
	if sourceID, ok := params["source_id"].(string); ok {
		f.nodes[sourceID] = false
	}
	return nil, nil
}

func (f *fakeGraph) NodeID(fieldExpr string) string { return fieldExpr }
func (f *fakeGraph) PropertyAssignment(key string, value any) (string, any) {
	return key + " = $" + key, value
}
func (f *fakeGraph) Close() error { return nil }

func toStringSlice(v any) []string {
	s, _ := v.([]string)
	return s
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

type fakeDeleteIndex struct {
	name    store.IndexName
	deleted []string
}

func (f *fakeDeleteIndex) IndexName() store.IndexName { return f.name }
func (f *fakeDeleteIndex) TopK(ctx context.Context, query string, k int, filter any) ([]store.Hit, error) {
	return nil, nil
}
func (f *fakeDeleteIndex) UpdateVersioning(ctx context.Context, validTo int64, nodeIDs []string) ([]string, error) {
	return nil, nil
}
func (f *fakeDeleteIndex) EnableForVersioning(ctx context.Context, nodeIDs []string) ([]string, error) {
	return nil, nil
}
func (f *fakeDeleteIndex) DeleteEmbeddings(ctx context.Context, nodeIDs []string) {
	f.deleted = append(f.deleted, nodeIDs...)
}

type fakeDeleteVectorStore struct{ indexes []store.VectorIndex }

func (f *fakeDeleteVectorStore) AllIndexes() []store.VectorIndex { return f.indexes }
func (f *fakeDeleteVectorStore) Index(name store.IndexName) (store.VectorIndex, bool) {
	for _, idx := range f.indexes {
		if idx.IndexName() == name {
			return idx, true
		}
	}
	return nil, false
}

// buildGraph wires one source with one chunk, one topic, one statement, one
// fact (subject+object on the same shared entity), and one entity that
// becomes orphaned once that fact is gone.
func buildGraph() *fakeGraph {
	g := newFakeGraph()
	g.edges = []edge{
		{from: "c1", label: "chunk", sourceID: "s1"},
		{from: "t1", label: "topic", sourceID: "s1"},
		{from: "st1", label: "statement", sourceID: "s1"},
		{from: "fact1", label: "fact", statementID: "st1"},
		{from: "e1", label: "entity", factID: "fact1"},
	}
	for _, id := range []string{"s1", "c1", "t1", "st1", "fact1", "e1"} {
		g.nodes[id] = true
	}
	return g
}

func TestPlanner_DeleteSource_PeelsEverything(t *testing.T) {
	g := buildGraph()
	chunkIdx := &fakeDeleteIndex{name: store.IndexChunk}
	topicIdx := &fakeDeleteIndex{name: store.IndexTopic}
	stmtIdx := &fakeDeleteIndex{name: store.IndexStatement}
	factIdx := &fakeDeleteIndex{name: store.IndexFact}
	vectors := &fakeDeleteVectorStore{indexes: []store.VectorIndex{chunkIdx, topicIdx, stmtIdx, factIdx}}

	p := New(Config{Graph: g, Vectors: vectors})
	stats, err := p.DeleteSource(context.Background(), "s1")
	if err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}

	if stats.ChunksDeleted != 1 || stats.TopicsDeleted != 1 || stats.StatementsDeleted != 1 ||
		stats.FactsDeleted != 1 || stats.EntitiesDeleted != 1 {
		t.Fatalf("stats = %+v, want one of each", stats)
	}
	if len(g.edges) != 0 {
		t.Fatalf("edges remaining = %+v, want none", g.edges)
	}
	if len(stmtIdx.deleted) != 1 || len(factIdx.deleted) != 1 || len(chunkIdx.deleted) != 1 || len(topicIdx.deleted) != 1 {
		t.Fatalf("index deletions = stmt:%v fact:%v chunk:%v topic:%v, want one each",
			stmtIdx.deleted, factIdx.deleted, chunkIdx.deleted, topicIdx.deleted)
	}
}

// TestPlanner_DeleteSource_SharedFactSurvives covers a fact supporting two
// statements from different sources: deleting the source that owns st1 must
// leave fact1 (and the entity it references) alone, since st2 still depends
// on it.
func TestPlanner_DeleteSource_SharedFactSurvives(t *testing.T) {
	g := newFakeGraph()
	g.edges = []edge{
		{from: "st1", label: "statement", sourceID: "s1"},
		{from: "st2", label: "statement", sourceID: "s2"},
		{from: "fact1", label: "fact", statementID: "st1"},
		{from: "fact1", label: "fact", statementID: "st2"},
		{from: "e1", label: "entity", factID: "fact1"},
	}
	for _, id := range []string{"s1", "s2", "st1", "st2", "fact1", "e1"} {
		g.nodes[id] = true
	}

	factIdx := &fakeDeleteIndex{name: store.IndexFact}
	vectors := &fakeDeleteVectorStore{indexes: []store.VectorIndex{factIdx}}
	p := New(Config{Graph: g, Vectors: vectors})

	stats, err := p.DeleteSource(context.Background(), "s1")
	if err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if stats.FactsDeleted != 0 || stats.EntitiesDeleted != 0 {
		t.Fatalf("stats = %+v, want fact and entity left untouched", stats)
	}
	if len(factIdx.deleted) != 0 {
		t.Fatalf("factIdx.deleted = %v, want none", factIdx.deleted)
	}

	var factStillPresent, statementTwoStillPresent bool
	for _, e := range g.edges {
		if e.label == "fact" && e.from == "fact1" && e.statementID == "st2" {
			factStillPresent = true
		}
		if e.label == "statement" && e.from == "st2" {
			statementTwoStillPresent = true
		}
	}
	if !factStillPresent || !statementTwoStillPresent {
		t.Fatalf("fact1/st2 should survive s1's deletion: fact=%v stmt=%v", factStillPresent, statementTwoStillPresent)
	}
}

// TestPlanner_DeleteSource_SharedEntityOutlivesFirstDeletion covers an
// entity referenced by two facts under different sources: deleting the
// first source orphans its fact but not the entity; deleting the second
// removes the entity as an orphan.
func TestPlanner_DeleteSource_SharedEntityOutlivesFirstDeletion(t *testing.T) {
	g := newFakeGraph()
	g.edges = []edge{
		{from: "stA", label: "statement", sourceID: "A"},
		{from: "stB", label: "statement", sourceID: "B"},
		{from: "factA", label: "fact", statementID: "stA"},
		{from: "factB", label: "fact", statementID: "stB"},
		{from: "e1", label: "entity", factID: "factA"},
		{from: "e1", label: "entity", factID: "factB"},
	}
	for _, id := range []string{"A", "B", "stA", "stB", "factA", "factB", "e1"} {
		g.nodes[id] = true
	}

	p := New(Config{Graph: g})

	stats, err := p.DeleteSource(context.Background(), "A")
	if err != nil {
		t.Fatalf("DeleteSource(A): %v", err)
	}
	if stats.FactsDeleted != 1 || stats.EntitiesDeleted != 0 {
		t.Fatalf("stats after A = %+v, want factA gone and e1 retained", stats)
	}

	stats, err = p.DeleteSource(context.Background(), "B")
	if err != nil {
		t.Fatalf("DeleteSource(B): %v", err)
	}
	if stats.FactsDeleted != 1 || stats.EntitiesDeleted != 1 {
		t.Fatalf("stats after B = %+v, want factB and e1 both gone", stats)
	}
}

func TestPlanner_DeleteSources_Bounded(t *testing.T) {
	g1, g2 := buildGraph(), buildGraph()
	_ = g2 // each fake graph only models one source; run two independent planners' worth of work via IDs unique per graph is unnecessary here

	p := New(Config{Graph: g1, Workers: 2})
	stats, err := p.DeleteSources(context.Background(), []string{"s1"})
	if err != nil {
		t.Fatalf("DeleteSources: %v", err)
	}
	if len(stats) != 1 || stats[0].SourceID != "s1" {
		t.Fatalf("stats = %+v", stats)
	}
}
