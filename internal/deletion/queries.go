package deletion

import (
	"context"
	"fmt"

	"github.com/lexigraph/versionengine/internal/store"
)

// deleteBatchSize bounds how many node IDs go into a single DELETE
// statement, keeping generated queries a sane size regardless of how large
// a source's fan-out is.
const deleteBatchSize = 500

func (p *Planner) getChunkIDs(ctx context.Context, sourceID string) ([]string, error) {
	query := fmt.Sprintf(
		"MATCH (c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN c.chunk_id AS id LIMIT $limit",
		store.RelExtractedFrom,
	)
	return p.queryIDs(ctx, query, map[string]any{"source_id": sourceID, "limit": p.batchSize}, "id")
}

func (p *Planner) getTopicIDs(ctx context.Context, sourceID string) ([]string, error) {
	query := fmt.Sprintf(
		"MATCH (t)-[:%s]->(c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN t.topic_id AS id LIMIT $limit",
		store.RelMentionedIn, store.RelExtractedFrom,
	)
	return p.queryIDs(ctx, query, map[string]any{"source_id": sourceID, "limit": p.batchSize}, "id")
}

func (p *Planner) getStatementIDs(ctx context.Context, sourceID string) ([]string, error) {
	query := fmt.Sprintf(
		"MATCH (st)-[:%s]->(t)-[:%s]->(c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN st.statement_id AS id LIMIT $limit",
		store.RelBelongsTo, store.RelMentionedIn, store.RelExtractedFrom,
	)
	return p.queryIDs(ctx, query, map[string]any{"source_id": sourceID, "limit": p.batchSize}, "id")
}

// getFactIDs finds every fact that supports one of statementIDs. A fact can
// support statements from more than one source, so this is only the
// candidate set deletion might orphan, not the set to delete outright.
func (p *Planner) getFactIDs(ctx context.Context, statementIDs []string) ([]string, error) {
	if len(statementIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		"MATCH (f)-[:%s]->(st) WHERE st.statement_id IN $statement_ids RETURN DISTINCT f.fact_id AS id",
		store.RelSupports,
	)
	return p.queryIDs(ctx, query, map[string]any{"statement_ids": statementIDs}, "id")
}

// getOrphanedFactIDs narrows candidateFactIDs down to the ones left with no
// outgoing SUPPORTS edge at all, meant to run after the statements that were
// about to be deleted already have been — so any candidate still pointing at
// a surviving statement (from a source that shares the fact) is left alone.
func (p *Planner) getOrphanedFactIDs(ctx context.Context, candidateFactIDs []string) ([]string, error) {
	if len(candidateFactIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`MATCH (f) WHERE f.fact_id IN $fact_ids
		 AND NOT EXISTS { MATCH (f)-[:%s]->(st) }
		 RETURN f.fact_id AS id`,
		store.RelSupports,
	)
	return p.queryIDs(ctx, query, map[string]any{"fact_ids": candidateFactIDs}, "id")
}

// getOrphanedEntityIDs finds every entity referenced (as subject or object)
// only by facts in factIDs — i.e. entities left with zero remaining
// references once those facts are gone. This mirrors the two-query
// subject/object union the system being replaced uses (and fixes that
// system's object-side query name typo along the way: both sides are
// queried, not just the correctly-named one).
func (p *Planner) getOrphanedEntityIDs(ctx context.Context, factIDs []string) ([]string, error) {
	if len(factIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`MATCH (e)<-[:%s|%s]-(f) WHERE f.fact_id IN $fact_ids
		 AND NOT EXISTS { MATCH (e)<-[:%s|%s]-(other) WHERE NOT other.fact_id IN $fact_ids }
		 RETURN DISTINCT e.entity_id AS id`,
		store.RelSubject, store.RelObject, store.RelSubject, store.RelObject,
	)
	return p.queryIDs(ctx, query, map[string]any{"fact_ids": factIDs}, "id")
}

func (p *Planner) queryIDs(ctx context.Context, query string, params map[string]any, alias string) ([]string, error) {
	rows, err := p.graph.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackend, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[alias].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// deleteNodes removes ids' relationships and nodes from the graph in
// deleteBatchSize batches, and — when idx is non-empty — first removes
// their embeddings from the matching vector index.
func (p *Planner) deleteNodes(ctx context.Context, ids []string, idx store.IndexName) error {
	if len(ids) == 0 {
		return nil
	}

	if idx != "" && p.vectors != nil {
		if vectorIdx, ok := p.vectors.Index(idx); ok && !store.IsDummy(vectorIdx) {
			for batch := range batches(ids, deleteBatchSize) {
				vectorIdx.DeleteEmbeddings(ctx, batch)
			}
		}
	}

	query := "MATCH (n) WHERE n.node_id IN $ids DETACH DELETE n"
	for batch := range batches(ids, deleteBatchSize) {
		if _, err := p.graph.ExecuteQueryWithRetry(ctx, query, map[string]any{"ids": batch}, store.DefaultRetryConfig()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) deleteSourceNode(ctx context.Context, sourceID string) error {
	query := "MATCH (s) WHERE s.source_id = $source_id DETACH DELETE s"
	_, err := p.graph.ExecuteQueryWithRetry(ctx, query, map[string]any{"source_id": sourceID}, store.DefaultRetryConfig())
	return err
}

// batches yields ids in chunks of at most size, in order.
func batches(ids []string, size int) func(func([]string) bool) {
	return func(yield func([]string) bool) {
		for i := 0; i < len(ids); i += size {
			end := i + size
			if end > len(ids) {
				end = len(ids)
			}
			if !yield(ids[i:end]) {
				return
			}
		}
	}
}
