package store

import (
	"context"
	"fmt"
)

// DependentNodeIDs looks up every chunk, topic, statement, and fact node
// reachable from sourceID, grouped by the index that holds its embedding.
// It is the one place that walks the EXTRACTED_FROM/MENTIONED_IN/BELONGS_TO/
// SUPPORTS chain, shared by every caller that needs a source's dependents
// rather than the source itself.
func DependentNodeIDs(ctx context.Context, graph GraphStore, sourceID string) (map[IndexName][]string, error) {
	queries := map[IndexName]string{
		IndexChunk: fmt.Sprintf(
			"MATCH (c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN c.chunk_id AS id", RelExtractedFrom),
		IndexTopic: fmt.Sprintf(
			"MATCH (t)-[:%s]->(c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN t.topic_id AS id",
			RelMentionedIn, RelExtractedFrom),
		IndexStatement: fmt.Sprintf(
			"MATCH (st)-[:%s]->(t)-[:%s]->(c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN st.statement_id AS id",
			RelBelongsTo, RelMentionedIn, RelExtractedFrom),
		IndexFact: fmt.Sprintf(
			"MATCH (f)-[:%s]->(st)-[:%s]->(t)-[:%s]->(c)-[:%s]->(s) WHERE s.source_id = $source_id RETURN f.fact_id AS id",
			RelSupports, RelBelongsTo, RelMentionedIn, RelExtractedFrom),
	}

	out := make(map[IndexName][]string, len(queries))
	for name, query := range queries {
		rows, err := graph.ExecuteQuery(ctx, query, map[string]any{"source_id": sourceID})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			if id, ok := row["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		out[name] = ids
	}
	return out, nil
}

// BatchesOf yields ids in chunks of at most size, in order. Shared by
// callers that fan a node-id list out to a backend in bounded batches.
func BatchesOf(ids []string, size int) func(func([]string) bool) {
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
