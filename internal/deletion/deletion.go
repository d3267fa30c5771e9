// Package deletion implements cascading removal of a source and everything
// derived from it: its chunks, topics, statements, any fact those statements
// supported that is left with no remaining SUPPORTS edge once they're gone,
// and any entity left with no remaining fact pointing at it in turn. Facts
// and entities can be shared with statements or facts belonging to other
// sources, so both are pruned by orphan detection rather than deleted
// outright. Deletion proceeds in peel order — statements, then orphaned
// facts, then orphaned entities, then topics, then chunks, then the source
// node itself — so that each orphan check runs against a graph that has
// already shed the layer above it.
package deletion

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lexigraph/versionengine/internal/store"
)

// Stats tallies what DeleteSource removed for one source.
type Stats struct {
	SourceID          string
	ChunksDeleted     int
	TopicsDeleted     int
	StatementsDeleted int
	FactsDeleted      int
	EntitiesDeleted   int
}

// Config wires a Planner to its backends.
type Config struct {
	Graph   store.GraphStore
	Vectors store.VectorStore
	// Workers bounds how many sources DeleteSources processes concurrently.
	// Defaults to 10.
	Workers int
	// BatchSize bounds how many node IDs each deletion round fetches and
	// removes. Defaults to 1000.
	BatchSize int
	Logger    *slog.Logger
}

// Planner runs cascading deletion against a graph and its vector indexes.
type Planner struct {
	graph     store.GraphStore
	vectors   store.VectorStore
	workers   int
	batchSize int
	log       *slog.Logger
}

// New builds a Planner from cfg.
func New(cfg Config) *Planner {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Planner{graph: cfg.Graph, vectors: cfg.Vectors, workers: cfg.Workers, batchSize: cfg.BatchSize, log: cfg.Logger}
}

// DeleteSource peels a single source away: its statements, any fact left
// orphaned once those statements are gone (pruning any entity those facts
// leave unreferenced in turn), its topics, its chunks, and finally the
// source node itself. Each layer's embeddings are removed from the matching
// vector index before its graph nodes are deleted.
// Each pass runs in rounds of at most BatchSize IDs, refetching until the
// graph has nothing left to offer, so a source with millions of dependents
// never materializes its full fan-out in one query.
func (p *Planner) DeleteSource(ctx context.Context, sourceID string) (Stats, error) {
	stats := Stats{SourceID: sourceID}

	for {
		statementIDs, err := p.getStatementIDs(ctx, sourceID)
		if err != nil {
			return stats, fmt.Errorf("listing statements for %s: %w", sourceID, err)
		}
		if len(statementIDs) == 0 {
			break
		}
		candidateFactIDs, err := p.getFactIDs(ctx, statementIDs)
		if err != nil {
			return stats, fmt.Errorf("listing facts for %s: %w", sourceID, err)
		}

		if err := p.deleteNodes(ctx, statementIDs, store.IndexStatement); err != nil {
			return stats, fmt.Errorf("deleting statements for %s: %w", sourceID, err)
		}
		stats.StatementsDeleted += len(statementIDs)

		// Statements are gone now, so a candidate fact with no remaining
		// SUPPORTS edge was only ever wired to statements this source owned;
		// a fact still shared with a surviving statement is left alone.
		orphanFactIDs, err := p.getOrphanedFactIDs(ctx, candidateFactIDs)
		if err != nil {
			return stats, fmt.Errorf("finding orphaned facts for %s: %w", sourceID, err)
		}
		orphanEntityIDs, err := p.getOrphanedEntityIDs(ctx, orphanFactIDs)
		if err != nil {
			return stats, fmt.Errorf("finding orphaned entities for %s: %w", sourceID, err)
		}
		if err := p.deleteNodes(ctx, orphanFactIDs, store.IndexFact); err != nil {
			return stats, fmt.Errorf("deleting facts for %s: %w", sourceID, err)
		}
		stats.FactsDeleted += len(orphanFactIDs)
		if err := p.deleteNodes(ctx, orphanEntityIDs, ""); err != nil {
			return stats, fmt.Errorf("deleting orphaned entities for %s: %w", sourceID, err)
		}
		stats.EntitiesDeleted += len(orphanEntityIDs)
	}

	for {
		topicIDs, err := p.getTopicIDs(ctx, sourceID)
		if err != nil {
			return stats, fmt.Errorf("listing topics for %s: %w", sourceID, err)
		}
		if len(topicIDs) == 0 {
			break
		}
		if err := p.deleteNodes(ctx, topicIDs, store.IndexTopic); err != nil {
			return stats, fmt.Errorf("deleting topics for %s: %w", sourceID, err)
		}
		stats.TopicsDeleted += len(topicIDs)
	}

	for {
		chunkIDs, err := p.getChunkIDs(ctx, sourceID)
		if err != nil {
			return stats, fmt.Errorf("listing chunks for %s: %w", sourceID, err)
		}
		if len(chunkIDs) == 0 {
			break
		}
		if err := p.deleteNodes(ctx, chunkIDs, store.IndexChunk); err != nil {
			return stats, fmt.Errorf("deleting chunks for %s: %w", sourceID, err)
		}
		stats.ChunksDeleted += len(chunkIDs)
	}

	if err := p.deleteSourceNode(ctx, sourceID); err != nil {
		return stats, fmt.Errorf("deleting source node %s: %w", sourceID, err)
	}

	p.log.Info("source deleted", "source_id", sourceID,
		"chunks", stats.ChunksDeleted, "topics", stats.TopicsDeleted,
		"statements", stats.StatementsDeleted, "facts", stats.FactsDeleted,
		"entities", stats.EntitiesDeleted)
	return stats, nil
}

// DeleteSources runs DeleteSource across sourceIDs, bounding concurrency to
// p.workers (New defaults Workers to 10 when it is left zero). It returns the
// stats for every source that succeeded and the first error encountered, if
// any, without aborting the sources still in flight.
func (p *Planner) DeleteSources(ctx context.Context, sourceIDs []string) ([]Stats, error) {
	var g errgroup.Group
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}

	results := make([]Stats, len(sourceIDs))
	for i, sourceID := range sourceIDs {
		i, sourceID := i, sourceID
		g.Go(func() error {
			stats, err := p.DeleteSource(ctx, sourceID)
			if err != nil {
				return err
			}
			results[i] = stats
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
