package upgrade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lexigraph/versionengine/internal/store"
)

// Config wires an Upgrader to its backends and tuning parameters.
type Config struct {
	Graph   store.GraphStore
	Vectors store.VectorStore
	// BatchSize bounds how many node IDs each EnableForVersioning call
	// receives, and (x10) how large a unit of work's buffers grow before an
	// automatic flush. Source IDs are paged from the graph pageLimit at a
	// time regardless of BatchSize.
	BatchSize int
	// IndexRetryAttempts governs the linear retry loop used when enabling a
	// batch of nodes for versioning on a given index.
	IndexRetryAttempts int
	Logger             *slog.Logger
}

// TenantStats tallies what an upgrade pass did for one tenant: how many
// sources got their interval written, which did not, and node-level
// enablement outcomes per vector index.
type TenantStats struct {
	TenantID        string
	SourcesUpgraded int
	FailedSourceIDs []string
	PerIndex        map[store.IndexName]IndexCounts
}

// Upgrader retrofits a pre-versioning graph, tenant by tenant, so every
// source it holds gets versioning metadata and every node derived from one
// becomes queryable through a versioned filter.
type Upgrader struct {
	graph         store.GraphStore
	vectors       store.VectorStore
	batchSize     int
	retryAttempts int
	log           *slog.Logger
}

// New builds an Upgrader from cfg.
func New(cfg Config) *Upgrader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IndexRetryAttempts <= 0 {
		cfg.IndexRetryAttempts = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Upgrader{
		graph:         cfg.Graph,
		vectors:       cfg.Vectors,
		batchSize:     cfg.BatchSize,
		retryAttempts: cfg.IndexRetryAttempts,
		log:           cfg.Logger,
	}
}

// Upgrade drains every un-versioned source for tenantID, in pages of
// pageLimit, until none remain. Each page gets its own unit of work: every
// source in the page is queued, the page's buffers are flushed (writing
// valid_from/valid_to for every source the flush didn't prove unwritable),
// and only then does the next page get selected — so a source that was just
// written no longer matches nextUnversionedSourceIDs' WHERE valid_from IS
// NULL, and the same page is never re-selected. A source that fails mid-
// upgrade, or whose dependent index write never succeeds, is recorded in
// FailedSourceIDs and excluded from later pages so a retry of the whole run
// doesn't loop on it forever; the run otherwise continues.
func (u *Upgrader) Upgrade(ctx context.Context, tenantID string) (TenantStats, error) {
	stats := TenantStats{TenantID: tenantID, PerIndex: make(map[store.IndexName]IndexCounts)}

	for {
		page, err := u.nextUnversionedSourceIDs(ctx, stats.FailedSourceIDs)
		if err != nil {
			return stats, fmt.Errorf("listing un-versioned sources for tenant %s: %w", tenantID, err)
		}
		if len(page) == 0 {
			break
		}

		uow := newUnitOfWork(u.graph, u.vectors, u.batchSize, u.retryAttempts)
		for _, sourceID := range page {
			if err := u.upgradeOne(ctx, uow, sourceID); err != nil {
				u.log.Error("upgrade failed for source", "tenant_id", tenantID, "source_id", sourceID, "error", err)
				uow.markFailed(sourceID)
				continue
			}
		}

		if err := uow.apply(ctx); err != nil {
			return stats, fmt.Errorf("flushing upgrade batch for tenant %s: %w", tenantID, err)
		}

		for name, counts := range uow.indexCounts() {
			merged := stats.PerIndex[name]
			merged.Succeeded += counts.Succeeded
			merged.Failed += counts.Failed
			stats.PerIndex[name] = merged
		}

		for _, sourceID := range page {
			if uow.isFailed(sourceID) {
				stats.FailedSourceIDs = append(stats.FailedSourceIDs, sourceID)
			} else {
				stats.SourcesUpgraded++
			}
		}
	}

	u.log.Info("tenant upgrade complete", "tenant_id", tenantID,
		"sources_upgraded", stats.SourcesUpgraded, "sources_failed", len(stats.FailedSourceIDs))
	return stats, nil
}

// upgradeOne queues sourceID's versioning metadata write and every node
// that depends on it across all vector indexes.
func (u *Upgrader) upgradeOne(ctx context.Context, uow *unitOfWork, sourceID string) error {
	dependents, err := store.DependentNodeIDs(ctx, u.graph, sourceID)
	if err != nil {
		return err
	}
	for name, ids := range dependents {
		for _, id := range ids {
			uow.addDependent(ctx, name, id, sourceID)
		}
	}
	uow.addSource(sourceID)
	return nil
}

// pageLimit bounds how many un-versioned source IDs one outer-loop
// iteration pulls in; the per-index buffers flush well before a page this
// size is drained, so the limit only caps query result size, not memory.
const pageLimit = 10_000

// nextUnversionedSourceIDs pages in sources with no valid_from metadata,
// excluding any already known to have failed this run.
func (u *Upgrader) nextUnversionedSourceIDs(ctx context.Context, excluding []string) ([]string, error) {
	query := fmt.Sprintf(
		"MATCH (s) WHERE s.%s IS NULL AND NOT s.source_id IN $excluding RETURN s.source_id AS id LIMIT $limit",
		store.KeyValidFrom,
	)
	params := map[string]any{"excluding": excluding, "limit": pageLimit}
	rows, err := u.graph.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackend, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
