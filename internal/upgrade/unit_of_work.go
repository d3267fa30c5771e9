// Package upgrade implements the resumable, batched retrofit that brings a
// graph built before this engine existed up to versioning: every
// un-versioned source is given valid_from = TimestampLowerBound and
// valid_to = TimestampUpperBound, and every node derived from it is enabled
// in its vector index for versioned queries (§4.E of the engine's component
// spec).
package upgrade

import (
	"context"
	"fmt"

	"github.com/lexigraph/versionengine/internal/store"
)

// IndexCounts tallies node-level enablement outcomes for one vector index
// across an upgrade run.
type IndexCounts struct {
	Succeeded int
	Failed    int
}

// vectorStoreUnitOfWork buffers node IDs for one vector index until there
// are enough to apply as a batch, mirroring the accumulator the system
// being replaced uses to avoid one round trip per node. sourceOf tracks
// which source each buffered node ID descends from, so a node ID that
// enable_for_versioning reports as failed can be resolved back to the
// source that owns it.
type vectorStoreUnitOfWork struct {
	index    store.VectorIndex
	nodeIDs  []string
	sourceOf map[string]string // node id -> owning source id
	counts   IndexCounts
}

func newVectorStoreUnitOfWork(index store.VectorIndex) *vectorStoreUnitOfWork {
	return &vectorStoreUnitOfWork{index: index, sourceOf: make(map[string]string)}
}

func (u *vectorStoreUnitOfWork) add(nodeID, sourceID string) {
	u.nodeIDs = append(u.nodeIDs, nodeID)
	u.sourceOf[nodeID] = sourceID
}

func (u *vectorStoreUnitOfWork) size() int { return len(u.nodeIDs) }

// apply enables every buffered node ID for versioning, in batches of
// batchSize, retrying each batch with linear backoff the same way the
// version manager retries a failed index update. A node ID that never
// succeeds — whether because the backend returned it as failed on every
// attempt, or because a call to EnableForVersioning itself errored — is
// resolved to its owning source ID and returned rather than raised as a
// hard error: one bad index write should cost its source the upgrade, not
// the whole tenant run. Node-level outcomes accumulate in u.counts.
func (u *vectorStoreUnitOfWork) apply(ctx context.Context, batchSize, attempts int) []string {
	if len(u.nodeIDs) == 0 {
		return nil
	}
	all := u.nodeIDs
	u.nodeIDs = nil

	var unresolved []string
	for batch := range store.BatchesOf(all, batchSize) {
		ids := batch
		var lastUnresolved []string
		store.WithLinearRetry(ctx, attempts, func(attempt int) (bool, error) {
			failedIDs, err := u.index.EnableForVersioning(ctx, ids)
			if err != nil {
				lastUnresolved = ids
				return true, err
			}
			lastUnresolved = failedIDs
			if len(failedIDs) == 0 {
				return false, nil
			}
			ids = failedIDs
			return true, nil
		})
		unresolved = append(unresolved, lastUnresolved...)
	}
	u.counts.Succeeded += len(all) - len(unresolved)
	u.counts.Failed += len(unresolved)

	var failedSourceIDs []string
	seen := make(map[string]bool, len(unresolved))
	for _, id := range unresolved {
		if srcID, ok := u.sourceOf[id]; ok && !seen[srcID] {
			seen[srcID] = true
			failedSourceIDs = append(failedSourceIDs, srcID)
		}
	}
	for _, id := range all {
		delete(u.sourceOf, id)
	}
	return failedSourceIDs
}

// unitOfWork accumulates work for one page of an upgrade pass: source IDs
// waiting to have their versioning metadata written, one
// vectorStoreUnitOfWork per index, and the set of source IDs a flush has
// already proven cannot be upgraded. apply is triggered automatically on an
// index once its buffer reaches applyThreshold, so memory stays bounded
// on a graph with millions of un-versioned nodes; the final flush happens
// once the caller has finished queuing the page.
type unitOfWork struct {
	graph           store.GraphStore
	indexes         map[store.IndexName]*vectorStoreUnitOfWork
	sourceIDs       []string
	failedSourceIDs map[string]bool
	batchSize       int
	applyThreshold  int
	retryAttempts   int
}

func newUnitOfWork(graph store.GraphStore, vectors store.VectorStore, batchSize, retryAttempts int) *unitOfWork {
	u := &unitOfWork{
		graph:           graph,
		indexes:         make(map[store.IndexName]*vectorStoreUnitOfWork),
		failedSourceIDs: make(map[string]bool),
		batchSize:       batchSize,
		applyThreshold:  batchSize * 10,
		retryAttempts:   retryAttempts,
	}
	if vectors != nil {
		for _, idx := range vectors.AllIndexes() {
			if store.IsDummy(idx) {
				continue
			}
			u.indexes[idx.IndexName()] = newVectorStoreUnitOfWork(idx)
		}
	}
	return u
}

// addSource buffers sourceID for its versioning metadata write. Whether it
// actually gets written is decided at apply time, once every dependent
// write this unit of work knows about has been attempted.
func (u *unitOfWork) addSource(sourceID string) {
	u.sourceIDs = append(u.sourceIDs, sourceID)
}

// addDependent buffers nodeID, owned by sourceID, under the named index,
// flushing that index alone if its buffer has grown large enough. Any
// source ID the flush proves unwritable is recorded immediately so later
// buffer growth doesn't mask it.
func (u *unitOfWork) addDependent(ctx context.Context, name store.IndexName, nodeID, sourceID string) {
	idx, ok := u.indexes[name]
	if !ok {
		return
	}
	idx.add(nodeID, sourceID)
	if idx.size() >= u.applyThreshold {
		u.recordFailed(idx.apply(ctx, u.batchSize, u.retryAttempts))
	}
}

func (u *unitOfWork) recordFailed(sourceIDs []string) {
	for _, id := range sourceIDs {
		u.failedSourceIDs[id] = true
	}
}

// markFailed records sourceID as unwritable directly, for a source whose
// upgrade failed before any dependent write was even queued.
func (u *unitOfWork) markFailed(sourceID string) {
	u.failedSourceIDs[sourceID] = true
}

// isFailed reports whether sourceID is known, as of the last apply, to be
// unwritable.
func (u *unitOfWork) isFailed(sourceID string) bool {
	return u.failedSourceIDs[sourceID]
}

// apply flushes every remaining index buffer, then writes valid_from/
// valid_to for every buffered source ID except those apply has proven — via
// this call or an earlier threshold-triggered one — cannot be upgraded.
func (u *unitOfWork) apply(ctx context.Context) error {
	for _, idx := range u.indexes {
		u.recordFailed(idx.apply(ctx, u.batchSize, u.retryAttempts))
	}

	ids := u.sourceIDs
	u.sourceIDs = nil
	writable := ids[:0]
	for _, id := range ids {
		if !u.failedSourceIDs[id] {
			writable = append(writable, id)
		}
	}
	if len(writable) == 0 {
		return nil
	}
	return setSourceVersioningInfo(ctx, u.graph, writable)
}

// indexCounts reports node-level enablement outcomes per index for this
// unit of work, as of the last apply.
func (u *unitOfWork) indexCounts() map[store.IndexName]IndexCounts {
	out := make(map[store.IndexName]IndexCounts, len(u.indexes))
	for name, idx := range u.indexes {
		out[name] = idx.counts
	}
	return out
}

// setSourceVersioningInfo stamps every source in ids with the
// never-superseded interval, the state every un-versioned source is
// assumed to have held since it was first ingested.
func setSourceVersioningInfo(ctx context.Context, graph store.GraphStore, sourceIDs []string) error {
	vfFrag, vfBound := graph.PropertyAssignment(store.KeyValidFrom, store.TimestampLowerBound)
	vtFrag, vtBound := graph.PropertyAssignment(store.KeyValidTo, store.TimestampUpperBound)
	query := fmt.Sprintf("MATCH (s) WHERE s.source_id IN $source_ids SET s.%s, s.%s", vfFrag, vtFrag)
	params := map[string]any{
		"source_ids":       sourceIDs,
		store.KeyValidFrom: vfBound,
		store.KeyValidTo:   vtBound,
	}
	_, err := graph.ExecuteQueryWithRetry(ctx, query, params, store.DefaultRetryConfig())
	return err
}
