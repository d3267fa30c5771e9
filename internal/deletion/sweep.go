package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/lexigraph/versionengine/internal/store"
	"github.com/lexigraph/versionengine/internal/versionmgr"
)

// FilterFunc decides whether a superseded version should be deleted, given
// the metadata row read back from the graph for it (source_id, valid_from,
// valid_to). Returning true marks the version deletable.
type FilterFunc func(metadata store.Row) bool

// DeleteAll is the default retention policy: every superseded version a
// source names is deleted as soon as the source is emitted.
func DeleteAll(store.Row) bool { return true }

// ValidToAtOrBefore passes versions superseded at or before cutoff,
// retaining anything replaced more recently.
func ValidToAtOrBefore(cutoff int64) FilterFunc {
	return func(metadata store.Row) bool {
		vt, ok := rowInt64(metadata["valid_to"])
		return ok && vt <= cutoff
	}
}

// PrevVersionSweeper is a node-stream filter that runs downstream of the
// version manager: for each source node emitted, it looks up the previous
// versions that source's resolution displaced, deletes the ones whose
// metadata passes the configured filter, and passes every node through
// unchanged. A deletion failure is logged, not raised — retention cleanup
// never blocks ingestion.
type PrevVersionSweeper struct {
	planner *Planner
	filter  FilterFunc
	log     *slog.Logger
}

// NewPrevVersionSweeper builds a sweeper that deletes through planner.
// A nil filter deletes every previous version.
func NewPrevVersionSweeper(planner *Planner, filter FilterFunc) *PrevVersionSweeper {
	if filter == nil {
		filter = DeleteAll
	}
	return &PrevVersionSweeper{planner: planner, filter: filter, log: planner.log}
}

// Process consumes a node stream (typically Manager.Process's output, which
// stamps each source node's previous_versions) and yields it unchanged,
// sweeping each source node's deletable previous versions as a side effect
// before the node is emitted.
func (s *PrevVersionSweeper) Process(ctx context.Context, nodes <-chan versionmgr.Node) <-chan versionmgr.Node {
	out := make(chan versionmgr.Node)
	go func() {
		defer close(out)
		for n := range nodes {
			if n.Kind == versionmgr.KindSource {
				if err := s.sweepNode(ctx, n); err != nil {
					s.log.Error("previous-version sweep failed", "source_id", n.ID, "error", err)
				}
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *PrevVersionSweeper) sweepNode(ctx context.Context, n versionmgr.Node) error {
	prevIDs := stringSlice(n.Metadata[store.KeyPreviousVersions])
	if len(prevIDs) == 0 {
		return nil
	}

	records, err := s.getSources(ctx, prevIDs)
	if err != nil {
		return fmt.Errorf("looking up previous versions of %s: %w", n.ID, err)
	}
	deletable := s.deletableIDs(records)
	if len(deletable) == 0 {
		return nil
	}

	s.log.Debug("deleting previous versions", "source_id", n.ID, "prev_versions", deletable)
	_, err = s.planner.DeleteSources(ctx, deletable)
	return err
}

// SweepSuperseded is the out-of-band variant cmd/versionctl drives: instead
// of reacting to a stream, it lists every superseded version in the graph
// (valid_to below the upper bound), applies the filter, and deletes the
// survivors of that cut in one pass.
func (s *PrevVersionSweeper) SweepSuperseded(ctx context.Context) ([]Stats, error) {
	query := fmt.Sprintf(
		"MATCH (s) WHERE s.%s <> $never RETURN s.source_id AS source_id, s.%s AS valid_from, s.%s AS valid_to",
		store.KeyValidTo, store.KeyValidFrom, store.KeyValidTo,
	)
	records, err := s.planner.graph.ExecuteQuery(ctx, query, map[string]any{"never": store.TimestampUpperBound})
	if err != nil {
		return nil, fmt.Errorf("%w: listing superseded versions: %v", store.ErrBackend, err)
	}
	deletable := s.deletableIDs(records)
	if len(deletable) == 0 {
		return nil, nil
	}
	return s.planner.DeleteSources(ctx, deletable)
}

func (s *PrevVersionSweeper) deletableIDs(records []store.Row) []string {
	var ids []string
	for _, r := range records {
		if id, ok := r["source_id"].(string); ok && s.filter(r) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *PrevVersionSweeper) getSources(ctx context.Context, sourceIDs []string) ([]store.Row, error) {
	query := fmt.Sprintf(
		"MATCH (s) WHERE s.source_id IN $ids RETURN s.source_id AS source_id, s.%s AS valid_from, s.%s AS valid_to",
		store.KeyValidFrom, store.KeyValidTo,
	)
	rows, err := s.planner.graph.ExecuteQuery(ctx, query, map[string]any{"ids": sourceIDs})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackend, err)
	}
	return rows, nil
}

// stringSlice tolerates both the []string the version manager stamps and
// the []any a metadata bag comes back as after a JSON round trip.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func rowInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		parsed, err := strconv.ParseInt(t, 10, 64)
		return parsed, err == nil
	case []byte:
		parsed, err := strconv.ParseInt(string(t), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}
