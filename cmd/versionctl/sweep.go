package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexigraph/versionengine/internal/config"
	"github.com/lexigraph/versionengine/internal/deletion"
	"github.com/lexigraph/versionengine/internal/graph"
	"github.com/lexigraph/versionengine/internal/telemetry"
	"github.com/lexigraph/versionengine/internal/vectorindex"
)

var sweepBeforeTimestamp int64

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cascade-delete superseded source versions replaced at or before a cutoff timestamp",
		RunE:  runSweep,
	}
	cmd.Flags().Int64Var(&sweepBeforeTimestamp, "before", 0, "delete previous versions superseded at or before this timestamp")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Exporter:     telemetry.Exporter(cfg.TelemetryExporter),
		OTLPEndpoint: cfg.TelemetryOTLPEndpoint,
		ServiceName:  "versionctl-sweep",
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer shutdown(ctx)

	gs, err := graph.Open(ctx, graph.Config{DSN: cfg.GraphDSN, Embedded: cfg.GraphEmbedded})
	if err != nil {
		return fmt.Errorf("opening graph store: %w", err)
	}
	defer gs.Close()

	planner := deletion.New(deletion.Config{
		Graph:     gs,
		Vectors:   vectorindex.NewDefaultStore(),
		Workers:   cfg.DeletionWorkers,
		BatchSize: cfg.DeletionBatchSize,
	})
	sweeper := deletion.NewPrevVersionSweeper(planner, deletion.ValidToAtOrBefore(sweepBeforeTimestamp))

	results, err := sweeper.SweepSuperseded(ctx)
	if err != nil {
		return fmt.Errorf("sweeping: %w", err)
	}
	for _, stats := range results {
		fmt.Printf("source=%s chunks=%d topics=%d statements=%d facts=%d entities=%d\n",
			stats.SourceID, stats.ChunksDeleted, stats.TopicsDeleted,
			stats.StatementsDeleted, stats.FactsDeleted, stats.EntitiesDeleted)
	}
	return nil
}
