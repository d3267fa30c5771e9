package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexigraph/versionengine/internal/config"
	"github.com/lexigraph/versionengine/internal/graph"
	"github.com/lexigraph/versionengine/internal/telemetry"
	"github.com/lexigraph/versionengine/internal/upgrade"
	"github.com/lexigraph/versionengine/internal/vectorindex"
)

var (
	upgradeTenantIDs  []string
	upgradeAllTenants bool
)

func newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Retrofit a pre-versioning graph so every source and its dependents carry versioning metadata",
		RunE:  runUpgrade,
	}
	cmd.Flags().StringSliceVar(&upgradeTenantIDs, "tenant-ids", nil, "tenant IDs to upgrade (repeatable, comma-separated)")
	cmd.Flags().BoolVar(&upgradeAllTenants, "all-tenants", false, "upgrade every tenant found in the graph")
	return cmd
}

func runUpgrade(cmd *cobra.Command, args []string) error {
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
		ServiceName:  "versionctl-upgrade",
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

	u := upgrade.New(upgrade.Config{
		Graph:              gs,
		Vectors:            vectorindex.NewDefaultStore(),
		BatchSize:          cfg.UpgradeBatchSize,
		IndexRetryAttempts: cfg.IndexRetryAttempts,
	})

	if upgradeAllTenants {
		results, err := upgrade.UpgradeAllTenants(ctx, u, gs)
		if err != nil {
			return err
		}
		for _, stats := range results {
			printTenantStats(stats)
		}
		return nil
	}

	for _, tenantID := range upgradeTenantIDs {
		stats, err := u.Upgrade(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("upgrading tenant %s: %w", tenantID, err)
		}
		printTenantStats(stats)
	}
	return nil
}

func printTenantStats(stats upgrade.TenantStats) {
	fmt.Printf("tenant=%s sources_upgraded=%d sources_failed=%d\n",
		stats.TenantID, stats.SourcesUpgraded, len(stats.FailedSourceIDs))
	for name, counts := range stats.PerIndex {
		fmt.Printf("  index=%s nodes_enabled=%d nodes_failed=%d\n", name, counts.Succeeded, counts.Failed)
	}
	for _, id := range stats.FailedSourceIDs {
		fmt.Printf("  failed_source=%s\n", id)
	}
}
