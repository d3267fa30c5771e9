// Package config loads the engine's runtime settings from a YAML file via
// viper, with environment variable overrides for the values an operator
// most often needs to flip without editing a file — the same two-layer
// approach the teacher's labelmutex and local-config loaders use.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// EngineConfig is the full set of settings cmd/versionctl and a hosting
// pipeline need to construct a graph store, a vector store, and the
// manager/planner/upgrader that sit on top of them.
type EngineConfig struct {
	GraphDSN              string
	GraphEmbedded         bool
	IndexNames            []string
	RetryMaxAttempts      int
	RetryMaxWaitSeconds   int
	IndexRetryAttempts    int
	DeletionWorkers       int
	DeletionBatchSize     int
	UpgradeBatchSize      int
	TelemetryExporter     string
	TelemetryOTLPEndpoint string
}

// defaults mirrors the engine's documented defaults (§4.A/§4.C/§4.E).
func defaults() EngineConfig {
	return EngineConfig{
		RetryMaxAttempts:    10,
		RetryMaxWaitSeconds: 7,
		IndexRetryAttempts:  5,
		DeletionWorkers:     10,
		DeletionBatchSize:   1000,
		UpgradeBatchSize:    100,
		TelemetryExporter:   "none",
	}
}

// Load reads path (a YAML file) into an EngineConfig, applying
// VERSIONENGINE_*-prefixed environment variable overrides on top. A
// missing file is not an error — Load returns the defaults with any
// environment overrides still applied, the same no-file-is-fine behavior
// LoadLocalConfig uses.
func Load(path string) (EngineConfig, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if s := v.GetString("graph.dsn"); s != "" {
		cfg.GraphDSN = s
	}
	if v.IsSet("graph.embedded") {
		cfg.GraphEmbedded = v.GetBool("graph.embedded")
	}
	if names := v.GetStringSlice("index_names"); len(names) > 0 {
		cfg.IndexNames = names
	}
	if v.IsSet("retry.max_attempts") {
		cfg.RetryMaxAttempts = v.GetInt("retry.max_attempts")
	}
	if v.IsSet("retry.max_wait_seconds") {
		cfg.RetryMaxWaitSeconds = v.GetInt("retry.max_wait_seconds")
	}
	if v.IsSet("retry.index_attempts") {
		cfg.IndexRetryAttempts = v.GetInt("retry.index_attempts")
	}
	if v.IsSet("deletion.workers") {
		cfg.DeletionWorkers = v.GetInt("deletion.workers")
	}
	if v.IsSet("deletion.batch_size") {
		cfg.DeletionBatchSize = v.GetInt("deletion.batch_size")
	}
	if v.IsSet("upgrade.batch_size") {
		cfg.UpgradeBatchSize = v.GetInt("upgrade.batch_size")
	}
	if s := v.GetString("telemetry.exporter"); s != "" {
		cfg.TelemetryExporter = s
	}
	if s := v.GetString("telemetry.otlp_endpoint"); s != "" {
		cfg.TelemetryOTLPEndpoint = s
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets an operator override the handful of settings
// worth flipping per-run (connection string, exporter target) without
// touching the checked-in config file.
func applyEnvOverrides(cfg *EngineConfig) {
	if dsn := os.Getenv("VERSIONENGINE_GRAPH_DSN"); dsn != "" {
		cfg.GraphDSN = dsn
	}
	if endpoint := os.Getenv("VERSIONENGINE_OTLP_ENDPOINT"); endpoint != "" {
		cfg.TelemetryOTLPEndpoint = endpoint
		cfg.TelemetryExporter = "otlp"
	}
}
