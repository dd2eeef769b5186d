package main

import (
	"os"

	"github.com/obsidianstack/threadwork/agent/internal/audit"
	"github.com/obsidianstack/threadwork/agent/internal/compute"
	"github.com/obsidianstack/threadwork/agent/internal/config"
	"github.com/obsidianstack/threadwork/pkg/logging"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// loadConfig loads the config named by --config and installs its logger.
// Logs go to stderr unless a log file is configured, so stdout carries only
// the report.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, func() {}, err
	}
	closeLog, err := logging.SetupTo(cfg.Log, os.Stderr)
	if err != nil {
		return nil, func() {}, err
	}
	return cfg, closeLog, nil
}

func newRunner(cfg *config.Config) *audit.Runner {
	scoring := compute.Options{P10Ms: cfg.Scoring.P10Ms, MedianMs: cfg.Scoring.MedianMs}
	return audit.NewRunner(
		audit.DefaultAudits(scoring, cfg.LongTasks.ThresholdMs),
		audit.WithConcurrency(cfg.Runner.Concurrency),
	)
}

func settingsFrom(cfg *config.Config) audit.Settings {
	return audit.Settings{
		ThrottlingMethod:      cfg.Settings.ThrottlingMethod,
		CPUSlowdownMultiplier: cfg.Settings.Throttling.CPUSlowdownMultiplier,
	}
}

func gatherMode(cfg *config.Config) types.GatherMode {
	return types.GatherMode(cfg.Settings.GatherMode)
}
