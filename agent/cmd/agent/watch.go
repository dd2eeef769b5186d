package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/threadwork/agent/internal/audit"
	"github.com/obsidianstack/threadwork/agent/internal/compute"
	"github.com/obsidianstack/threadwork/agent/internal/config"
	"github.com/obsidianstack/threadwork/agent/internal/format"
	"github.com/obsidianstack/threadwork/agent/internal/shipper"
	"github.com/obsidianstack/threadwork/agent/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		dir          string
		formatFlag   string
		settle       time.Duration
		scanExisting bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Audit every artifact bundle written to a spool directory",
		Long: "watch audits each new sub-directory of the spool directory once its files settle,\n" +
			"logs regressions against earlier runs of the same page and ships reports when\n" +
			"ship.server_endpoint is set. The config file is reloaded on change.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := loadConfig()
			defer closeLog()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Watch.Dir
			}
			if dir == "" {
				return errors.New("watch requires --dir or watch.dir in the config")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			slog.Info("threadwork-agent watch starting", "version", version, "dir", dir, "config", configPath)

			var (
				mu  sync.Mutex
				cur = cfg
			)
			current := func() *config.Config {
				mu.Lock()
				defer mu.Unlock()
				return cur
			}
			if configPath != "" {
				go func() {
					if err := config.Watch(ctx, configPath, cfg, func(r config.Reload) {
						mu.Lock()
						cur = r.Config
						mu.Unlock()
						slog.Info("agent: config hot-reloaded", "changed", r.Changed)
						if len(r.Restart) > 0 {
							slog.Warn("agent: config changes need a restart to apply", "keys", r.Restart)
						}
					}); err != nil {
						slog.Error("agent: config watcher stopped", "err", err)
					}
				}()
			}

			var ship *shipper.Shipper
			if cfg.Ship.ServerEndpoint != "" {
				ship = shipper.New(cfg.Ship)
				go ship.Run(ctx)
			}

			trends := compute.NewEngine(cfg.Watch.RegressionTolerance)
			out := cmd.OutOrStdout()
			opts := format.Options{Format: formatFlag, Color: format.ColorEnabled(out), Width: format.Width(out)}

			onBundle := func(bundle string) {
				c := current()
				a, err := audit.LoadBundle(bundle, gatherMode(c))
				if err != nil {
					slog.Error("agent: skipping bundle", "bundle", bundle, "err", err)
					return
				}
				rep, err := newRunner(c).Run(ctx, a, settingsFrom(c))
				if err != nil {
					slog.Warn("agent: audit interrupted", "bundle", bundle, "err", err)
					return
				}
				logTrend(trends.Observe(rep, time.Now()), bundle)
				if err := format.WriteReport(out, rep, opts); err != nil {
					slog.Error("agent: write report", "err", err)
				}
				if ship != nil {
					ship.Ship(rep)
				}
			}

			err = watch.New(dir, settle).Run(ctx, scanExisting, onBundle)
			slog.Info("threadwork-agent watch shutting down")
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", "", "spool directory (overrides watch.dir)")
	flags.StringVar(&formatFlag, "format", format.FormatJSON, "output format per report: table, json or prom")
	flags.DurationVar(&settle, "settle", watch.DefaultSettle, "quiet period before a bundle is audited")
	flags.BoolVar(&scanExisting, "scan-existing", false, "also audit bundles already in the directory")
	return cmd
}

func logTrend(t *compute.Trend, bundle string) {
	switch {
	case t.ErrorMessage != "":
		slog.Warn("agent: run failed", "page", t.PageURL, "bundle", bundle, "err", t.ErrorMessage,
			"failure_pct", t.FailurePct)
	case t.Regressed:
		slog.Warn("agent: main-thread work regressed",
			"page", t.PageURL,
			"bundle", bundle,
			"total_ms", t.TotalMs,
			"baseline_ms", t.BaselineMs,
			"delta_ms", t.DeltaMs,
			"runs", t.Runs)
	default:
		slog.Info("agent: bundle audited", "page", t.PageURL, "bundle", bundle,
			"total_ms", t.TotalMs, "delta_ms", t.DeltaMs, "runs", t.Runs)
	}
}
