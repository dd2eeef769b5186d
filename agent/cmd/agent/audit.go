package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/threadwork/agent/internal/audit"
	"github.com/obsidianstack/threadwork/agent/internal/format"
	"github.com/obsidianstack/threadwork/agent/internal/shipper"
	"github.com/obsidianstack/threadwork/pkg/types"
)

func newAuditCmd() *cobra.Command {
	var (
		tracePath     string
		logPath       string
		artifactsPath string
		bundleDir     string
		formatFlag    string
		throttling    string
		cpuSlowdown   float64
		failUnder     float64
		ship          bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit one captured page load and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bundleDir == "" && tracePath == "" {
				return errors.New("one of --bundle or --trace is required")
			}
			if bundleDir != "" && (tracePath != "" || logPath != "" || artifactsPath != "") {
				return errors.New("--bundle cannot be combined with --trace, --devtools-log or --artifacts")
			}

			cfg, closeLog, err := loadConfig()
			defer closeLog()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("throttling-method") {
				cfg.Settings.ThrottlingMethod = throttling
			}
			if flags.Changed("cpu-slowdown") {
				cfg.Settings.Throttling.CPUSlowdownMultiplier = cpuSlowdown
			}
			if _, err := settingsFrom(cfg).Throttling(); err != nil {
				return err
			}

			var a *audit.Artifacts
			if bundleDir != "" {
				a, err = audit.LoadBundle(bundleDir, gatherMode(cfg))
			} else {
				a, err = audit.Load(audit.Paths{
					Trace:       tracePath,
					DevtoolsLog: logPath,
					Artifacts:   artifactsPath,
				}, gatherMode(cfg))
			}
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rep, err := newRunner(cfg).Run(ctx, a, settingsFrom(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := format.WriteReport(out, rep, format.Options{
				Format: formatFlag,
				Color:  format.ColorEnabled(out),
				Width:  format.Width(out),
			}); err != nil {
				return err
			}

			if ship {
				if cfg.Ship.ServerEndpoint == "" {
					return errors.New("--ship requires ship.server_endpoint in the config")
				}
				if err := shipper.New(cfg.Ship).Send(ctx, rep); err != nil {
					return err
				}
				slog.Info("agent: report shipped", "report", rep.ID, "endpoint", cfg.Ship.ServerEndpoint)
			}
			return checkScore(rep, failUnder)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&tracePath, "trace", "", "path to the trace JSON")
	flags.StringVar(&logPath, "devtools-log", "", "path to the DevTools protocol log JSON")
	flags.StringVar(&artifactsPath, "artifacts", "", "path to artifacts.json (URL, gather context, page load error, accessibility)")
	flags.StringVar(&bundleDir, "bundle", "", "directory holding artifacts.json, *trace.json and *devtoolslog.json")
	flags.StringVar(&formatFlag, "format", format.FormatTable, "output format: table, json or prom")
	flags.StringVar(&throttling, "throttling-method", "", "override settings.throttling_method (devtools, simulate, provided)")
	flags.Float64Var(&cpuSlowdown, "cpu-slowdown", 0, "override settings.throttling.cpu_slowdown_multiplier")
	flags.Float64Var(&failUnder, "fail-under", 0, "exit non-zero when the work breakdown score is below this value")
	flags.BoolVar(&ship, "ship", false, "send the report to ship.server_endpoint")
	return cmd
}

// checkScore fails when the work breakdown scored below minScore, or could not
// be scored at all while a minimum was requested.
func checkScore(rep *types.Report, minScore float64) error {
	if minScore <= 0 {
		return nil
	}
	wb := rep.Audit(types.AuditWorkBreakdown)
	if wb == nil || wb.Score == nil {
		return fmt.Errorf("work breakdown has no score (%s)", auditError(wb))
	}
	if *wb.Score < minScore {
		return fmt.Errorf("work breakdown score %.2f is below %.2f", *wb.Score, minScore)
	}
	return nil
}

func auditError(r *types.AuditResult) string {
	if r == nil {
		return "audit did not run"
	}
	return r.ErrorMessage
}
