package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/threadwork/pkg/logging"
	"github.com/obsidianstack/threadwork/server/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	uiDir      string
)

var rootCmd = &cobra.Command{
	Use:           "threadwork-server",
	Short:         "Collect audit reports, alert on budgets, and serve trends",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.Flags().StringVar(&uiDir, "ui-dir", "", "serve UI static files from this directory; leave empty to disable")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "threadwork-server %s\n", version)
			return err
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "threadwork-server: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("threadwork-server starting",
		"version", version,
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
		"snapshot_ttl", cfg.Server.Snapshot.TTL,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	return srv.serve(ctx, fmt.Sprintf(":%d", cfg.Server.HTTPPort), uiDir)
}
