package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/alerts"
	"github.com/obsidianstack/threadwork/server/internal/api"
	"github.com/obsidianstack/threadwork/server/internal/auth"
	"github.com/obsidianstack/threadwork/server/internal/config"
	"github.com/obsidianstack/threadwork/server/internal/history"
	"github.com/obsidianstack/threadwork/server/internal/receiver"
	"github.com/obsidianstack/threadwork/server/internal/store"
	"github.com/obsidianstack/threadwork/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// server bundles the long-lived components behind the HTTP listener.
type server struct {
	cfg     config.ServerConfig
	store   *store.Store
	alerts  *alerts.Engine
	history *history.Store
	hub     *ws.Hub
}

func newServer(cfg *config.Config) (*server, error) {
	hist, err := history.Open(cfg.Server.Storage, slog.Default())
	if err != nil {
		return nil, err
	}
	st := store.New(cfg.Server.Snapshot.TTL)
	return &server{
		cfg:     cfg.Server,
		store:   st,
		alerts:  alerts.New(cfg.Server.Alerts),
		history: hist,
		hub:     ws.New(st, cfg.Server.Stream.Interval),
	}, nil
}

func (s *server) close() {
	s.alerts.Wait()
	if err := s.history.Close(); err != nil {
		slog.Error("history close failed", "err", err)
	}
}

// routes assembles the HTTP handler: report ingest behind API key auth, the
// read API, /metrics, the WebSocket stream, and optionally the UI.
func (s *server) routes(uiDir string) http.Handler {
	read := api.New(api.Deps{Store: s.store, Alerts: s.alerts, History: s.history})
	ingest := auth.APIKey(s.cfg.Auth.Mode, s.cfg.Auth.EffectiveHeader(), s.cfg.Auth.Key())(
		receiver.New(s.store, s.alerts, s.history),
	)

	mux := http.NewServeMux()
	mux.HandleFunc(types.ReportsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			ingest.ServeHTTP(w, r)
			return
		}
		read.ServeHTTP(w, r)
	})
	mux.Handle("/api/", read)
	mux.Handle("/metrics", read)
	mux.Handle("/ws/stream", s.hub)

	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if uiDir != "" {
		fs := http.FileServer(http.Dir(uiDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := filepath.Join(uiDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(uiDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", uiDir)
	}
	return mux
}

// serve runs the HTTP listener and background loops until ctx is cancelled,
// then shuts the listener down gracefully.
func (s *server) serve(ctx context.Context, addr, uiDir string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(uiDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.store.Run(ctx); return nil })
	g.Go(func() error { s.history.Run(ctx, s.cfg.Storage.Retention); return nil })
	g.Go(func() error { s.hub.Run(ctx); return nil })
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("threadwork-server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
