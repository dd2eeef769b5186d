package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single save produces
// (truncate, write, chmod, rename).
const reloadDelay = 150 * time.Millisecond

// Reload describes one applied config change.
type Reload struct {
	Config *Config

	// Changed lists the yaml keys whose values differ from the previous config.
	Changed []string

	// Restart is the subset of Changed that a running watch loop cannot pick
	// up: the spool directory, shipping and logging are wired once at startup.
	Restart []string
}

// Watch reloads the config at path whenever it changes on disk and calls
// onReload with the keys that differ from prev. It runs until ctx is done.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temp file over path keep being followed. A save that leaves
// the content unchanged, or that fails to parse or validate, is logged and
// onReload is not called.
func Watch(ctx context.Context, path string, prev *Config, onReload func(Reload)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	last, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	slog.Info("config: watching for changes", "path", abs)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Has(fsnotify.Remove) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			data, err := os.ReadFile(abs)
			if err != nil {
				slog.Error("config: reload read failed, keeping previous config", "path", abs, "err", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			cfg, err := Parse(data)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", abs, "err", err)
				continue
			}
			last = data

			r := Reload{Config: cfg, Changed: Diff(prev, cfg)}
			prev = cfg
			if len(r.Changed) == 0 {
				continue
			}
			for _, k := range r.Changed {
				if restartOnly(k) {
					r.Restart = append(r.Restart, k)
				}
			}
			slog.Info("config: reloaded", "path", abs, "changed", r.Changed)
			onReload(r)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// Diff returns the yaml keys whose values differ between a and b, in file
// order. A nil a is treated as the defaults.
func Diff(a, b *Config) []string {
	if a == nil {
		a = Default()
	}
	var out []string
	add := func(key string, differs bool) {
		if differs {
			out = append(out, key)
		}
	}
	add("settings.throttling_method", a.Settings.ThrottlingMethod != b.Settings.ThrottlingMethod)
	add("settings.throttling.cpu_slowdown_multiplier",
		a.Settings.Throttling.CPUSlowdownMultiplier != b.Settings.Throttling.CPUSlowdownMultiplier)
	add("settings.gather_mode", a.Settings.GatherMode != b.Settings.GatherMode)
	add("scoring.p10_ms", a.Scoring.P10Ms != b.Scoring.P10Ms)
	add("scoring.median_ms", a.Scoring.MedianMs != b.Scoring.MedianMs)
	add("long_tasks.threshold_ms", a.LongTasks.ThresholdMs != b.LongTasks.ThresholdMs)
	add("runner.concurrency", a.Runner.Concurrency != b.Runner.Concurrency)
	add("watch.dir", a.Watch.Dir != b.Watch.Dir)
	add("watch.regression_tolerance", a.Watch.RegressionTolerance != b.Watch.RegressionTolerance)
	add("ship", a.Ship != b.Ship)
	add("log", a.Log != b.Log)
	return out
}

func restartOnly(key string) bool {
	switch key {
	case "watch.dir", "watch.regression_tolerance", "ship", "log":
		return true
	}
	return false
}
