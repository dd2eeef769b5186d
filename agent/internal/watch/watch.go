// Package watch reports artifact bundles as they appear in a spool
// directory. A bundle is a sub-directory holding the files of one captured
// run; it is reported once its files have stopped changing for the settle
// period.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a bundle must be quiet before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher tracks bundle directories under Dir.
type Watcher struct {
	Dir    string
	Settle time.Duration

	now func() time.Time
}

// New returns a watcher for dir. A settle <= 0 uses DefaultSettle.
func New(dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{Dir: dir, Settle: settle, now: time.Now}
}

// Run calls fn once for every bundle that settles, until ctx is cancelled.
// Bundles already present are reported first when scanExisting is set and
// ignored otherwise. fn runs on the watcher goroutine.
func (w *Watcher) Run(ctx context.Context, scanExisting bool, fn func(dir string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %q: %w", w.Dir, err)
	}

	pending := make(map[string]time.Time)
	seen := make(map[string]bool)

	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return fmt.Errorf("watch: read %q: %w", w.Dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.Dir, e.Name())
		if scanExisting {
			pending[dir] = time.Time{}
		} else {
			seen[dir] = true
		}
	}
	slog.Info("watch: watching for bundles", "dir", w.Dir, "existing", len(entries), "scan_existing", scanExisting)

	tick := time.NewTicker(w.Settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			dir := w.bundleOf(ev.Name)
			if dir == "" || seen[dir] {
				continue
			}
			if dir == ev.Name && ev.Has(fsnotify.Create) {
				// Watch inside the bundle so late writes reset its settle timer.
				_ = fw.Add(dir)
			}
			pending[dir] = w.now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: watcher error", "err", err)

		case <-tick.C:
			now := w.now()
			for dir, last := range pending {
				if now.Sub(last) < w.Settle {
					continue
				}
				ready, gone := hasFiles(dir)
				if gone {
					delete(pending, dir)
					continue
				}
				if !ready {
					continue
				}
				delete(pending, dir)
				seen[dir] = true
				_ = fw.Remove(dir)
				slog.Debug("watch: bundle settled", "dir", dir)
				fn(dir)
			}
		}
	}
}

// bundleOf maps an event path to its bundle directory: a direct child of Dir,
// or the parent of a file inside one.
func (w *Watcher) bundleOf(path string) string {
	parent := filepath.Dir(path)
	if parent == filepath.Clean(w.Dir) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			return path
		}
		return ""
	}
	if filepath.Dir(parent) == filepath.Clean(w.Dir) {
		return parent
	}
	return ""
}

func hasFiles(dir string) (ready, gone bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, true
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return true, false
		}
	}
	return false, false
}
