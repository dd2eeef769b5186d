package audit

import (
	"fmt"

	"github.com/obsidianstack/threadwork/agent/internal/cache"
	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/agent/internal/tasks"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/agent/internal/window"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Cache kinds of the computed artifacts shared between audits.
const (
	KindNetworkRecords   cache.Kind = "network-records"
	KindNavigationWindow cache.Kind = "navigation-window"
	KindMainThreadTasks  cache.Kind = "main-thread-tasks"
	KindWorkBreakdown    cache.Kind = "work-breakdown"
)

// navKey identifies the inputs of a navigation window. Every field is
// comparable so it can serve as a cache handle.
type navKey struct {
	trace *trace.Trace
	log   *netlog.Log
	mode  types.GatherMode
	urls  netlog.URLArtifact
}

func keyFor(a *Artifacts) navKey {
	return navKey{trace: a.Trace, log: a.DevtoolsLog, mode: a.GatherContext.GatherMode, urls: a.URL}
}

// NetworkRecords returns the records of l, computed once per cache.
func NetworkRecords(c *cache.Cache, l *netlog.Log) ([]*netlog.Record, error) {
	return cache.GetOrCompute(c, cache.Key{Kind: KindNetworkRecords, Handle: l}, func() ([]*netlog.Record, error) {
		return netlog.Records(l), nil
	})
}

// NavigationWindow returns the navigation window of a, computed once per cache.
func NavigationWindow(c *cache.Cache, a *Artifacts) (window.Window, error) {
	return cache.GetOrCompute(c, cache.Key{Kind: KindNavigationWindow, Handle: keyFor(a)}, func() (window.Window, error) {
		records, err := NetworkRecords(c, a.DevtoolsLog)
		if err != nil {
			return window.Window{}, err
		}
		urls := a.URL
		if urls.MainDocumentURL == "" {
			if derived, err := netlog.DeriveURLs(records); err == nil {
				urls = derived
			}
		}
		return window.Resolve(a.Trace, records, a.GatherContext.GatherMode, urls), nil
	})
}

// MainThreadTasks returns the main-thread task tree of tr, computed once per
// cache.
func MainThreadTasks(c *cache.Cache, tr *trace.Trace) (*tasks.Tree, error) {
	return cache.GetOrCompute(c, cache.Key{Kind: KindMainThreadTasks, Handle: tr}, func() (*tasks.Tree, error) {
		return tasks.MainThreadTasks(tr)
	})
}

// WorkBreakdownTotals returns the unthrottled per-category main-thread work
// inside the navigation window, computed once per cache.
func WorkBreakdownTotals(c *cache.Cache, a *Artifacts) (classify.Totals, error) {
	return cache.GetOrCompute(c, cache.Key{Kind: KindWorkBreakdown, Handle: keyFor(a)}, func() (classify.Totals, error) {
		tree, err := MainThreadTasks(c, a.Trace)
		if err != nil {
			return classify.Totals{}, fmt.Errorf("work breakdown: %w", err)
		}
		w, err := NavigationWindow(c, a)
		if err != nil {
			return classify.Totals{}, fmt.Errorf("work breakdown: %w", err)
		}
		return tasks.Aggregate(tree.Samples(w)), nil
	})
}
