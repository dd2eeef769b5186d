// Package window resolves the time range of a trace that belongs to the page
// navigation being audited.
package window

import (
	"log/slog"

	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Window is a closed time range in trace microseconds with Start <= End.
type Window struct {
	Start float64
	End   float64
}

// Duration returns End-Start.
func (w Window) Duration() float64 { return w.End - w.Start }

// Overlap returns the length of [start, end] that falls inside w.
func (w Window) Overlap(start, end float64) float64 {
	lo, hi := max(start, w.Start), min(end, w.End)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Full returns the whole span of tr.
func Full(tr *trace.Trace) Window {
	s, e := tr.Bounds()
	return Window{Start: s, End: e}
}

// Resolve returns the navigation window for tr. Timespan and snapshot runs,
// and navigation runs whose markers cannot be found, use the full trace span.
func Resolve(tr *trace.Trace, records []*netlog.Record, mode types.GatherMode, urls netlog.URLArtifact) Window {
	full := Full(tr)
	if mode != types.GatherNavigation {
		return full
	}

	frame := tr.MainFrame().ID
	if frame == "" {
		slog.Debug("window: no main frame, using full trace", "mode", mode)
		return full
	}
	navs := tr.FrameMarkers("navigationStart", frame)
	if len(navs) == 0 {
		slog.Debug("window: no navigationStart marker, using full trace")
		return full
	}

	doc, err := netlog.MainDocument(records, urls)
	if err != nil {
		slog.Debug("window: main document not found, using full trace", "err", err)
		return full
	}

	start, ok := matchNavigation(navs, doc)
	if !ok {
		slog.Debug("window: no navigationStart for main document, using full trace", "url", doc.URL)
		return full
	}

	end := full.End
	for _, e := range tr.FrameMarkers("loadEventEnd", frame) {
		if e.TS > start {
			end = e.TS
			break
		}
	}

	w := Window{Start: start, End: end}
	if w.Duration() <= 0 {
		slog.Debug("window: empty navigation window, using full trace", "start", start, "end", end)
		return full
	}
	return w
}

func matchNavigation(navs []trace.Event, doc *netlog.Record) (float64, bool) {
	for _, e := range navs {
		if e.Arg("data.documentLoaderURL").String() == doc.URL {
			return e.TS, true
		}
	}
	var (
		ts    float64
		found bool
		limit = doc.StartMicros()
	)
	for _, e := range navs {
		if e.TS <= limit {
			ts, found = e.TS, true
		}
	}
	return ts, found
}
