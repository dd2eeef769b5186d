package window_test

import (
	"testing"

	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/agent/internal/netlog/netlogtest"
	"github.com/obsidianstack/threadwork/agent/internal/trace/tracetest"
	"github.com/obsidianstack/threadwork/agent/internal/window"
	"github.com/obsidianstack/threadwork/pkg/types"
)

const page = "https://www.a.test/"

// Network timestamps are seconds on the trace clock; Base is 1s.
func navLog(redirects ...string) []*netlog.Record {
	return netlog.Records(netlogtest.Navigation(1.010, page, redirects...).Log())
}

func urls() netlog.URLArtifact {
	return netlog.URLArtifact{RequestedURL: "http://a.test/", MainDocumentURL: page, FinalDisplayedURL: page}
}

func TestOverlap(t *testing.T) {
	w := window.Window{Start: 10, End: 20}
	cases := []struct {
		s, e, want float64
	}{
		{0, 5, 0},
		{25, 30, 0},
		{12, 18, 6},
		{5, 15, 5},
		{15, 25, 5},
		{0, 30, 10},
	}
	for _, tc := range cases {
		if got := w.Overlap(tc.s, tc.e); got != tc.want {
			t.Errorf("Overlap(%v, %v) = %v, want %v", tc.s, tc.e, got, tc.want)
		}
	}
}

func TestResolve_NavigationMarkers(t *testing.T) {
	tr := tracetest.New(page).
		Complete("RunTask", 0, 5).
		NavigationStart(10, page).
		Complete("RunTask", 20, 5).
		LoadEventEnd(200).
		Complete("RunTask", 300, 5).
		Trace()

	w := window.Resolve(tr, navLog("http://a.test/"), types.GatherNavigation, urls())
	if w.Start != tracetest.MicrosAt(10) || w.End != tracetest.MicrosAt(200) {
		t.Errorf("window = %+v", w)
	}
}

func TestResolve_NoLoadEventEndUsesTraceEnd(t *testing.T) {
	tr := tracetest.New(page).
		NavigationStart(10, page).
		Complete("RunTask", 300, 5).
		Trace()
	w := window.Resolve(tr, navLog(), types.GatherNavigation, urls())
	if w.Start != tracetest.MicrosAt(10) || w.End != tracetest.MicrosAt(305) {
		t.Errorf("window = %+v", w)
	}
}

func TestResolve_MatchesByMainDocumentNotRequestedURL(t *testing.T) {
	// The redirect hop has its own navigationStart which must not be picked.
	tr := tracetest.New(page).
		NavigationStart(2, "http://a.test/").
		NavigationStart(9, page).
		Complete("RunTask", 300, 5).
		Trace()
	w := window.Resolve(tr, navLog("http://a.test/"), types.GatherNavigation, urls())
	if w.Start != tracetest.MicrosAt(9) {
		t.Errorf("start = %v, want %v", w.Start, tracetest.MicrosAt(9))
	}
}

func TestResolve_LastNavigationBeforeRequest(t *testing.T) {
	tr := tracetest.New(page).
		NavigationStart(1, "about:blank").
		NavigationStart(5, "").
		NavigationStart(50, "").
		Complete("RunTask", 300, 5).
		Trace()
	// Main document request starts at 1.010s, i.e. 10ms after Base.
	w := window.Resolve(tr, navLog(), types.GatherNavigation, urls())
	if w.Start != tracetest.MicrosAt(5) {
		t.Errorf("start = %v, want %v", w.Start, tracetest.MicrosAt(5))
	}
}

func TestResolve_Fallbacks(t *testing.T) {
	withMarkers := tracetest.New(page).NavigationStart(10, page).Complete("RunTask", 300, 5).Trace()
	noMarkers := tracetest.New(page).Complete("RunTask", 300, 5).Trace()

	cases := []struct {
		name string
		w    window.Window
		full window.Window
	}{
		{"timespan", window.Resolve(withMarkers, navLog(), types.GatherTimespan, urls()), window.Full(withMarkers)},
		{"snapshot", window.Resolve(withMarkers, navLog(), types.GatherSnapshot, urls()), window.Full(withMarkers)},
		{"no markers", window.Resolve(noMarkers, navLog(), types.GatherNavigation, urls()), window.Full(noMarkers)},
		{"no records", window.Resolve(withMarkers, nil, types.GatherNavigation, urls()), window.Full(withMarkers)},
	}
	for _, tc := range cases {
		if tc.w != tc.full {
			t.Errorf("%s: window = %+v, want full %+v", tc.name, tc.w, tc.full)
		}
	}
}

func TestResolve_InvertedFallsBack(t *testing.T) {
	tr := tracetest.New(page).
		Complete("RunTask", 0, 5).
		NavigationStart(10, page).
		Trace()
	// Trace ends at the marker, so the window would be empty.
	w := window.Resolve(tr, navLog(), types.GatherNavigation, urls())
	if w != window.Full(tr) {
		t.Errorf("window = %+v, want full", w)
	}
}
