package compute

import (
	"testing"
	"time"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

func makeReport(url string, totalMs float64) *types.Report {
	return &types.Report{
		RequestedURL: url,
		Summary:      &types.WorkSummary{TotalMs: totalMs},
	}
}

func failedReport(url string) *types.Report {
	return &types.Report{
		RequestedURL: url,
		RuntimeError: &types.RuntimeError{Code: "PAGE_HUNG", Message: "hung"},
	}
}

// --- first run ---

func TestEngine_FirstRun_NoBaseline(t *testing.T) {
	e := NewEngine(0)
	tr := e.Observe(makeReport("https://a/", 1200), tick(0))
	if tr.BaselineMs != 0 || tr.Regressed || tr.Runs != 1 {
		t.Errorf("first trend = %+v", tr)
	}
}

// --- regressions ---

func TestEngine_DetectsRegression(t *testing.T) {
	e := NewEngine(0.10)
	e.Observe(makeReport("https://a/", 1000), tick(0))
	e.Observe(makeReport("https://a/", 1000), tick(1))

	tr := e.Observe(makeReport("https://a/", 1150), tick(2))
	if !tr.Regressed {
		t.Errorf("expected regression: %+v", tr)
	}
	if !almostEqual(tr.DeltaMs, 150, 1e-9) || !almostEqual(tr.BaselineMs, 1000, 1e-9) {
		t.Errorf("delta = %v baseline = %v", tr.DeltaMs, tr.BaselineMs)
	}

	ok := e.Observe(makeReport("https://a/", 1050), tick(3))
	if ok.Regressed {
		t.Errorf("within tolerance flagged: %+v", ok)
	}
}

func TestEngine_PagesIndependent(t *testing.T) {
	e := NewEngine(0)
	e.Observe(makeReport("https://a/", 100), tick(0))
	tr := e.Observe(makeReport("https://b/", 5000), tick(1))
	if tr.BaselineMs != 0 || tr.Regressed {
		t.Errorf("page b saw page a's history: %+v", tr)
	}
}

// --- failures ---

func TestEngine_FailuresTracked(t *testing.T) {
	e := NewEngine(0)
	e.Observe(makeReport("https://a/", 100), tick(0))
	tr := e.Observe(failedReport("https://a/"), tick(1))
	if tr.ErrorMessage != "hung" {
		t.Errorf("ErrorMessage = %q", tr.ErrorMessage)
	}
	if !almostEqual(tr.FailurePct, 50, 1e-9) {
		t.Errorf("FailurePct = %v, want 50", tr.FailurePct)
	}
	next := e.Observe(makeReport("https://a/", 100), tick(2))
	if !almostEqual(next.BaselineMs, 100, 1e-9) {
		t.Errorf("failed run polluted baseline: %v", next.BaselineMs)
	}
}

func TestEngine_HistoryWindowBounded(t *testing.T) {
	e := NewEngine(0)
	for i := 0; i < historyWindow+5; i++ {
		e.Observe(makeReport("https://a/", 100), tick(i))
	}
	st := e.states["https://a/"]
	if len(st.totals) != historyWindow || len(st.outcomes) != historyWindow {
		t.Errorf("history len = %d/%d, want %d", len(st.totals), len(st.outcomes), historyWindow)
	}
}

func TestEngine_Forget(t *testing.T) {
	e := NewEngine(0)
	e.Observe(makeReport("https://a/", 100), tick(0))
	e.Forget("https://a/")
	if tr := e.Observe(makeReport("https://a/", 900), tick(1)); tr.BaselineMs != 0 {
		t.Errorf("history survived Forget: %+v", tr)
	}
}
