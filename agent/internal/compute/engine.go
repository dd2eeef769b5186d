package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// historyWindow is the number of recent runs kept per page.
const historyWindow = 20

// DefaultRegressionTolerance is the fractional growth over baseline that
// counts as a regression.
const DefaultRegressionTolerance = 0.10

// Trend compares one run of a page with the runs before it.
type Trend struct {
	PageURL      string
	Timestamp    time.Time
	Runs         int
	TotalMs      float64
	BaselineMs   float64 // mean total of earlier successful runs; 0 on the first
	DeltaMs      float64
	Regressed    bool
	FailurePct   float64 // share of recent runs that ended in a runtime error
	ErrorMessage string
}

// Engine keeps per-page run history across repeated audits of the same page.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	tolerance float64
	states    map[string]*pageState
}

// NewEngine returns a ready-to-use Engine. A tolerance <= 0 uses
// DefaultRegressionTolerance.
func NewEngine(tolerance float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultRegressionTolerance
	}
	return &Engine{tolerance: tolerance, states: make(map[string]*pageState)}
}

// Observe records r and returns its trend against earlier runs of the same page.
//
// now is passed explicitly so callers (and tests) control the clock.
func (e *Engine) Observe(r *types.Report, now time.Time) *Trend {
	e.mu.Lock()
	defer e.mu.Unlock()

	page := r.PageURL()
	st := e.stateFor(page)
	failed := r.RuntimeError != nil || r.Summary == nil
	st.recordOutcome(failed)

	out := &Trend{
		PageURL:    page,
		Timestamp:  now,
		Runs:       len(st.outcomes),
		FailurePct: st.failurePct(),
	}
	if failed {
		if r.RuntimeError != nil {
			out.ErrorMessage = r.RuntimeError.Message
		}
		slog.Warn("compute: run failed, no trend", "page", page, "err", out.ErrorMessage)
		return out
	}

	out.TotalMs = r.Summary.TotalMs
	if len(st.totals) > 0 {
		out.BaselineMs = mean(st.totals)
		out.DeltaMs = out.TotalMs - out.BaselineMs
		out.Regressed = out.BaselineMs > 0 && out.DeltaMs > out.BaselineMs*e.tolerance
	}
	st.recordTotal(out.TotalMs)
	return out
}

// Forget drops the history of page.
func (e *Engine) Forget(page string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, page)
}

type pageState struct {
	totals   []float64 // successful run totals, newest last
	outcomes []bool    // true = failed, newest last
}

func (e *Engine) stateFor(page string) *pageState {
	if st, ok := e.states[page]; ok {
		return st
	}
	st := &pageState{}
	e.states[page] = st
	return st
}

func (st *pageState) recordOutcome(failed bool) {
	if len(st.outcomes) >= historyWindow {
		st.outcomes = st.outcomes[1:]
	}
	st.outcomes = append(st.outcomes, failed)
}

func (st *pageState) recordTotal(ms float64) {
	if len(st.totals) >= historyWindow {
		st.totals = st.totals[1:]
	}
	st.totals = append(st.totals, ms)
}

func (st *pageState) failurePct() float64 {
	if len(st.outcomes) == 0 {
		return 0
	}
	var n int
	for _, f := range st.outcomes {
		if f {
			n++
		}
	}
	return float64(n) / float64(len(st.outcomes)) * 100
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
