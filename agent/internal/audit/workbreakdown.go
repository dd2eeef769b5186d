package audit

import (
	"errors"
	"fmt"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/compute"
	"github.com/obsidianstack/threadwork/agent/internal/tasks"
	"github.com/obsidianstack/threadwork/agent/internal/throttle"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// MetricTBT is the metricSavings key the work breakdown reports against.
const MetricTBT = "TBT"

// WorkBreakdown reports main-thread time per work category during the page
// navigation.
type WorkBreakdown struct {
	Scoring compute.Options
}

// NewWorkBreakdown returns the audit with the default scoring curve.
func NewWorkBreakdown() *WorkBreakdown {
	return &WorkBreakdown{Scoring: compute.DefaultOptions()}
}

func (w *WorkBreakdown) Meta() Meta {
	return Meta{
		ID:           types.AuditWorkBreakdown,
		Title:        "Minimizes main-thread work",
		FailureTitle: "Minimize main-thread work",
		Description: "Consider reducing the time spent parsing, compiling and executing JS. " +
			"You may find delivering smaller JS payloads helps with this.",
		RequiredArtifacts: []string{ArtifactTrace, ArtifactDevtoolsLog},
	}
}

func (w *WorkBreakdown) Audit(a *Artifacts, c *Context) (*types.AuditResult, error) {
	m := w.Meta()
	if err := a.require(m.RequiredArtifacts...); err != nil {
		return errorResult(m, err.Error()), nil
	}
	tctx, err := c.Settings.Throttling()
	if err != nil {
		return nil, err
	}

	raw, err := WorkBreakdownTotals(c.Cache, a)
	if err != nil {
		if errors.Is(err, tasks.ErrNegativeSelfTime) {
			c.logger().Error("audit: task tree invariant violated", "audit", m.ID, "err", err)
		}
		return errorResult(m, err.Error()), nil
	}

	b := compute.NewBreakdown(throttle.Adjust(raw, tctx), w.Scoring)
	return finalize(m, &types.AuditResult{
		Score:            types.ScorePtr(b.Score),
		ScoreDisplayMode: compute.DisplayMode(b.Score),
		NumericValue:     b.TotalMs,
		NumericUnit:      "millisecond",
		DisplayValue:     formatSeconds(b.TotalMs),
		Details:          breakdownDetails(b.Categories),
		MetricSavings:    map[string]float64{MetricTBT: b.MetricSavingsMs},
	}), nil
}

// breakdownDetails lists every non-zero category in enumeration order.
func breakdownDetails(t classify.Totals) *types.Details {
	items := make([]types.Item, 0, len(t))
	for _, c := range classify.All() {
		if t[c] <= 0 {
			continue
		}
		items = append(items, types.Item{
			"category":      c.String(),
			"categoryLabel": c.Label(),
			"duration":      t[c],
		})
	}
	return &types.Details{
		Type: "table",
		Headings: []types.Heading{
			{Key: "categoryLabel", ValueType: "text", Label: "Category"},
			{Key: "duration", ValueType: "ms", Label: "Time Spent"},
		},
		Items: items,
	}
}

func formatSeconds(ms float64) string {
	return fmt.Sprintf("%.1f s", ms/1000)
}
