package compute

import (
	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Breakdown is the scored main-thread work of one run. Categories are already
// adjusted for throttling.
type Breakdown struct {
	Categories      classify.Totals
	TotalMs         float64
	Score           float64
	MetricSavingsMs float64
}

// NewBreakdown scores adjusted category totals.
func NewBreakdown(adjusted classify.Totals, o Options) Breakdown {
	total := adjusted.Sum()
	score, savings := Score(total, o)
	return Breakdown{
		Categories:      adjusted,
		TotalMs:         total,
		Score:           score,
		MetricSavingsMs: savings,
	}
}

// DisplayMode is informative for passing scores and metricSavings otherwise.
func DisplayMode(score float64) types.ScoreDisplayMode {
	if score >= PassThreshold {
		return types.DisplayInformative
	}
	return types.DisplayMetricSavings
}
