package compute

import (
	"math"
	"testing"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// --- Score() table-driven tests ---

func TestScore_Curve(t *testing.T) {
	tests := []struct {
		name      string
		totalMs   float64
		wantScore float64
	}{
		{"no work", 0, 1},
		{"negative clamps to best", -5, 1},
		{"tiny", 1, 1},
		{"load fixture", 775, 1},
		{"redirect fixture", 979, 1},
		{"devtools fixture", 1360, 0.98},
		{"p10 control point", 2017, 0.9},
		{"between p10 and median", 3000, 0.7},
		{"median control point", 4000, 0.5},
		{"simulated fixture", 4081, 0.48},
		{"slow", 8000, 0.09},
		{"very slow", 20000, 0},
		{"pathological", 1e9, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := Score(tc.totalMs, DefaultOptions())
			if !almostEqual(got, tc.wantScore, 1e-9) {
				t.Errorf("Score(%v) = %v, want %v", tc.totalMs, got, tc.wantScore)
			}
		})
	}
}

func TestScore_Savings(t *testing.T) {
	tests := []struct {
		totalMs float64
		want    float64
	}{
		{0, 0},
		{1360, 0},
		{4000, 0},
		{4081, 81},
		{10000, 6000},
	}
	for _, tc := range tests {
		_, got := Score(tc.totalMs, DefaultOptions())
		if !almostEqual(got, tc.want, 1e-9) {
			t.Errorf("savings(%v) = %v, want %v", tc.totalMs, got, tc.want)
		}
	}
}

func TestScore_MonotoneNonIncreasing(t *testing.T) {
	prev := 2.0
	for ms := 0.0; ms <= 30000; ms += 7.3 {
		s, _ := Score(ms, DefaultOptions())
		if s > prev {
			t.Fatalf("Score(%v) = %v rose above previous %v", ms, s, prev)
		}
		if s < 0 || s > 1 {
			t.Fatalf("Score(%v) = %v out of range", ms, s)
		}
		prev = s
	}
}

func TestScore_CustomControlPoints(t *testing.T) {
	o := Options{P10Ms: 200, MedianMs: 600}
	if s, _ := Score(200, o); !almostEqual(s, 0.9, 1e-9) {
		t.Errorf("p10 score = %v", s)
	}
	if s, _ := Score(600, o); !almostEqual(s, 0.5, 1e-9) {
		t.Errorf("median score = %v", s)
	}
	if _, sav := Score(700, o); !almostEqual(sav, 100, 1e-9) {
		t.Errorf("savings = %v", sav)
	}
}

// --- Breakdown ---

func TestNewBreakdown(t *testing.T) {
	tot := classify.Totals{14, 308, 87, 215, 25, 48, 663}
	b := NewBreakdown(tot, DefaultOptions())
	if !almostEqual(b.TotalMs, 1360, 1e-9) {
		t.Errorf("TotalMs = %v", b.TotalMs)
	}
	if b.Score != 0.98 || b.MetricSavingsMs != 0 {
		t.Errorf("score = %v savings = %v", b.Score, b.MetricSavingsMs)
	}
	if b.Categories != tot {
		t.Error("categories not carried through")
	}

	sim := NewBreakdown(tot.Scale(3), DefaultOptions())
	if !almostEqual(sim.TotalMs, 4080, 1e-9) || sim.Score != 0.48 {
		t.Errorf("simulated total = %v score = %v", sim.TotalMs, sim.Score)
	}
	if !almostEqual(sim.MetricSavingsMs, 80, 1e-9) {
		t.Errorf("simulated savings = %v", sim.MetricSavingsMs)
	}
}

func TestDisplayMode(t *testing.T) {
	if DisplayMode(0.98) != types.DisplayInformative || DisplayMode(0.9) != types.DisplayInformative {
		t.Error("passing scores should be informative")
	}
	if DisplayMode(0.48) != types.DisplayMetricSavings {
		t.Error("failing scores should be metricSavings")
	}
}
