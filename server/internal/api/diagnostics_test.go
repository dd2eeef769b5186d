package api

import (
	"testing"

	"github.com/obsidianstack/threadwork/pkg/types"
)

func keys(h []DiagnosticHint) []string {
	out := make([]string, len(h))
	for i, x := range h {
		out[i] = x.Key
	}
	return out
}

func TestComputeDiagnostics(t *testing.T) {
	summary := func(score, total, longest float64, longTasks int) *types.WorkSummary {
		return &types.WorkSummary{
			Score:         score,
			TotalMs:       total,
			LongTaskCount: longTasks,
			LongestTaskMs: longest,
			Categories:    map[string]float64{"styleLayout": total * 0.6, "scriptEvaluation": total * 0.4},
		}
	}

	tests := []struct {
		name      string
		r         *types.Report
		wantKeys  []string
		wantFirst string
	}{
		{
			name:      "runtime error only",
			r:         &types.Report{RuntimeError: &types.RuntimeError{Code: "PAGE_HUNG", Message: "hung"}, Summary: summary(0.1, 9000, 900, 3)},
			wantKeys:  []string{"runtime_error"},
			wantFirst: "critical",
		},
		{
			name:     "no summary",
			r:        &types.Report{},
			wantKeys: []string{},
		},
		{
			name:      "passing page",
			r:         &types.Report{Summary: summary(0.95, 1000, 0, 0)},
			wantKeys:  []string{"dominant_category"},
			wantFirst: "info",
		},
		{
			name:      "heavy page",
			r:         &types.Report{Summary: summary(0.2, 8000, 400, 5)},
			wantKeys:  []string{"mainthread_time", "long_tasks", "dominant_category"},
			wantFirst: "critical",
		},
		{
			name:      "average page short tasks",
			r:         &types.Report{Summary: summary(0.7, 2500, 80, 1)},
			wantKeys:  []string{"mainthread_time", "dominant_category", "long_tasks"},
			wantFirst: "warning",
		},
		{
			name: "failed binary audit",
			r: &types.Report{
				Summary: summary(0.95, 1000, 0, 0),
				Audits: map[string]*types.AuditResult{
					"label-content-name-mismatch": {Title: "Labels mismatch", Score: types.ScorePtr(0), ScoreDisplayMode: types.DisplayBinary},
					"long-tasks":                  {ScoreDisplayMode: types.DisplayInformative},
				},
			},
			wantKeys:  []string{"audit_failed:label-content-name-mismatch", "dominant_category"},
			wantFirst: "warning",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := computeDiagnostics(tc.r)
			got := keys(h)
			if len(got) != len(tc.wantKeys) {
				t.Fatalf("keys: got %v, want %v", got, tc.wantKeys)
			}
			for i := range got {
				if got[i] != tc.wantKeys[i] {
					t.Errorf("keys[%d]: got %q, want %q", i, got[i], tc.wantKeys[i])
				}
			}
			if tc.wantFirst != "" && h[0].Level != tc.wantFirst {
				t.Errorf("first level: got %q, want %q", h[0].Level, tc.wantFirst)
			}
		})
	}
}

func TestComputeDiagnostics_DominantCategory(t *testing.T) {
	r := &types.Report{Summary: &types.WorkSummary{
		Score:      0.95,
		TotalMs:    1000,
		Categories: map[string]float64{"scriptEvaluation": 750, "other": 250},
	}}
	h := computeDiagnostics(r)
	if len(h) != 1 {
		t.Fatalf("hints: got %d, want 1", len(h))
	}
	if h[0].Title != "Mostly Script Evaluation" || *h[0].Value != 750 {
		t.Errorf("hint: got %+v", h[0])
	}
}

func TestDominant_TieBreak(t *testing.T) {
	id, ms := dominant(map[string]float64{"styleLayout": 10, "other": 10, "parseHTML": 5})
	if id != "other" || ms != 10 {
		t.Errorf("dominant: got %q %v, want other 10", id, ms)
	}
	if id, _ := dominant(nil); id != "" {
		t.Errorf("dominant(nil): got %q", id)
	}
}
