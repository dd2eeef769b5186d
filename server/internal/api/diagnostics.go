package api

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// DiagnosticHint is one human-readable insight about a page's latest run.
// The UI displays these as chips on the page card; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint, in ms.
	Value *float64 `json:"value,omitempty"`
}

var categoryLabels = map[string]string{
	"parseHTML":            "Parse HTML & CSS",
	"styleLayout":          "Style & Layout",
	"paintCompositeRender": "Rendering",
	"scriptEvaluation":     "Script Evaluation",
	"scriptParseCompile":   "Script Parsing & Compilation",
	"garbageCollection":    "Garbage Collection",
	"other":                "Other",
}

var categoryAdvice = map[string]string{
	"parseHTML": "Large documents and stylesheets take long to parse. " +
		"Trim unused CSS and keep the initial HTML small.",
	"styleLayout": "Style recalculation and layout dominate. " +
		"Reduce DOM size and avoid reading layout properties right after writing styles.",
	"paintCompositeRender": "Painting and compositing dominate. " +
		"Look for large animated areas and layers that repaint on every frame.",
	"scriptEvaluation": "Running JavaScript dominates. " +
		"Split bundles, defer non-critical scripts, and move heavy work off the main thread.",
	"scriptParseCompile": "Parsing and compiling JavaScript dominates. " +
		"Ship less code up front and rely on code caching for repeat visits.",
	"garbageCollection": "The garbage collector runs often. " +
		"Reduce short-lived allocations in hot paths.",
	"other": "Work that does not fit a named category dominates. " +
		"Inspect the longest tasks in the trace to see what they do.",
}

const longTaskWarnMs = 250

// computeDiagnostics derives human-readable hints from a report.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(r *types.Report) []DiagnosticHint {
	hints := []DiagnosticHint{}

	// ── Runtime error ────────────────────────────────────────────────────────
	if re := r.RuntimeError; re != nil {
		hints = append(hints, DiagnosticHint{
			Key:   "runtime_error",
			Level: "critical",
			Title: re.Code,
			Detail: fmt.Sprintf("The run did not complete: %s. "+
				"No audit in this report has a usable score.", re.Message),
		})
		return hints
	}

	s := r.Summary
	if s == nil {
		return hints
	}

	// ── Overall main-thread time ─────────────────────────────────────────────
	total := s.TotalMs
	switch {
	case s.Score < 0.5:
		hints = append(hints, DiagnosticHint{
			Key:   "mainthread_time",
			Level: "critical",
			Title: fmt.Sprintf("%.1f s main-thread work", total/1000),
			Detail: fmt.Sprintf("The main thread was busy for %.0f ms. "+
				"Pages stay unresponsive to input while this work runs.", total),
			Value: &total,
		})
	case s.Score < 0.9:
		hints = append(hints, DiagnosticHint{
			Key:   "mainthread_time",
			Level: "warning",
			Title: fmt.Sprintf("%.1f s main-thread work", total/1000),
			Detail: fmt.Sprintf("The main thread was busy for %.0f ms. "+
				"This is above the passing budget.", total),
			Value: &total,
		})
	}

	// ── Dominant category ────────────────────────────────────────────────────
	if id, ms := dominant(s.Categories); id != "" && total > 0 {
		share := ms / total * 100
		hints = append(hints, DiagnosticHint{
			Key:    "dominant_category",
			Level:  "info",
			Title:  fmt.Sprintf("Mostly %s", categoryLabel(id)),
			Detail: fmt.Sprintf("%.0f%% of main-thread time went to %s. %s", share, categoryLabel(id), categoryAdvice[id]),
			Value:  &ms,
		})
	}

	// ── Long tasks ───────────────────────────────────────────────────────────
	if s.LongTaskCount > 0 {
		longest := s.LongestTaskMs
		level := "info"
		if longest >= longTaskWarnMs {
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "long_tasks",
			Level: level,
			Title: fmt.Sprintf("%d long tasks", s.LongTaskCount),
			Detail: fmt.Sprintf("The longest task blocked the main thread for %.0f ms. "+
				"Break long tasks into smaller chunks so input can be handled in between.", longest),
			Value: &longest,
		})
	}

	// ── Failed binary audits ─────────────────────────────────────────────────
	for id, a := range r.Audits {
		if a.ScoreDisplayMode != types.DisplayBinary || a.Score == nil || *a.Score != 0 {
			continue
		}
		hints = append(hints, DiagnosticHint{
			Key:    "audit_failed:" + id,
			Level:  "warning",
			Title:  a.Title,
			Detail: a.Description,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		if levelRank[hints[i].Level] != levelRank[hints[j].Level] {
			return levelRank[hints[i].Level] < levelRank[hints[j].Level]
		}
		return hints[i].Key < hints[j].Key
	})
	return hints
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// dominant returns the category with the most time; ties go to the smaller id.
func dominant(cats map[string]float64) (string, float64) {
	var best string
	var bestMs float64
	for id, ms := range cats {
		if ms > bestMs || (ms == bestMs && ms > 0 && id < best) {
			best, bestMs = id, ms
		}
	}
	return best, bestMs
}

func categoryLabel(id string) string {
	if l, ok := categoryLabels[id]; ok {
		return l
	}
	return id
}

func sortAudits(a []AuditResponse) {
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
}
