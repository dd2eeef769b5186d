package audit

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/tasks"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// DefaultLongTaskThresholdMs is the shortest task counted as long.
const DefaultLongTaskThresholdMs = 50

// maxLongTasks caps the rows reported.
const maxLongTasks = 20

// LongTasks lists the top-level main-thread tasks that blocked the thread for
// at least ThresholdMs during the navigation.
type LongTasks struct {
	ThresholdMs float64
}

func (l *LongTasks) Meta() Meta {
	return Meta{
		ID:    types.AuditLongTasks,
		Title: "Avoid long main-thread tasks",
		Description: "Lists the longest tasks on the main thread, " +
			"useful for identifying worst contributors to input delay.",
		RequiredArtifacts: []string{ArtifactTrace, ArtifactDevtoolsLog},
	}
}

func (l *LongTasks) Audit(a *Artifacts, c *Context) (*types.AuditResult, error) {
	m := l.Meta()
	if err := a.require(m.RequiredArtifacts...); err != nil {
		return errorResult(m, err.Error()), nil
	}
	tctx, err := c.Settings.Throttling()
	if err != nil {
		return nil, err
	}
	tree, err := MainThreadTasks(c.Cache, a.Trace)
	if err != nil {
		return errorResult(m, err.Error()), nil
	}
	w, err := NavigationWindow(c.Cache, a)
	if err != nil {
		return errorResult(m, err.Error()), nil
	}

	threshold := l.ThresholdMs
	if threshold <= 0 {
		threshold = DefaultLongTaskThresholdMs
	}

	var items []types.Item
	for _, idx := range tree.Roots {
		task := &tree.Tasks[idx]
		if w.Overlap(task.Start, task.End) <= 0 {
			continue
		}
		dur := tctx.Scale(task.Duration() / 1000)
		if dur < threshold {
			continue
		}
		items = append(items, types.Item{
			"startTime": tctx.Scale((task.Start - w.Start) / 1000),
			"duration":  dur,
			"category":  dominantCategory(tree, idx).String(),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i]["duration"].(float64) > items[j]["duration"].(float64)
	})
	count := len(items)
	if len(items) > maxLongTasks {
		items = items[:maxLongTasks]
	}
	if items == nil {
		items = []types.Item{}
	}

	display := ""
	switch count {
	case 0:
	case 1:
		display = "1 long task found"
	default:
		display = fmt.Sprintf("%d long tasks found", count)
	}

	return finalize(m, &types.AuditResult{
		ScoreDisplayMode: types.DisplayInformative,
		NumericValue:     float64(count),
		NumericUnit:      "element",
		DisplayValue:     display,
		Details: &types.Details{
			Type: "table",
			Headings: []types.Heading{
				{Key: "category", ValueType: "text", Label: "Category"},
				{Key: "startTime", ValueType: "ms", Label: "Start Time"},
				{Key: "duration", ValueType: "ms", Label: "Duration"},
			},
			Items: items,
		},
	}), nil
}

// dominantCategory returns the category with the most self time in the
// subtree rooted at idx.
func dominantCategory(tree *tasks.Tree, idx int) classify.Category {
	var tot classify.Totals
	stack := []int{idx}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := &tree.Tasks[i]
		tot.Add(t.Category, t.SelfTime)
		stack = append(stack, t.Children...)
	}
	best := classify.Other
	for _, c := range classify.All() {
		if tot[c] > tot[best] {
			best = c
		}
	}
	return best
}
