package tasks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/agent/internal/window"
)

// ErrNegativeSelfTime reports a task whose children outlast it.
var ErrNegativeSelfTime = errors.New("tasks: negative self time")

// selfTimeEpsilon absorbs float rounding in µs subtraction.
const selfTimeEpsilon = 1e-6

// maxSkewUs is how far a child may run past its parent before the nesting is
// treated as malformed. Smaller overruns are clock skew and get truncated.
const maxSkewUs = 1000

// Task is one node of the main-thread task tree. Times are microseconds.
type Task struct {
	Name     string
	Start    float64
	End      float64
	Parent   int
	Children []int
	Depth    int
	Category classify.Category
	SelfTime float64
}

// Duration returns End-Start.
func (t *Task) Duration() float64 { return t.End - t.Start }

// Tree is the arena of tasks in start order. Parent is -1 for roots.
type Tree struct {
	Tasks []Task
	Roots []int
}

// Sample is the self time one task contributes to its category.
type Sample struct {
	Category   classify.Category
	DurationMs float64
}

type interval struct {
	name       string
	start, end float64
	seq        int
}

// Build reconstructs the task tree from one thread's events. B events without
// a matching E are closed at traceEnd. Zero-duration and instant events are
// ignored.
func Build(events []trace.Event, traceEnd float64) (*Tree, error) {
	ivs := intervals(events, traceEnd)
	sort.SliceStable(ivs, func(i, j int) bool {
		a, b := ivs[i], ivs[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.seq < b.seq
	})

	tree := &Tree{}
	var stack []int
	var prev *interval
	for i := range ivs {
		iv := ivs[i]
		if prev != nil && prev.start == iv.start && prev.end == iv.end && prev.name == iv.name {
			continue
		}
		prev = &ivs[i]

		for len(stack) > 0 && tree.Tasks[stack[len(stack)-1]].End <= iv.start {
			stack = stack[:len(stack)-1]
		}

		parent := -1
		depth := 0
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
			p := &tree.Tasks[parent]
			if over := iv.end - p.End; over > maxSkewUs {
				return nil, fmt.Errorf("tasks: build: %s at %.0fµs ends %.3fms after parent %s: %w",
					iv.name, iv.start, over/1000, p.Name, ErrNegativeSelfTime)
			} else if over > 0 {
				iv.end = p.End
			}
			depth = p.Depth + 1
		}
		if iv.end <= iv.start {
			continue
		}

		cat, ok := classify.Lookup(iv.name)
		if !ok {
			cat = classify.Other
			if parent >= 0 {
				cat = tree.Tasks[parent].Category
			}
		}

		idx := len(tree.Tasks)
		tree.Tasks = append(tree.Tasks, Task{
			Name:     iv.name,
			Start:    iv.start,
			End:      iv.end,
			Parent:   parent,
			Depth:    depth,
			Category: cat,
		})
		if parent >= 0 {
			tree.Tasks[parent].Children = append(tree.Tasks[parent].Children, idx)
		} else {
			tree.Roots = append(tree.Roots, idx)
		}
		stack = append(stack, idx)
	}

	if err := tree.computeSelfTimes(); err != nil {
		return nil, err
	}
	return tree, nil
}

func intervals(events []trace.Event, traceEnd float64) []interval {
	type open struct {
		name string
		ts   float64
	}
	var (
		out   []interval
		begun []open
	)
	for i := range events {
		e := &events[i]
		switch e.Phase {
		case trace.PhaseComplete:
			if e.Dur > 0 {
				out = append(out, interval{name: e.Name, start: e.TS, end: e.End(), seq: len(out)})
			}
		case trace.PhaseBegin:
			begun = append(begun, open{name: e.Name, ts: e.TS})
		case trace.PhaseEnd:
			for j := len(begun) - 1; j >= 0; j-- {
				if e.Name != "" && begun[j].name != e.Name {
					continue
				}
				b := begun[j]
				begun = append(begun[:j], begun[j+1:]...)
				if e.TS > b.ts {
					out = append(out, interval{name: b.name, start: b.ts, end: e.TS, seq: len(out)})
				}
				break
			}
		}
	}
	for _, b := range begun {
		if traceEnd > b.ts {
			out = append(out, interval{name: b.name, start: b.ts, end: traceEnd, seq: len(out)})
		}
	}
	return out
}

func (t *Tree) computeSelfTimes() error {
	for i := range t.Tasks {
		task := &t.Tasks[i]
		self := task.Duration()
		for _, c := range task.Children {
			self -= t.Tasks[c].Duration()
		}
		if self < -selfTimeEpsilon {
			return fmt.Errorf("%w: %q at %.0fµs has %.3fµs", ErrNegativeSelfTime, task.Name, task.Start, self)
		}
		if self < 0 {
			self = 0
		}
		task.SelfTime = self
	}
	return nil
}

// TopLevel returns the root tasks in start order.
func (t *Tree) TopLevel() []Task {
	out := make([]Task, 0, len(t.Roots))
	for _, i := range t.Roots {
		out = append(out, t.Tasks[i])
	}
	return out
}

// Samples returns the self time of every task inside w. A task partly outside
// w contributes the overlapping fraction of its self time.
func (t *Tree) Samples(w window.Window) []Sample {
	var out []Sample
	for i := range t.Tasks {
		task := &t.Tasks[i]
		if task.SelfTime <= 0 {
			continue
		}
		ov := w.Overlap(task.Start, task.End)
		if ov <= 0 {
			continue
		}
		out = append(out, Sample{
			Category:   task.Category,
			DurationMs: task.SelfTime * (ov / task.Duration()) / 1000,
		})
	}
	return out
}

// MainThreadTasks builds the task tree for the main thread of tr.
func MainThreadTasks(tr *trace.Trace) (*Tree, error) {
	events, err := tr.MainThreadEvents()
	if err != nil {
		return nil, fmt.Errorf("tasks: main thread: %w", err)
	}
	_, end := tr.Bounds()
	return Build(events, end)
}

// Extract returns the category samples of one thread's events inside w.
func Extract(events []trace.Event, w window.Window, traceEnd float64) ([]Sample, error) {
	tree, err := Build(events, traceEnd)
	if err != nil {
		return nil, err
	}
	return tree.Samples(w), nil
}

// Aggregate sums samples per category.
func Aggregate(samples []Sample) classify.Totals {
	var tot classify.Totals
	for _, s := range samples {
		tot.Add(s.Category, s.DurationMs)
	}
	return tot
}
