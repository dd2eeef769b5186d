package tasks

import (
	"errors"
	"math"
	"testing"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/agent/internal/trace/tracetest"
	"github.com/obsidianstack/threadwork/agent/internal/window"
)

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func mainEvents(t *testing.T, b *tracetest.Builder) ([]trace.Event, *trace.Trace) {
	t.Helper()
	tr := b.Trace()
	evs, err := tr.MainThreadEvents()
	if err != nil {
		t.Fatalf("MainThreadEvents: %v", err)
	}
	return evs, tr
}

func everything() window.Window { return window.Window{Start: 0, End: math.MaxFloat64} }

// --- tree construction ---

func TestBuild_NestingAndSelfTime(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("RunTask", 0, 100).
		Complete("EvaluateScript", 10, 50).
		Complete("v8.compile", 15, 5).
		Complete("Layout", 70, 20))
	_, end := tr.Bounds()

	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 4 || len(tree.Roots) != 1 {
		t.Fatalf("tasks = %d roots = %d", len(tree.Tasks), len(tree.Roots))
	}
	root := tree.Tasks[tree.Roots[0]]
	if root.Name != "RunTask" || len(root.Children) != 2 {
		t.Fatalf("root = %+v", root)
	}
	want := map[string]float64{"RunTask": 30_000, "EvaluateScript": 45_000, "v8.compile": 5_000, "Layout": 20_000}
	for _, task := range tree.Tasks {
		if !almostEqual(task.SelfTime, want[task.Name], 1e-6) {
			t.Errorf("%s self = %v, want %v", task.Name, task.SelfTime, want[task.Name])
		}
	}
	if tree.Tasks[2].Depth != 2 {
		t.Errorf("v8.compile depth = %d", tree.Tasks[2].Depth)
	}
}

func TestBuild_BeginEndPairs(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Begin("RunTask", 0).
		Begin("FunctionCall", 5).
		End("FunctionCall", 25).
		End("RunTask", 40).
		Begin("ParseHTML", 50))
	_, end := tr.Bounds()

	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2 (unmatched B at trace end is zero length)", len(tree.Tasks))
	}
	if tree.Tasks[1].Name != "FunctionCall" || tree.Tasks[1].Parent != 0 {
		t.Errorf("child = %+v", tree.Tasks[1])
	}
	if !almostEqual(tree.Tasks[0].SelfTime, 20_000, 1e-6) {
		t.Errorf("RunTask self = %v", tree.Tasks[0].SelfTime)
	}
}

func TestBuild_UnmatchedBeginClosedAtTraceEnd(t *testing.T) {
	evs, _ := mainEvents(t, tracetest.New("https://a/").Begin("Layout", 10))
	tree, err := Build(evs, tracetest.MicrosAt(30))
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 1 || !almostEqual(tree.Tasks[0].Duration(), 20_000, 1e-6) {
		t.Errorf("tasks = %+v", tree.Tasks)
	}
}

func TestBuild_ChildSkewTruncatedToParent(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("RunTask", 0, 10).
		Complete("Paint", 8, 2.5))
	_, end := tr.Bounds()
	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	paint := tree.Tasks[1]
	if paint.End != tree.Tasks[0].End {
		t.Errorf("child end = %v, want parent end %v", paint.End, tree.Tasks[0].End)
	}
	if !almostEqual(tree.Tasks[0].SelfTime, 8_000, 1e-6) {
		t.Errorf("parent self = %v", tree.Tasks[0].SelfTime)
	}
}

func TestBuild_ChildOverrunIsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		childMs float64
	}{
		{"just past tolerance", 6.5},
		{"far past parent", 45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evs, tr := mainEvents(t, tracetest.New("https://a/").
				Complete("RunTask", 0, 10).
				Complete("EvaluateScript", 5, tc.childMs))
			_, end := tr.Bounds()
			tree, err := Build(evs, end)
			if !errors.Is(err, ErrNegativeSelfTime) {
				t.Fatalf("err = %v, want ErrNegativeSelfTime", err)
			}
			if tree != nil {
				t.Errorf("tree = %+v, want nil", tree)
			}
		})
	}
}

func TestExtract_ChildOverrunIsMalformed(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("RunTask", 0, 10).
		Complete("EvaluateScript", 5, 45))
	_, end := tr.Bounds()
	_, err := Extract(evs, everything(), end)
	if !errors.Is(err, ErrNegativeSelfTime) {
		t.Fatalf("err = %v, want ErrNegativeSelfTime", err)
	}
}

func TestBuild_DropsExactDuplicates(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("RunTask", 0, 10).
		Complete("RunTask", 0, 10))
	_, end := tr.Bounds()
	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 1 {
		t.Errorf("tasks = %d, want 1", len(tree.Tasks))
	}
}

func TestBuild_IgnoresZeroDurationAndInstant(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("Layout", 0, 0).
		NavigationStart(1, "https://a/"))
	_, end := tr.Bounds()
	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tree.Tasks))
	}
}

func TestBuild_CategoryInheritance(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("EvaluateScript", 0, 10).
		Complete("SomeUnknownScriptHelper", 2, 4).
		Complete("UnknownRoot", 20, 5))
	_, end := tr.Bounds()
	tree, err := Build(evs, end)
	if err != nil {
		t.Fatal(err)
	}
	if got := tree.Tasks[1].Category; got != classify.ScriptEvaluation {
		t.Errorf("unmapped child category = %v, want scriptEvaluation", got)
	}
	if got := tree.Tasks[2].Category; got != classify.Other {
		t.Errorf("unmapped root category = %v, want other", got)
	}
}

func TestComputeSelfTimes_Negative(t *testing.T) {
	tree := &Tree{
		Tasks: []Task{
			{Name: "RunTask", Start: 0, End: 10, Parent: -1, Children: []int{1, 2}},
			{Name: "Layout", Start: 0, End: 8, Parent: 0},
			{Name: "Paint", Start: 2, End: 9, Parent: 0},
		},
		Roots: []int{0},
	}
	err := tree.computeSelfTimes()
	if !errors.Is(err, ErrNegativeSelfTime) {
		t.Fatalf("err = %v, want ErrNegativeSelfTime", err)
	}
}

// --- samples and windows ---

func TestExtract_SumEqualsBusyTime(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("RunTask", 0, 100).
		Complete("EvaluateScript", 10, 50).
		Complete("Layout", 70, 20).
		Complete("RunTask", 200, 30).
		Complete("MinorGC", 205, 10))
	_, end := tr.Bounds()
	samples, err := Extract(evs, everything(), end)
	if err != nil {
		t.Fatal(err)
	}
	tot := Aggregate(samples)
	if !almostEqual(tot.Sum(), 130, 1e-9) {
		t.Errorf("sum = %v, want 130 (busy time)", tot.Sum())
	}
	if !almostEqual(tot[classify.ScriptEvaluation], 50, 1e-9) ||
		!almostEqual(tot[classify.StyleLayout], 20, 1e-9) ||
		!almostEqual(tot[classify.GarbageCollection], 10, 1e-9) ||
		!almostEqual(tot[classify.Other], 50, 1e-9) {
		t.Errorf("totals = %v", tot)
	}
}

func TestSamples_WindowClipsProportionally(t *testing.T) {
	evs, tr := mainEvents(t, tracetest.New("https://a/").
		Complete("Layout", 0, 10).
		Complete("Paint", 20, 10).
		Complete("ParseHTML", 50, 10))
	_, end := tr.Bounds()
	w := window.Window{Start: tracetest.MicrosAt(5), End: tracetest.MicrosAt(40)}
	samples, err := Extract(evs, w, end)
	if err != nil {
		t.Fatal(err)
	}
	tot := Aggregate(samples)
	if !almostEqual(tot[classify.StyleLayout], 5, 1e-9) {
		t.Errorf("layout = %v, want 5 (half inside)", tot[classify.StyleLayout])
	}
	if !almostEqual(tot[classify.PaintCompositeRender], 10, 1e-9) {
		t.Errorf("paint = %v, want 10", tot[classify.PaintCompositeRender])
	}
	if tot[classify.ParseHTML] != 0 {
		t.Errorf("parseHTML outside window = %v", tot[classify.ParseHTML])
	}
}

func TestExtract_Empty(t *testing.T) {
	samples, err := Extract(nil, everything(), 0)
	if err != nil || len(samples) != 0 {
		t.Errorf("samples = %v, err = %v", samples, err)
	}
}

func TestMainThreadTasks_IgnoresOtherThreads(t *testing.T) {
	tr := tracetest.New("https://a/").
		Complete("RunTask", 0, 10).
		OffThread("RasterTask", 0, 500).
		Trace()
	tree, err := MainThreadTasks(tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Tasks) != 1 || tree.Tasks[0].Name != "RunTask" {
		t.Errorf("tasks = %+v", tree.Tasks)
	}
	if top := tree.TopLevel(); len(top) != 1 {
		t.Errorf("top level = %d", len(top))
	}
}

func TestMainThreadTasks_NoMainThread(t *testing.T) {
	tr := trace.New(nil)
	if _, err := MainThreadTasks(tr); !errors.Is(err, trace.ErrNoMainThread) {
		t.Errorf("err = %v", err)
	}
}
