package classify

import "fmt"

// Category is one bucket of main-thread work. The zero value is ParseHTML;
// iteration order over All() is the reporting order.
type Category int

const (
	ParseHTML Category = iota
	StyleLayout
	PaintCompositeRender
	ScriptEvaluation
	ScriptParseCompile
	GarbageCollection
	Other

	numCategories
)

var ids = [numCategories]string{
	ParseHTML:            "parseHTML",
	StyleLayout:          "styleLayout",
	PaintCompositeRender: "paintCompositeRender",
	ScriptEvaluation:     "scriptEvaluation",
	ScriptParseCompile:   "scriptParseCompile",
	GarbageCollection:    "garbageCollection",
	Other:                "other",
}

var labels = [numCategories]string{
	ParseHTML:            "Parse HTML & CSS",
	StyleLayout:          "Style & Layout",
	PaintCompositeRender: "Rendering",
	ScriptEvaluation:     "Script Evaluation",
	ScriptParseCompile:   "Script Parsing & Compilation",
	GarbageCollection:    "Garbage Collection",
	Other:                "Other",
}

// String returns the stable identifier used in reports and metrics labels.
func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return ids[c]
}

// Label returns the human-readable name.
func (c Category) Label() string {
	if c < 0 || c >= numCategories {
		return c.String()
	}
	return labels[c]
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool { return c >= 0 && c < numCategories }

// All returns every category in reporting order.
func All() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Parse returns the category whose identifier is id.
func Parse(id string) (Category, bool) {
	for i, s := range ids {
		if s == id {
			return Category(i), true
		}
	}
	return Other, false
}

var table = map[string]Category{
	"ParseHTML":             ParseHTML,
	"ParseAuthorStyleSheet": ParseHTML,

	"ScheduleStyleRecalculation": StyleLayout,
	"UpdateLayoutTree":           StyleLayout,
	"RecalculateStyles":          StyleLayout,
	"InvalidateLayout":           StyleLayout,
	"Layout":                     StyleLayout,

	"Animation":       PaintCompositeRender,
	"HitTest":         PaintCompositeRender,
	"PaintSetup":      PaintCompositeRender,
	"Paint":           PaintCompositeRender,
	"PaintImage":      PaintCompositeRender,
	"PrePaint":        PaintCompositeRender,
	"RasterTask":      PaintCompositeRender,
	"ScrollLayer":     PaintCompositeRender,
	"UpdateLayer":     PaintCompositeRender,
	"UpdateLayerTree": PaintCompositeRender,
	"CompositeLayers": PaintCompositeRender,
	"Commit":          PaintCompositeRender,

	"v8.compile":            ScriptParseCompile,
	"v8.compileModule":      ScriptParseCompile,
	"v8.parseOnBackground":  ScriptParseCompile,
	"v8.produceCache":       ScriptParseCompile,
	"v8.produceModuleCache": ScriptParseCompile,

	"EventDispatch":      ScriptEvaluation,
	"EvaluateScript":     ScriptEvaluation,
	"v8.evaluateModule":  ScriptEvaluation,
	"FunctionCall":       ScriptEvaluation,
	"TimerFire":          ScriptEvaluation,
	"FireIdleCallback":   ScriptEvaluation,
	"FireAnimationFrame": ScriptEvaluation,
	"RunMicrotasks":      ScriptEvaluation,
	"V8.Execute":         ScriptEvaluation,

	"GCEvent":                           GarbageCollection,
	"MinorGC":                           GarbageCollection,
	"MajorGC":                           GarbageCollection,
	"BlinkGC.AtomicPhase":               GarbageCollection,
	"ThreadState::performIdleLazySweep": GarbageCollection,
	"ThreadState::completeSweep":        GarbageCollection,
	"BlinkGCMarking":                    GarbageCollection,

	"RunTask":                                    Other,
	"ThreadControllerImpl::RunTask":              Other,
	"MessageLoop::RunTask":                       Other,
	"TaskQueueManager::ProcessTaskFromWorkQueue": Other,
	"ThreadControllerImpl::DoWork":               Other,
}

// Lookup returns the mapped category for name and whether it was in the table.
func Lookup(name string) (Category, bool) {
	c, ok := table[name]
	return c, ok
}

// Classify returns the category for name, Other when unmapped.
func Classify(name string) Category {
	if c, ok := table[name]; ok {
		return c
	}
	return Other
}

// Totals holds a duration in milliseconds per category, indexed by Category.
type Totals [numCategories]float64

// Add accumulates ms into c. Invalid categories are counted as Other.
func (t *Totals) Add(c Category, ms float64) {
	if !c.Valid() {
		c = Other
	}
	t[c] += ms
}

// Sum returns the total across all categories.
func (t Totals) Sum() float64 {
	var s float64
	for _, v := range t {
		s += v
	}
	return s
}

// Scale returns a copy of t with every category multiplied by f.
func (t Totals) Scale(f float64) Totals {
	var out Totals
	for i, v := range t {
		out[i] = v * f
	}
	return out
}

// Map returns the totals keyed by category identifier.
func (t Totals) Map() map[string]float64 {
	m := make(map[string]float64, len(t))
	for i, v := range t {
		m[Category(i).String()] = v
	}
	return m
}
