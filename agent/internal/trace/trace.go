package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/tidwall/gjson"
)

// Phase is the trace event type character.
type Phase string

const (
	PhaseComplete      Phase = "X"
	PhaseBegin         Phase = "B"
	PhaseEnd           Phase = "E"
	PhaseInstant       Phase = "I"
	PhaseInstantLegacy Phase = "i"
	PhaseMark          Phase = "R"
	PhaseMetadata      Phase = "M"
)

// ErrNoMainThread is returned when neither the tracing-started markers nor the
// thread metadata identify a renderer main thread.
var ErrNoMainThread = errors.New("trace: main thread not found")

// Event is one trace event. Timestamps and durations are microseconds.
type Event struct {
	Name  string          `json:"name"`
	Cat   string          `json:"cat,omitempty"`
	Phase Phase           `json:"ph"`
	PID   int64           `json:"pid"`
	TID   int64           `json:"tid"`
	TS    float64         `json:"ts"`
	Dur   float64         `json:"dur,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// End returns TS+Dur.
func (e *Event) End() float64 { return e.TS + e.Dur }

// Arg returns the args value at a gjson path such as "data.frame".
func (e *Event) Arg(path string) gjson.Result {
	if len(e.Args) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Args, path)
}

// Frame returns the frame id the event refers to, from args.frame or
// args.data.frame.
func (e *Event) Frame() string {
	if f := e.Arg("frame"); f.Exists() {
		return f.String()
	}
	return e.Arg("data.frame").String()
}

// Thread identifies one thread of one process.
type Thread struct {
	PID int64
	TID int64
}

// Owns reports whether e was recorded on th.
func (th Thread) Owns(e *Event) bool { return e.PID == th.PID && e.TID == th.TID }

// Frame is the page's main frame.
type Frame struct {
	ID  string
	URL string
}

// Trace is a parsed trace sorted by timestamp.
type Trace struct {
	Events []Event

	start, end float64
	main       Thread
	frame      Frame
	mainErr    error
}

// Load reads and parses the trace file at path.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: read %q: %w", path, err)
	}
	tr, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("trace: load %q: %w", path, err)
	}
	return tr, nil
}

// Parse decodes either an object with a "traceEvents" array or a bare array
// of events.
func Parse(data []byte) (*Trace, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("trace: parse: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	raw := root
	if root.IsObject() {
		raw = root.Get("traceEvents")
		if !raw.IsArray() {
			return nil, errors.New("trace: parse: missing traceEvents array")
		}
	} else if !root.IsArray() {
		return nil, errors.New("trace: parse: expected object or array")
	}

	var events []Event
	if err := json.Unmarshal([]byte(raw.Raw), &events); err != nil {
		return nil, fmt.Errorf("trace: parse: %w", err)
	}
	return New(events), nil
}

// New builds a Trace from already-decoded events. The slice is sorted in place.
func New(events []Event) *Trace {
	sort.SliceStable(events, func(i, j int) bool { return events[i].TS < events[j].TS })
	tr := &Trace{Events: events}
	tr.computeBounds()
	tr.main, tr.frame, tr.mainErr = resolveMain(events)
	return tr
}

func (t *Trace) computeBounds() {
	t.start, t.end = math.Inf(1), math.Inf(-1)
	for i := range t.Events {
		e := &t.Events[i]
		if e.Phase == PhaseMetadata {
			continue
		}
		if e.TS < t.start {
			t.start = e.TS
		}
		if end := e.End(); end > t.end {
			t.end = end
		}
	}
	if t.start > t.end {
		t.start, t.end = 0, 0
	}
}

// Bounds returns the earliest start and latest end of all non-metadata events.
// An empty trace has bounds (0, 0).
func (t *Trace) Bounds() (start, end float64) { return t.start, t.end }

// MainThread returns the renderer main thread of the inspected page.
func (t *Trace) MainThread() (Thread, error) { return t.main, t.mainErr }

// MainFrame returns the page's main frame. It is zero when the trace has no
// tracing-started marker.
func (t *Trace) MainFrame() Frame { return t.frame }

// ThreadEvents returns the events recorded on th, in timestamp order.
func (t *Trace) ThreadEvents(th Thread) []Event {
	var out []Event
	for i := range t.Events {
		if th.Owns(&t.Events[i]) {
			out = append(out, t.Events[i])
		}
	}
	return out
}

// MainThreadEvents returns the events of the main thread.
func (t *Trace) MainThreadEvents() ([]Event, error) {
	if t.mainErr != nil {
		return nil, t.mainErr
	}
	return t.ThreadEvents(t.main), nil
}

// FrameMarkers returns events named name whose frame is frameID, in order.
func (t *Trace) FrameMarkers(name, frameID string) []Event {
	var out []Event
	for i := range t.Events {
		e := &t.Events[i]
		if e.Name == name && e.Frame() == frameID {
			out = append(out, *e)
		}
	}
	return out
}

func resolveMain(events []Event) (Thread, Frame, error) {
	var (
		frame   Frame
		pid     int64
		havePID bool
	)

	for i := range events {
		e := &events[i]
		switch e.Name {
		case "TracingStartedInBrowser":
			for _, f := range e.Arg("data.frames").Array() {
				if f.Get("parent").Exists() {
					continue
				}
				frame = Frame{ID: f.Get("frame").String(), URL: f.Get("url").String()}
				if p := f.Get("processId"); p.Exists() {
					pid, havePID = p.Int(), true
				}
				break
			}
		case "TracingStartedInPage":
			if frame.ID == "" {
				frame = Frame{ID: e.Arg("data.page").String()}
				return Thread{PID: e.PID, TID: e.TID}, frame, nil
			}
		case "FrameCommittedInBrowser":
			if !havePID && frame.ID != "" && e.Arg("data.frame").String() == frame.ID {
				if p := e.Arg("data.processId"); p.Exists() {
					pid, havePID = p.Int(), true
				}
			}
		}
		if frame.ID != "" && havePID {
			break
		}
	}

	for i := range events {
		e := &events[i]
		if e.Phase != PhaseMetadata || e.Name != "thread_name" {
			continue
		}
		if e.Arg("name").String() != "CrRendererMain" {
			continue
		}
		if havePID && e.PID != pid {
			continue
		}
		return Thread{PID: e.PID, TID: e.TID}, frame, nil
	}
	return Thread{}, frame, ErrNoMainThread
}
