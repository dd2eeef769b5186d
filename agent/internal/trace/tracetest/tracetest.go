// Package tracetest builds synthetic traces for tests.
package tracetest

import (
	"encoding/json"
	"fmt"

	"github.com/obsidianstack/threadwork/agent/internal/trace"
)

// Identity of the synthetic renderer.
const (
	PID     = 41
	TID     = 7
	FrameID = "F00D"
	// Base is the trace clock origin in microseconds.
	Base = 1_000_000
)

// Builder accumulates events. Times passed to its methods are milliseconds
// relative to Base.
type Builder struct {
	events []trace.Event
}

// New returns a builder seeded with a TracingStartedInBrowser marker for url and
// CrRendererMain thread metadata.
func New(url string) *Builder {
	b := &Builder{}
	b.events = append(b.events,
		trace.Event{
			Name: "TracingStartedInBrowser", Phase: trace.PhaseInstant, PID: 1, TID: 1, TS: Base,
			Args: raw(map[string]any{"data": map[string]any{"frames": []any{
				map[string]any{"frame": FrameID, "url": url, "processId": PID},
			}}}),
		},
		trace.Event{Name: "thread_name", Phase: trace.PhaseMetadata, PID: PID, TID: TID,
			Args: raw(map[string]any{"name": "CrRendererMain"})},
		trace.Event{Name: "thread_name", Phase: trace.PhaseMetadata, PID: PID, TID: TID + 1,
			Args: raw(map[string]any{"name": "Compositor"})},
	)
	return b
}

// Complete adds an X event on the main thread.
func (b *Builder) Complete(name string, startMs, durMs float64) *Builder {
	b.events = append(b.events, trace.Event{
		Name: name, Phase: trace.PhaseComplete, PID: PID, TID: TID,
		TS: us(startMs), Dur: durMs * 1000,
	})
	return b
}

// Begin adds a B event on the main thread.
func (b *Builder) Begin(name string, atMs float64) *Builder {
	b.events = append(b.events, trace.Event{Name: name, Phase: trace.PhaseBegin, PID: PID, TID: TID, TS: us(atMs)})
	return b
}

// End adds an E event on the main thread.
func (b *Builder) End(name string, atMs float64) *Builder {
	b.events = append(b.events, trace.Event{Name: name, Phase: trace.PhaseEnd, PID: PID, TID: TID, TS: us(atMs)})
	return b
}

// OffThread adds an X event on a non-main thread of the renderer.
func (b *Builder) OffThread(name string, startMs, durMs float64) *Builder {
	b.events = append(b.events, trace.Event{
		Name: name, Phase: trace.PhaseComplete, PID: PID, TID: TID + 1,
		TS: us(startMs), Dur: durMs * 1000,
	})
	return b
}

// NavigationStart adds a main-frame navigationStart marker for url.
func (b *Builder) NavigationStart(atMs float64, url string) *Builder {
	b.events = append(b.events, trace.Event{
		Name: "navigationStart", Phase: trace.PhaseMark, PID: PID, TID: TID, TS: us(atMs),
		Args: raw(map[string]any{"frame": FrameID, "data": map[string]any{
			"documentLoaderURL": url, "isLoadingMainFrame": true,
		}}),
	})
	return b
}

// LoadEventEnd adds a main-frame loadEventEnd marker.
func (b *Builder) LoadEventEnd(atMs float64) *Builder {
	b.events = append(b.events, trace.Event{
		Name: "loadEventEnd", Phase: trace.PhaseMark, PID: PID, TID: TID, TS: us(atMs),
		Args: raw(map[string]any{"frame": FrameID}),
	})
	return b
}

// Events returns a copy of the accumulated events.
func (b *Builder) Events() []trace.Event {
	out := make([]trace.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Trace builds the trace.
func (b *Builder) Trace() *trace.Trace { return trace.New(b.Events()) }

// JSON renders the trace as a {"traceEvents": [...]} document.
func (b *Builder) JSON() []byte {
	data, err := json.Marshal(map[string]any{"traceEvents": b.events})
	if err != nil {
		panic(fmt.Sprintf("tracetest: marshal: %v", err))
	}
	return data
}

// MicrosAt converts a millisecond offset to an absolute trace timestamp.
func MicrosAt(ms float64) float64 { return us(ms) }

func us(ms float64) float64 { return Base + ms*1000 }

func raw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tracetest: marshal args: %v", err))
	}
	return data
}
