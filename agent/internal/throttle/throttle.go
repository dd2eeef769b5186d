// Package throttle rescales measured main-thread work for the throttling
// method that was in effect when the trace was captured.
//
// With devtools or provided throttling the trace already reflects the
// throttled CPU, so durations are kept as measured. With simulate the capture
// ran unthrottled and every category is multiplied by the CPU slowdown.
package throttle

import (
	"fmt"

	"github.com/obsidianstack/threadwork/agent/internal/classify"
)

// Method is a throttling method.
type Method string

const (
	Devtools Method = "devtools"
	Simulate Method = "simulate"
	Provided Method = "provided"
)

// DefaultCPUSlowdown is the mobile CPU slowdown used when none is configured.
const DefaultCPUSlowdown = 4

// Context is the throttling in effect for one run.
type Context struct {
	Method                Method
	CPUSlowdownMultiplier float64
}

// NewContext validates method and multiplier.
func NewContext(method string, multiplier float64) (Context, error) {
	m := Method(method)
	switch m {
	case Devtools, Simulate, Provided:
	default:
		return Context{}, fmt.Errorf("throttle: unknown method %q", method)
	}
	if multiplier < 1 {
		return Context{}, fmt.Errorf("throttle: cpu slowdown multiplier %v must be >= 1", multiplier)
	}
	return Context{Method: m, CPUSlowdownMultiplier: multiplier}, nil
}

// Factor returns the multiplier applied to measured durations.
func (c Context) Factor() float64 {
	if c.Method == Simulate {
		return c.CPUSlowdownMultiplier
	}
	return 1
}

// Scale adjusts a single duration.
func (c Context) Scale(ms float64) float64 { return ms * c.Factor() }

// Adjust returns totals rescaled for c. The input is not modified.
func Adjust(t classify.Totals, c Context) classify.Totals {
	return t.Scale(c.Factor())
}
