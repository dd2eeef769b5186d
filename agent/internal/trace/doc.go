// Package trace loads Chrome Trace Event Format files and resolves the
// renderer main thread and main frame of the inspected page.
//
// A Trace is immutable once parsed. Callers share one *Trace per run, and its
// pointer identity is what the computed-artifact cache keys on.
package trace
