// Package compute turns measured main-thread work into an audit score.
//
// score.go provides the pure Score(totalMs, Options) function: a log-normal
// curve through two control points (p10 → 0.9, median → 0.5) evaluated with
// the complementary error function, boosted slightly above 0.9 and floored to
// two decimals. Savings are the milliseconds above the median.
//
// breakdown.go packages adjusted category totals with their score.
//
// engine.go provides the stateful Engine that keeps a per-page baseline across
// repeated runs (agent watch mode) and flags regressions. Engine.Observe
// accepts an injectable time.Time so tests are deterministic.
package compute
