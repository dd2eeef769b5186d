// Package export renders audit reports as Prometheus text exposition.
//
// Every family is a gauge labelled by page url; per-audit and per-category
// families add an audit or category label. The agent prints the exposition
// with --format prom and the server serves it on /metrics, so both sides
// share this package. Parse and SumFamily read an exposition back, which the
// tests and any scraping consumer use.
package export
