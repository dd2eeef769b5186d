// Package types defines the Go types shared by the agent and the server.
// These are the canonical in-memory and JSON representations of an audit run:
// a Report carries one AuditResult per audit plus a WorkSummary digest that the
// server uses for alerting, history and metrics without re-reading audit details.
package types
