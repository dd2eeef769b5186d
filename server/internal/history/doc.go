// Package history persists a compact row per uploaded report so the server
// can answer trend queries ("how has this page's main-thread time moved over
// the last N runs") after the in-memory store has evicted old reports.
//
// Rows live in SQLite through gorm. The "memory" storage backend uses an
// in-memory SQLite database with a single connection; "sqlite" uses a file.
// Prune drops rows older than the configured retention and Run calls it
// periodically.
package history
