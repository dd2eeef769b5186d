// Package store holds the latest audit report per page in memory. Reports are
// keyed by Report.PageURL(); a newer upload for the same page replaces the
// previous one. Entries older than the configured TTL are excluded from List
// and removed by the background eviction loop (Run). A zero TTL keeps entries
// forever.
//
// Long-term history lives in package history; this store only answers
// "what does each page look like right now".
package store
