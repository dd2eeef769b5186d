// Package shipper delivers audit reports to threadwork-server as JSON over
// HTTP (POST /api/v1/reports).
//
// Shipper.Ship() is non-blocking: reports are placed in an in-memory channel
// sized by ship.buffer_size. When the buffer is full the oldest report is
// evicted so the latest runs are always preserved.
//
// Shipper.Run() flushes the buffer every ship.interval. A failed flush is
// retried with truncated exponential backoff (1s→60s, ±25% jitter). Client
// errors other than 408 and 429 discard the report instead of retrying.
//
// Auth: API key in the configured header, or none for local development.
// Send() delivers a single report synchronously and is what `audit --ship`
// uses.
package shipper
