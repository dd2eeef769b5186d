// Package api implements the read side of the threadwork-server HTTP API.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health         overall score, page count, per-rating counts
//	GET /api/v1/reports        latest report summary per live page
//	GET /api/v1/reports/{id}   full report for one run; 404 if unknown or stale
//	GET /api/v1/snapshot       every live page summary plus generated_at
//	GET /api/v1/alerts         firing and recently resolved alerts
//	GET /api/v1/history        stored runs for ?url= (optional &limit=)
//	GET /metrics               Prometheus text exposition of live reports
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for other methods. Report uploads are served by package receiver.
package api
