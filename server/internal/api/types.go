package api

import "github.com/obsidianstack/threadwork/server/internal/history"

// Page ratings, using the usual 0.9 / 0.5 score bands.
const (
	RatingPass    = "pass"
	RatingAverage = "average"
	RatingFail    = "fail"
	RatingError   = "error"
	RatingUnknown = "unknown"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore float64 `json:"overall_score"`
	Rating       string  `json:"rating"`
	PageCount    int     `json:"page_count"`
	PassCount    int     `json:"pass_count"`
	AverageCount int     `json:"average_count"`
	FailCount    int     `json:"fail_count"`
	ErrorCount   int     `json:"error_count"`
	AlertCount   int     `json:"alert_count"`
}

// PageResponse is the latest run for one page in GET /api/v1/reports and
// GET /api/v1/snapshot.
type PageResponse struct {
	ReportID         string             `json:"report_id"`
	PageURL          string             `json:"page_url"`
	FetchTime        string             `json:"fetch_time"` // RFC3339
	GatherMode       string             `json:"gather_mode"`
	ThrottlingMethod string             `json:"throttling_method"`
	Rating           string             `json:"rating"`
	Score            *float64           `json:"score"`
	TotalMs          float64            `json:"total_ms"`
	SavingsMs        float64            `json:"savings_ms"`
	LongTasks        int                `json:"long_tasks"`
	LongestTaskMs    float64            `json:"longest_task_ms"`
	Categories       map[string]float64 `json:"categories,omitempty"`
	RuntimeError     string             `json:"runtime_error,omitempty"`
	RunWarnings      []string           `json:"run_warnings"`
	Audits           []AuditResponse    `json:"audits"`
	Diagnostics      []DiagnosticHint   `json:"diagnostics"`
	LastSeen         string             `json:"last_seen"` // RFC3339
}

// AuditResponse is the short form of one audit result.
type AuditResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Score        *float64 `json:"score"`
	DisplayMode  string   `json:"display_mode"`
	DisplayValue string   `json:"display_value,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the
// WebSocket stream.
type SnapshotResponse struct {
	Pages       []PageResponse `json:"pages"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// HistoryResponse is the payload for GET /api/v1/history.
type HistoryResponse struct {
	PageURL string        `json:"page_url"`
	Runs    []history.Run `json:"runs"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
