package types

import "time"

// GatherMode describes how the trace and network log were captured.
type GatherMode string

const (
	GatherNavigation GatherMode = "navigation"
	GatherTimespan   GatherMode = "timespan"
	GatherSnapshot   GatherMode = "snapshot"
)

// Valid reports whether m is one of the known gather modes.
func (m GatherMode) Valid() bool {
	switch m {
	case GatherNavigation, GatherTimespan, GatherSnapshot:
		return true
	}
	return false
}

// ScoreDisplayMode tells consumers how to present an audit score.
type ScoreDisplayMode string

const (
	DisplayNumeric       ScoreDisplayMode = "numeric"
	DisplayBinary        ScoreDisplayMode = "binary"
	DisplayInformative   ScoreDisplayMode = "informative"
	DisplayMetricSavings ScoreDisplayMode = "metricSavings"
	DisplayNotApplicable ScoreDisplayMode = "notApplicable"
	DisplayError         ScoreDisplayMode = "error"
)

// Well-known audit IDs.
const (
	AuditWorkBreakdown     = "mainthread-work-breakdown"
	AuditLongTasks         = "long-tasks"
	AuditLabelNameMismatch = "label-content-name-mismatch"
)

// Report is the result of one audit run over one captured page load.
type Report struct {
	ID                string                  `json:"id"`
	RequestedURL      string                  `json:"requestedUrl"`
	MainDocumentURL   string                  `json:"mainDocumentUrl"`
	FinalDisplayedURL string                  `json:"finalDisplayedUrl"`
	FetchTime         time.Time               `json:"fetchTime"`
	GatherMode        GatherMode              `json:"gatherMode"`
	ThrottlingMethod  string                  `json:"throttlingMethod"`
	RuntimeError      *RuntimeError           `json:"runtimeError,omitempty"`
	RunWarnings       []string                `json:"runWarnings"`
	Audits            map[string]*AuditResult `json:"audits"`
	Summary           *WorkSummary            `json:"summary,omitempty"`
}

// PageURL returns the URL that identifies the audited page: the final
// displayed URL when known, else the requested URL.
func (r *Report) PageURL() string {
	if r.FinalDisplayedURL != "" {
		return r.FinalDisplayedURL
	}
	return r.RequestedURL
}

// Audit returns the result for id, or nil.
func (r *Report) Audit(id string) *AuditResult {
	if r.Audits == nil {
		return nil
	}
	return r.Audits[id]
}

// RuntimeError is a run-level failure such as the page hanging during capture.
type RuntimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuditResult is the standard shape every audit returns.
type AuditResult struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description,omitempty"`
	Score            *float64           `json:"score"`
	ScoreDisplayMode ScoreDisplayMode   `json:"scoreDisplayMode"`
	NumericValue     float64            `json:"numericValue,omitempty"`
	NumericUnit      string             `json:"numericUnit,omitempty"`
	DisplayValue     string             `json:"displayValue,omitempty"`
	Details          *Details           `json:"details,omitempty"`
	MetricSavings    map[string]float64 `json:"metricSavings,omitempty"`
	ErrorMessage     string             `json:"errorMessage,omitempty"`
}

// Details is a tabular audit detail block.
type Details struct {
	Type     string    `json:"type"`
	Headings []Heading `json:"headings"`
	Items    []Item    `json:"items"`
}

// Heading describes one column of a Details table.
type Heading struct {
	Key       string `json:"key"`
	ValueType string `json:"valueType"`
	Label     string `json:"label"`
}

// Item is one row of a Details table, keyed by Heading.Key.
type Item map[string]any

// WorkSummary is the numeric digest of the main-thread work breakdown.
// Categories is keyed by category id and holds throttling-adjusted ms.
type WorkSummary struct {
	TotalMs         float64            `json:"totalMs"`
	Score           float64            `json:"score"`
	MetricSavingsMs float64            `json:"metricSavingsMs"`
	Categories      map[string]float64 `json:"categories"`
	LongTaskCount   int                `json:"longTaskCount"`
	LongestTaskMs   float64            `json:"longestTaskMs"`
}

// ScorePtr returns a pointer to s for AuditResult.Score.
func ScorePtr(s float64) *float64 { return &s }

// ReportsPath is the server endpoint reports are posted to.
const ReportsPath = "/api/v1/reports"
