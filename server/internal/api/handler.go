package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/threadwork/pkg/export"
	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/alerts"
	"github.com/obsidianstack/threadwork/server/internal/history"
	"github.com/obsidianstack/threadwork/server/internal/store"
)

// AlertSource lists current alerts.
type AlertSource interface {
	Active() []*alerts.Alert
}

// HistorySource answers trend queries.
type HistorySource interface {
	Query(ctx context.Context, pageURL string, limit int) ([]history.Run, error)
}

// Deps are the collaborators the API reads from. Alerts and History may be nil.
type Deps struct {
	Store   *store.Store
	Alerts  AlertSource
	History HistorySource
}

// Handler is the HTTP handler for all read endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/reports", h.listReports)
	h.mux.HandleFunc("/api/v1/reports/", h.getReport) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: mean score and rating counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.deps.Store.List()
	resp := HealthResponse{PageCount: len(entries)}
	if h.deps.Alerts != nil {
		for _, a := range h.deps.Alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	var total float64
	var scored int
	for _, e := range entries {
		switch rating(e.Report) {
		case RatingPass:
			resp.PassCount++
		case RatingAverage:
			resp.AverageCount++
		case RatingFail:
			resp.FailCount++
		case RatingError:
			resp.ErrorCount++
		}
		if s := e.Report.Summary; s != nil && e.Report.RuntimeError == nil {
			total += s.Score
			scored++
		}
	}

	resp.Rating = RatingUnknown
	if scored > 0 {
		resp.OverallScore = total / float64(scored)
		resp.Rating = ratingFromScore(resp.OverallScore)
	} else if resp.ErrorCount > 0 {
		resp.Rating = RatingError
	}
	jsonResp(w, http.StatusOK, resp)
}

// listReports returns GET /api/v1/reports: the latest run per live page.
func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, pages(h.deps.Store))
}

// getReport returns GET /api/v1/reports/{id}: the full report for one live run.
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	if id == "" {
		h.listReports(w, r)
		return
	}

	e, ok := h.deps.Store.Find(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "report not found")
		return
	}
	jsonResp(w, http.StatusOK, e.Report)
}

// snapshot returns GET /api/v1/snapshot: all live pages plus a timestamp.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.deps.Store, h.now()))
}

// alerts returns GET /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.deps.Alerts != nil {
		out = append(out, h.deps.Alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// history returns GET /api/v1/history?url=...&limit=N.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.History == nil {
		jsonErr(w, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	q := r.URL.Query()
	page := q.Get("url")
	if page == "" {
		jsonErr(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.deps.History.Query(r.Context(), page, limit)
	if err != nil {
		slog.Error("api: history query failed", "url", page, "err", err)
		jsonErr(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	jsonResp(w, http.StatusOK, HistoryResponse{PageURL: page, Runs: runs})
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries := h.deps.Store.List()
	reports := make([]*types.Report, 0, len(entries))
	for _, e := range entries {
		reports = append(reports, e.Report)
	}
	w.Header().Set("Content-Type", export.ContentType())
	if err := export.Write(w, reports); err != nil {
		slog.Error("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot assembles the current snapshot from the store. The WebSocket
// hub uses it for every broadcast.
func BuildSnapshot(st *store.Store, now time.Time) SnapshotResponse {
	return SnapshotResponse{
		Pages:       pages(st),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

func pages(st *store.Store) []PageResponse {
	entries := st.List()
	out := make([]PageResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toPageResponse(e))
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// ratingFromScore maps a 0..1 score to a rating band.
func ratingFromScore(score float64) string {
	switch {
	case score >= 0.9:
		return RatingPass
	case score >= 0.5:
		return RatingAverage
	default:
		return RatingFail
	}
}

func rating(r *types.Report) string {
	if r.RuntimeError != nil {
		return RatingError
	}
	if r.Summary == nil {
		return RatingUnknown
	}
	return ratingFromScore(r.Summary.Score)
}

// toPageResponse maps a store.Entry to its JSON representation.
func toPageResponse(e *store.Entry) PageResponse {
	r := e.Report
	p := PageResponse{
		ReportID:         r.ID,
		PageURL:          r.PageURL(),
		GatherMode:       string(r.GatherMode),
		ThrottlingMethod: r.ThrottlingMethod,
		Rating:           rating(r),
		RunWarnings:      r.RunWarnings,
		Audits:           auditsOf(r),
		Diagnostics:      computeDiagnostics(r),
		LastSeen:         e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !r.FetchTime.IsZero() {
		p.FetchTime = r.FetchTime.UTC().Format(time.RFC3339)
	}
	if p.RunWarnings == nil {
		p.RunWarnings = []string{}
	}
	if r.RuntimeError != nil {
		p.RuntimeError = r.RuntimeError.Code
	}
	if s := r.Summary; s != nil {
		p.Score = types.ScorePtr(s.Score)
		p.TotalMs = s.TotalMs
		p.SavingsMs = s.MetricSavingsMs
		p.LongTasks = s.LongTaskCount
		p.LongestTaskMs = s.LongestTaskMs
		p.Categories = s.Categories
	}
	return p
}

func auditsOf(r *types.Report) []AuditResponse {
	out := make([]AuditResponse, 0, len(r.Audits))
	for id, a := range r.Audits {
		out = append(out, AuditResponse{
			ID:           id,
			Title:        a.Title,
			Score:        a.Score,
			DisplayMode:  string(a.ScoreDisplayMode),
			DisplayValue: a.DisplayValue,
			Error:        a.ErrorMessage,
		})
	}
	sortAudits(out)
	return out
}
