package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/threadwork/agent/internal/cache"
	"github.com/obsidianstack/threadwork/agent/internal/classify"
	"github.com/obsidianstack/threadwork/agent/internal/compute"
	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// DefaultConcurrency bounds how many audits run at once.
const DefaultConcurrency = 4

// Runner executes a fixed set of audits against one set of artifacts.
type Runner struct {
	audits []Audit
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many audits run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithLogger sets the logger passed to audits.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithClock overrides the fetch-time clock.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner returns a runner for audits.
func NewRunner(audits []Audit, opts ...Option) *Runner {
	r := &Runner{audits: audits, limit: DefaultConcurrency, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DefaultAudits returns every audit with the given scoring curve and long
// task threshold.
func DefaultAudits(scoring compute.Options, longTaskThresholdMs float64) []Audit {
	return []Audit{
		&WorkBreakdown{Scoring: scoring},
		&LongTasks{ThresholdMs: longTaskThresholdMs},
		NewLabelContentNameMismatch(),
	}
}

// Run audits a and returns the report. Each run gets a fresh computed-artifact
// cache. Audit failures become error-mode results; the only error returned is
// cancellation of ctx.
func (r *Runner) Run(ctx context.Context, a *Artifacts, s Settings) (*types.Report, error) {
	c := cache.New()
	actx := &Context{Settings: s, Cache: c, Logger: r.logger}

	a = r.withDerivedURLs(c, a)

	fetch := a.FetchTime
	if fetch.IsZero() {
		fetch = r.now()
	}
	rep := &types.Report{
		ID:                uuid.NewString(),
		RequestedURL:      a.URL.RequestedURL,
		MainDocumentURL:   a.URL.MainDocumentURL,
		FinalDisplayedURL: a.URL.FinalDisplayedURL,
		FetchTime:         fetch.UTC(),
		GatherMode:        a.GatherContext.GatherMode,
		ThrottlingMethod:  s.ThrottlingMethod,
		RunWarnings:       []string{},
		Audits:            make(map[string]*types.AuditResult, len(r.audits)),
	}
	if a.PageLoadError != nil {
		msg := a.PageLoadError.FriendlyMessage()
		rep.RuntimeError = &types.RuntimeError{Code: a.PageLoadError.Code, Message: msg}
		rep.RunWarnings = append(rep.RunWarnings, msg)
		r.logger.Warn("audit: page load error", "code", a.PageLoadError.Code, "url", a.URL.RequestedURL)
	}

	results := make([]*types.AuditResult, len(r.audits))
	g := new(errgroup.Group)
	g.SetLimit(r.limit)
	for i, au := range r.audits {
		if ctx.Err() != nil {
			break
		}
		i, au := i, au
		g.Go(func() error {
			results[i] = r.runOne(au, a, actx)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit: run: %w", err)
	}

	for _, res := range results {
		rep.Audits[res.ID] = res
	}
	rep.Summary = summarize(rep)

	st := c.Stats()
	r.logger.Info("audit: run complete",
		"id", rep.ID,
		"url", rep.PageURL(),
		"audits", len(rep.Audits),
		"cache_hits", st.Hits,
		"cache_misses", st.Misses,
	)
	return rep, nil
}

// withDerivedURLs fills in the URL artifact from the devtools log when the
// bundle did not carry one. The caller's artifacts are left untouched.
func (r *Runner) withDerivedURLs(c *cache.Cache, a *Artifacts) *Artifacts {
	if a.URL.MainDocumentURL != "" || a.DevtoolsLog == nil || a.DevtoolsLogErr != nil {
		return a
	}
	records, err := NetworkRecords(c, a.DevtoolsLog)
	if err != nil {
		r.logger.Warn("audit: network records unavailable, urls not derived", "err", err)
		return a
	}
	urls, err := netlog.DeriveURLs(records)
	if err != nil {
		r.logger.Debug("audit: no urls in devtools log", "err", err)
		return a
	}
	if a.URL.RequestedURL != "" {
		urls.RequestedURL = a.URL.RequestedURL
	}
	derived := *a
	derived.URL = urls
	return &derived
}

// runOne never panics outward: a panic or error becomes an error-mode result.
func (r *Runner) runOne(au Audit, a *Artifacts, c *Context) (res *types.AuditResult) {
	m := au.Meta()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("audit: panic", "audit", m.ID, "panic", p, "stack", string(debug.Stack()))
			res = errorResult(m, fmt.Sprintf("audit panicked: %v", p))
		}
	}()
	res, err := au.Audit(a, c)
	if err != nil {
		r.logger.Error("audit: failed", "audit", m.ID, "err", err)
		return errorResult(m, err.Error())
	}
	if res == nil {
		return errorResult(m, "audit returned no result")
	}
	if res.ID == "" {
		res.ID = m.ID
	}
	return res
}

// summarize extracts the numeric digest of the work breakdown and long-task
// results. It is nil when the work breakdown did not produce a score.
func summarize(rep *types.Report) *types.WorkSummary {
	wb := rep.Audit(types.AuditWorkBreakdown)
	if wb == nil || wb.Score == nil {
		return nil
	}
	s := &types.WorkSummary{
		TotalMs:         wb.NumericValue,
		Score:           *wb.Score,
		MetricSavingsMs: wb.MetricSavings[MetricTBT],
		Categories:      make(map[string]float64, len(classify.All())),
	}
	for _, c := range classify.All() {
		s.Categories[c.String()] = 0
	}
	if wb.Details != nil {
		for _, it := range wb.Details.Items {
			id, _ := it["category"].(string)
			d, _ := it["duration"].(float64)
			s.Categories[id] = d
		}
	}
	if lt := rep.Audit(types.AuditLongTasks); lt != nil && lt.ScoreDisplayMode != types.DisplayError {
		s.LongTaskCount = int(lt.NumericValue)
		if lt.Details != nil {
			for _, it := range lt.Details.Items {
				if d, _ := it["duration"].(float64); d > s.LongestTaskMs {
					s.LongestTaskMs = d
				}
			}
		}
	}
	return s
}
