package audit

import (
	"log/slog"

	"github.com/obsidianstack/threadwork/agent/internal/cache"
	"github.com/obsidianstack/threadwork/agent/internal/compute"
	"github.com/obsidianstack/threadwork/agent/internal/throttle"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Meta describes an audit.
type Meta struct {
	ID                string
	Title             string
	FailureTitle      string
	Description       string
	RequiredArtifacts []string
}

// Settings are the run settings audits read.
type Settings struct {
	ThrottlingMethod      string  `json:"throttlingMethod"`
	CPUSlowdownMultiplier float64 `json:"cpuSlowdownMultiplier"`
}

// Throttling validates the settings into a throttle.Context.
func (s Settings) Throttling() (throttle.Context, error) {
	return throttle.NewContext(s.ThrottlingMethod, s.CPUSlowdownMultiplier)
}

// Context is what an audit receives besides the artifacts.
type Context struct {
	Settings Settings
	Cache    *cache.Cache
	Logger   *slog.Logger
}

func (c *Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Audit turns artifacts into one result. Implementations report unusable
// inputs as error-mode results; a returned error is reserved for faults in the
// audit itself.
type Audit interface {
	Meta() Meta
	Audit(a *Artifacts, c *Context) (*types.AuditResult, error)
}

// errorResult is the result of an audit that could not run.
func errorResult(m Meta, msg string) *types.AuditResult {
	return &types.AuditResult{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		ScoreDisplayMode: types.DisplayError,
		ErrorMessage:     msg,
	}
}

// finalize stamps identity fields and picks the failure title for scores
// below the pass threshold.
func finalize(m Meta, r *types.AuditResult) *types.AuditResult {
	r.ID = m.ID
	r.Description = m.Description
	r.Title = m.Title
	if r.ScoreDisplayMode != types.DisplayError && r.Score != nil &&
		*r.Score < compute.PassThreshold && m.FailureTitle != "" {
		r.Title = m.FailureTitle
	}
	return r
}
