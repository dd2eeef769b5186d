package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	PageURL    string     `json:"page_url"`
	ReportID   string     `json:"report_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Engine evaluates alert rules against incoming reports and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName|pageURL"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Evaluate tests all configured rules against r.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// It returns the alerts whose state changed.
func (e *Engine) Evaluate(r *types.Report) []Alert {
	if len(e.rules) == 0 {
		return nil
	}

	page := r.PageURL()
	now := e.now()
	var changed []Alert

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		key := rule.Name + "|" + page
		fires, value := evalCondition(rule.Condition, r)

		if fires {
			if _, ok := e.active[key]; ok {
				e.active[key].Value = value
				e.active[key].ReportID = r.ID
				continue
			}
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: rule.Name,
				PageURL:  page,
				ReportID: r.ID,
				Severity: sev,
				Value:    value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
					sev, rule.Name, page, rule.Condition, value),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now
			changed = append(changed, *a)

			slog.Warn("alert fired",
				"rule", rule.Name,
				"page", page,
				"value", value,
				"severity", sev,
			)
			e.dispatch(*a)
			continue
		}

		a, ok := e.active[key]
		if !ok {
			continue
		}
		resolved := now
		a.State = StateResolved
		a.ReportID = r.ID
		a.Value = value
		a.ResolvedAt = &resolved
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		changed = append(changed, *a)

		slog.Info("alert resolved",
			"rule", rule.Name,
			"page", page,
		)
		e.dispatch(*a)
	}
	return changed
}

func (e *Engine) dispatch(a Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(&a)
	}()
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() { e.inflight.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return latest(out[i]).After(latest(out[j]))
	})
	return out
}

func latest(a *Alert) time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}
