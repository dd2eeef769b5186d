package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

const resolvedColor = "3CB371"

// fact is one labelled line of a chat notification.
type fact struct {
	Name  string
	Value string
}

// headline is the one-line summary shown by chat clients.
func headline(a *Alert) string {
	verb := "fired"
	if a.State == StateResolved {
		verb = "resolved"
	}
	return fmt.Sprintf("%s %s on %s", a.RuleName, verb, a.PageURL)
}

func facts(a *Alert) []fact {
	out := []fact{
		{"Page", a.PageURL},
		{"Report", a.ReportID},
		{"Value", strconv.FormatFloat(a.Value, 'f', 2, 64)},
		{"Severity", a.Severity},
		{"State", a.State},
	}
	if a.ResolvedAt != nil {
		out = append(out, fact{"Resolved", a.ResolvedAt.UTC().Format("2006-01-02 15:04:05Z")})
	}
	return out
}

// deliver sends a to every configured target. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(url, a)
		case "teams":
			err = e.sendTeams(url, a)
		case "pagerduty", "http":
			err = e.sendHTTP(url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "page", a.PageURL, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "page", a.PageURL, "state", a.State)
	}
}

// sendSlack posts a message with a legacy attachment carrying the report facts.
func (e *Engine) sendSlack(url string, a *Alert) error {
	fields := make([]map[string]any, 0, 6)
	for _, f := range facts(a) {
		fields = append(fields, map[string]any{
			"title": f.Name,
			"value": f.Value,
			"short": f.Name != "Page",
		})
	}
	body, err := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), headline(a)),
		"attachments": []map[string]any{{
			"color":      "#" + stateColor(a),
			"title":      a.PageURL,
			"title_link": a.PageURL,
			"text":       a.Message,
			"fields":     fields,
		}},
	})
	if err != nil {
		return fmt.Errorf("alerts: slack payload: %w", err)
	}
	return e.post(url, body)
}

// sendTeams posts an Office 365 MessageCard with one facts section and a
// link to the page.
func (e *Engine) sendTeams(url string, a *Alert) error {
	var fs []map[string]string
	for _, f := range facts(a) {
		fs = append(fs, map[string]string{"name": f.Name, "value": f.Value})
	}
	body, err := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": stateColor(a),
		"summary":    headline(a),
		"title":      fmt.Sprintf("threadwork alert: %s", a.RuleName),
		"text":       a.Message,
		"sections": []map[string]any{{
			"activityTitle": headline(a),
			"facts":         fs,
		}},
		"potentialAction": []map[string]any{{
			"@type":   "OpenUri",
			"name":    "Open page",
			"targets": []map[string]string{{"os": "default", "uri": a.PageURL}},
		}},
	})
	if err != nil {
		return fmt.Errorf("alerts: teams payload: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) sendHTTP(url string, a *Alert) error {
	body, err := json.Marshal(map[string]any{"alert": a})
	if err != nil {
		return fmt.Errorf("alerts: http payload: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func stateColor(a *Alert) string {
	if a.State == StateResolved {
		return resolvedColor
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
