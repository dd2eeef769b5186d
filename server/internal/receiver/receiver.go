package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/alerts"
	"github.com/obsidianstack/threadwork/server/internal/store"
)

// MaxBodyBytes bounds a single upload.
const MaxBodyBytes = 8 << 20

// Evaluator runs alert rules over an accepted report.
type Evaluator interface {
	Evaluate(r *types.Report) []alerts.Alert
}

// Recorder persists an accepted report.
type Recorder interface {
	Save(ctx context.Context, r *types.Report) error
}

// Receiver is the http.Handler for report uploads.
type Receiver struct {
	store   *store.Store
	alerts  Evaluator
	history Recorder
}

// New creates a Receiver that writes accepted reports to st. al and hist may
// be nil.
func New(st *store.Store, al Evaluator, hist Recorder) *Receiver {
	return &Receiver{store: st, alerts: al, history: hist}
}

// Response is the body returned for an accepted report.
type Response struct {
	OK     bool           `json:"ok"`
	ID     string         `json:"id"`
	Alerts []alerts.Alert `json:"alerts,omitempty"`
}

func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "report too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}
	if !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed json"})
		return
	}

	var rep types.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode report: " + err.Error()})
		return
	}
	if err := Validate(&rep); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	rc.store.Put(&rep)

	resp := Response{OK: true, ID: rep.ID}
	if rc.alerts != nil {
		resp.Alerts = rc.alerts.Evaluate(&rep)
	}
	if rc.history != nil {
		if err := rc.history.Save(r.Context(), &rep); err != nil {
			slog.Error("receiver: history save failed", "id", rep.ID, "err", err)
		}
	}

	slog.Debug("receiver: report stored",
		"id", rep.ID,
		"page", rep.PageURL(),
		"audits", len(rep.Audits),
		"runtime_error", rep.RuntimeError != nil,
	)

	writeJSON(w, http.StatusAccepted, resp)
}

// Validate checks the structural requirements of an uploaded report.
func Validate(r *types.Report) error {
	switch {
	case r.ID == "":
		return errors.New("id is required")
	case r.PageURL() == "":
		return errors.New("requestedUrl or finalDisplayedUrl is required")
	case r.GatherMode != "" && !r.GatherMode.Valid():
		return errors.New("unknown gatherMode " + string(r.GatherMode))
	case len(r.Audits) == 0 && r.RuntimeError == nil:
		return errors.New("report has neither audits nor a runtime error")
	}
	for id, a := range r.Audits {
		if a == nil {
			return errors.New("audit " + id + " is null")
		}
		if a.Score != nil && (*a.Score < 0 || *a.Score > 1) {
			return errors.New("audit " + id + " score out of range [0, 1]")
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
