package receiver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/alerts"
	"github.com/obsidianstack/threadwork/server/internal/auth"
	"github.com/obsidianstack/threadwork/server/internal/config"
	"github.com/obsidianstack/threadwork/server/internal/receiver"
	"github.com/obsidianstack/threadwork/server/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (r *recorder) Save(_ context.Context, rep *types.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.ids = append(r.ids, rep.ID)
	return nil
}

func report(id, url string, score float64) *types.Report {
	return &types.Report{
		ID:                id,
		RequestedURL:      url,
		FinalDisplayedURL: url,
		GatherMode:        types.GatherNavigation,
		Audits: map[string]*types.AuditResult{
			types.AuditWorkBreakdown: {
				ID:               types.AuditWorkBreakdown,
				Score:            types.ScorePtr(score),
				ScoreDisplayMode: types.DisplayMetricSavings,
				NumericValue:     4500,
				NumericUnit:      "millisecond",
			},
		},
		Summary: &types.WorkSummary{TotalMs: 4500, Score: score},
	}
}

func post(t *testing.T, h http.Handler, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, types.ReportsPath, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func encode(t *testing.T, r *types.Report) []byte {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestReceive_StoresReport(t *testing.T) {
	st := store.New(5 * time.Minute)
	hist := &recorder{}
	h := receiver.New(st, nil, hist)

	rec := post(t, h, encode(t, report("run-1", "https://a.test/", 0.4)), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	var resp receiver.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.ID != "run-1" {
		t.Errorf("response: got %+v", resp)
	}

	e, ok := st.Get("https://a.test/")
	if !ok {
		t.Fatal("store.Get: expected entry, got none")
	}
	if e.Report.Summary.TotalMs != 4500 {
		t.Errorf("TotalMs: got %v, want 4500", e.Report.Summary.TotalMs)
	}
	if len(hist.ids) != 1 || hist.ids[0] != "run-1" {
		t.Errorf("history: got %v, want [run-1]", hist.ids)
	}
}

func TestReceive_UpdateExistingPage(t *testing.T) {
	st := store.New(5 * time.Minute)
	h := receiver.New(st, nil, nil)

	post(t, h, encode(t, report("first", "https://a.test/", 0.4)), nil)
	post(t, h, encode(t, report("second", "https://a.test/", 0.9)), nil)

	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1 (updates, not appends)", st.Count())
	}
	e, _ := st.Get("https://a.test/")
	if e.Report.ID != "second" {
		t.Errorf("ID: got %q, want second", e.Report.ID)
	}
}

func TestReceive_RuntimeErrorOnly(t *testing.T) {
	st := store.New(5 * time.Minute)
	h := receiver.New(st, nil, nil)
	r := &types.Report{
		ID:           "hung",
		RequestedURL: "https://hung.test/",
		RuntimeError: &types.RuntimeError{Code: "PAGE_HUNG", Message: "page hung"},
	}
	if rec := post(t, h, encode(t, r), nil); rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestReceive_Rejected(t *testing.T) {
	noID := report("", "https://a.test/", 0.5)
	noURL := report("x", "", 0.5)
	badMode := report("x", "https://a.test/", 0.5)
	badMode.GatherMode = "crawl"
	empty := &types.Report{ID: "x", RequestedURL: "https://a.test/"}
	badScore := report("x", "https://a.test/", 1.5)

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantErr  string
	}{
		{"malformed", []byte(`{"id":`), http.StatusBadRequest, "malformed json"},
		{"wrong shape", []byte(`{"audits":[1,2]}`), http.StatusBadRequest, "decode report"},
		{"missing id", encode(t, noID), http.StatusUnprocessableEntity, "id is required"},
		{"missing url", encode(t, noURL), http.StatusUnprocessableEntity, "requestedUrl"},
		{"bad gather mode", encode(t, badMode), http.StatusUnprocessableEntity, "gatherMode"},
		{"no results", encode(t, empty), http.StatusUnprocessableEntity, "neither audits"},
		{"score out of range", encode(t, badScore), http.StatusUnprocessableEntity, "out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := store.New(5 * time.Minute)
			rec := post(t, receiver.New(st, nil, nil), tc.body, nil)
			if rec.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tc.wantErr) {
				t.Errorf("body: got %q, want %q", rec.Body.String(), tc.wantErr)
			}
			if st.Count() != 0 {
				t.Errorf("store.Count: got %d, want 0", st.Count())
			}
		})
	}
}

func TestReceive_TooLarge(t *testing.T) {
	h := receiver.New(store.New(time.Minute), nil, nil)
	body := append([]byte(`{"id":"`), bytes.Repeat([]byte("a"), receiver.MaxBodyBytes+1)...)
	if rec := post(t, h, body, nil); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rec.Code)
	}
}

func TestReceive_MethodNotAllowed(t *testing.T) {
	h := receiver.New(store.New(time.Minute), nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, types.ReportsPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}

func TestReceive_HistoryFailureStillAccepted(t *testing.T) {
	st := store.New(5 * time.Minute)
	h := receiver.New(st, nil, &recorder{fail: true})
	if rec := post(t, h, encode(t, report("r", "https://a.test/", 0.5)), nil); rec.Code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", rec.Code)
	}
	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", st.Count())
	}
}

func TestReceive_EvaluatesAlerts(t *testing.T) {
	eng := alerts.New(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "budget", Condition: "total_ms > 4000"}},
	})
	h := receiver.New(store.New(time.Minute), eng, nil)

	rec := post(t, h, encode(t, report("r", "https://a.test/", 0.4)), nil)
	var resp receiver.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].RuleName != "budget" {
		t.Errorf("alerts: got %+v, want one budget alert", resp.Alerts)
	}
	if n := len(eng.Active()); n != 1 {
		t.Errorf("engine Active: got %d, want 1", n)
	}
}

func TestReceive_WithAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantCode int
	}{
		{"correct key", "testkey", http.StatusAccepted},
		{"wrong key", "wrongkey", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := store.New(time.Minute)
			h := auth.APIKey("apikey", "X-API-Key", "testkey")(receiver.New(st, nil, nil))
			hdr := map[string]string{}
			if tc.key != "" {
				hdr["X-API-Key"] = tc.key
			}
			rec := post(t, h, encode(t, report("r", "https://a.test/", 0.5)), hdr)
			if rec.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantCode)
			}
			wantStored := 0
			if tc.wantCode == http.StatusAccepted {
				wantStored = 1
			}
			if st.Count() != wantStored {
				t.Errorf("store.Count: got %d, want %d", st.Count(), wantStored)
			}
		})
	}
}
