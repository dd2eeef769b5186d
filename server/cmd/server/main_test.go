package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/threadwork/pkg/export"
	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/api"
	"github.com/obsidianstack/threadwork/server/internal/config"
)

func testConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, uiDir string) *httptest.Server {
	t.Helper()
	srv, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ts := httptest.NewServer(srv.routes(uiDir))
	t.Cleanup(func() {
		ts.Close()
		srv.close()
	})
	return ts
}

func sampleReport() *types.Report {
	return &types.Report{
		ID:                "run-1",
		RequestedURL:      "https://shop.test/",
		FinalDisplayedURL: "https://shop.test/",
		FetchTime:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		GatherMode:        types.GatherNavigation,
		ThrottlingMethod:  "simulate",
		RunWarnings:       []string{},
		Audits: map[string]*types.AuditResult{
			types.AuditWorkBreakdown: {
				ID:               types.AuditWorkBreakdown,
				Score:            types.ScorePtr(0.48),
				ScoreDisplayMode: types.DisplayMetricSavings,
				NumericValue:     4080,
				NumericUnit:      "millisecond",
			},
		},
		Summary: &types.WorkSummary{
			TotalMs:         4080,
			Score:           0.48,
			MetricSavingsMs: 80,
			Categories:      map[string]float64{"scriptEvaluation": 2500, "other": 1580},
		},
	}
}

func postReport(t *testing.T, url string, r *types.Report, key string) *http.Response {
	t.Helper()
	b, _ := json.Marshal(r)
	req, _ := http.NewRequest(http.MethodPost, url+types.ReportsPath, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_IngestThenRead(t *testing.T) {
	t.Setenv("TW_TEST_KEY", "s3cret")
	cfg := testConfig(t, `server:
  auth:
    mode: apikey
    key_env: TW_TEST_KEY
  alerts:
    rules:
      - name: budget
        condition: "total_ms > 4000"
`)
	ts := newTestServer(t, cfg, "")

	if resp := postReport(t, ts.URL, sampleReport(), "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("POST wrong key: got %d, want 401", resp.StatusCode)
	}
	if resp := postReport(t, ts.URL, sampleReport(), "s3cret"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST: got %d, want 202", resp.StatusCode)
	}

	// Reads are not behind the API key.
	resp, err := http.Get(ts.URL + types.ReportsPath)
	if err != nil {
		t.Fatalf("GET reports: %v", err)
	}
	defer resp.Body.Close()
	var pages []api.PageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pages) != 1 || pages[0].ReportID != "run-1" || pages[0].TotalMs != 4080 {
		t.Errorf("pages: got %+v", pages)
	}

	alertsResp, err := http.Get(ts.URL + "/api/v1/alerts")
	if err != nil {
		t.Fatalf("GET alerts: %v", err)
	}
	defer alertsResp.Body.Close()
	var al []map[string]any
	_ = json.NewDecoder(alertsResp.Body).Decode(&al)
	if len(al) != 1 || al[0]["rule_name"] != "budget" {
		t.Errorf("alerts: got %v", al)
	}

	histResp, err := http.Get(ts.URL + "/api/v1/history?url=https://shop.test/")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer histResp.Body.Close()
	var hist api.HistoryResponse
	if err := json.NewDecoder(histResp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Runs) != 1 || hist.Runs[0].TotalMs != 4080 {
		t.Errorf("history: got %+v", hist)
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	fams, err := export.Parse(metricsResp.Body)
	if err != nil {
		t.Fatalf("Parse metrics: %v", err)
	}
	if got := export.SumFamily(fams[export.MetricCategoryMs], "url", "https://shop.test/"); got != 4080 {
		t.Errorf("category sum: got %v, want 4080", got)
	}
}

func TestRoutes_ReportsMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, testConfig(t, ""), "")
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+types.ReportsPath, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestRoutes_UIFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, testConfig(t, ""), dir)

	for path, want := range map[string]string{
		"/app.js":       "console.log(1)",
		"/pages/detail": "<html>app</html>",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if !strings.Contains(buf.String(), want) {
			t.Errorf("GET %s: got %q, want %q", path, buf.String(), want)
		}
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv, err := newServer(testConfig(t, ""))
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer srv.close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, addr, "") }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/api/v1/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := out.String(); got != "threadwork-server dev\n" {
		t.Errorf("version: got %q", got)
	}
}
