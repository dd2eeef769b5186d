package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/obsidianstack/threadwork/agent/internal/netlog/netlogtest"
	"github.com/obsidianstack/threadwork/agent/internal/trace/tracetest"
	"github.com/obsidianstack/threadwork/pkg/types"
)

const page = "https://example.com/"

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	b := tracetest.New(page).NavigationStart(5, page).
		Complete("EvaluateScript", 10, 300).
		Complete("Layout", 320, 120)
	files := map[string][]byte{
		"run.trace.json":       b.JSON(),
		"run.devtoolslog.json": netlogtest.Navigation(1.004, page).JSON(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	cmd, err := rootCmd.ExecuteC()
	if cmd != nil {
		// Cobra keeps parsed flag values between executions.
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	return out.String(), err
}

func TestAuditCommand_JSON(t *testing.T) {
	dir := writeBundle(t)
	out, err := execute(t, "audit", "--bundle", dir, "--format", "json", "--throttling-method", "devtools")
	if err != nil {
		t.Fatalf("audit: %v\n%s", err, out)
	}
	var rep types.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, out)
	}
	wb := rep.Audit(types.AuditWorkBreakdown)
	if wb == nil || wb.NumericValue != 420 {
		t.Fatalf("work breakdown = %+v", wb)
	}
	if rep.ThrottlingMethod != "devtools" {
		t.Errorf("throttling = %q", rep.ThrottlingMethod)
	}
}

func TestAuditCommand_SimulateDefault(t *testing.T) {
	dir := writeBundle(t)
	out, err := execute(t, "audit", "--trace", filepath.Join(dir, "run.trace.json"),
		"--devtools-log", filepath.Join(dir, "run.devtoolslog.json"), "--format", "json")
	if err != nil {
		t.Fatalf("audit: %v\n%s", err, out)
	}
	var rep types.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatal(err)
	}
	if got := rep.Audit(types.AuditWorkBreakdown).NumericValue; got != 420*4 {
		t.Errorf("numericValue = %v, want %v under simulate ×4", got, 420*4)
	}
}

func TestAuditCommand_FailUnder(t *testing.T) {
	dir := writeBundle(t)
	_, err := execute(t, "audit", "--bundle", dir, "--format", "json", "--cpu-slowdown", "20", "--fail-under", "0.9")
	if err == nil || !strings.Contains(err.Error(), "below 0.90") {
		t.Errorf("err = %v, want score below threshold", err)
	}
}

func TestAuditCommand_Validation(t *testing.T) {
	tests := [][]string{
		{"audit"},
		{"audit", "--bundle", "x", "--trace", "y"},
		{"audit", "--bundle", t.TempDir(), "--throttling-method", "turbo"},
		{"audit", "--bundle", t.TempDir(), "--format", "xml"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "threadwork-agent dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestCheckScore(t *testing.T) {
	rep := &types.Report{Audits: map[string]*types.AuditResult{
		types.AuditWorkBreakdown: {Score: types.ScorePtr(0.7)},
	}}
	if err := checkScore(rep, 0); err != nil {
		t.Errorf("no minimum: %v", err)
	}
	if err := checkScore(rep, 0.5); err != nil {
		t.Errorf("0.7 >= 0.5: %v", err)
	}
	if err := checkScore(rep, 0.8); err == nil {
		t.Error("0.7 < 0.8 should fail")
	}
	if err := checkScore(&types.Report{}, 0.5); err == nil {
		t.Error("missing audit should fail when a minimum is set")
	}
}
