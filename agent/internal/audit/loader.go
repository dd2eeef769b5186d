package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// File names recognised inside an artifacts bundle directory.
const (
	BundleArtifactsFile = "artifacts.json"
	BundleTraceSuffix   = "trace.json"
	BundleLogSuffix     = "devtoolslog.json"
)

// Paths locates the files of one run. Only Trace and DevtoolsLog are
// mandatory for the performance audits; everything else is optional.
type Paths struct {
	Trace       string
	DevtoolsLog string
	Artifacts   string
}

// bundleMeta is the optional artifacts.json next to the trace.
type bundleMeta struct {
	URL           netlog.URLArtifact `json:"URL"`
	GatherContext GatherContext      `json:"GatherContext"`
	PageLoadError *PageLoadError     `json:"PageLoadError"`
	Accessibility *Accessibility     `json:"Accessibility"`
	FetchTime     time.Time          `json:"fetchTime"`
}

// FindBundle resolves the files of a bundle directory: artifacts.json plus the
// first *trace.json and *devtoolslog.json.
func FindBundle(dir string) (Paths, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Paths{}, fmt.Errorf("audit: read bundle %q: %w", dir, err)
	}
	var p Paths
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		full := filepath.Join(dir, name)
		switch {
		case name == BundleArtifactsFile:
			p.Artifacts = full
		case p.Trace == "" && strings.HasSuffix(name, BundleTraceSuffix):
			p.Trace = full
		case p.DevtoolsLog == "" && strings.HasSuffix(name, BundleLogSuffix):
			p.DevtoolsLog = full
		}
	}
	if p.Trace == "" && p.DevtoolsLog == "" && p.Artifacts == "" {
		return Paths{}, fmt.Errorf("audit: %q holds no artifacts", dir)
	}
	return p, nil
}

// LoadBundle loads the artifacts bundle in dir.
func LoadBundle(dir string, defaultMode types.GatherMode) (*Artifacts, error) {
	p, err := FindBundle(dir)
	if err != nil {
		return nil, err
	}
	return Load(p, defaultMode)
}

// Load reads the files named by p. A trace or log that cannot be read is
// recorded on the artifact as an error value instead of failing the load, so
// the audits can report it. A malformed artifacts.json is fatal.
func Load(p Paths, defaultMode types.GatherMode) (*Artifacts, error) {
	a := &Artifacts{GatherContext: GatherContext{GatherMode: defaultMode}}

	if p.Artifacts != "" {
		data, err := os.ReadFile(p.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("audit: read %q: %w", p.Artifacts, err)
		}
		var meta bundleMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("audit: parse %q: %w", p.Artifacts, err)
		}
		a.URL = meta.URL
		a.PageLoadError = meta.PageLoadError
		a.Accessibility = meta.Accessibility
		a.FetchTime = meta.FetchTime
		if meta.GatherContext.GatherMode != "" {
			if !meta.GatherContext.GatherMode.Valid() {
				return nil, fmt.Errorf("audit: %q: unknown gather mode %q", p.Artifacts, meta.GatherContext.GatherMode)
			}
			a.GatherContext = meta.GatherContext
		}
	}

	if p.Trace != "" {
		a.Trace, a.TraceErr = trace.Load(p.Trace)
	}
	if p.DevtoolsLog != "" {
		a.DevtoolsLog, a.DevtoolsLogErr = netlog.LoadLog(p.DevtoolsLog)
	}
	if a.TraceErr != nil && errors.Is(a.TraceErr, fs.ErrNotExist) {
		a.Trace, a.TraceErr = nil, nil
	}
	if a.DevtoolsLogErr != nil && errors.Is(a.DevtoolsLogErr, fs.ErrNotExist) {
		a.DevtoolsLog, a.DevtoolsLogErr = nil, nil
	}
	return a, nil
}
