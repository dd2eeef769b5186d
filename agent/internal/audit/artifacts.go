package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/obsidianstack/threadwork/agent/internal/netlog"
	"github.com/obsidianstack/threadwork/agent/internal/trace"
	"github.com/obsidianstack/threadwork/pkg/types"
)

// Artifact names used in Meta.RequiredArtifacts.
const (
	ArtifactTrace         = "Trace"
	ArtifactDevtoolsLog   = "DevtoolsLog"
	ArtifactURL           = "URL"
	ArtifactAccessibility = "Accessibility"
)

// Page load error codes with a known user-facing message.
const (
	CodePageHung           = "PAGE_HUNG"
	CodeNoFCP              = "NO_FCP"
	CodeFailedDocument     = "FAILED_DOCUMENT_REQUEST"
	CodeErroredDocument    = "ERRORED_DOCUMENT_REQUEST"
	CodeNotHTML            = "NOT_HTML"
	CodeInsecureDocument   = "INSECURE_DOCUMENT_REQUEST"
	CodeChromeInterstitial = "CHROME_INTERSTITIAL_ERROR"
	CodeTargetCrashed      = "TARGET_CRASHED"
	CodeProtocolTimeout    = "PROTOCOL_TIMEOUT"
	CodeNoNavigationStart  = "NO_NAVSTART"
	CodeNoTracingStarted   = "NO_TRACING_STARTED"
	CodeDNSFailure         = "DNS_FAILURE"
	CodeInvalidURL         = "INVALID_URL"
	CodeNoResourceRequest  = "NO_RESOURCE_REQUEST"
)

var pageLoadMessages = map[string]string{
	CodePageHung:           "Unable to reliably load the URL you requested because the page stopped responding.",
	CodeNoFCP:              "The page did not paint any content. Please ensure you keep the browser window in the foreground during the load and try again.",
	CodeFailedDocument:     "Unable to reliably load the page you requested. Make sure you are testing the correct URL and that the server is properly responding to all requests.",
	CodeErroredDocument:    "Unable to reliably load the page you requested. The server returned an error status for the main document.",
	CodeNotHTML:            "The page provided is not HTML.",
	CodeInsecureDocument:   "The URL you have provided does not have a valid security certificate.",
	CodeChromeInterstitial: "Chrome prevented page load with an interstitial. Make sure you are testing the correct URL and that the server is properly responding to all requests.",
	CodeTargetCrashed:      "Browser tab has unexpectedly crashed.",
	CodeProtocolTimeout:    "Waiting for DevTools protocol response has exceeded the allotted time.",
	CodeNoNavigationStart:  "No navigationStart event was found in the trace.",
	CodeNoTracingStarted:   "No TracingStartedInPage event was found in the trace.",
	CodeDNSFailure:         "DNS servers could not resolve the provided domain.",
	CodeInvalidURL:         "The URL you have provided appears to be invalid.",
	CodeNoResourceRequest:  "The main document request was not found in the network log.",
}

// PageLoadError is a failure of the page load itself, recorded by the capture
// tool. When present, every audit reports it instead of computing anything.
type PageLoadError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// FriendlyMessage returns Message, else the known text for Code, else Code.
func (e *PageLoadError) FriendlyMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if m, ok := pageLoadMessages[e.Code]; ok {
		return m
	}
	return fmt.Sprintf("Page load failed: %s", e.Code)
}

func (e *PageLoadError) Error() string { return e.FriendlyMessage() }

// GatherContext describes how the artifacts were captured.
type GatherContext struct {
	GatherMode types.GatherMode `json:"gatherMode"`
}

// Accessibility is the pre-computed result of an axe-core run.
type Accessibility struct {
	Violations    []AxeResult  `json:"violations"`
	NotApplicable []AxeRuleRef `json:"notApplicable"`
	Incomplete    []AxeResult  `json:"incomplete"`
	Passes        []AxeRuleRef `json:"passes"`
}

// AxeRuleRef names a rule without node detail.
type AxeRuleRef struct {
	ID string `json:"id"`
}

// AxeResult is one rule outcome with its affected nodes.
type AxeResult struct {
	ID     string    `json:"id"`
	Impact string    `json:"impact,omitempty"`
	Tags   []string  `json:"tags,omitempty"`
	Nodes  []AxeNode `json:"nodes"`
	Error  *AxeError `json:"error,omitempty"`
}

// AxeNode is one failing element.
type AxeNode struct {
	Target         []string `json:"target"`
	Snippet        string   `json:"snippet,omitempty"`
	FailureSummary string   `json:"failureSummary,omitempty"`
	Impact         string   `json:"impact,omitempty"`
}

// AxeError is set by axe when a rule could not run.
type AxeError struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// Artifacts is everything captured for one page load. Any artifact may be
// absent, or present as an error value in the matching *Err field.
type Artifacts struct {
	Trace            *trace.Trace
	TraceErr         error
	DevtoolsLog      *netlog.Log
	DevtoolsLogErr   error
	URL              netlog.URLArtifact
	GatherContext    GatherContext
	Accessibility    *Accessibility
	AccessibilityErr error
	PageLoadError    *PageLoadError
	FetchTime        time.Time
}

// ErrArtifactMissing reports an artifact that was never collected.
var ErrArtifactMissing = errors.New("required artifact missing")

// require returns the first reason the named artifacts cannot be used.
func (a *Artifacts) require(names ...string) error {
	if a.PageLoadError != nil {
		return a.PageLoadError
	}
	for _, n := range names {
		var (
			present bool
			err     error
		)
		switch n {
		case ArtifactTrace:
			present, err = a.Trace != nil, a.TraceErr
		case ArtifactDevtoolsLog:
			present, err = a.DevtoolsLog != nil, a.DevtoolsLogErr
		case ArtifactAccessibility:
			present, err = a.Accessibility != nil, a.AccessibilityErr
		case ArtifactURL:
			present = a.URL.RequestedURL != "" || a.URL.MainDocumentURL != ""
		default:
			return fmt.Errorf("audit: unknown artifact %q", n)
		}
		if err != nil {
			return fmt.Errorf("required %s gatherer encountered an error: %w", n, err)
		}
		if !present {
			return fmt.Errorf("%w: %s gatherer did not run", ErrArtifactMissing, n)
		}
	}
	return nil
}
