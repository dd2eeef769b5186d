package netlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/tidwall/gjson"
)

// ErrNoMainDocument is returned when no record matches the page's main document.
var ErrNoMainDocument = errors.New("netlog: main document request not found")

const resourceDocument = "Document"

// Message is one DevTools protocol event.
type Message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Log is a captured DevTools log. Its pointer identity keys cached
// computations, so callers pass *Log around rather than copying it.
type Log struct {
	Messages []Message
}

// LoadLog reads and parses the log file at path.
func LoadLog(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netlog: read %q: %w", path, err)
	}
	l, err := ParseLog(data)
	if err != nil {
		return nil, fmt.Errorf("netlog: load %q: %w", path, err)
	}
	return l, nil
}

// ParseLog decodes a JSON array of messages.
func ParseLog(data []byte) (*Log, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("netlog: parse: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("netlog: parse: expected array of messages")
	}
	l := &Log{}
	root.ForEach(func(_, v gjson.Result) bool {
		l.Messages = append(l.Messages, Message{
			Method: v.Get("method").String(),
			Params: json.RawMessage(v.Get("params").Raw),
		})
		return true
	})
	return l, nil
}

// Record is one network request as observed in the log. Times are seconds on
// the browser's monotonic clock, the same clock as trace timestamps.
type Record struct {
	RequestID    string
	URL          string
	DocumentURL  string
	FrameID      string
	ResourceType string
	Method       string
	StartTime    float64
	ResponseTime float64
	EndTime      float64
	StatusCode   int
	MIMEType     string
	Finished     bool
	Failed       bool
	FailureText  string

	RedirectSource      *Record
	RedirectDestination *Record
}

// StartMicros returns StartTime in trace microseconds.
func (r *Record) StartMicros() float64 { return r.StartTime * 1e6 }

// IsDocument reports whether the record is a document navigation.
func (r *Record) IsDocument() bool { return r.ResourceType == resourceDocument }

// Records rebuilds network records from l in request order. Messages whose
// params cannot be decoded are skipped and counted in a debug log line.
func Records(l *Log) []*Record {
	var (
		out     []*Record
		byID    = make(map[string]*Record)
		skipped int
	)
	for _, m := range l.Messages {
		var err error
		switch m.Method {
		case "Network.requestWillBeSent":
			var ev network.RequestWillBeSentReply
			if err = json.Unmarshal(m.Params, &ev); err != nil {
				break
			}
			id := string(ev.RequestID)
			rec := &Record{
				RequestID:    id,
				URL:          ev.Request.URL,
				DocumentURL:  ev.DocumentURL,
				FrameID:      gjson.GetBytes(m.Params, "frameId").String(),
				ResourceType: gjson.GetBytes(m.Params, "type").String(),
				Method:       ev.Request.Method,
				StartTime:    float64(ev.Timestamp),
			}
			if prev, ok := byID[id]; ok && ev.RedirectResponse != nil {
				prev.RequestID = id + ":redirect"
				prev.StatusCode = ev.RedirectResponse.Status
				prev.MIMEType = ev.RedirectResponse.MimeType
				prev.ResponseTime = float64(ev.Timestamp)
				prev.EndTime = float64(ev.Timestamp)
				prev.Finished = true
				prev.RedirectDestination = rec
				rec.RedirectSource = prev
				if rec.ResourceType == "" {
					rec.ResourceType = prev.ResourceType
				}
			}
			byID[id] = rec
			out = append(out, rec)

		case "Network.responseReceived":
			var ev network.ResponseReceivedReply
			if err = json.Unmarshal(m.Params, &ev); err != nil {
				break
			}
			if rec, ok := byID[string(ev.RequestID)]; ok {
				rec.StatusCode = ev.Response.Status
				rec.MIMEType = ev.Response.MimeType
				rec.ResponseTime = float64(ev.Timestamp)
				if t := gjson.GetBytes(m.Params, "type").String(); t != "" {
					rec.ResourceType = t
				}
			}

		case "Network.loadingFinished":
			var ev network.LoadingFinishedReply
			if err = json.Unmarshal(m.Params, &ev); err != nil {
				break
			}
			if rec, ok := byID[string(ev.RequestID)]; ok {
				rec.EndTime = float64(ev.Timestamp)
				rec.Finished = true
			}

		case "Network.loadingFailed":
			var ev network.LoadingFailedReply
			if err = json.Unmarshal(m.Params, &ev); err != nil {
				break
			}
			if rec, ok := byID[string(ev.RequestID)]; ok {
				rec.EndTime = float64(ev.Timestamp)
				rec.Failed = true
				rec.FailureText = ev.ErrorText
			}
		}
		if err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		slog.Debug("netlog: skipped undecodable messages", "count", skipped)
	}
	return out
}

// URLArtifact names the three URLs of a navigation.
type URLArtifact struct {
	RequestedURL      string `json:"requestedUrl"`
	MainDocumentURL   string `json:"mainDocumentUrl"`
	FinalDisplayedURL string `json:"finalDisplayedUrl"`
}

// DeriveURLs builds a URLArtifact from the first document request and its
// redirect chain.
func DeriveURLs(records []*Record) (URLArtifact, error) {
	for _, r := range records {
		if !r.IsDocument() || r.RedirectSource != nil {
			continue
		}
		last := r
		for last.RedirectDestination != nil {
			last = last.RedirectDestination
		}
		return URLArtifact{
			RequestedURL:      r.URL,
			MainDocumentURL:   last.URL,
			FinalDisplayedURL: last.URL,
		}, nil
	}
	return URLArtifact{}, ErrNoMainDocument
}

// MainDocument returns the record of the page's main document. It matches
// urls.MainDocumentURL first and otherwise follows the redirect chain that
// starts at urls.RequestedURL.
func MainDocument(records []*Record, urls URLArtifact) (*Record, error) {
	if want := stripFragment(urls.MainDocumentURL); want != "" {
		for _, r := range records {
			if r.IsDocument() && stripFragment(r.URL) == want {
				return r, nil
			}
		}
	}
	if want := stripFragment(urls.RequestedURL); want != "" {
		for _, r := range records {
			if !r.IsDocument() || stripFragment(r.URL) != want {
				continue
			}
			for r.RedirectDestination != nil {
				r = r.RedirectDestination
			}
			return r, nil
		}
	}
	return nil, ErrNoMainDocument
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
