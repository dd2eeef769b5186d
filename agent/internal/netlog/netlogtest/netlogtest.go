// Package netlogtest builds synthetic DevTools logs for tests.
package netlogtest

import (
	"encoding/json"
	"fmt"

	"github.com/obsidianstack/threadwork/agent/internal/netlog"
)

// Builder accumulates protocol messages. Times are seconds.
type Builder struct {
	msgs []map[string]any
}

// New returns an empty builder.
func New() *Builder { return &Builder{} }

// Request adds requestWillBeSent. A non-zero redirectStatus marks it as the
// continuation of an earlier request with the same id.
func (b *Builder) Request(id, url, resourceType string, at float64, redirectStatus int) *Builder {
	params := map[string]any{
		"requestId":   id,
		"loaderId":    "L1",
		"documentURL": url,
		"request":     map[string]any{"url": url, "method": "GET"},
		"timestamp":   at,
		"wallTime":    at,
		"initiator":   map[string]any{"type": "other"},
		"type":        resourceType,
		"frameId":     "F00D",
	}
	if redirectStatus != 0 {
		params["redirectResponse"] = map[string]any{
			"url": "", "status": redirectStatus, "statusText": "", "headers": map[string]any{},
			"mimeType": "text/html", "connectionReused": false, "connectionId": 0,
			"encodedDataLength": 0, "securityState": "secure",
		}
	}
	return b.add("Network.requestWillBeSent", params)
}

// Response adds responseReceived.
func (b *Builder) Response(id, resourceType string, at float64, status int) *Builder {
	return b.add("Network.responseReceived", map[string]any{
		"requestId": id,
		"loaderId":  "L1",
		"timestamp": at,
		"type":      resourceType,
		"response": map[string]any{
			"url": "", "status": status, "statusText": "", "headers": map[string]any{},
			"mimeType": "text/html", "connectionReused": false, "connectionId": 0,
			"encodedDataLength": 0, "securityState": "secure",
		},
	})
}

// Finished adds loadingFinished.
func (b *Builder) Finished(id string, at float64) *Builder {
	return b.add("Network.loadingFinished", map[string]any{
		"requestId": id, "timestamp": at, "encodedDataLength": 0,
	})
}

// Raw adds an arbitrary message.
func (b *Builder) Raw(method string, params any) *Builder { return b.add(method, params) }

func (b *Builder) add(method string, params any) *Builder {
	b.msgs = append(b.msgs, map[string]any{"method": method, "params": params})
	return b
}

// JSON renders the log.
func (b *Builder) JSON() []byte {
	data, err := json.Marshal(b.msgs)
	if err != nil {
		panic(fmt.Sprintf("netlogtest: marshal: %v", err))
	}
	return data
}

// Log parses the rendered log.
func (b *Builder) Log() *netlog.Log {
	l, err := netlog.ParseLog(b.JSON())
	if err != nil {
		panic(fmt.Sprintf("netlogtest: parse: %v", err))
	}
	return l
}

// Navigation is a document load of url at start seconds that finishes one
// second later, preceded by a redirect from each entry of redirects in order.
func Navigation(start float64, url string, redirects ...string) *Builder {
	b := New()
	at := start
	chain := append(append([]string{}, redirects...), url)
	for i, u := range chain {
		status := 0
		if i > 0 {
			status = 302
		}
		b.Request("1000.1", u, "Document", at, status)
		at += 0.1
	}
	b.Response("1000.1", "Document", at, 200)
	b.Finished("1000.1", start+1)
	return b
}
