package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// okHandler answers 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func call(h http.Handler, header, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		key        string
		sendHeader string
		sendKey    string
		wantCode   int
		wantErr    string
	}{
		{"mode none passes", "none", "secret", "X-API-Key", "", http.StatusOK, ""},
		{"empty key passes", "apikey", "", "X-API-Key", "", http.StatusOK, ""},
		{"correct key", "apikey", "supersecret", "X-API-Key", "supersecret", http.StatusOK, ""},
		{"header case-insensitive", "apikey", "supersecret", "x-api-key", "supersecret", http.StatusOK, ""},
		{"wrong key", "apikey", "supersecret", "X-API-Key", "wrong", http.StatusUnauthorized, "invalid api key"},
		{"missing key", "apikey", "supersecret", "X-API-Key", "", http.StatusUnauthorized, "missing api key"},
		{"other header", "apikey", "supersecret", "Authorization", "supersecret", http.StatusUnauthorized, "missing api key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKey(tc.mode, "X-API-Key", tc.key)(okHandler)
			rec := call(h, tc.sendHeader, tc.sendKey)
			if rec.Code != tc.wantCode {
				t.Fatalf("code: got %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantErr != "" {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type: got %q", ct)
				}
				if !strings.Contains(rec.Body.String(), tc.wantErr) {
					t.Errorf("body: got %q, want %q", rec.Body.String(), tc.wantErr)
				}
			}
		})
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	h := APIKey("apikey", "X-Threadwork-Key", "k1")(okHandler)

	if rec := call(h, "X-Threadwork-Key", "k1"); rec.Code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", rec.Code)
	}
	if rec := call(h, "X-API-Key", "k1"); rec.Code != http.StatusUnauthorized {
		t.Errorf("default header ignored: got %d, want 401", rec.Code)
	}
}
