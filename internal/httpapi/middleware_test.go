package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"capgate.org/internal/obs"
)

func TestRateLimitIsPerClient(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequestID(RateLimit(ok, 1, 1))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/signin", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := call("10.0.0.1:1111"); rr.Code != http.StatusNoContent {
		t.Fatalf("first call from client A: got %d", rr.Code)
	}
	limited := call("10.0.0.1:2222")
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("second call from client A: got %d, want 429", limited.Code)
	}
	if limited.Header().Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After")
	}
	var body map[string]any
	if err := json.Unmarshal(limited.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if body["request_id"] == nil || body["request_id"] == "" {
		t.Fatalf("429 body lacks request_id: %v", body)
	}

	if rr := call("10.0.0.2:1111"); rr.Code != http.StatusNoContent {
		t.Fatalf("client B shares client A's bucket: got %d", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "propagated", incoming: "req-1", keep: true},
		{name: "generated when absent", incoming: ""},
		{name: "replaced when oversized", incoming: strings.Repeat("x", 200)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set(requestIDHeader, tc.incoming)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if seen == "" || rr.Header().Get(requestIDHeader) != seen {
				t.Fatalf("context=%q header=%q", seen, rr.Header().Get(requestIDHeader))
			}
			if (seen == tc.incoming) != tc.keep {
				t.Fatalf("request id %q, incoming %q, keep=%v", seen, tc.incoming, tc.keep)
			}
		})
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	previous := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(previous)

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	req := httptest.NewRequest(http.MethodPost, "/signup?debug=1", nil)
	req.Header.Set("User-Agent", "capgate-test")
	req.RemoteAddr = "192.0.2.10:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("request log is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"msg":        "request_complete",
		"method":     http.MethodPost,
		"path":       "/signup",
		"status":     float64(http.StatusAccepted),
		"remote_ip":  "192.0.2.10",
		"user_agent": "capgate-test",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	for _, key := range []string{"ts", "level", "request_id", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing %q", key)
		}
	}
}
