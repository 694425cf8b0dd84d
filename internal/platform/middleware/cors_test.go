package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func containsHeader(headerValue, target string) bool {
	for part := range strings.SplitSeq(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(part), target) {
			return true
		}
	}
	return false
}

func preflight(h http.Handler, origin, method, headers string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "http://localhost/v1/profiles/AAAAAA00A00A000A", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestCORSExposesPagingAndLocationHeaders(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://localhost/v1/profiles/AAAAAA00A00A000A", nil)
	req.Header.Set("Origin", "http://example.com")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if !called {
		t.Fatal("expected downstream handler to be called")
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected Access-Control-Allow-Origin '*', got %q", got)
	}
	exposed := resp.Header().Get("Access-Control-Expose-Headers")
	for _, name := range []string{"Link", "Location", "X-Request-Id"} {
		if !containsHeader(exposed, name) {
			t.Errorf("expected %q in Access-Control-Expose-Headers, got %q", name, exposed)
		}
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("credentials must not be allowed, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		headers string
	}{
		{"profile update", http.MethodPatch, "Authorization, Content-Type"},
		{"request id", http.MethodPost, "X-Request-ID"},
		{"trace context", http.MethodGet, "traceparent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			resp := preflight(h, "http://example.com", tt.method, tt.headers)

			if called {
				t.Fatal("preflight must not reach the handler")
			}
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.Code)
			}
			if got := resp.Header().Get("Access-Control-Allow-Methods"); !containsHeader(got, tt.method) {
				t.Errorf("expected %s allowed, got %q", tt.method, got)
			}
			allowed := resp.Header().Get("Access-Control-Allow-Headers")
			for part := range strings.SplitSeq(tt.headers, ",") {
				if !containsHeader(allowed, strings.TrimSpace(part)) {
					t.Errorf("expected %q allowed, got %q", part, allowed)
				}
			}
		})
	}
}

func TestCORSRestrictsConfiguredOrigins(t *testing.T) {
	h := CORS("https://app.example.com")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := preflight(h, "https://app.example.com", http.MethodGet, "")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected configured origin echoed, got %q", got)
	}

	resp = preflight(h, "https://evil.example.com", http.MethodGet, "")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected unknown origin rejected, got %q", got)
	}
}

func TestCORSDoesNotAllowDelete(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	resp := preflight(h, "http://example.com", http.MethodDelete, "")
	if got := resp.Header().Get("Access-Control-Allow-Methods"); containsHeader(got, http.MethodDelete) {
		t.Fatalf("DELETE must not be allowed, got %q", got)
	}
}
