package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func serveRequestID(header string, set bool) (ctxID string, rec *httptest.ResponseRecorder) {
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/AAAAAA00A00A000A", nil)
	if set {
		req.Header.Set(chimiddleware.RequestIDHeader, header)
	}
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = chimiddleware.GetReqID(r.Context())
	}))
	h.ServeHTTP(rec, req)
	return ctxID, rec
}

func TestRequestIDGeneratesUUIDv4(t *testing.T) {
	captured, rec := serveRequestID("", false)

	if header := rec.Header().Get(chimiddleware.RequestIDHeader); header != captured {
		t.Fatalf("expected response header %q, got %q", captured, header)
	}
	parsed, err := uuid.Parse(captured)
	if err != nil {
		t.Fatalf("request ID %q is not a valid UUID: %v", captured, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected UUIDv4, got version %d", parsed.Version())
	}
}

func TestRequestIDHeaderHandling(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		preserve bool
	}{
		{"alphanumeric", "abc123-XYZ", true},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true},
		{"max length", strings.Repeat("a", maxRequestIDLength), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"newline", "abc\ndef", false},
		{"tab", "abc\tdef", false},
		{"non ascii", "abcé", false},
		{"delete char", "abc\x7f", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured, rec := serveRequestID(tt.header, true)

			if got := rec.Header().Get(chimiddleware.RequestIDHeader); got != captured {
				t.Fatalf("header %q and context %q differ", got, captured)
			}
			if tt.preserve && captured != tt.header {
				t.Fatalf("expected %q preserved, got %q", tt.header, captured)
			}
			if !tt.preserve {
				if captured == tt.header {
					t.Fatalf("expected %q replaced", tt.header)
				}
				if _, err := uuid.Parse(captured); err != nil {
					t.Fatalf("replacement %q is not a UUID", captured)
				}
			}
		})
	}
}

func TestRequestIDUniquePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		id, _ := serveRequestID("", false)
		if seen[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		seen[id] = true
	}
}
