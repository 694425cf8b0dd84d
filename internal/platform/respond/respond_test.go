package respond

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"

	appmiddleware "github.com/janisto/citizen-profiles/internal/platform/middleware"
)

const profilePath = "/v1/profiles/AAAAAA00A00A000A"

// testProblem also captures the $schema field.
type testProblem struct {
	Schema string              `json:"$schema,omitempty"`
	Title  string              `json:"title,omitempty"`
	Status int                 `json:"status,omitempty"`
	Detail string              `json:"detail,omitempty"`
	Errors []*huma.ErrorDetail `json:"errors,omitempty"`
}

func newProfileRouter() chi.Router {
	router := chi.NewRouter()
	router.NotFound(NotFoundHandler())
	router.MethodNotAllowed(MethodNotAllowedHandler())
	router.Use(appmiddleware.RequestID(), Recoverer())
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	router.Get("/v1/profiles/{fiscalCode}", ok)
	router.Post("/v1/profiles/{fiscalCode}", ok)
	router.Patch("/v1/profiles/{fiscalCode}", ok)
	router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	router.Get("/panic-error", func(http.ResponseWriter, *http.Request) { panic(errors.New("store exploded")) })
	router.Get("/abort", func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) })
	router.Get("/partial", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial response"))
		panic("panic after write")
	})
	return router
}

func serve(router http.Handler, method, path, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeJSONProblem(t *testing.T, resp *httptest.ResponseRecorder) testProblem {
	t.Helper()
	if ct := resp.Header().Get("Content-Type"); ct != contentTypeProblemJSON {
		t.Fatalf("expected %s, got %q", contentTypeProblemJSON, ct)
	}
	var problem testProblem
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to unmarshal problem: %v", err)
	}
	return problem
}

func TestProblemResponses(t *testing.T) {
	router := newProfileRouter()
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantTitle  string
		wantDetail string
	}{
		{"unknown route", http.MethodGet, "/v1/missing", http.StatusNotFound, "Not Found", "resource not found"},
		{"wrong method", http.MethodDelete, profilePath, http.StatusMethodNotAllowed, "Method Not Allowed", "method DELETE not allowed"},
		{"string panic", http.MethodGet, "/panic", http.StatusInternalServerError, "Internal Server Error", "internal server error"},
		{"error panic", http.MethodGet, "/panic-error", http.StatusInternalServerError, "Internal Server Error", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(router, tt.method, tt.path, "")

			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.Code)
			}
			problem := decodeJSONProblem(t, resp)
			if problem.Status != tt.wantStatus || problem.Title != tt.wantTitle || problem.Detail != tt.wantDetail {
				t.Fatalf("unexpected problem %+v", problem)
			}
			if problem.Schema != "http://example.com"+schemaPath {
				t.Errorf("unexpected $schema %q", problem.Schema)
			}
			link := resp.Header().Get("Link")
			if link != "<http://example.com"+schemaPath+`>; rel="describedBy"` {
				t.Errorf("unexpected Link header %q", link)
			}
			vary := strings.Join(resp.Header().Values("Vary"), ",")
			if !strings.Contains(vary, "Origin") || !strings.Contains(vary, "Accept") {
				t.Errorf("expected Vary to list Origin and Accept, got %q", vary)
			}
		})
	}
}

func TestMethodNotAllowedListsProfileMethods(t *testing.T) {
	resp := serve(newProfileRouter(), http.MethodPut, profilePath, "")

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	allow := resp.Header().Get("Allow")
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPatch} {
		if !strings.Contains(allow, method) {
			t.Errorf("expected Allow to list %s, got %q", method, allow)
		}
	}
	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		if strings.Contains(allow, method) {
			t.Errorf("expected Allow to omit %s, got %q", method, allow)
		}
	}
}

func TestProblemsNegotiateCBOR(t *testing.T) {
	router := newProfileRouter()
	for _, path := range []string{"/v1/missing", "/panic"} {
		resp := serve(router, http.MethodGet, path, "application/cbor")

		if ct := resp.Header().Get("Content-Type"); ct != contentTypeProblemCBOR {
			t.Fatalf("%s: expected %s, got %q", path, contentTypeProblemCBOR, ct)
		}
		var problem testProblem
		if err := cbor.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
			t.Fatalf("%s: failed to decode CBOR: %v", path, err)
		}
		if problem.Status != resp.Code {
			t.Fatalf("%s: body status %d does not match %d", path, problem.Status, resp.Code)
		}
	}
}

func TestRecovererRePanicsOnErrAbortHandler(t *testing.T) {
	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected http.ErrAbortHandler to be re-panicked, got %v", rec)
		}
	}()

	serve(newProfileRouter(), http.MethodGet, "/abort", "")
	t.Fatal("expected panic to propagate, but handler returned normally")
}

func TestRecovererKeepsStartedResponse(t *testing.T) {
	resp := serve(newProfileRouter(), http.MethodGet, "/partial", "")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected original 200 status to be preserved, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "partial response" {
		t.Fatalf("expected original body to be preserved, got %q", body)
	}
}

func TestResponseWriterTracksWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec}
	if rw.wroteHeader {
		t.Fatal("expected wroteHeader to be false initially")
	}
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rw.wroteHeader {
		t.Fatal("expected wroteHeader after Write")
	}
	if rw.Unwrap() != rec {
		t.Fatal("expected Unwrap to return underlying ResponseWriter")
	}
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		accept   string
		wantCBOR bool
	}{
		{"", false},
		{"*/*", false},
		{"application/*", false},
		{"text/html", false},
		{"application/json", false},
		{"application/cbor", true},
		{"application/problem+cbor", true},
		{"application/*+cbor", true},
		{"application/cbor, application/json", false},
		{"application/json;q=0.5, application/cbor", true},
		{"application/cbor;q=0.5, application/json", false},
		{"*/*;q=0.1, application/cbor", true},
		{"application/cbor;q=0", false},
		{"application/cbor;q=0, application/json", false},
		{"application/json;q=0, */*", true},
		{"application/cbor;q=abc", true},
		{"application/cbor;q=2", true},
	}
	for _, tt := range tests {
		if got := selectFormat(tt.accept); got != tt.wantCBOR {
			t.Errorf("selectFormat(%q) = %v, want %v", tt.accept, got, tt.wantCBOR)
		}
	}
}

func TestParseAccept(t *testing.T) {
	ranges := parseAccept("application, , Application/CBOR;charset=utf-8;q=0.4")
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %+v", ranges)
	}
	if ranges[0] != (mediaRange{typ: "application", subtype: "*", q: 1}) {
		t.Errorf("unexpected first range %+v", ranges[0])
	}
	if ranges[1] != (mediaRange{typ: "application", subtype: "cbor", q: 0.4}) {
		t.Errorf("unexpected second range %+v", ranges[1])
	}
}

func TestSchemaURLScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, profilePath, nil)
	if got := schemaURL(req); got != "http://example.com"+schemaPath {
		t.Errorf("unexpected plain URL %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if got := schemaURL(req); got != "https://example.com"+schemaPath {
		t.Errorf("expected https behind proxy, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, profilePath, nil)
	req.TLS = &tls.ConnectionState{}
	if got := schemaURL(req); !strings.HasPrefix(got, "https://") {
		t.Errorf("expected https with TLS, got %q", got)
	}
}

func TestEnsureVary(t *testing.T) {
	h := http.Header{}
	h.Add("Vary", "origin, Accept-Encoding")
	ensureVary(h, "Origin", "Accept", "accept")

	got := h.Values("Vary")
	if len(got) != 2 || got[1] != "Accept" {
		t.Fatalf("expected only Accept appended, got %v", got)
	}
}

func TestJSONProblemIsNotHTMLEscaped(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, profilePath, nil)
	resp := httptest.NewRecorder()
	writeProblem(resp, req, http.StatusBadRequest, "version <3> & mode")

	if !strings.Contains(resp.Body.String(), "version <3> & mode") {
		t.Fatalf("expected raw detail, got %s", resp.Body.String())
	}
}
