package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/citizen-profiles/internal/platform/auth"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	appmiddleware "github.com/janisto/citizen-profiles/internal/platform/middleware"
	"github.com/janisto/citizen-profiles/internal/platform/respond"
	validationsvc "github.com/janisto/citizen-profiles/internal/service/emailvalidation"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
)

const testFiscalCode = "AAAAAA00A00A000A"

func newTestRouter(servers ...*huma.Server) (chi.Router, *profilesvc.Engine) {
	router := chi.NewRouter()
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(""),
		respond.Recoverer(),
	)
	cfg := huma.DefaultConfig("RoutesTest", "test")
	cfg.Servers = servers
	api := humachi.New(router, cfg)
	engine := profilesvc.NewEngine(profilesvc.NewMemoryStore(), nil)
	tokens := validationsvc.NewService(validationsvc.NewMemoryTokenStore(), validationsvc.LogMailer{})
	Register(api, &auth.MockVerifier{User: auth.TestUser()}, engine, tokens)
	return router, engine
}

func TestRegisterRoutesProfileRequiresAuth(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/profiles/"+testFiscalCode, nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "routes-profile")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestRegisterRoutesProfileRoundTrip(t *testing.T) {
	router, _ := newTestRouter(&huma.Server{URL: "https://api.example.com/v1"})

	req := httptest.NewRequest(http.MethodPost, "/profiles/"+testFiscalCode, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Location"); got != "/v1/profiles/"+testFiscalCode {
		t.Errorf("expected Location with server prefix, got %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/profiles/"+testFiscalCode, nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRegisterRoutesEmailValidationIsPublic(t *testing.T) {
	router, engine := newTestRouter()
	if _, err := engine.Create(context.Background(), testFiscalCode, profilesvc.CreateParams{}); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/email-validations", strings.NewReader(`{"token":"missing:token"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without auth challenge, got %d: %s", resp.Code, resp.Body.String())
	}
}
