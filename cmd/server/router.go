package main

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/citizen-profiles/internal/http/health"
	"github.com/janisto/citizen-profiles/internal/http/v1/emailvalidation"
	"github.com/janisto/citizen-profiles/internal/http/v1/routes"
	"github.com/janisto/citizen-profiles/internal/platform/auth"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	appmiddleware "github.com/janisto/citizen-profiles/internal/platform/middleware"
	"github.com/janisto/citizen-profiles/internal/platform/respond"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
)

const (
	apiPrefix    = "/v1"
	docsPath     = "/api-docs"
	readyTimeout = 2 * time.Second
)

type routerDeps struct {
	projectID   string
	corsOrigins []string
	verifier    auth.Verifier
	profiles    profilesvc.Service
	tokens      emailvalidation.TokenRedeemer
	checks      map[string]health.Check
	metrics     http.Handler
}

// newRouter builds the HTTP surface: health, readiness and metrics at the
// root, the versioned API under /v1.
func newRouter(deps routerDeps) (chi.Router, huma.API) {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security(apiPrefix+docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(deps.corsOrigins...),
		appmiddleware.RequestID(),
		// RealIP extracts client IP from X-Real-IP or X-Forwarded-For headers.
		// SECURITY: Only use behind a trusted reverse proxy (e.g., Cloud Run, nginx).
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20), // 1 MB limit
		applog.RequestLogger(deps.projectID),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	router.Get("/health", health.Handler)
	router.Get("/ready", health.ReadyHandler(readyTimeout, deps.checks))
	if deps.metrics != nil {
		router.Handle("/metrics", deps.metrics)
	}

	var api huma.API
	router.Route(apiPrefix, func(r chi.Router) {
		cfg := huma.DefaultConfig("Citizen Profiles API", Version)
		cfg.DocsPath = docsPath
		cfg.Servers = []*huma.Server{{URL: apiPrefix}}
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
		api = humachi.New(r, cfg)
		api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)
		routes.Register(api, deps.verifier, deps.profiles, deps.tokens)
	})
	return router, api
}

// addCBORContent advertises application/cbor next to every JSON body.
func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}
}
