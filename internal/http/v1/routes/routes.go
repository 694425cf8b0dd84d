package routes

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/citizen-profiles/internal/http/v1/emailvalidation"
	"github.com/janisto/citizen-profiles/internal/http/v1/profile"
	"github.com/janisto/citizen-profiles/internal/platform/auth"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
)

// Register wires all HTTP routes into the provided API router.
func Register(
	api huma.API,
	verifier auth.Verifier,
	profileService profilesvc.Service,
	tokens emailvalidation.TokenRedeemer,
) {
	prefix := apiPrefix(api)

	// Apply auth middleware for protected endpoints
	api.UseMiddleware(auth.NewAuthMiddleware(api, verifier))

	profile.Register(api, profileService, prefix)
	emailvalidation.Register(api, tokens, profileService)
}

func apiPrefix(api huma.API) string {
	for _, s := range api.OpenAPI().Servers {
		if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return ""
}
