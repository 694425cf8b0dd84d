package emailvalidation

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	validationsvc "github.com/janisto/citizen-profiles/internal/service/emailvalidation"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
)

// TokenRedeemer checks and redeems single-use validation tokens.
type TokenRedeemer interface {
	Verify(ctx context.Context, token string) (validationsvc.Input, error)
	Redeem(ctx context.Context, token string) error
}

// Register registers the email validation endpoints. Both are public: the
// token itself authorizes the change.
func Register(api huma.API, tokens TokenRedeemer, profiles profilesvc.Service) {
	confirm := func(ctx context.Context, token string) error {
		in, err := tokens.Verify(ctx, token)
		if err != nil {
			return mapTokenError(ctx, err)
		}
		ctx = applog.WithFields(ctx, applog.Subject(in.FiscalCode))
		profile, err := profiles.MarkEmailValidated(ctx, in.FiscalCode, in.Email)
		if err != nil && !isFinalProfileError(err) {
			// The token stays valid so the citizen can retry.
			return mapProfileError(ctx, err)
		}
		if rerr := tokens.Redeem(ctx, token); rerr != nil {
			return mapTokenError(ctx, rerr)
		}
		if err != nil {
			return mapProfileError(ctx, err)
		}
		applog.LogInfo(ctx, "email validated", zap.Int("version", profile.Version))
		return nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "confirm-email-validation",
		Method:        http.MethodPost,
		Path:          "/email-validations",
		Summary:       "Confirm email address",
		Description:   "Redeems a validation token and marks the profile email as validated.",
		Tags:          []string{"Email validation"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ValidationConfirmInput) (*struct{}, error) {
		return nil, confirm(ctx, input.Body.Token)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "follow-email-validation-link",
		Method:        http.MethodGet,
		Path:          "/email-validations",
		Summary:       "Follow email validation link",
		Description:   "Same as the POST variant, for links opened directly from the validation email.",
		Tags:          []string{"Email validation"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ValidationLinkInput) (*struct{}, error) {
		return nil, confirm(ctx, input.Token)
	})
}

func mapTokenError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, validationsvc.ErrInvalidToken):
		return huma.Error400BadRequest("invalid validation token")
	case errors.Is(err, validationsvc.ErrTokenExpired):
		return huma.Error410Gone("validation token expired")
	default:
		applog.LogError(ctx, "token lookup failed", err)
		return huma.Error500InternalServerError("internal error")
	}
}

// isFinalProfileError reports errors that no retry of the same token can fix.
func isFinalProfileError(err error) bool {
	return errors.Is(err, profilesvc.ErrNotFound) || errors.Is(err, profilesvc.ErrEmailMismatch)
}

func mapProfileError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, profilesvc.ErrNotFound):
		return huma.Error404NotFound("profile not found")
	case errors.Is(err, profilesvc.ErrEmailMismatch):
		return huma.Error409Conflict("email changed since validation was requested")
	default:
		applog.LogError(ctx, "email validation failed", err)
		return huma.Error500InternalServerError("internal error")
	}
}
