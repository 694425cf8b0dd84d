package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/citizen-profiles/internal/platform/auth"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/pagination"
	"github.com/janisto/citizen-profiles/internal/platform/timeutil"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
)

const versionCursorType = "profile-version"

var bearerAuth = []map[string][]string{
	{"bearerAuth": {}},
}

// Register registers profile endpoints.
func Register(api huma.API, svc profilesvc.Service, prefix string) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profiles/{fiscalCode}",
		Summary:       "Create citizen profile",
		Description:   "Creates version 0 of the profile in LEGACY service preferences mode.",
		Tags:          []string{"Profile"},
		DefaultStatus: http.StatusCreated,
		Security:      bearerAuth,
	}, func(ctx context.Context, input *ProfileCreateInput) (*ProfileCreateOutput, error) {
		if err := checkAccess(ctx, input.FiscalCode); err != nil {
			return nil, err
		}
		params := profilesvc.CreateParams{
			Email:              input.Body.Email,
			PreferredLanguages: input.Body.PreferredLanguages,
		}
		if input.Body.IsEmailEnabled != nil {
			params.IsEmailEnabled = *input.Body.IsEmailEnabled
		}

		profile, err := svc.Create(ctx, input.FiscalCode, params)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileCreateOutput{
			Location: prefix + "/profiles/" + profile.FiscalCode,
			Body:     toHTTPProfile(profile),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{fiscalCode}",
		Summary:     "Get citizen profile",
		Description: "Retrieves the latest version of the profile.",
		Tags:        []string{"Profile"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *ProfileGetInput) (*ProfileGetOutput, error) {
		if err := checkAccess(ctx, input.FiscalCode); err != nil {
			return nil, err
		}
		profile, err := svc.Get(ctx, input.FiscalCode)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileGetOutput{
			Body: toHTTPProfile(profile),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profile-versions",
		Method:      http.MethodGet,
		Path:        "/profiles/{fiscalCode}/versions",
		Summary:     "List profile versions",
		Description: "Returns stored profile versions, newest first. Use the cursor from the Link header to fetch older versions.",
		Tags:        []string{"Profile"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *ProfileHistoryInput) (*ProfileHistoryOutput, error) {
		if err := checkAccess(ctx, input.FiscalCode); err != nil {
			return nil, err
		}
		before, err := pagination.DecodeIntCursor(versionCursorType, input.Cursor)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid cursor")
		}

		limit := input.DefaultLimit()
		versions, err := svc.History(ctx, input.FiscalCode, before, limit+1)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}

		var next string
		if len(versions) > limit {
			versions = versions[:limit]
			next = pagination.IntCursor(versionCursorType, versions[limit-1].Version)
		}
		items := make([]Profile, len(versions))
		for i := range versions {
			items[i] = toHTTPProfile(&versions[i])
		}
		query := url.Values{"limit": []string{strconv.Itoa(limit)}}
		return &ProfileHistoryOutput{
			Link: pagination.NextLink(prefix+"/profiles/"+input.FiscalCode+"/versions", query, next),
			Body: HistoryData{Items: items},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profiles/{fiscalCode}",
		Summary:     "Update citizen profile",
		Description: "Writes a new profile version based on the submitted version. " +
			"Omitted fields keep their value; omitting servicePreferencesSettings requests LEGACY mode.",
		Tags:     []string{"Profile"},
		Security: bearerAuth,
	}, func(ctx context.Context, input *ProfileUpdateInput) (*ProfileUpdateOutput, error) {
		if err := checkAccess(ctx, input.FiscalCode); err != nil {
			return nil, err
		}
		blocked, err := toBlockedChannels(input.Body.BlockedInboxOrChannels)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		params := profilesvc.UpdateParams{
			Version:                input.Body.Version,
			Email:                  input.Body.Email,
			IsEmailEnabled:         input.Body.IsEmailEnabled,
			IsInboxEnabled:         input.Body.IsInboxEnabled,
			IsWebhookEnabled:       input.Body.IsWebhookEnabled,
			AcceptedTosVersion:     input.Body.AcceptedTosVersion,
			BlockedInboxOrChannels: blocked,
			PreferredLanguages:     input.Body.PreferredLanguages,
		}
		if s := input.Body.ServicePreferencesSettings; s != nil {
			mode := profilesvc.Mode(s.Mode)
			params.Mode = &mode
		}

		profile, err := svc.Update(ctx, input.FiscalCode, params)
		if err != nil {
			return nil, mapServiceError(ctx, err)
		}
		return &ProfileUpdateOutput{
			Body: toHTTPProfile(profile),
		}, nil
	})
}

// checkAccess rejects callers whose token is bound to another fiscal code.
func checkAccess(ctx context.Context, fiscalCode string) error {
	if !auth.UserFromContext(ctx).CanAccess(fiscalCode) {
		applog.LogWarn(ctx, "profile access denied", applog.Subject(fiscalCode))
		return huma.Error403Forbidden("access to this profile is not allowed")
	}
	return nil
}

func toBlockedChannels(in map[string][]string) (profilesvc.BlockedChannels, error) {
	if in == nil {
		return nil, nil
	}
	out := make(profilesvc.BlockedChannels, len(in))
	for serviceID, channels := range in {
		kinds := make([]profilesvc.ChannelKind, 0, len(channels))
		for _, c := range channels {
			kind := profilesvc.ChannelKind(c)
			if !kind.Valid() {
				return nil, fmt.Errorf("unknown channel %q for service %s", c, serviceID)
			}
			kinds = append(kinds, kind)
		}
		out[serviceID] = kinds
	}
	return out, nil
}

func mapServiceError(ctx context.Context, err error) error {
	var (
		versionErr *profilesvc.VersionConflictError
		modeErr    *profilesvc.ModeConflictError
	)
	switch {
	case errors.Is(err, profilesvc.ErrNotFound):
		return huma.Error404NotFound("profile not found")
	case errors.Is(err, profilesvc.ErrAlreadyExists):
		return huma.Error409Conflict("profile already exists")
	case errors.As(err, &versionErr):
		return huma.Error409Conflict(versionErr.Error())
	case errors.As(err, &modeErr):
		return huma.Error409Conflict(modeErr.Error())
	case errors.Is(err, profilesvc.ErrEmailMismatch):
		return huma.Error409Conflict("email changed since validation was requested")
	case errors.Is(err, profilesvc.ErrInvalidMode):
		return huma.Error422UnprocessableEntity("invalid service preferences mode")
	default:
		applog.LogError(ctx, "profile operation failed", err)
		return huma.Error500InternalServerError("internal error")
	}
}

func toHTTPProfile(p *profilesvc.Profile) Profile {
	out := Profile{
		FiscalCode:         p.FiscalCode,
		Version:            p.Version,
		Email:              p.Email,
		IsEmailEnabled:     p.IsEmailEnabled,
		IsEmailValidated:   p.IsEmailValidated,
		IsInboxEnabled:     p.IsInboxEnabled,
		IsWebhookEnabled:   p.IsWebhookEnabled,
		AcceptedTosVersion: p.AcceptedTosVersion,
		PreferredLanguages: p.PreferredLanguages,
		ServicePreferencesSettings: ServicePreferencesSettings{
			Mode:    string(p.Settings.Mode),
			Version: p.Settings.Version,
		},
		UpdatedAt: timeutil.Time{Time: p.UpdatedAt},
	}
	if len(p.BlockedInboxOrChannels) > 0 {
		out.BlockedInboxOrChannels = make(map[string][]string, len(p.BlockedInboxOrChannels))
		for serviceID, kinds := range p.BlockedInboxOrChannels {
			channels := make([]string, len(kinds))
			for i, k := range kinds {
				channels[i] = string(k)
			}
			out.BlockedInboxOrChannels[serviceID] = channels
		}
	}
	return out
}

