package profile

import "github.com/janisto/citizen-profiles/internal/platform/pagination"

// Path patterns accept 16-character Italian fiscal codes, omocodia included.

// ProfileCreateInput for POST /profiles/{fiscalCode}
type ProfileCreateInput struct {
	FiscalCode string `path:"fiscalCode" pattern:"^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$" doc:"Citizen fiscal code" example:"AAAAAA00A00A000A"`
	Body       struct {
		Email              string   `json:"email,omitempty"              format:"email" doc:"Email address"               example:"citizen@example.com"`
		IsEmailEnabled     *bool    `json:"isEmailEnabled,omitempty"                    doc:"Email notifications enabled" example:"true"`
		PreferredLanguages []string `json:"preferredLanguages,omitempty"                doc:"Preferred languages"         example:"[\"it_IT\"]"`
	}
}

// ProfileGetInput for GET /profiles/{fiscalCode}
type ProfileGetInput struct {
	FiscalCode string `path:"fiscalCode" pattern:"^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$" doc:"Citizen fiscal code" example:"AAAAAA00A00A000A"`
}

// ProfileHistoryInput for GET /profiles/{fiscalCode}/versions
type ProfileHistoryInput struct {
	pagination.Params
	FiscalCode string `path:"fiscalCode" pattern:"^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$" doc:"Citizen fiscal code" example:"AAAAAA00A00A000A"`
}

// SettingsInput carries the requested service preferences mode.
type SettingsInput struct {
	Mode string `json:"mode" enum:"LEGACY,MANUAL,AUTO" required:"true" doc:"Service preferences mode" example:"AUTO"`
}

// ProfileUpdateInput for PATCH /profiles/{fiscalCode}. Omitted fields keep
// their stored value; omitted settings request LEGACY mode.
type ProfileUpdateInput struct {
	FiscalCode string `path:"fiscalCode" pattern:"^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$" doc:"Citizen fiscal code" example:"AAAAAA00A00A000A"`
	Body       struct {
		Version                    int                 `json:"version"                              minimum:"0" required:"true" doc:"Version the change is based on"      example:"3"`
		Email                      *string             `json:"email,omitempty"                      format:"email"              doc:"Email address"                       example:"citizen@example.com"`
		IsEmailEnabled             *bool               `json:"isEmailEnabled,omitempty"                                         doc:"Email notifications enabled"         example:"true"`
		IsInboxEnabled             *bool               `json:"isInboxEnabled,omitempty"                                         doc:"Inbox enabled"                       example:"true"`
		IsWebhookEnabled           *bool               `json:"isWebhookEnabled,omitempty"                                       doc:"Push notifications enabled"          example:"true"`
		AcceptedTosVersion         *int                `json:"acceptedTosVersion,omitempty"         minimum:"0"                 doc:"Accepted terms of service version"   example:"2"`
		BlockedInboxOrChannels     map[string][]string `json:"blockedInboxOrChannels,omitempty"                                 doc:"Legacy per-service blocked channels"`
		PreferredLanguages         []string            `json:"preferredLanguages,omitempty"                                     doc:"Preferred languages"                 example:"[\"it_IT\"]"`
		ServicePreferencesSettings *SettingsInput      `json:"servicePreferencesSettings,omitempty"                             doc:"Service preferences settings"`
	}
}
