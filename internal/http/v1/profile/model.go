package profile

import (
	"github.com/janisto/citizen-profiles/internal/platform/timeutil"
)

// ServicePreferencesSettings is the preference mode with its own version counter.
type ServicePreferencesSettings struct {
	Mode    string `json:"mode"    enum:"LEGACY,MANUAL,AUTO" doc:"Service preferences mode" example:"AUTO"`
	Version int    `json:"version" minimum:"0"               doc:"Settings version"         example:"1"`
}

// Profile represents one stored version of a citizen profile.
type Profile struct {
	FiscalCode                 string                     `json:"fiscalCode"                       doc:"Citizen fiscal code"                       example:"AAAAAA00A00A000A"`
	Version                    int                        `json:"version"                          doc:"Profile version"                           example:"3"`
	Email                      string                     `json:"email,omitempty"                  doc:"Email address"                             example:"citizen@example.com"`
	IsEmailEnabled             bool                       `json:"isEmailEnabled"                   doc:"Email notifications enabled"               example:"true"`
	IsEmailValidated           bool                       `json:"isEmailValidated"                 doc:"Email address confirmed"                   example:"false"`
	IsInboxEnabled             bool                       `json:"isInboxEnabled"                   doc:"Inbox enabled"                             example:"true"`
	IsWebhookEnabled           bool                       `json:"isWebhookEnabled"                 doc:"Push notifications enabled"                example:"true"`
	AcceptedTosVersion         *int                       `json:"acceptedTosVersion,omitempty"     doc:"Last accepted terms of service version"    example:"2"`
	BlockedInboxOrChannels     map[string][]string        `json:"blockedInboxOrChannels,omitempty" doc:"Legacy per-service blocked channels"`
	PreferredLanguages         []string                   `json:"preferredLanguages,omitempty"     doc:"Preferred languages"                       example:"[\"it_IT\"]"`
	ServicePreferencesSettings ServicePreferencesSettings `json:"servicePreferencesSettings"       doc:"Service preferences settings"`
	UpdatedAt                  timeutil.Time              `json:"updatedAt"                        doc:"Version timestamp"                         example:"2024-01-15T10:30:00.000Z"`
}
