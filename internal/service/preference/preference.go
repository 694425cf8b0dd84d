// Package preference stores structured per-service preferences and migrates
// legacy block-lists into them.
package preference

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/janisto/citizen-profiles/internal/service/profile"
)

// Service errors
var (
	ErrAlreadyExists = errors.New("service preference already exists")
	ErrNotFound      = errors.New("service preference not found")
)

var serviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidServiceID reports whether id is a syntactically valid service id.
func ValidServiceID(id string) bool {
	return serviceIDPattern.MatchString(id)
}

// ServicePreference holds the channel flags of one service for one
// settings version of a profile.
type ServicePreference struct {
	FiscalCode       string `json:"fiscalCode"`
	ServiceID        string `json:"serviceId"`
	SettingsVersion  int    `json:"settingsVersion"`
	IsEmailEnabled   bool   `json:"isEmailEnabled"`
	IsInboxEnabled   bool   `json:"isInboxEnabled"`
	IsWebhookEnabled bool   `json:"isWebhookEnabled"`
}

// ID returns the document id, unique per (fiscal code, service, settings version).
func (p ServicePreference) ID() string {
	return DocumentID(p.FiscalCode, p.ServiceID, p.SettingsVersion)
}

// DocumentID builds the id of a service preference document.
func DocumentID(fiscalCode, serviceID string, settingsVersion int) string {
	return fmt.Sprintf("%s-%s-%016d", fiscalCode, serviceID, settingsVersion)
}

// Store persists service preferences. Create is create-only: an existing id
// returns ErrAlreadyExists.
type Store interface {
	Create(ctx context.Context, p ServicePreference) error
	Get(ctx context.Context, fiscalCode, serviceID string, settingsVersion int) (*ServicePreference, error)
}

// FromBlockedChannels converts a legacy block-list entry into a preference:
// a channel is enabled unless the entry blocks it.
func FromBlockedChannels(fiscalCode, serviceID string, settingsVersion int, blocked profile.BlockedChannels) ServicePreference {
	return ServicePreference{
		FiscalCode:       fiscalCode,
		ServiceID:        serviceID,
		SettingsVersion:  settingsVersion,
		IsEmailEnabled:   !blocked.Blocks(serviceID, profile.ChannelEmail),
		IsInboxEnabled:   !blocked.Blocks(serviceID, profile.ChannelInbox),
		IsWebhookEnabled: !blocked.Blocks(serviceID, profile.ChannelWebhook),
	}
}
