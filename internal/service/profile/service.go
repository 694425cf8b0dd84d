package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service errors
var (
	ErrNotFound      = errors.New("profile not found")
	ErrAlreadyExists = errors.New("profile already exists")
	ErrConflict      = errors.New("profile conflict")
	ErrQuery         = errors.New("profile query failed")
	ErrInvalidMode   = errors.New("invalid service preferences mode")
	ErrEmailMismatch = errors.New("email does not match the latest profile version")
)

// VersionConflictError reports a stale version submitted by the caller.
type VersionConflictError struct {
	Submitted int
	Latest    int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("Version %d is not the latest version.", e.Submitted)
}

// Is matches ErrConflict.
func (e *VersionConflictError) Is(target error) bool { return target == ErrConflict }

// ModeConflictError reports a forbidden service preferences mode transition.
type ModeConflictError struct {
	From Mode
	To   Mode
}

func (e *ModeConflictError) Error() string {
	return fmt.Sprintf("Mode %s is not valid.", e.To)
}

// Is matches ErrConflict.
func (e *ModeConflictError) Is(target error) bool { return target == ErrConflict }

// QueryError wraps a store failure.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is matches ErrQuery.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// ChannelKind is a notification channel that a legacy block-list entry can block.
type ChannelKind string

// Channel kinds.
const (
	ChannelEmail   ChannelKind = "EMAIL"
	ChannelInbox   ChannelKind = "INBOX"
	ChannelWebhook ChannelKind = "WEBHOOK"
)

// Valid reports whether c is a known channel kind.
func (c ChannelKind) Valid() bool {
	switch c {
	case ChannelEmail, ChannelInbox, ChannelWebhook:
		return true
	}
	return false
}

// BlockedChannels is the legacy per-service block-list: serviceId to blocked channels.
type BlockedChannels map[string][]ChannelKind

// Blocks reports whether the entry for serviceID blocks channel.
func (b BlockedChannels) Blocks(serviceID string, channel ChannelKind) bool {
	for _, c := range b[serviceID] {
		if c == channel {
			return true
		}
	}
	return false
}

// Settings holds the service preferences mode and its own version counter.
type Settings struct {
	Mode    Mode `json:"mode"`
	Version int  `json:"version"`
}

// Profile is one stored version of a citizen profile.
type Profile struct {
	FiscalCode             string          `json:"fiscalCode"`
	Version                int             `json:"version"`
	Email                  string          `json:"email,omitempty"`
	IsEmailEnabled         bool            `json:"isEmailEnabled"`
	IsEmailValidated       bool            `json:"isEmailValidated"`
	IsInboxEnabled         bool            `json:"isInboxEnabled"`
	IsWebhookEnabled       bool            `json:"isWebhookEnabled"`
	AcceptedTosVersion     *int            `json:"acceptedTosVersion,omitempty"`
	BlockedInboxOrChannels BlockedChannels `json:"blockedInboxOrChannels,omitempty"`
	PreferredLanguages     []string        `json:"preferredLanguages,omitempty"`
	Settings               Settings        `json:"servicePreferencesSettings"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// clone returns a deep copy so stored versions are never aliased.
func (p Profile) clone() Profile {
	out := p
	if p.AcceptedTosVersion != nil {
		v := *p.AcceptedTosVersion
		out.AcceptedTosVersion = &v
	}
	if p.BlockedInboxOrChannels != nil {
		out.BlockedInboxOrChannels = make(BlockedChannels, len(p.BlockedInboxOrChannels))
		for k, v := range p.BlockedInboxOrChannels {
			out.BlockedInboxOrChannels[k] = append([]ChannelKind(nil), v...)
		}
	}
	if p.PreferredLanguages != nil {
		out.PreferredLanguages = append([]string(nil), p.PreferredLanguages...)
	}
	return out
}

// CreateParams for creating a profile.
type CreateParams struct {
	Email              string
	IsEmailEnabled     bool
	PreferredLanguages []string
}

// UpdateParams for updating a profile. Nil fields keep the stored value.
// Mode nil requests LEGACY.
type UpdateParams struct {
	Version                int
	Email                  *string
	IsEmailEnabled         *bool
	IsInboxEnabled         *bool
	IsWebhookEnabled       *bool
	AcceptedTosVersion     *int
	BlockedInboxOrChannels BlockedChannels
	PreferredLanguages     []string
	Mode                   *Mode
}

// Service defines profile operations exposed to transports.
type Service interface {
	Create(ctx context.Context, fiscalCode string, params CreateParams) (*Profile, error)
	Get(ctx context.Context, fiscalCode string) (*Profile, error)
	Update(ctx context.Context, fiscalCode string, params UpdateParams) (*Profile, error)
	MarkEmailValidated(ctx context.Context, fiscalCode, email string) (*Profile, error)
	History(ctx context.Context, fiscalCode string, before, limit int) ([]Profile, error)
}

// Store persists profile versions. CreateVersion is create-only:
// an existing (fiscal code, version) returns ErrAlreadyExists.
type Store interface {
	FindLatest(ctx context.Context, fiscalCode string) (*Profile, error)
	FindVersion(ctx context.Context, fiscalCode string, version int) (*Profile, error)
	CreateVersion(ctx context.Context, p Profile) (*Profile, error)
	// ListVersions returns up to limit versions below before, newest first.
	// A negative before starts from the latest version.
	ListVersions(ctx context.Context, fiscalCode string, before, limit int) ([]Profile, error)
}

// Feed delivers every newly created profile version to fn, in batches.
// Subscribe blocks until ctx is done or the feed fails.
type Feed interface {
	Subscribe(ctx context.Context, fn func(ctx context.Context, batch []Profile)) error
}

// Starter starts workflows on the orchestration host.
type Starter interface {
	StartWorkflow(ctx context.Context, name string, input any) (string, error)
}

// Workflow names started by the engine.
const (
	WorkflowProfileUpserted    = "profile-upserted"
	WorkflowMigratePreferences = "migrate-service-preferences"
)

// UpsertedInput is the input of the profile-upserted workflow.
// OldProfile is nil when the profile was just created.
type UpsertedInput struct {
	OldProfile *Profile  `json:"oldProfile,omitempty"`
	NewProfile Profile   `json:"newProfile"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MigrationInput is the input of the legacy preference migration workflow.
type MigrationInput struct {
	OldProfile Profile `json:"oldProfile"`
	NewProfile Profile `json:"newProfile"`
}

// NormalizeEmail trims an email address and lowercases its domain. The
// local part is kept as given: mailboxes may treat it case-sensitively.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}
