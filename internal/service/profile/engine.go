package profile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	"github.com/janisto/citizen-profiles/internal/platform/timeutil"
)

// categorizeError converts errors to audit-safe categories.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, ErrEmailMismatch):
		return "email_mismatch"
	default:
		return "internal_error"
	}
}

// Engine implements Service on top of a versioned Store. Every successful
// write appends a new version and then starts the profile-upserted workflow.
type Engine struct {
	store   Store
	starter Starter
	metrics *metrics.Metrics
	now     timeutil.Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for version timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.now = c }
}

// WithMetrics records profile writes and mode changes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a profile engine.
func NewEngine(store Store, starter Starter, opts ...Option) *Engine {
	e := &Engine{store: store, starter: starter, now: timeutil.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores version 0 of a profile in LEGACY mode.
func (e *Engine) Create(ctx context.Context, fiscalCode string, params CreateParams) (*Profile, error) {
	p := Profile{
		FiscalCode:         fiscalCode,
		Version:            0,
		Email:              NormalizeEmail(params.Email),
		IsEmailEnabled:     params.IsEmailEnabled,
		PreferredLanguages: params.PreferredLanguages,
		Settings:           Settings{Mode: ModeLegacy, Version: 0},
		UpdatedAt:          e.now(),
	}

	created, err := e.store.CreateVersion(ctx, p)
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		err = &QueryError{Op: "create profile", Err: err}
	}
	e.audit(ctx, "create", fiscalCode, 0, err)
	if err != nil {
		return nil, err
	}

	e.start(ctx, WorkflowProfileUpserted, UpsertedInput{NewProfile: *created, UpdatedAt: created.UpdatedAt})
	return created, nil
}

// Get returns the latest profile version.
func (e *Engine) Get(ctx context.Context, fiscalCode string) (*Profile, error) {
	p, err := e.store.FindLatest(ctx, fiscalCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &QueryError{Op: "find latest profile", Err: err}
	}
	return p, nil
}

// History returns up to limit versions older than before, newest first.
// A negative before starts from the latest version. A profile with no
// versions at all is ErrNotFound; an exhausted page is empty.
func (e *Engine) History(ctx context.Context, fiscalCode string, before, limit int) ([]Profile, error) {
	versions, err := e.store.ListVersions(ctx, fiscalCode, before, limit)
	if err != nil {
		return nil, &QueryError{Op: "list profile versions", Err: err}
	}
	if len(versions) == 0 && before < 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// Update applies params on top of the latest version and stores the result
// as a new version. Conflicts and validation failures never write.
func (e *Engine) Update(ctx context.Context, fiscalCode string, params UpdateParams) (*Profile, error) {
	logger := applog.LoggerFromContext(ctx).With(applog.Subject(fiscalCode))

	stored, err := e.Get(ctx, fiscalCode)
	if err != nil {
		e.audit(ctx, "update", fiscalCode, params.Version, err)
		return nil, err
	}

	if err := CheckVersion(stored, params.Version); err != nil {
		logger.Warn("profile update rejected",
			zap.Int("currentVersion", stored.Version),
			zap.Int("submittedVersion", params.Version),
			zap.String("result", "conflict"))
		e.audit(ctx, "update", fiscalCode, params.Version, err)
		return nil, err
	}

	emailChanged := params.Email != nil && NormalizeEmail(*params.Email) != stored.Email

	settings, err := NextSettings(stored.Settings, params.Mode)
	if err != nil {
		logger.Warn("profile update rejected",
			zap.String("currentMode", string(stored.Settings.Mode)),
			zap.Any("requestedMode", params.Mode),
			zap.String("result", "conflict"))
		e.audit(ctx, "update", fiscalCode, params.Version, err)
		return nil, err
	}

	next := merge(*stored, params)
	next.IsEmailValidated = stored.IsEmailValidated && !emailChanged
	next.Settings = settings
	next.Version = stored.Version + 1
	next.UpdatedAt = e.now()
	applyTosAutoEnable(stored, &next)

	updated, err := e.store.CreateVersion(ctx, next)
	if err != nil {
		err = &QueryError{Op: "create profile version", Err: err}
		logger.Error("profile update failed", zap.Error(err))
		e.audit(ctx, "update", fiscalCode, next.Version, err)
		return nil, err
	}
	e.audit(ctx, "update", fiscalCode, updated.Version, nil)

	if stored.Settings.Mode != updated.Settings.Mode {
		e.metrics.ModeChange(string(stored.Settings.Mode), string(updated.Settings.Mode))
	}

	e.start(ctx, WorkflowProfileUpserted, UpsertedInput{
		OldProfile: stored,
		NewProfile: *updated,
		UpdatedAt:  updated.UpdatedAt,
	})
	if IsMigrationTrigger(stored.Settings.Mode, updated.Settings.Mode) {
		e.metrics.Migration(metrics.MigrationRequesting)
		e.start(ctx, WorkflowMigratePreferences, MigrationInput{
			OldProfile: *stored,
			NewProfile: *updated,
		})
	}

	return updated, nil
}

// MarkEmailValidated appends a version flagging email as validated. The
// email must still be the one on the latest version; a profile already
// validated for it is returned unchanged.
func (e *Engine) MarkEmailValidated(ctx context.Context, fiscalCode, email string) (*Profile, error) {
	stored, err := e.Get(ctx, fiscalCode)
	if err != nil {
		return nil, err
	}
	if stored.Email == "" || NormalizeEmail(email) != stored.Email {
		e.audit(ctx, "validate_email", fiscalCode, stored.Version, ErrEmailMismatch)
		return nil, ErrEmailMismatch
	}
	if stored.IsEmailValidated {
		return stored, nil
	}

	next := stored.clone()
	next.Version = stored.Version + 1
	next.IsEmailValidated = true
	next.UpdatedAt = e.now()

	updated, err := e.store.CreateVersion(ctx, next)
	if err != nil {
		err = &QueryError{Op: "create profile version", Err: err}
		e.audit(ctx, "validate_email", fiscalCode, next.Version, err)
		return nil, err
	}
	e.audit(ctx, "validate_email", fiscalCode, updated.Version, nil)

	e.start(ctx, WorkflowProfileUpserted, UpsertedInput{
		OldProfile: stored,
		NewProfile: *updated,
		UpdatedAt:  updated.UpdatedAt,
	})
	return updated, nil
}

// merge overlays the non-nil params on a copy of stored.
func merge(stored Profile, params UpdateParams) Profile {
	next := stored.clone()
	if params.Email != nil {
		next.Email = NormalizeEmail(*params.Email)
	}
	if params.IsEmailEnabled != nil {
		next.IsEmailEnabled = *params.IsEmailEnabled
	}
	if params.IsInboxEnabled != nil {
		next.IsInboxEnabled = *params.IsInboxEnabled
	}
	if params.IsWebhookEnabled != nil {
		next.IsWebhookEnabled = *params.IsWebhookEnabled
	}
	if params.AcceptedTosVersion != nil {
		v := *params.AcceptedTosVersion
		next.AcceptedTosVersion = &v
	}
	if params.BlockedInboxOrChannels != nil {
		next.BlockedInboxOrChannels = Profile{BlockedInboxOrChannels: params.BlockedInboxOrChannels}.clone().BlockedInboxOrChannels
	}
	if params.PreferredLanguages != nil {
		next.PreferredLanguages = append([]string(nil), params.PreferredLanguages...)
	}
	return next
}

// start fires a workflow. The profile version is already durable, so a
// failed start is logged rather than returned.
func (e *Engine) start(ctx context.Context, name string, input any) {
	if e.starter == nil {
		return
	}
	id, err := e.starter.StartWorkflow(ctx, name, input)
	if err != nil {
		applog.LogError(ctx, "failed to start workflow", err, zap.String("workflow", name))
		return
	}
	applog.LoggerFromContext(ctx).Debug("workflow started",
		zap.String("workflow", name), zap.String("instanceId", id))
}

func (e *Engine) audit(ctx context.Context, action, fiscalCode string, version int, err error) {
	ev := applog.AuditEvent{
		Action:       action,
		ResourceType: "profile",
		Subject:      fiscalCode,
		Version:      version,
		Result:       applog.AuditSuccess,
	}
	if err != nil {
		ev.Result = applog.AuditFailure
		ev.Details = map[string]any{"error": categorizeError(err)}
	}
	applog.LogAuditEvent(ctx, ev)
	e.metrics.ProfileWrite(action, err)
}

// Compile-time interface check
var _ Service = (*Engine)(nil)
