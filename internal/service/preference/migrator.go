package preference

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	"github.com/janisto/citizen-profiles/internal/service/profile"
)

// ErrNegativeSettingsVersion rejects a migration target below zero.
var ErrNegativeSettingsVersion = errors.New("cannot migrate to negative services preferences version")

// Migrator converts the legacy block-list of a profile into service
// preferences tagged with the new settings version.
type Migrator struct {
	store   Store
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithRateLimit throttles creates to perSecond with the given burst.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) MigratorOption {
	return func(m *Migrator) {
		if perSecond <= 0 {
			m.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records migration tracking events.
func WithMetrics(mt *metrics.Metrics) MigratorOption {
	return func(m *Migrator) { m.metrics = mt }
}

// NewMigrator creates a migrator.
func NewMigrator(store Store, opts ...MigratorOption) *Migrator {
	m := &Migrator{store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan returns the preferences a migration creates, ordered by service id.
// Entries keyed by an invalid service id are skipped.
func Plan(in profile.MigrationInput) []ServicePreference {
	blocked := in.OldProfile.BlockedInboxOrChannels
	ids := make([]string, 0, len(blocked))
	for id := range blocked {
		if ValidServiceID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]ServicePreference, len(ids))
	for i, id := range ids {
		out[i] = FromBlockedChannels(in.NewProfile.FiscalCode, id, in.NewProfile.Settings.Version, blocked)
	}
	return out
}

// Migrate creates the planned preferences one at a time. Existing records
// count as migrated, so running it again on the same input is safe; any
// other failure aborts the remaining creates.
func (m *Migrator) Migrate(ctx context.Context, in profile.MigrationInput) error {
	if in.NewProfile.Settings.Version < 0 {
		return ErrNegativeSettingsVersion
	}
	logger := applog.LoggerFromContext(ctx).With(
		applog.Subject(in.NewProfile.FiscalCode),
		zap.Int("settingsVersion", in.NewProfile.Settings.Version))

	m.metrics.Migration(metrics.MigrationDoing)
	plan := Plan(in)
	created := 0
	for _, p := range plan {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("can not create the service preferences: %w", err)
			}
		}

		err := m.store.Create(ctx, p)
		switch {
		case err == nil:
			created++
			m.metrics.PreferenceMigrated()
		case errors.Is(err, ErrAlreadyExists):
			logger.Debug("service preference already migrated", zap.String("serviceId", p.ServiceID))
		default:
			logger.Error("service preference migration aborted",
				zap.String("serviceId", p.ServiceID),
				zap.Int("created", created),
				zap.Error(err))
			return fmt.Errorf("can not create the service preferences: %w", err)
		}
	}

	m.metrics.Migration(metrics.MigrationDone)
	logger.Info("legacy service preferences migrated",
		zap.Int("planned", len(plan)),
		zap.Int("created", created))
	return nil
}
