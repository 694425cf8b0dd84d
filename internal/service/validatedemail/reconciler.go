package validatedemail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	"github.com/janisto/citizen-profiles/internal/service/profile"
)

// ProfileReader reads stored profile versions.
type ProfileReader interface {
	FindVersion(ctx context.Context, fiscalCode string, version int) (*profile.Profile, error)
}

// Reconciler keeps the index in step with validated profile versions.
type Reconciler struct {
	profiles ProfileReader
	index    Index
	metrics  *metrics.Metrics
}

// NewReconciler creates a reconciler. m may be nil.
func NewReconciler(profiles ProfileReader, index Index, m *metrics.Metrics) *Reconciler {
	return &Reconciler{profiles: profiles, index: index, metrics: m}
}

// Reconcile moves the index entry of p's subject to p's email when p is a
// validated version. The previously validated email is found by walking
// older versions; a gap in the history ends the walk.
func (r *Reconciler) Reconcile(ctx context.Context, p profile.Profile) error {
	if !p.IsEmailValidated || p.Email == "" || p.Version < 0 {
		return nil
	}
	if p.Version == 0 {
		return r.insert(ctx, p.FiscalCode, p.Email)
	}

	prev, found, err := r.previousValidatedEmail(ctx, p)
	if err != nil {
		return err
	}
	switch {
	case !found:
		return r.insert(ctx, p.FiscalCode, p.Email)
	case prev == p.Email:
		return nil
	default:
		if err := r.delete(ctx, p.FiscalCode, prev); err != nil {
			return err
		}
		return r.insert(ctx, p.FiscalCode, p.Email)
	}
}

func (r *Reconciler) previousValidatedEmail(ctx context.Context, p profile.Profile) (string, bool, error) {
	for v := p.Version - 1; v >= 0; v-- {
		older, err := r.profiles.FindVersion(ctx, p.FiscalCode, v)
		if errors.Is(err, profile.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read version %d: %w", v, err)
		}
		if older.IsEmailValidated && older.Email != "" {
			return older.Email, true, nil
		}
	}
	return "", false, nil
}

func (r *Reconciler) insert(ctx context.Context, fiscalCode, email string) error {
	err := r.index.Insert(ctx, fiscalCode, email)
	r.metrics.EmailIndexOp("insert", err)
	if err != nil {
		return fmt.Errorf("insert validated email: %w", err)
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, fiscalCode, email string) error {
	err := r.index.Delete(ctx, fiscalCode, email)
	r.metrics.EmailIndexOp("delete", err)
	if err != nil {
		return fmt.Errorf("delete validated email: %w", err)
	}
	return nil
}

// HandleBatch reconciles each profile in order. Failures are logged and
// the rest of the batch still runs.
func (r *Reconciler) HandleBatch(ctx context.Context, batch []profile.Profile) {
	for _, p := range batch {
		if err := r.Reconcile(ctx, p); err != nil {
			applog.LogError(ctx, "error reconciling validated email", err,
				applog.Subject(p.FiscalCode),
				zap.Int("version", p.Version))
		}
	}
}
