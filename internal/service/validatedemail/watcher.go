package validatedemail

import (
	"context"
	"errors"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/service/profile"
)

// Watcher feeds newly written profile versions to a Reconciler.
type Watcher struct {
	feed       profile.Feed
	reconciler *Reconciler
}

// NewWatcher creates a watcher.
func NewWatcher(feed profile.Feed, reconciler *Reconciler) *Watcher {
	return &Watcher{feed: feed, reconciler: reconciler}
}

// Run subscribes until ctx is done. Cancellation is not an error.
func (w *Watcher) Run(ctx context.Context) error {
	applog.LogInfo(ctx, "validated email watcher started")
	err := w.feed.Subscribe(ctx, w.reconciler.HandleBatch)
	if errors.Is(err, context.Canceled) || (err != nil && ctx.Err() != nil) {
		return nil
	}
	return err
}
