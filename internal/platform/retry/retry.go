// Package retry runs operations under a bounded exponential-backoff policy.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/janisto/citizen-profiles/internal/platform/logging"
)

// Policy configures retry behavior. Delay before attempt n+1 is
// InitialDelay * Multiplier^(n-1), capped at MaxDelay when MaxDelay > 0.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Once is a policy that never retries.
var Once = Policy{MaxAttempts: 1}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Attempts returns the attempt bound, at least 1.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Result describes a finished retry loop.
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Func is retried until it returns nil, the policy is exhausted or ctx ends.
type Func func(ctx context.Context, attempt int) error

// permanentError stops the loop immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn under policy p.
func Do(ctx context.Context, p Policy, fn Func) Result {
	start := time.Now()
	limit := p.Attempts()
	var res Result

	for attempt := 1; attempt <= limit; attempt++ {
		res.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			res.Success = true
			res.LastError = nil
			break
		}
		res.LastError = err

		var perm *permanentError
		if errors.As(err, &perm) {
			res.LastError = perm.err
			break
		}
		if attempt == limit {
			logging.LogWarn(ctx, "retry budget exhausted",
				zap.Int("attempts", attempt), zap.Error(err))
			break
		}

		delay := p.Delay(attempt)
		logging.LoggerFromContext(ctx).Debug("operation failed, backing off",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", limit),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := Sleep(ctx, delay); err != nil {
			res.LastError = err
			break
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
