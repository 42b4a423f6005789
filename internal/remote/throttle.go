package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"github.com/SrirammananS/finday/internal/domain"
)

const (
	// minRequestInterval is the enforced spacing between consecutive remote
	// calls from one session.
	minRequestInterval = 100 * time.Millisecond

	// maxAttempts bounds the retry loop for rate-limited responses.
	maxAttempts = 3

	// transientRetryDelay is the linear backoff step for network failures.
	transientRetryDelay = 250 * time.Millisecond
)

// Throttle is the single gate every outbound remote call passes through.
// It serializes calls in submission order, enforces a minimum inter-request
// interval and absorbs retryable failures up to the attempt limit.
//
// Rate-limit responses back off exponentially; transient network failures
// back off linearly. Credential failures are never retried here; they
// propagate immediately so the adapter can refresh and re-enter the gate.
type Throttle struct {
	log zerolog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewThrottle builds the shared call gate.
func NewThrottle(log zerolog.Logger) *Throttle {
	return &Throttle{log: log}
}

// Do runs fn under the gate. op names the operation for diagnostics on
// terminal failure.
func (t *Throttle) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	backoff := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        8 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := t.pace(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		t.lastCall = time.Now()
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrRateLimited):
			pause := backoff.Pause()
			t.log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", pause).
				Msg("Remote call rate limited, backing off")
			if err := gax.Sleep(ctx, pause); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrNetworkTransient):
			pause := time.Duration(attempt) * transientRetryDelay
			t.log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", pause).
				Msg("Remote call failed transiently, retrying")
			if err := gax.Sleep(ctx, pause); err != nil {
				return err
			}
		default:
			// Auth, validation and permanent failures propagate immediately.
			return err
		}
	}

	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, maxAttempts, lastErr)
}

// pace waits out the remainder of the minimum inter-request interval.
func (t *Throttle) pace(ctx context.Context) error {
	if t.lastCall.IsZero() {
		return nil
	}
	if wait := minRequestInterval - time.Since(t.lastCall); wait > 0 {
		return gax.Sleep(ctx, wait)
	}
	return nil
}
