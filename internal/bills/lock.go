package bills

import (
	"context"
	"fmt"
	"time"
)

const (
	lockKey = "bill_generation_lock"

	// LockExpiry is how long a held token stays valid. A session that dies
	// mid-generation blocks others for at most this long.
	LockExpiry = 30 * time.Second
)

// ConfigStore is the key-value surface the lock rides on, implemented by
// the remote adapter's Config table.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// AcquireLock takes the cross-session advisory generation lock: a shared
// timestamp token with a fixed expiry. It returns false when another
// session holds a fresh token.
//
// This is check-then-set over a store with no compare-and-swap, so two
// sessions reading in the same instant can both acquire it. Generation is
// idempotent by (billID, cycleKey), which keeps that race harmless.
func AcquireLock(ctx context.Context, store ConfigStore, now time.Time) (release func(context.Context) error, ok bool, err error) {
	raw, found, err := store.GetConfig(ctx, lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("AcquireLock: read token: %w", err)
	}

	if found && raw != "" {
		if held, perr := time.Parse(time.RFC3339, raw); perr == nil && now.Sub(held) < LockExpiry {
			return nil, false, nil
		}
	}

	if err := store.SetConfig(ctx, lockKey, now.UTC().Format(time.RFC3339)); err != nil {
		return nil, false, fmt.Errorf("AcquireLock: write token: %w", err)
	}

	release = func(ctx context.Context) error {
		return store.SetConfig(ctx, lockKey, "")
	}
	return release, true, nil
}
