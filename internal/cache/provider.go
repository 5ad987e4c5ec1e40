package cache

import (
	"context"
	"time"
)

// Provider stores and retrieves cached responses.
type Provider interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry) error
}

// Locker implements the single-flight lock primitive (§4.7 / P3): a caller
// holding the lock for key is the only one that may release or extend it,
// proven by token ownership rather than by connection identity.
type Locker interface {
	// TryAcquire sets key to token with lease if and only if key is
	// currently unset (or its previous lease has expired). Returns true on
	// success.
	TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	// Release clears key if and only if its current value equals token.
	Release(ctx context.Context, key, token string) error
	// Extend resets key's lease if and only if its current value equals
	// token.
	Extend(ctx context.Context, key, token string, lease time.Duration) error
}
