package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// retryInterval is the polling interval for a blocked single-flight
// acquisition attempt (§4.7: "retry every 200 ms").
const retryInterval = 200 * time.Millisecond

// SingleFlight coalesces concurrent cache-fill attempts for the same key
// behind one upstream call (P3).
type SingleFlight struct {
	locker Locker
}

// NewSingleFlight wraps locker with the coalescing protocol.
func NewSingleFlight(locker Locker) *SingleFlight {
	return &SingleFlight{locker: locker}
}

// Lease is a held single-flight lock; Release and Extend operate on it.
type Lease struct {
	key   string
	token string
}

// Acquire blocks up to waitTimeout trying to take the lock on key, retrying
// every 200ms. It returns (lease, true, nil) on success, and
// (nil, false, nil) — not an error — if waitTimeout elapses first, so the
// caller can fall through to an uncached execution per §4.7.
func (sf *SingleFlight) Acquire(ctx context.Context, key string, waitTimeout, lease time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(waitTimeout)

	for {
		ok, err := sf.locker.TryAcquire(ctx, LockKey(key), token, lease)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return &Lease{key: key, token: token}, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release frees l. Safe to call even if l's lease already expired.
func (sf *SingleFlight) Release(ctx context.Context, l *Lease) error {
	return sf.locker.Release(ctx, LockKey(l.key), l.token)
}

// Extend resets l's lease to lease from now, e.g. while a slow upstream call
// is still in flight.
func (sf *SingleFlight) Extend(ctx context.Context, l *Lease, lease time.Duration) error {
	return sf.locker.Extend(ctx, LockKey(l.key), l.token, lease)
}
