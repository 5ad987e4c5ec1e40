package ratelimit

import (
	"sync"
	"time"
)

// Resource names which family produced a Result, for the
// X-RateLimit-Resource header.
type Resource string

const (
	ResourceIP    Resource = "ip"
	ResourceToken Resource = "token"
)

// Config describes one family's capacity/window, per §4.4 ("refill rate is
// capacity / windowSeconds tokens per second").
type Config struct {
	Capacity int
	Window   time.Duration
}

// Family is one token-bucket family (all per-IP buckets, or all per-token
// buckets), each keyed by the client IP or bearer token respectively.
type Family struct {
	resource Resource
	cfg      Config

	mu      sync.Mutex
	buckets map[string]*bucket

	blocks *blockTable
}

// NewFamily constructs a Family. Buckets are created lazily on first use and
// live for the process (§3).
func NewFamily(resource Resource, cfg Config) *Family {
	return &Family{
		resource: resource,
		cfg:      cfg,
		buckets:  make(map[string]*bucket),
		blocks:   newBlockTable(),
	}
}

func (f *Family) refillRate() float64 {
	if f.cfg.Window <= 0 {
		return float64(f.cfg.Capacity)
	}
	return float64(f.cfg.Capacity) / f.cfg.Window.Seconds()
}

func (f *Family) bucketFor(key string, now time.Time) *bucket {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[key]
	if !ok {
		b = newBucket(float64(f.cfg.Capacity), f.refillRate(), now)
		f.buckets[key] = b
	}
	return b
}

// Result is returned by Check and carries everything needed to render the
// rate-limit headers of §4.4.
type Result struct {
	Allowed    bool
	Resource   Resource
	Limit      int
	Remaining  int
	ResetAfter time.Duration // seconds-until-full, as a duration
	Used       int
	RetryAfter time.Duration // only meaningful when !Allowed
	ShouldLog  bool          // for IP family: whether this denial should be logged
}

// Check runs one bucket operation for key, applying block-record semantics:
// while key is blocked, every check denies outright regardless of refill
// (P2); otherwise the usual token-bucket algorithm runs (P1) and a fresh
// denial installs/escalates a block.
func (f *Family) Check(key string, now time.Time) Result {
	b := f.bucketFor(key, now)

	if f.blocks.isBlocked(key, now) {
		// still blocked: deny. If the bucket would refuse again, escalate per
		// §4.4; either way no token is consumed from the bucket.
		b.mu.Lock()
		wouldRefuse := b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate < 1
		b.mu.Unlock()
		blockedUntil := now
		if wouldRefuse {
			blockedUntil = f.blocks.recordDeny(key, f.cfg.Window, now)
		} else {
			f.blocks.mu.Lock()
			if rec, ok := f.blocks.records[key]; ok {
				blockedUntil = rec.blockedUntil
			}
			f.blocks.mu.Unlock()
		}
		return Result{
			Allowed:    false,
			Resource:   f.resource,
			Limit:      f.cfg.Capacity,
			Remaining:  0,
			RetryAfter: blockedUntil.Sub(now),
			ShouldLog:  f.resource != ResourceIP || f.blocks.shouldLogBlock(key, now),
		}
	}

	allowed, remaining, capacity := b.take(now)
	if allowed {
		return Result{
			Allowed:    true,
			Resource:   f.resource,
			Limit:      int(capacity),
			Remaining:  int(remaining),
			ResetAfter: secondsToFullDuration(b, now),
			Used:       int(capacity) - int(remaining),
		}
	}

	blockedUntil := f.blocks.recordDeny(key, f.cfg.Window, now)
	return Result{
		Allowed:    false,
		Resource:   f.resource,
		Limit:      int(capacity),
		Remaining:  int(remaining),
		RetryAfter: blockedUntil.Sub(now),
		ShouldLog:  f.resource != ResourceIP || f.blocks.shouldLogBlock(key, now),
	}
}

func secondsToFullDuration(b *bucket, now time.Time) time.Duration {
	return time.Duration(b.secondsToFull(now) * float64(time.Second))
}
