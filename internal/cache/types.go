// Package cache implements the response cache (C8): key construction,
// TTL-based freshness, and a single-flight fill lock shared by the memory
// and Redis providers.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Entry is one cached response, as stored by the provider.
type Entry struct {
	StatusCode int
	Header     map[string][]string
	Body       []byte
	StoredAt   time.Time
	TTL        time.Duration
}

// Fresh reports whether the entry is still within its TTL at now
// (§4.7 "now - storedAt ≤ ttl").
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) <= e.TTL
}

// Key builds the cache key documented in §4.7:
// "proxy:" + env + ":" + endpoint + ":" + path + ":" + query
//   [":auth:" + H(authHeader)] [":lang:" + acceptLanguage]
// The auth header is hashed, never stored, so cache bleed across principals
// is prevented without persisting the token.
func Key(env, endpoint, path, query, authHeader, acceptLanguage string) string {
	k := fmt.Sprintf("proxy:%s:%s:%s:%s", env, endpoint, path, query)
	if authHeader != "" {
		k += ":auth:" + hashHeader(authHeader)
	}
	if acceptLanguage != "" {
		k += ":lang:" + acceptLanguage
	}
	return k
}

func hashHeader(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// LockKey returns the single-flight lock key for a cache key.
func LockKey(cacheKey string) string { return "lock:" + cacheKey }
