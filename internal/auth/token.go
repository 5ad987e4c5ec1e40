// Package auth implements the token store (C2) and the scope & environment
// gate (C3).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 10000
	saltBytes        = 16 // 128 bits
	digestBytes      = 32 // 256 bits
)

// Record is a persisted token, as defined in SPEC_FULL.md §3. Tokens are
// never mutated once verified during a request; the store hands back a
// pointer into its own snapshot and callers must not write through it.
type Record struct {
	ID                  string
	Username            string
	TokenHash           []byte
	TokenSalt           []byte
	CreatedAt           time.Time
	ExpiresAt           *time.Time
	RevokedAt           *time.Time
	AllowedScopes       string // CSV of endpoint patterns
	AllowedEnvironments string // CSV of environment patterns
	Description         string
}

// IsActive reports whether the token is usable right now.
func (r *Record) IsActive(now time.Time) bool {
	if r.RevokedAt != nil {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// HashToken derives the salted digest for a presented token, using PBKDF2-
// HMAC-SHA256 with the mandated iteration count and digest length.
func HashToken(token string, salt []byte) []byte {
	return pbkdf2.Key([]byte(token), salt, pbkdf2Iterations, digestBytes, sha256.New)
}

// NewSalt generates a fresh 128-bit per-token salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltBytes)
	_, err := rand.Read(salt)
	return salt, err
}

// constantTimeEqual compares two digests without leaking timing information.
func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// splitCSV splits an AllowedScopes/AllowedEnvironments CSV field into its
// trimmed, non-empty patterns.
func splitCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
