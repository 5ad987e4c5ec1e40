package ratelimit

import (
	"fmt"
	"net/http"
	"time"
)

// Limiter wires the IP and token families together, in the order mandated
// by §4.4: "IP bucket is consulted before token bucket; auth occurs between
// them". Callers invoke CheckIP first, then (after auth) CheckToken.
type Limiter struct {
	ip    *Family
	token *Family
}

// New constructs a Limiter from the two families' configs.
func New(ipCfg, tokenCfg Config) *Limiter {
	return &Limiter{
		ip:    NewFamily(ResourceIP, ipCfg),
		token: NewFamily(ResourceToken, tokenCfg),
	}
}

// CheckIP runs the per-IP bucket check.
func (l *Limiter) CheckIP(ip string, now time.Time) Result { return l.ip.Check(ip, now) }

// CheckToken runs the per-token bucket check. Rate-limit refusal at this
// stage must not reveal whether the token itself was valid — callers must
// apply this check independent of verify() success/failure wording.
func (l *Limiter) CheckToken(token string, now time.Time) Result { return l.token.Check(token, now) }

// ApplyHeaders writes the rate-limit headers of §4.4 onto w, for both
// allowed and denied outcomes.
func ApplyHeaders(w http.ResponseWriter, r Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", r.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", r.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(r.ResetAfter).Unix()))
	h.Set("X-RateLimit-Resource", string(r.Resource))
	h.Set("X-RateLimit-Used", fmt.Sprintf("%d", r.Used))
	if !r.Allowed {
		h.Set("Retry-After", fmt.Sprintf("%d", int(r.RetryAfter.Seconds())))
	}
}
