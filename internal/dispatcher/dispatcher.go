package dispatcher

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/melosso/portway/internal/audit"
	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/melosso/portway/internal/ratelimit"
)

// healthLivePath is the one path exempt from the Authorization requirement
// (§6): "Every request MUST carry Authorization: Bearer <token> except
// /health/live."
const healthLivePath = "/health/live"

// ServeHTTP implements the full request pipeline of §5: rate limit (IP) →
// auth → rate limit (token) → path resolution → environment/method
// admission → scope gate → handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	applySecurityHeaders(w)

	if r.URL.Path == healthLivePath {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	started := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	w = sw
	if d.deps.RequestBodyLimitBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, d.deps.RequestBodyLimitBytes)
	}
	var environment string
	defer func() {
		d.deps.Audit.Record(audit.Entry{
			RequestID:   requestID,
			Method:      r.Method,
			Path:        r.URL.Path,
			Environment: environment,
			StatusCode:  sw.status,
			Duration:    time.Since(started),
			RecordedAt:  started,
		})
	}()

	now := time.Now()
	ip := clientIP(r)

	ipResult := d.deps.Limiter.CheckIP(ip, now)
	ratelimit.ApplyHeaders(w, ipResult)
	if !ipResult.Allowed {
		if ipResult.ShouldLog {
			level.Warn(d.deps.Logger).Log("msg", "ip rate limit exceeded", "ip", ip, "request_id", requestID)
		}
		writeRateLimited(w, requestID, ipResult)
		return
	}

	token, err := bearerToken(r)
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	rec, ok := d.deps.Tokens.VerifyAt(token, now)
	if !ok {
		writeError(w, requestID, gatewayerr.New(gatewayerr.KindAuth, "missing or invalid bearer token"))
		return
	}

	tokenResult := d.deps.Limiter.CheckToken(token, now)
	ratelimit.ApplyHeaders(w, tokenResult)
	if !tokenResult.Allowed {
		writeRateLimited(w, requestID, tokenResult)
		return
	}

	trimmed := strings.TrimPrefix(r.URL.Path, "/api")
	snap := d.deps.Catalog.Current()
	parsed, err := ParsePath(trimmed, snap)
	if err != nil {
		writeError(w, requestID, notFoundPath(r.Method, r.URL.Path))
		return
	}
	environment = parsed.Environment

	ep, ok := snap.Lookup(parsed.Namespace, parsed.EndpointRaw)
	if !ok {
		writeError(w, requestID, notFoundPath(r.Method, r.URL.Path))
		return
	}

	if !d.deps.Environments.Allowed(parsed.Environment) || !ep.AllowsEnvironment(parsed.Environment) {
		writeError(w, requestID, gatewayerr.WithDetail(gatewayerr.KindAuthorization,
			"environment not permitted", parsed.Environment))
		return
	}

	if !ep.AllowsMethod(r.Method) {
		writeError(w, requestID, gatewayerr.WithDetail(gatewayerr.KindMethodDenied,
			"method not allowed for this endpoint", r.Method))
		return
	}

	if err := d.deps.Gate.Check(rec, parsed.Environment, ep); err != nil {
		writeError(w, requestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.deps.CommandTimeout)
	defer cancel()

	req := &requestContext{
		ctx:       ctx,
		w:         w,
		r:         r,
		parsed:    parsed,
		endpoint:  ep,
		principal: rec.Username,
		requestID: requestID,
	}

	if err := d.route(req); err != nil {
		writeError(w, requestID, err)
	}
}

// requestContext bundles everything a kind-specific handler needs, so each
// handler_*.go file takes one argument instead of a long parameter list.
type requestContext struct {
	ctx       context.Context
	w         http.ResponseWriter
	r         *http.Request
	parsed    *ParsedPath
	endpoint  *catalog.Endpoint
	principal string
	requestID string
}

func (d *Dispatcher) route(req *requestContext) error {
	switch req.endpoint.Kind {
	case catalog.KindSQL:
		return d.handleSQL(req)
	case catalog.KindProxy:
		return d.handleProxy(req)
	case catalog.KindComposite:
		return d.handleComposite(req)
	case catalog.KindWebhook:
		return d.handleWebhook(req)
	case catalog.KindStatic, catalog.KindFiles:
		return d.handleBlob(req)
	default:
		return gatewayerr.New(gatewayerr.KindInternal, "endpoint has an unrecognised kind")
	}
}

func writeRateLimited(w http.ResponseWriter, requestID string, res ratelimit.Result) {
	w.Header().Set("X-Request-ID", requestID)
	retryAt := time.Now().Add(res.RetryAfter).UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
		"error":     "rate limit exceeded",
		"retrytime": retryAt,
		"success":   false,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter records the status code written, for the audit entry's
// benefit — handlers never need to know it exists.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", gatewayerr.New(gatewayerr.KindAuth, "missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", gatewayerr.New(gatewayerr.KindAuth, "Authorization header must be a bearer token")
	}
	return strings.TrimPrefix(auth, prefix), nil
}
