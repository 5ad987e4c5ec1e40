package dispatcher

import (
	"net/http"
	"strings"
	"time"

	"github.com/melosso/portway/internal/cache"
	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/proxy"
)

// cacheableStatus reports whether status is "successful" per §4.7
// ("status 2xx").
func cacheableStatus(status int) bool { return status >= 200 && status < 300 }

func (d *Dispatcher) handleProxy(req *requestContext) error {
	spec := req.endpoint.Proxy
	env, _ := d.deps.Environments.Lookup(req.parsed.Environment)

	endpointPath := req.parsed.EndpointRaw
	if req.parsed.Namespace != "" {
		endpointPath = req.parsed.Namespace + "/" + endpointPath
	}

	upstreamPath := spec.UpstreamURL + "/" + req.parsed.Remainder
	soap := proxy.IsSOAP(req.r.Header.Get("Content-Type"), upstreamPath, req.r.Header.Get("SOAPAction"))

	preq := proxy.Request{
		Method:          req.r.Method,
		UpstreamBaseURL: spec.UpstreamURL,
		PathRemainder:   req.parsed.Remainder,
		RawQuery:        req.r.URL.RawQuery,
		Header:          req.r.Header,
		Body:            req.r.Body,
		RequestScheme:   requestScheme(req.r),
		RequestHost:     req.r.Host,
		Environment:     req.parsed.Environment,
		EndpointName:    endpointPath,
	}
	if env != nil {
		preq.EnvironmentHeaders = env.Headers
	}

	if req.r.Method != http.MethodGet || soap {
		resp, err := d.deps.Proxy.Do(req.ctx, preq)
		if err != nil {
			return err
		}
		writeProxyResponse(req.w, resp, false)
		return nil
	}

	return d.handleProxyCachedGet(req, spec, preq)
}

func (d *Dispatcher) handleProxyCachedGet(req *requestContext, spec *catalog.ProxySpec, preq proxy.Request) error {
	key := cache.Key(req.parsed.Environment, preq.EndpointName, req.r.URL.Path, req.r.URL.RawQuery,
		req.r.Header.Get("Authorization"), req.r.Header.Get("Accept-Language"))

	now := time.Now()
	if entry, ok, err := d.deps.Cache.Get(req.ctx, key); err == nil && ok && entry.Fresh(now) {
		writeCacheEntry(req.w, entry, true)
		return nil
	}

	lease, acquired, err := d.deps.SingleFlight.Acquire(req.ctx, key, d.deps.SingleFlightWait, d.deps.SingleFlightLease)
	if err != nil {
		return d.fetchAndRespond(req, preq, key, 0, false)
	}
	if !acquired {
		// Lock timed out: fall through and execute without caching, per
		// §4.7 ("no thundering herd amplification: upstream still sees at
		// most two or three callers").
		return d.fetchAndRespond(req, preq, key, 0, false)
	}
	defer d.deps.SingleFlight.Release(req.ctx, lease)

	// Re-check the cache now that the lock is held: another caller may have
	// filled it while we were waiting.
	if entry, ok, err := d.deps.Cache.Get(req.ctx, key); err == nil && ok && entry.Fresh(time.Now()) {
		writeCacheEntry(req.w, entry, true)
		return nil
	}

	return d.fetchAndRespond(req, preq, key, 0, true)
}

func (d *Dispatcher) fetchAndRespond(req *requestContext, preq proxy.Request, key string, _ time.Duration, mayCache bool) error {
	resp, err := d.deps.Proxy.Do(req.ctx, preq)
	if err != nil {
		return err
	}

	if mayCache && cacheableStatus(resp.StatusCode) && cacheableContentType(resp.Header.Get("Content-Type")) {
		ttl := d.deps.DefaultCacheTTL
		if resp.CacheControlMaxAge > 0 {
			ttl = resp.CacheControlMaxAge
		}
		entry := &cache.Entry{
			StatusCode: resp.StatusCode,
			Header:     map[string][]string(resp.Header),
			Body:       resp.Body,
			StoredAt:   time.Now(),
			TTL:        ttl,
		}
		// A late write must not clobber a fresher entry (§5): re-check
		// storedAt before writing when one already exists.
		if existing, ok, _ := d.deps.Cache.Get(req.ctx, key); !ok || existing.StoredAt.Before(entry.StoredAt) {
			_ = d.deps.Cache.Set(req.ctx, key, entry)
		}
	}

	writeProxyResponse(req.w, resp, false)
	return nil
}

func cacheableContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, c := range []string{"application/json", "text/json", "text/plain", "text/xml", "application/xml"} {
		if strings.Contains(ct, c) {
			return true
		}
	}
	return false
}

func writeProxyResponse(w http.ResponseWriter, resp *proxy.Response, cacheHit bool) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeCacheEntry(w http.ResponseWriter, e *cache.Entry, hit bool) {
	for k, vv := range e.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
