// Package proxy implements the reverse-proxy engine (C7): request
// construction against an endpoint's upstreamUrl, hop-by-hop header
// stripping, SOAP passthrough, URL rewriting, and a network-policy check
// before every dial.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/melosso/portway/internal/netpolicy"
)

// hopByHopHeaders are stripped from both the forwarded request and the
// response mirrored back to the caller (§4.7).
var hopByHopHeaders = []string{"Host", "Connection", "Content-Length", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Proxy-Authenticate", "Proxy-Authorization", "TE", "Trailer"}

// cacheableContentTypes is the set of response content types the cache
// layer is allowed to store (§4.7 "cacheable response").
var cacheableContentTypes = []string{"application/json", "text/json", "text/plain", "text/xml", "application/xml"}

// Request describes one proxy call, already resolved by the dispatcher.
type Request struct {
	Method          string
	UpstreamBaseURL string // endpoint's configured upstreamUrl
	PathRemainder   string // portion of the incoming path after the endpoint name
	RawQuery        string
	Header          http.Header
	Body            io.Reader

	EnvironmentHeaders map[string]string // merged in from EnvironmentSettings.Headers

	RequestScheme string // for URL rewriting of the response body
	RequestHost   string
	Environment   string
	EndpointName  string
}

// Response is the shape the cache layer and the HTTP surface both consume.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	CacheControlMaxAge time.Duration // 0 if absent
}

// Engine executes proxy calls.
type Engine struct {
	client *http.Client
	policy *netpolicy.Policy
	logger log.Logger
}

// New constructs an Engine. dialTimeout bounds the upstream connect+request.
func New(policy *netpolicy.Policy, dialTimeout time.Duration, logger log.Logger) *Engine {
	return &Engine{
		client: &http.Client{Timeout: dialTimeout},
		policy: policy,
		logger: logger,
	}
}

// IsSOAP reports whether req should bypass cache and URL rewriting per the
// SOAP-detection rule in §4.7.
func IsSOAP(contentType, upstreamPath, soapAction string) bool {
	if soapAction != "" {
		return true
	}
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/xml") || strings.Contains(ct, "application/soap+xml") {
		return true
	}
	return strings.HasSuffix(upstreamPath, ".svc")
}

// Do builds the upstream request, runs the network-policy check, and
// executes it. GET requests retry once on a connection reset.
func (e *Engine) Do(ctx context.Context, req Request) (*Response, error) {
	upstreamURL, err := buildUpstreamURL(req.UpstreamBaseURL, req.PathRemainder, req.RawQuery)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "invalid upstream URL", err)
	}

	if err := e.policy.Allow(ctx, upstreamURL.Hostname()); err != nil {
		level.Warn(e.logger).Log("msg", "proxy dial denied by network access policy", "host", upstreamURL.Hostname(), "err", err)
		return nil, gatewayerr.New(gatewayerr.KindAuthorization, "upstream host is not permitted by network policy")
	}

	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindValidation, "failed to read request body", err)
		}
	}

	var resp *Response
	doOnce := func() error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		r, err := e.doOnce(ctx, req, upstreamURL, bodyReader)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	if req.Method == http.MethodGet {
		err = retry.Do(doOnce,
			retry.Context(ctx),
			retry.Attempts(2),
			retry.RetryIf(isConnectionReset),
			retry.Delay(0),
		)
	} else {
		err = doOnce()
	}
	if err != nil {
		level.Error(e.logger).Log("msg", "upstream request failed", "url", upstreamURL.String(), "err", err)
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamFailure, "upstream request failed", err)
	}

	if req.Method != http.MethodGet || !shouldRewrite(resp.Header) ||
		IsSOAP(req.Header.Get("Content-Type"), upstreamURL.Path, req.Header.Get("SOAPAction")) {
		return resp, nil
	}

	rewritten := rewriteBody(resp.Body, req.UpstreamBaseURL, req.RequestScheme, req.RequestHost, req.Environment, req.EndpointName)
	resp.Body = rewritten
	return resp, nil
}

func (e *Engine) doOnce(ctx context.Context, req Request, upstreamURL *url.URL, body io.Reader) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, upstreamURL.String(), body)
	if err != nil {
		return nil, err
	}

	for k, vv := range req.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	for k, v := range req.EnvironmentHeaders {
		httpReq.Header.Set(k, v)
	}

	rawResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer rawResp.Body.Close()

	bodyBytes, err := io.ReadAll(rawResp.Body)
	if err != nil {
		return nil, err
	}

	header := rawResp.Header.Clone()
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}

	return &Response{
		StatusCode:         rawResp.StatusCode,
		Header:             header,
		Body:               bodyBytes,
		CacheControlMaxAge: parseMaxAge(header.Get("Cache-Control")),
	}, nil
}

func buildUpstreamURL(base, remainder, rawQuery string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(remainder, "/"))
	if err != nil {
		return nil, err
	}
	u.RawQuery = rawQuery
	return u, nil
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

func isConnectionReset(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection reset")
}

func shouldRewrite(header http.Header) bool {
	ct := strings.ToLower(header.Get("Content-Type"))
	for _, c := range cacheableContentTypes {
		if strings.Contains(ct, c) {
			return true
		}
	}
	return false
}

// rewriteBody performs the byte-level substring replacement documented in
// §4.7: every occurrence of upstreamScheme://upstreamHost[:port]<base> is
// replaced with requestScheme://requestHost/api/<env>/<endpoint>. This is
// intentionally not an HTML/JSON-aware rewrite.
func rewriteBody(body []byte, upstreamBase, requestScheme, requestHost, env, endpoint string) []byte {
	u, err := url.Parse(upstreamBase)
	if err != nil {
		return body
	}
	oldPrefix := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, strings.TrimRight(u.Path, "/"))
	newPrefix := fmt.Sprintf("%s://%s/api/%s/%s", requestScheme, requestHost, env, endpoint)
	return bytes.ReplaceAll(body, []byte(oldPrefix), []byte(newPrefix))
}

func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if strings.HasPrefix(strings.ToLower(directive), "max-age=") {
			var seconds int
			if _, err := fmt.Sscanf(directive, "max-age=%d", &seconds); err == nil {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return 0
}
