package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/melosso/portway/internal/netpolicy"
)

func allowAllPolicy(t *testing.T, host string) *netpolicy.Policy {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "network-access-policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"allowedHosts":["`+host+`"],"blockedIpRanges":[]}`), 0o644))
	p, err := netpolicy.Load(path)
	require.NoError(t, err)
	return p
}

func TestDo_ForwardsMethodAndStripsHopByHop(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Connection"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "keep-alive")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	host := upstream.Listener.Addr().String()
	engine := New(allowAllPolicy(t, hostOnly(host)), 0, log.NewNopLogger())

	resp, err := engine.Do(context.Background(), Request{
		Method:          http.MethodGet,
		UpstreamBaseURL: upstream.URL,
		Header:          http.Header{"Connection": []string{"keep-alive"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Connection"))
	require.Contains(t, string(resp.Body), "ok")
}

func TestDo_DeniedByNetworkPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "network-access-policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"allowedHosts":["nowhere.example"],"blockedIpRanges":[]}`), 0o644))
	policy, err := netpolicy.Load(path)
	require.NoError(t, err)

	engine := New(policy, 0, log.NewNopLogger())
	_, err = engine.Do(context.Background(), Request{Method: http.MethodGet, UpstreamBaseURL: "http://127.0.0.1:1/x"})
	require.Error(t, err)
}

func TestRewriteBody_ReplacesUpstreamPrefix(t *testing.T) {
	body := []byte(`{"next":"http://backend.internal:8080/base/Products?top=2"}`)
	out := rewriteBody(body, "http://backend.internal:8080/base", "https", "gateway.example.com", "600", "Products")
	require.Contains(t, string(out), "https://gateway.example.com/api/600/Products")
	require.NotContains(t, string(out), "backend.internal")
}

func TestIsSOAP_DetectsContentTypePathAndHeader(t *testing.T) {
	require.True(t, IsSOAP("text/xml; charset=utf-8", "/x", ""))
	require.True(t, IsSOAP("application/soap+xml", "/x", ""))
	require.True(t, IsSOAP("application/json", "/service.svc", ""))
	require.True(t, IsSOAP("application/json", "/x", `"urn:action"`))
	require.False(t, IsSOAP("application/json", "/x", ""))
}

func TestParseMaxAge(t *testing.T) {
	require.Equal(t, int64(30), int64(parseMaxAge("public, max-age=30").Seconds()))
	require.Equal(t, int64(0), int64(parseMaxAge("no-cache").Seconds()))
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
