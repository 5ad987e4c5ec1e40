package netpolicy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, allowedHosts, blockedRanges []string) *Policy {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "network-access-policy.json")
	body := `{"allowedHosts":[`
	for i, h := range allowedHosts {
		if i > 0 {
			body += ","
		}
		body += `"` + h + `"`
	}
	body += `],"blockedIpRanges":[`
	for i, c := range blockedRanges {
		if i > 0 {
			body += ","
		}
		body += `"` + c + `"`
	}
	body += `]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	return p
}

func TestAllow_HostNotInAllowListDenied(t *testing.T) {
	p := writePolicy(t, []string{"api.example.com"}, nil)
	err := p.Allow(context.Background(), "other.example.com")
	require.Error(t, err)
}

func TestHostAllowed_ExactMatch(t *testing.T) {
	p := writePolicy(t, []string{"api.example.com"}, nil)
	require.True(t, p.hostAllowed("api.example.com"))
	require.False(t, p.hostAllowed("evil.example.com"))
}

func TestHostAllowed_DNSSuffixWildcard(t *testing.T) {
	p := writePolicy(t, []string{"*.internal.example.com"}, nil)
	require.True(t, p.hostAllowed("svc.internal.example.com"))
	require.True(t, p.hostAllowed("a.b.internal.example.com"))
	require.False(t, p.hostAllowed("internal.example.com"))
	require.False(t, p.hostAllowed("notinternal.example.com"))
}

func TestAllow_LoopbackResolvesButBlockedByCIDR(t *testing.T) {
	p := writePolicy(t, []string{"localhost"}, []string{"127.0.0.0/8", "::1/128"})
	err := p.Allow(context.Background(), "localhost")
	require.Error(t, err)
}

func TestAllow_LoopbackAllowedWhenNotBlocked(t *testing.T) {
	p := writePolicy(t, []string{"localhost"}, []string{"10.0.0.0/8"})
	err := p.Allow(context.Background(), "localhost")
	require.NoError(t, err)
}

func TestLoad_InvalidCIDRRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "network-access-policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"allowedHosts":[],"blockedIpRanges":["not-a-cidr"]}`), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
