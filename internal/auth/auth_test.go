package auth

import (
	"testing"
	"time"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
	"github.com/stretchr/testify/require"
)

func mustRecord(t *testing.T, token string, scopes, envs string) *Record {
	t.Helper()
	salt, err := NewSalt()
	require.NoError(t, err)
	return &Record{
		ID:                  "tok-1",
		TokenHash:           HashToken(token, salt),
		TokenSalt:           salt,
		CreatedAt:           time.Now(),
		AllowedScopes:       scopes,
		AllowedEnvironments: envs,
	}
}

func TestStore_VerifyConstantTimeAndCaching(t *testing.T) {
	s := NewStore()
	rec := mustRecord(t, "good-token", "*", "*")
	s.Add(rec)

	got, ok := s.Verify("good-token")
	require.True(t, ok)
	require.Equal(t, rec.ID, got.ID)

	_, ok = s.Verify("bad-token")
	require.False(t, ok)

	// second verify should hit the cache path and still succeed
	got2, ok := s.Verify("good-token")
	require.True(t, ok)
	require.Equal(t, rec.ID, got2.ID)
}

func TestStore_RevokedAndExpiredAreInactive(t *testing.T) {
	s := NewStore()
	now := time.Now()
	expired := mustRecord(t, "expired-token", "*", "*")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	s.Add(expired)

	revoked := mustRecord(t, "revoked-token", "*", "*")
	revokedAt := now.Add(-time.Minute)
	revoked.RevokedAt = &revokedAt
	s.Add(revoked)

	_, ok := s.VerifyAt("expired-token", now)
	require.False(t, ok)
	_, ok = s.VerifyAt("revoked-token", now)
	require.False(t, ok)
}

func TestGate_WildcardAndTrailingStar(t *testing.T) {
	g := NewGate()
	rec := &Record{AllowedScopes: "Orders", AllowedEnvironments: "6*"}
	ep := &catalog.Endpoint{Kind: catalog.KindSQL, Name: "Orders"}

	require.NoError(t, g.Check(rec, "600", ep))

	err := g.Check(rec, "700", ep)
	require.Error(t, err)
	require.Equal(t, gatewayerr.KindAuthorization, err.(*gatewayerr.Error).Kind)
}

func TestGate_ScopeDenialNamesEndpoint(t *testing.T) {
	g := NewGate()
	rec := &Record{AllowedScopes: "Orders", AllowedEnvironments: "*"}
	ep := &catalog.Endpoint{Kind: catalog.KindSQL, Name: "Products"}

	err := g.Check(rec, "600", ep)
	require.Error(t, err)
	ge := err.(*gatewayerr.Error)
	require.Contains(t, ge.Detail, "Orders")
	require.Contains(t, ge.Detail, "Products")
}

func TestGate_CompositeAndWebhookScopePrefix(t *testing.T) {
	g := NewGate()
	rec := &Record{AllowedScopes: "composite/SalesOrder", AllowedEnvironments: "*"}
	comp := &catalog.Endpoint{Kind: catalog.KindComposite, Name: "SalesOrder"}
	require.NoError(t, g.Check(rec, "600", comp))

	hook := &catalog.Endpoint{Kind: catalog.KindWebhook, Name: "SalesOrder"}
	require.Error(t, g.Check(rec, "600", hook))
}

func TestGate_EndpointOwnEnvironmentAllowList(t *testing.T) {
	g := NewGate()
	rec := &Record{AllowedScopes: "*", AllowedEnvironments: "*"}
	ep := &catalog.Endpoint{Kind: catalog.KindSQL, Name: "Products", AllowedEnvironments: []string{"600"}}

	require.NoError(t, g.Check(rec, "600", ep))
	require.Error(t, g.Check(rec, "601", ep))
}
