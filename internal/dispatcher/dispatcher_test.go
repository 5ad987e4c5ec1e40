package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/melosso/portway/internal/auth"
	"github.com/melosso/portway/internal/blobstore"
	"github.com/melosso/portway/internal/cache"
	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/composite"
	"github.com/melosso/portway/internal/environment"
	"github.com/melosso/portway/internal/netpolicy"
	"github.com/melosso/portway/internal/proxy"
	"github.com/melosso/portway/internal/ratelimit"
	"github.com/melosso/portway/internal/sqlexec"
	"github.com/melosso/portway/internal/webhook"
)

func writeEntity(t *testing.T, root, kind, ns, name, body string) {
	t.Helper()
	dir := filepath.Join(root, kind)
	if ns != "" {
		dir = filepath.Join(dir, ns)
	}
	dir = filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entity.json"), []byte(body), 0o644))
}

type testHarness struct {
	d    *Dispatcher
	mock sqlmock.Sqlmock
}

// newHarness builds a fully-wired Dispatcher against an sqlmock-backed SQL
// environment, mirroring newTestExecutor in internal/sqlexec/exec_test.go.
func newHarness(t *testing.T, entities func(root string)) *testHarness {
	t.Helper()

	endpointsRoot := t.TempDir()
	entities(endpointsRoot)

	logger := log.NewNopLogger()
	snap, err := catalog.Load(endpointsRoot, logger)
	require.NoError(t, err)
	holder := catalog.NewHolder()
	holder.Publish(snap)

	envRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(envRoot, "settings.json"), []byte(`{"AllowedEnvironments":["600"]}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(envRoot, "600"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(envRoot, "600", "settings.json"),
		[]byte(`{"ServerName":"sql600","ConnectionString":"sqlmock-dispatcher"}`), 0o644))
	envs, err := environment.Load(envRoot, logger)
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pool := sqlexec.NewPool(1, 5)
	pool.Inject("sqlmock-dispatcher", db)
	sqlExecutor := sqlexec.New(pool, envs)

	policyPath := filepath.Join(t.TempDir(), "network-access-policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{"allowedHosts":["*"],"blockedIpRanges":[]}`), 0o644))
	policy, err := netpolicy.Load(policyPath)
	require.NoError(t, err)

	proxyEngine := proxy.New(policy, 2*time.Second, logger)

	memProvider := cache.NewMemoryProvider()

	filesRoot := t.TempDir()
	blobs, err := blobstore.New(filesRoot)
	require.NoError(t, err)

	deps := Deps{
		Catalog:           holder,
		Tokens:            auth.NewStore(),
		Gate:              auth.NewGate(),
		Limiter:           ratelimit.New(ratelimit.Config{Capacity: 1000, Window: time.Minute}, ratelimit.Config{Capacity: 1000, Window: time.Minute}),
		Environments:      envs,
		SQLPool:           pool,
		SQL:               sqlExecutor,
		Proxy:             proxyEngine,
		NetPolicy:         policy,
		Cache:             memProvider,
		SingleFlight:      cache.NewSingleFlight(memProvider),
		Webhooks:          webhook.New(pool, envs),
		Blobs:             blobs,
		Logger:            logger,
		ODataMaxTop:       1000,
		DefaultCacheTTL:   time.Minute,
		SingleFlightWait:  time.Second,
		SingleFlightLease: 5 * time.Second,
		CommandTimeout:    5 * time.Second,
	}

	return &testHarness{d: New(deps), mock: mock}
}

func addToken(t *testing.T, h *testHarness, token, scopes, envs string) {
	t.Helper()
	salt, err := auth.NewSalt()
	require.NoError(t, err)
	h.d.deps.Tokens.Add(&auth.Record{
		ID:                  "tok-" + token,
		Username:            "alice",
		TokenHash:           auth.HashToken(token, salt),
		TokenSalt:           salt,
		CreatedAt:           time.Now(),
		AllowedScopes:       scopes,
		AllowedEnvironments: envs,
	})
}

func productsEntity() string {
	return `{
		"ObjectName": "Products",
		"AllowedColumns": ["Code", "Name"],
		"AliasToDatabase": {"Code": "ItemCode", "Name": "Description"},
		"AllowedMethods": ["GET"]
	}`
}

func TestServeHTTP_HealthLiveBypassesAuth(t *testing.T) {
	h := newHarness(t, func(root string) {})
	r := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServeHTTP_MissingAuthorizationIs401(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	r := httptest.NewRequest(http.MethodGet, "/api/600/Products", nil)
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServeHTTP_ScopeDenialIs403(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "Orders", "*")

	r := httptest.NewRequest(http.MethodGet, "/api/600/Products", nil)
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeHTTP_UnknownPathIs404(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "*", "*")

	r := httptest.NewRequest(http.MethodGet, "/api/600/DoesNotExist", nil)
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTP_SQLCollectionHappyPath(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "*", "*")

	rows := sqlmock.NewRows([]string{"ItemCode", "Description"}).AddRow("A", "Widget")
	h.mock.ExpectQuery(`SELECT TOP`).WillReturnRows(rows)

	r := httptest.NewRequest(http.MethodGet, "/api/600/Products", nil)
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var body collectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestServeHTTP_SQLMethodNotAllowedByEndpoint(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "*", "*")

	r := httptest.NewRequest(http.MethodPost, "/api/600/Products", nil)
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServeHTTP_EnvironmentNotPermittedIs403(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "*", "700")

	r := httptest.NewRequest(http.MethodGet, "/api/600/Products", nil)
	r.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeHTTP_RateLimitHeadersAlwaysSet(t *testing.T) {
	h := newHarness(t, func(root string) {})
	r := httptest.NewRequest(http.MethodGet, "/api/600/Nope", nil)
	w := httptest.NewRecorder()
	h.d.ServeHTTP(w, r)
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestInvoke_ChecksGateForComposedPrincipal(t *testing.T) {
	h := newHarness(t, func(root string) { writeEntity(t, root, "SQL", "", "Products", productsEntity()) })
	addToken(t, h, "tok-1", "Orders", "*") // no access to Products

	_, err := h.d.Invoke(context.Background(), composite.Call{
		Endpoint: "Products", Method: "GET", Environment: "600", Principal: "alice", Body: map[string]interface{}{},
	})
	require.Error(t, err)
}
