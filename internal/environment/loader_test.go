package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestLoad_ResolvesAllowedAndSettings(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "settings.json"),
		[]byte(`{"AllowedEnvironments": ["600", "700"]}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "600"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "600", "settings.json"),
		[]byte(`{"ServerName": "sql600", "ConnectionString": "sqlserver://sql600", "Headers": {"X-Tenant": "600"}}`), 0o644))
	// 700 is allowed but has no settings.json on disk.

	reg, err := Load(root, log.NewNopLogger())
	require.NoError(t, err)

	require.True(t, reg.Allowed("600"))
	require.True(t, reg.Allowed("700"))
	require.False(t, reg.Allowed("800"))

	s, ok := reg.Lookup("600")
	require.True(t, ok)
	require.Equal(t, "sql600", s.ServerName)
	require.Equal(t, "600", s.Headers["X-Tenant"])

	_, ok = reg.Lookup("700")
	require.False(t, ok)
}

func TestLoad_MissingGlobalSettingsIsFatal(t *testing.T) {
	_, err := Load(t.TempDir(), log.NewNopLogger())
	require.Error(t, err)
}
