package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capgate.org/internal/auth"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{"SECRET": "s"}))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
	assert.False(t, cfg.SingleUseTokens)
	assert.Equal(t, auth.DefaultIssuer, cfg.Issuer)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.OAuth.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"SECRET":            "s",
		"TOKEN_LIFETIME":    "90",
		"SINGLE_USE_TOKENS": "true",
		"BCRYPT_COST":       "4",
	}))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.True(t, cfg.SingleUseTokens)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Len(t, cfg.TokenOptions(), 3)

	cfg, err = LoadFrom(envMap(map[string]string{"SECRET": "s", "TOKEN_LIFETIME": "1h"}))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	_, err := LoadFrom(envMap(map[string]string{}))
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration": {"SECRET": "s", "TOKEN_LIFETIME": "soon"},
		"zero ttl":     {"SECRET": "s", "TOKEN_LIFETIME": "0"},
		"bad bool":     {"SECRET": "s", "SINGLE_USE_TOKENS": "maybe"},
		"cost":         {"SECRET": "s", "BCRYPT_COST": "99"},
		"partial oidc": {"SECRET": "s", "OAUTH_CLIENT_ID": "abc"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(envMap(env))
			assert.ErrorIs(t, err, auth.ErrConfiguration)
		})
	}
}

func TestParseRoles(t *testing.T) {
	roles, err := ParseRoles([]byte("roles:\n  admin: [create, read, update, delete]\n  auditor: [read, read]\n"))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultRoles()[auth.RoleAdmin], roles[auth.RoleAdmin])
	assert.Equal(t, []auth.Capability{auth.CapabilityRead}, roles["auditor"])

	_, err = ParseRoles([]byte("roles:\n  editor: [create, publish]\n"))
	assert.ErrorIs(t, err, auth.ErrConfiguration)
	_, err = ParseRoles([]byte("roles: {}"))
	assert.ErrorIs(t, err, auth.ErrConfiguration)
	_, err = ParseRoles([]byte("roles: ["))
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestLoadRolesFile(t *testing.T) {
	roles, err := LoadRoles("")
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  user: [read]\n"), 0o600))
	roles, err = LoadRoles(path)
	require.NoError(t, err)
	assert.Equal(t, []auth.Capability{auth.CapabilityRead}, roles[auth.RoleUser])

	_, err = LoadRoles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}
