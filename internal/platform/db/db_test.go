package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"APP_MODE", "APP_ADDR", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "JWT_SECRET", "LOG_LEVEL", "ADMIN_ID", "ADMIN_PASSWORD"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
mode: dev
database:
  host: db
  user: rental
  dbname: rental
auth:
  token_ttl: 2h
`)
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("ADMIN_PASSWORD", "first-login")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, 3307, cfg.DB.Port)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "UTC", cfg.Jobs.Timezone)
	assert.Equal(t, "first-login", cfg.Auth.AdminPassword)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"bad mode", "mode: prod\ndatabase:\n  dbname: rental\n", nil},
		{"missing dbname", "mode: dev\n", nil},
		{"release without secret", "mode: release\ndatabase:\n  dbname: rental\n", nil},
		{"bad port", "mode: dev\ndatabase:\n  dbname: rental\n", map[string]string{"DB_PORT": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ReleaseWithSecretFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-env")
	cfg, err := LoadConfig(writeConfig(t, "mode: release\ndatabase:\n  dbname: rental\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}
