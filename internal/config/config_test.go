package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "fleet_local.db", cfg.LocalDBPath)
	assert.Equal(t, "fleet-data", cfg.StoreKey)
	assert.Equal(t, BackendNone, cfg.RemoteBackend)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "@daily", cfg.BackupSchedule)
	assert.Equal(t, 50, cfg.ImportPreviewLimit)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "fleet", cfg.MQTTTopicPrefix)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":                      "9000",
		"REMOTE_BACKEND":            "Postgres",
		"DATABASE_URL":              "postgres://localhost/fleet",
		"JWT_EXPIRY":                "2h",
		"MQTT_TOPIC_PREFIX":         "acme/fleet/",
		"BACKUP_SCHEDULE":           "off",
		"IMPORT_PREVIEW_LIMIT":      "5",
		"RATE_LIMIT_WINDOW_SECONDS": "10",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.RemoteBackend)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "acme/fleet", cfg.MQTTTopicPrefix)
	assert.Empty(t, cfg.BackupSchedule)
	assert.Equal(t, 5, cfg.ImportPreviewLimit)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad expiry":        {"JWT_EXPIRY": "soon"},
		"bad limit":         {"IMPORT_PREVIEW_LIMIT": "many"},
		"unknown backend":   {"REMOTE_BACKEND": "redis"},
		"mongo without uri": {"REMOTE_BACKEND": "mongo"},
		"pg without url":    {"REMOTE_BACKEND": "postgres"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(env(values))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_KEY=from-dotenv\n"), 0o600))
	t.Setenv("STORE_KEY", "")
	os.Unsetenv("STORE_KEY")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.StoreKey)
}
