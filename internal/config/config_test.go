package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmatch/guard/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Session.InactivityTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.WarningGrace)
	assert.Equal(t, []string{"/login", "/register"}, cfg.Session.AuthRoutes)
	assert.Empty(t, cfg.RateLimit.Overrides)
	assert.Equal(t, int64(21<<20), cfg.Server.MaxUploadBytes)

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestLoad_PolicyOverrideKeepsUnsetFields(t *testing.T) {
	t.Setenv("RATE_LIMIT_LOGIN_MAX", "7")
	t.Setenv("RATE_LIMIT_GENERIC_API_WINDOW", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	login := cfg.RateLimit.Overrides[models.ActionLogin]
	assert.Equal(t, 7, login.MaxAttempts)
	assert.Equal(t, 15*time.Minute, login.Window)
	assert.Equal(t, 15*time.Minute, login.BlockDuration)

	api := cfg.RateLimit.Overrides[models.ActionGenericAPI]
	assert.Equal(t, 100, api.MaxAttempts)
	assert.Equal(t, 30*time.Second, api.Window)
	assert.Equal(t, 5*time.Minute, api.BlockDuration)

	_, ok := cfg.RateLimit.Overrides[models.ActionRegister]
	assert.False(t, ok)
}

func TestLoad_InvalidPolicyOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_FILE_UPLOAD_BLOCK", "forever")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PostgresRequiresPassword(t *testing.T) {
	t.Setenv("STORE_TYPE", "postgres")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_PASSWORD", "test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store.Type)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE_TYPE", "firestore")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRejectsMemoryStore(t *testing.T) {
	t.Setenv("ENV", "production")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AdminTokenLength(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "short")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ADMIN_TOKEN", "a-development-admin-token")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "a-development-admin-token", cfg.Admin.Token)
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("SESSION_INACTIVITY_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Session.InactivityTimeout)
}

func TestLoad_ListParsing(t *testing.T) {
	t.Setenv("SESSION_AUTH_ROUTES", " /login, /register ,/forgot-password,")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/login", "/register", "/forgot-password"}, cfg.Session.AuthRoutes)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
}

func TestLoad_MaxUploadBytes(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxUploadBytes)

	t.Setenv("MAX_UPLOAD_BYTES", "-1")
	_, err = Load()
	assert.Error(t, err)
}
