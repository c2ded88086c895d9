package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "school")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "school")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.ResetTTL)
	assert.False(t, cfg.RBACGodMode, "god mode must default to off")
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 25, cfg.SMTP.Port)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("RBAC_GOD_MODE", "true")
	t.Setenv("SESSION_TTL_HOURS", "1")
	t.Setenv("APP_BASE_URL", "https://school.example/")

	cfg := Load()

	assert.True(t, cfg.RBACGodMode)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, "https://school.example", cfg.AppBaseURL)
}

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "10s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 50*time.Second, cfg.TTL)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")

	cfg := LoadCacheConfig()

	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.Len(t, cfg.Methods, 2)
}
