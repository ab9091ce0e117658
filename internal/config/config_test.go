package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SYNC_MAX_ATTEMPTS", "0")
	t.Setenv("DB_SLOW_QUERY_MS", "not-a-number")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_FORMAT", "")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 1, cfg.SyncMaxAttempts)
	assert.Equal(t, 200, cfg.DBSlowQueryMs)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestCORSOriginList(t *testing.T) {
	cfg := &Config{CORSOrigins: " https://a.example.com, ,https://b.example.com "}
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOriginList())
}
