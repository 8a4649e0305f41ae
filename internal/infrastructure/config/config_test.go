package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "analytics-collector", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "analytics.db", cfg.Database.Path)
	assert.Equal(t, "memory", cfg.Idempotency.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.InDelta(t, 1.0, cfg.Telemetry.SamplingRatio, 0.0001)
	assert.Empty(t, cfg.HTTP.CORSAllowOrigins, "no cross-origin access until configured")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ANALYTICS_APP_PORT", "9999")
	t.Setenv("ANALYTICS_DATABASE_DRIVER", "postgres")
	t.Setenv("ANALYTICS_IDEMPOTENCY_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.Idempotency.Backend)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ANALYTICS_DATABASE_DRIVER", "oracle")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidateRejectsUnknownIdempotencyBackend(t *testing.T) {
	t.Setenv("ANALYTICS_IDEMPOTENCY_BACKEND", "dynamo")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idempotency.backend")
}

func TestProductionRequiresAuthSecret(t *testing.T) {
	t.Setenv("ANALYTICS_APP_ENV", "production")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")
}

func TestProductionRejectsShortSecret(t *testing.T) {
	t.Setenv("ANALYTICS_APP_ENV", "production")
	t.Setenv("ANALYTICS_AUTH_SECRET", "short")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestProductionRejectsWildcardCORS(t *testing.T) {
	t.Setenv("ANALYTICS_APP_ENV", "production")
	t.Setenv("ANALYTICS_AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ANALYTICS_HTTP_CORS_ALLOW_ORIGINS", "*")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cors_allow_origins")
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "collector",
		Password: "p@ss/word",
		DBName:   "analytics",
		SSLMode:  "require",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5432")
	assert.Contains(t, dsn, "sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word", "password must be URL-escaped")
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
