package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres://signalhub:signalhub@db:5432/signalhub?sslmode=disable", cfg.DBURL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.False(t, cfg.LockReviewedSignals)
	assert.False(t, cfg.SeedDemoData)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://x@y/z")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SIGNAL_EDIT_LOCK_REVIEWED", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDev())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://x@y/z", cfg.DBURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.LockReviewedSignals)
	assert.False(t, cfg.SeedDemoData)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoadSeedsOnlyInDev(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SEED_DEMO_DATA", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SeedDemoData)

	t.Setenv("APP_ENV", "prod")

	_, err = Load()
	assert.ErrorIs(t, err, ErrSeedOutsideDev)
}

func TestLoadRejectsNonPositiveRateLimit(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	for _, v := range []string{"0", "-5"} {
		t.Setenv("LOGIN_RATE_LIMIT", v)

		_, err := Load()
		require.Error(t, err, "LOGIN_RATE_LIMIT=%s", v)
		assert.Contains(t, err.Error(), "LOGIN_RATE_LIMIT: must be at least 1")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "   ")

	_, err := Load()
	assert.True(t, errors.Is(err, ErrMissingJWTSecret))
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "eighty")
	t.Setenv("SEED_DEMO_DATA", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `PORT: "eighty" is not an integer`)
	assert.Contains(t, err.Error(), `SEED_DEMO_DATA: "maybe" is not a boolean`)
}
