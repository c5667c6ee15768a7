package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.Equal(t, 14*24*time.Hour, cfg.League.RoundLength)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), cfg.League.RoundAnchor)
	assert.Equal(t, 50, cfg.League.DailyCap)
	assert.Equal(t, 2*time.Minute, cfg.League.Cooldown)
	assert.Equal(t, GateBackendMemory, cfg.Gate.Backend)
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEAGUE_DAILY_CAP", "20")
	t.Setenv("LEAGUE_COOLDOWN", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("GATE_BACKEND", "Redis")
	t.Setenv("DATABASE_URL", "postgres://league@localhost/league")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.League.DailyCap)
	assert.Equal(t, 30*time.Second, cfg.League.Cooldown)
	assert.Equal(t, GateBackendRedis, cfg.Gate.Backend)
	assert.True(t, cfg.UsesPostgres())
}

func TestLoad_BadAnchor(t *testing.T) {
	t.Setenv("LEAGUE_ROUND_ANCHOR", "yesterday")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("GATE_BACKEND", "redis")
	t.Setenv("LEAGUE_ROUND_ANCHOR", "2024-01-08")
	t.Setenv("LEAGUE_DAILY_CAP", "0")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{
		"DATABASE_URL is required",
		"ADMIN_TOKEN_HASH is required",
		"GATE_BACKEND=redis requires",
		"must be a Sunday",
		"LEAGUE_DAILY_CAP must be positive",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
