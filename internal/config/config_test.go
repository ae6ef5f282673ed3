package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_DATABASE_URL", "postgres://localhost/grader")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, []string{"canvas"}, cfg.PassbackPlatforms)
	require.Equal(t, time.Minute, cfg.ReleaseSweepInterval)
	require.Equal(t, 60*time.Second, cfg.OracleTimeout)
	require.True(t, cfg.PassbackEnabledFor("Canvas"))
	require.False(t, cfg.PassbackEnabledFor("moodle"))
	require.False(t, cfg.SeedEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_DATABASE_URL", "postgres://localhost/grader")
	t.Setenv("GRADER_PASSBACK_PLATFORMS", "canvas, Moodle ,")
	t.Setenv("GRADER_RELEASE_SWEEP_INTERVAL", "5m")
	t.Setenv("GRADER_APP_PORT", ":9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"canvas", "moodle"}, cfg.PassbackPlatforms)
	require.Equal(t, 5*time.Minute, cfg.ReleaseSweepInterval)
	require.Equal(t, ":9000", cfg.HTTPAddress())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "")
	t.Setenv("GRADER_DATABASE_URL", "postgres://localhost/grader")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_DATABASE_URL", "postgres://localhost/grader")
	t.Setenv("GRADER_ORACLE_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadSeedRequiresToken(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_DATABASE_URL", "postgres://localhost/grader")
	t.Setenv("GRADER_SEED_ENABLED", "true")
	t.Setenv("GRADER_SEED_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
}
