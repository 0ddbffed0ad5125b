package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "sources.yaml", cfg.Sources.Path)
	assert.Equal(t, 0.8, cfg.Resolver.StopEarlyThreshold)
	assert.Equal(t, 0.5, cfg.Resolver.ConfidenceFloor)
	assert.Equal(t, 0.8, cfg.Conflict.StringHigh)
	assert.Equal(t, 0.9, cfg.Conflict.StringMedium)
	assert.Equal(t, int64(20), cfg.RateLimit.MaxInFlight)
	assert.Equal(t, 20, cfg.Batch.MaxConcurrentEntities)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
store:
  driver: postgres
  database_url: postgres://localhost/enrich
resolver:
  stop_early_threshold: 0.9
log:
  level: debug
  format: console
`), 0o644))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 0.9, cfg.Resolver.StopEarlyThreshold)
	// untouched keys keep their defaults
	assert.Equal(t, 0.5, cfg.Resolver.ConfidenceFloor)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}
