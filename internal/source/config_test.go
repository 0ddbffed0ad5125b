package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSourcesYAML = `
sources_config:
  defaults:
    cache_ttl_hours: 12
    rate:
      rps: 2
      burst: 3
  tiers:
    reference: 0.97
  sources:
    - name: tmdb
      priority: 1
      tier: reference
      fields: [title, director, poster_url]
    - name: fanwiki
      priority: 4
      tier: scrape
      fields: [tagline]
      rate:
        rps: 0.5
        burst: 1
      cache_ttl_hours: 168
    - name: letterboxd
      pool: comparison
      priority: 1
      tier: community
      fields: [director, rating]
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, testSourcesYAML))
	require.NoError(t, err)

	// explicit tier overrides, built-ins fill the rest
	assert.Equal(t, 0.97, cfg.TierConfidence("reference"))
	assert.Equal(t, 0.85, cfg.TierConfidence("aggregator"))
	// unknown tiers degrade to scrape, never inflate
	assert.Equal(t, 0.70, cfg.TierConfidence("made_up"))

	tmdb, ok := cfg.Spec("tmdb")
	require.True(t, ok)
	assert.Equal(t, PoolPrimary, tmdb.Pool)
	assert.Equal(t, 12, tmdb.CacheTTLHours)
	assert.Equal(t, 2.0, tmdb.Rate.RPS)

	fanwiki, ok := cfg.Spec("fanwiki")
	require.True(t, ok)
	assert.Equal(t, 168, fanwiki.CacheTTLHours)
	assert.Equal(t, 0.5, fanwiki.Rate.RPS)
	assert.Equal(t, 1, fanwiki.Rate.Burst)

	lbx, ok := cfg.Spec("letterboxd")
	require.True(t, ok)
	assert.Equal(t, PoolComparison, lbx.Pool)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Empty(t, cfg.Sources)
	assert.Equal(t, 24, cfg.Defaults.CacheTTLHours)
	assert.Equal(t, 4.0, cfg.Defaults.Rate.RPS)
	assert.Equal(t, 15, cfg.Defaults.TimeoutSecs)
	assert.Equal(t, 0.95, cfg.TierConfidence("reference"))
}

func TestLoadFixtures(t *testing.T) {
	fixtures := `{
  "sources": [
    {
      "name": "tmdb",
      "priority": 1,
      "tier": "reference",
      "fields": ["director"],
      "responses": {"film:tt1": {"director": "Michael Mann"}}
    },
    {
      "name": "downprovider",
      "priority": 2,
      "tier": "aggregator",
      "fields": ["director"],
      "fail": "unavailable"
    }
  ]
}`
	path := filepath.Join(t.TempDir(), "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o644))

	cfg := NewDefaultConfig()
	reg := NewRegistry()
	require.NoError(t, LoadFixtures(path, cfg, reg))

	require.Len(t, reg.Primary(), 2)
	tmdb := reg.Get("tmdb")
	require.NotNil(t, tmdb)
	assert.Equal(t, 0.95, tmdb.BaseConfidence())
}
