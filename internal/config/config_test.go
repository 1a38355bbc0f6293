package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.Path)
	assert.Equal(t, 15, cfg.Store.ExistsPrefixLen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://places.googleapis.com/v1", cfg.Places.BaseURL)
	assert.Equal(t, 20, cfg.Places.ResultLimit)
	assert.InDelta(t, 0.035, cfg.Places.CostPerSearch, 0.0001)
	assert.InDelta(t, 0.005, cfg.CSE.CostPerQuery, 0.0001)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.OSM.NominatimURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.LLM.Model)
	assert.Equal(t, int64(1024), cfg.LLM.MaxTokens)
	assert.Equal(t, 3, cfg.Enrich.CandidatesPerQuery)
	assert.Equal(t, 1000, cfg.Enrich.CourtesyDelayMs)
	assert.Equal(t, 100, cfg.SmartList.MaxLeadsPerRun)
	assert.Equal(t, "user_data/api_usage.csv", cfg.Cost.LogFile)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
  exists_prefix_len: 20
log:
  level: debug
  format: console
enrich:
  candidates_per_query: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, 20, cfg.Store.ExistsPrefixLen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Enrich.CandidatesPerQuery)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}
