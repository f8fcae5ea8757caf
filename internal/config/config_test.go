package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.litsearch.io/v1", cfg.Litsearch.BaseURL)
	assert.Equal(t, 50, cfg.Litsearch.PageSize)
	assert.Equal(t, 30, cfg.Litsearch.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Litsearch.MaxAttempts)
	assert.Equal(t, 4, cfg.Litsearch.MaxConcurrent)
	assert.Equal(t, "ollama", cfg.Inference.Backend)
	assert.InDelta(t, 0.1, cfg.Inference.Temperature, 0.001)
	assert.Equal(t, 60, cfg.Inference.TimeoutSecs)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3.2", cfg.Ollama.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: guardian.db
litsearch:
  requests_per_minute: 10
inference:
  backend: anthropic
  temperature: 0.2
rules:
  path: rules.yaml
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "guardian.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 10, cfg.Litsearch.RequestsPerMinute)
	assert.Equal(t, "anthropic", cfg.Inference.Backend)
	assert.InDelta(t, 0.2, cfg.Inference.Temperature, 0.001)
	assert.Equal(t, "rules.yaml", cfg.Rules.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, 50, cfg.Litsearch.PageSize)
}

func TestLoadFromEnv(t *testing.T) {
	chtemp(t)

	t.Setenv("GUARDIAN_STORE_DRIVER", "sqlite")
	t.Setenv("GUARDIAN_LITSEARCH_KEY", "secret")
	t.Setenv("GUARDIAN_RULES_EXCLUSIONS", "rs1,rs2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "secret", cfg.Litsearch.Key)
	assert.Equal(t, "rs1,rs2", cfg.Rules.Exclusions)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}
