package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Scoring.WindowDays)
	assert.Equal(t, 0.4, cfg.Linking.MinConfidence)
	assert.Equal(t, 3, cfg.Linking.MaxMatches)
	assert.Equal(t, 5, cfg.Selection.TopK)
	assert.Equal(t, 0.65, cfg.Selection.MinScore)
	assert.Equal(t, 4, cfg.Selection.DedupWeeks)
	assert.Equal(t, []string{"STRONG_BUY"}, cfg.Alerts.Tiers)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, time.Hour, cfg.Schedule.ParseIngestInterval())
	assert.Equal(t, 24*time.Hour, cfg.Schedule.ParsePipelineInterval())
	assert.Equal(t, time.Second, cfg.Sources.ParseRequestInterval())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/radar.db
scoring:
  window_days: 14
selection:
  top_k: 10
sources:
  arxiv:
    categories: [physics.optics]
schedule:
  ingest_interval: not-a-duration
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/radar.db", cfg.Database.Path)
	assert.Equal(t, 14, cfg.Scoring.WindowDays)
	assert.Equal(t, 10, cfg.Selection.TopK)
	assert.Equal(t, 0.65, cfg.Selection.MinScore, "unset keys keep defaults")
	assert.Equal(t, []string{"physics.optics"}, cfg.Sources.ArXiv.Categories)
	assert.Equal(t, time.Hour, cfg.Schedule.ParseIngestInterval(), "bad durations fall back")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring: [unterminated"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEEPRADAR_DB_PATH", "/data/env.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("EMBEDDING_API_KEY", "sk-test")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("DISCORD_WEBHOOK_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/env.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ghp_test", cfg.Sources.GitHub.Token)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.True(t, cfg.Alerts.Slack.Enabled)
	assert.False(t, cfg.Alerts.Discord.Enabled)
}
