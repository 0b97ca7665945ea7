package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sources   SourcesConfig   `yaml:"sources"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Linking   LinkingConfig   `yaml:"linking"`
	Selection SelectionConfig `yaml:"selection"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// ScheduleConfig configures how often the daemon ingests and runs the
// linking, scoring and selection jobs.
type ScheduleConfig struct {
	IngestInterval   string `yaml:"ingest_interval"`
	PipelineInterval string `yaml:"pipeline_interval"`
}

// ParseIngestInterval returns the ingest interval as time.Duration.
func (s ScheduleConfig) ParseIngestInterval() time.Duration {
	return parseDuration(s.IngestInterval, time.Hour)
}

// ParsePipelineInterval returns the pipeline interval as time.Duration.
func (s ScheduleConfig) ParsePipelineInterval() time.Duration {
	return parseDuration(s.PipelineInterval, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SourcesConfig holds configuration for all data sources.
type SourcesConfig struct {
	RequestInterval string       `yaml:"request_interval"`
	MaxAttempts     int          `yaml:"max_attempts"`
	ArXiv           ArXivConfig  `yaml:"arxiv"`
	GitHub          GitHubConfig `yaml:"github"`
}

// ParseRequestInterval returns the minimum delay between outbound requests.
func (s SourcesConfig) ParseRequestInterval() time.Duration {
	return parseDuration(s.RequestInterval, time.Second)
}

// ArXivConfig for the arXiv collector.
type ArXivConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Categories   []string `yaml:"categories"`
	MaxResults   int      `yaml:"max_results"`
	Pages        int      `yaml:"pages"`
	LookbackDays int      `yaml:"lookback_days"`
}

// GitHubConfig for the GitHub repository search collector.
type GitHubConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Token      string   `yaml:"token"`
	Categories []string `yaml:"categories"`
	SearchDays int      `yaml:"search_days"`
	Pages      int      `yaml:"pages"`
	PerPage    int      `yaml:"per_page"`
}

// EmbeddingConfig selects the embedder. Provider "hash" needs no network;
// "openai" calls an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Dim      int    `yaml:"dim"`
}

// ScoringConfig configures the scoring job.
type ScoringConfig struct {
	LexiconPath string `yaml:"lexicon_path"` // empty uses the built-in lexicon
	WindowDays  int    `yaml:"window_days"`
	Workers     int    `yaml:"workers"`
}

// LinkingConfig configures the linking job.
type LinkingConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	MaxMatches    int     `yaml:"max_matches"`
}

// SelectionConfig configures weekly opportunity selection.
type SelectionConfig struct {
	TopK       int     `yaml:"top_k"`
	MinScore   float64 `yaml:"min_score"`
	DedupWeeks int     `yaml:"dedup_weeks"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Tiers   []string      `yaml:"tiers"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	categories := []string{"cs.AI", "cs.LG", "cs.RO", "cs.CV"}
	return &Config{
		Database: DatabaseConfig{Path: "./deepradar.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Schedule: ScheduleConfig{
			IngestInterval:   "1h",
			PipelineInterval: "24h",
		},
		Sources: SourcesConfig{
			RequestInterval: "1s",
			MaxAttempts:     5,
			ArXiv: ArXivConfig{
				Enabled:      true,
				Categories:   categories,
				MaxResults:   25,
				Pages:        3,
				LookbackDays: 30,
			},
			GitHub: GitHubConfig{
				Enabled:    true,
				Categories: categories,
				SearchDays: 30,
				Pages:      2,
				PerPage:    30,
			},
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
			Model:    "text-embedding-3-small",
			Dim:      384,
		},
		Scoring: ScoringConfig{
			WindowDays: 7,
			Workers:    4,
		},
		Linking: LinkingConfig{
			MinConfidence: 0.4,
			MaxMatches:    3,
		},
		Selection: SelectionConfig{
			TopK:       5,
			MinScore:   0.65,
			DedupWeeks: 4,
		},
		Alerts: AlertsConfig{Tiers: []string{"STRONG_BUY"}},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEEPRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Sources.GitHub.Token = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.Embedding.Provider = "openai"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
