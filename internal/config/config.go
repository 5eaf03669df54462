package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "MTB_SCRAPER_CONFIG"
	anthropicAPIKeyEnv = "MTB_ANTHROPIC_API_KEY"
	modelEnv           = "MTB_MODEL"
	databasePathEnv    = "MTB_DATABASE_PATH"
	httpAddrEnv        = "MTB_HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scraping  ScrapingConfig  `yaml:"scraping"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig describes where the database and the attachment cache live.
type StorageConfig struct {
	Database string `yaml:"database"`
	CacheDir string `yaml:"cacheDir"`
}

// ScrapingConfig tunes the browser-driven portal access.
type ScrapingConfig struct {
	Headless     *bool  `yaml:"headless"`
	DelaySeconds int    `yaml:"delaySeconds"`
	ArchiveURL   string `yaml:"archiveUrl"`
}

// IsHeadless defaults to true when unset.
func (s ScrapingConfig) IsHeadless() bool {
	if s.Headless == nil {
		return true
	}
	return *s.Headless
}

// AnthropicConfig defines how to contact the Anthropic API.
type AnthropicConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// AnalysisConfig describes the reader profile used for scoring.
type AnalysisConfig struct {
	RoleDescription    string  `yaml:"roleDescription"`
	RelevanceThreshold float64 `yaml:"relevanceThreshold"`
}

// SchedulerConfig defines when the recurring sync should run. An empty
// expression disables scheduling.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
		c.Anthropic.APIKey = v
	}

	if v := os.Getenv(modelEnv); v != "" {
		c.Anthropic.Model = v
	}

	if v := os.Getenv(databasePathEnv); v != "" {
		c.Storage.Database = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Storage.Database != "" {
		base.Storage.Database = override.Storage.Database
	}
	if override.Storage.CacheDir != "" {
		base.Storage.CacheDir = override.Storage.CacheDir
	}

	if override.Scraping.Headless != nil {
		base.Scraping.Headless = override.Scraping.Headless
	}
	if override.Scraping.DelaySeconds > 0 {
		base.Scraping.DelaySeconds = override.Scraping.DelaySeconds
	}
	if override.Scraping.ArchiveURL != "" {
		base.Scraping.ArchiveURL = override.Scraping.ArchiveURL
	}

	if override.Anthropic.Endpoint != "" {
		base.Anthropic.Endpoint = override.Anthropic.Endpoint
	}
	if override.Anthropic.Model != "" {
		base.Anthropic.Model = override.Anthropic.Model
	}
	if override.Anthropic.APIKey != "" {
		base.Anthropic.APIKey = override.Anthropic.APIKey
	}

	if override.Analysis.RoleDescription != "" {
		base.Analysis.RoleDescription = override.Analysis.RoleDescription
	}
	if override.Analysis.RelevanceThreshold > 0 {
		base.Analysis.RelevanceThreshold = override.Analysis.RelevanceThreshold
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Database: "data/mtb.db",
			CacheDir: "data/cache",
		},
		Scraping: ScrapingConfig{
			DelaySeconds: 2,
			ArchiveURL:   "https://ix.jku.at/path/app/?qs_link=17D85C9AC0FFEB214A26C47CAD8895ADD20FB680",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku-4-5",
		},
		Analysis: AnalysisConfig{
			RoleDescription:    "A member of the university's academic staff interested in regulations, calls and appointments.",
			RelevanceThreshold: 60,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
