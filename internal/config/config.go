// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from config.yaml.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	DB        DBConfig         `yaml:"db"`
	Blob      BlobConfig       `yaml:"blob"`
	Providers []ProviderConfig `yaml:"providers"`
	Refresh   RefreshConfig    `yaml:"refresh"`
	Notify    NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // public URL prefix for blob references
}

// DBConfig holds database connection settings. Driver selects sqlite or mysql.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	// PasswordEnv names the env var holding the MySQL password.
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
}

// BlobConfig holds local object storage settings.
type BlobConfig struct {
	Dir string `yaml:"dir"`
}

// ProviderConfig describes one LLM backend.
type ProviderConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`        // "openai" or "compatible"
	APIKeyEnv string `yaml:"api_key_env"` // env var holding the credential
	BaseURL   string `yaml:"base_url"`    // required for kind "compatible"
	// UtilityModel runs auxiliary classifier calls: curation, image intent,
	// aspect detection, title generation.
	UtilityModel string `yaml:"utility_model"`
	// FallbackModel is the smaller/faster model used for the one bounded
	// curation retry.
	FallbackModel string `yaml:"fallback_model"`
	// ImageModel renders images when the session's chat model cannot
	// generate them natively.
	ImageModel string `yaml:"image_model"`
	// Guidance is provider-specific curation instruction text.
	Guidance string `yaml:"guidance"`
}

// RefreshConfig controls the scheduled catalog refresh.
type RefreshConfig struct {
	Cron             string `yaml:"cron"`              // 5-field cron expression
	Concurrency      int    `yaml:"concurrency"`       // provider refresh fan-out cap
	ProbeConcurrency int    `yaml:"probe_concurrency"` // per-provider model probe cap
}

// NotifyConfig selects alerting sinks for refresh summaries.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials for the alerting sink.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials for the alerting sink.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Provider returns the provider config with the given id, or nil.
func (c *Config) Provider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "parley.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.User == "" {
			c.DB.User = "root"
		}
		if c.DB.Database == "" {
			c.DB.Database = "parley"
		}
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "blobs"
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = "0 4 * * *"
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = 4
	}
	if c.Refresh.ProbeConcurrency == 0 {
		c.Refresh.ProbeConcurrency = 8
	}
	for i := range c.Providers {
		if c.Providers[i].Kind == "" {
			c.Providers[i].Kind = "openai"
		}
		if c.Providers[i].Name == "" {
			c.Providers[i].Name = c.Providers[i].ID
		}
		if c.Providers[i].FallbackModel == "" {
			c.Providers[i].FallbackModel = c.Providers[i].UtilityModel
		}
		if c.Providers[i].ImageModel == "" {
			c.Providers[i].ImageModel = "dall-e-3"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("providers[%d].id is required", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("providers[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
		if p.APIKeyEnv == "" {
			errs = append(errs, fmt.Sprintf("providers[%d].api_key_env is required", i))
		}
		if p.Kind == "compatible" && p.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("providers[%d].base_url is required for kind compatible", i))
		}
		if p.UtilityModel == "" {
			errs = append(errs, fmt.Sprintf("providers[%d].utility_model is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
