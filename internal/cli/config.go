package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trappiz/tesla-order-status/internal/engine"
)

// Config is the optional config.yaml in the data directory. Every field has
// a default; a missing file means all defaults.
type Config struct {
	// OrdersURL and TasksURL override the API endpoints.
	OrdersURL string `yaml:"orders_url"`
	TasksURL  string `yaml:"tasks_url"`

	// TokenURL overrides the OAuth token endpoint for refresh.
	TokenURL string `yaml:"token_url"`

	// TTL is the cache window; fetches within it reuse the stored snapshot.
	TTL time.Duration `yaml:"ttl"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// Locale selects the display language for rendered dates and the
	// deviceLanguage forwarded to the API.
	Locale string `yaml:"locale"`

	// IgnoredPrefixes replaces the default translation-churn prefix list.
	IgnoredPrefixes []string `yaml:"ignored_prefixes"`
}

// ConfigFileName is the config file looked up in the data directory.
const ConfigFileName = "config.yaml"

// DefaultConfig returns the configuration used when no config.yaml exists.
func DefaultConfig() Config {
	return Config{
		TTL:     engine.DefaultTTL,
		Timeout: 30 * time.Second,
		Locale:  "en",
	}
}

// fileConfig is the on-disk YAML shape. Durations are strings in
// time.ParseDuration syntax ("60s", "2m").
type fileConfig struct {
	OrdersURL       string   `yaml:"orders_url"`
	TasksURL        string   `yaml:"tasks_url"`
	TokenURL        string   `yaml:"token_url"`
	TTL             string   `yaml:"ttl"`
	Timeout         string   `yaml:"timeout"`
	Locale          string   `yaml:"locale"`
	IgnoredPrefixes []string `yaml:"ignored_prefixes"`
}

// LoadConfig reads config.yaml from dataDir, merging it over the defaults.
// A missing file is not an error.
func LoadConfig(dataDir string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(filepath.Join(dataDir, ConfigFileName))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if file.OrdersURL != "" {
		cfg.OrdersURL = file.OrdersURL
	}
	if file.TasksURL != "" {
		cfg.TasksURL = file.TasksURL
	}
	if file.TokenURL != "" {
		cfg.TokenURL = file.TokenURL
	}
	if file.TTL != "" {
		d, err := time.ParseDuration(file.TTL)
		if err != nil {
			return Config{}, fmt.Errorf("parse config ttl: %w", err)
		}
		cfg.TTL = d
	}
	if file.Timeout != "" {
		d, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse config timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if file.Locale != "" {
		cfg.Locale = file.Locale
	}
	if file.IgnoredPrefixes != nil {
		cfg.IgnoredPrefixes = file.IgnoredPrefixes
	}
	return cfg, nil
}
