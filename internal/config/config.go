// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "15m" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the server configuration. Every field has a usable default so
// running without a config file works.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// DataDir is the data directory holding the catalog, records and files.
	DataDir string `yaml:"data_dir"`

	// DuplicateThreshold is the minimum confidence for duplicate reports.
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	// UploadSessionTTL is how long an idle chunked upload survives.
	UploadSessionTTL Duration `yaml:"upload_session_ttl"`

	// RateLimitRPS caps mutating requests per second per client. Zero
	// disables rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	History HistoryConfig `yaml:"history"`
}

// HistoryConfig controls the git-backed change history of the data dir.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Addr:               ":8080",
		DataDir:            "data",
		DuplicateThreshold: 0.5,
		UploadSessionTTL:   Duration(15 * time.Minute),
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		History: HistoryConfig{
			Enabled: true,
			Name:    "datadesk",
			Email:   "datadesk@localhost",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DuplicateThreshold < 0 || cfg.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("duplicate_threshold must be in [0, 1], got %g", cfg.DuplicateThreshold)
	}
	return cfg, nil
}
