// Package config loads the engine's configuration as explicit layers with
// defined precedence: defaults < YAML file < environment < explicit
// overrides (flags/constructor arguments). The merge produces one
// immutable value consumed by constructors; nothing reads config at
// runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix   = "ISSUEPILOT_"
	tokenEnvVar = "GITHUB_TOKEN"
)

type Config struct {
	Token        string            `koanf:"token"`
	Workdir      string            `koanf:"workdir"`
	StateFile    string            `koanf:"state_file"`
	PollInterval time.Duration     `koanf:"poll_interval"`
	ErrorWait    time.Duration     `koanf:"error_wait"`
	BaseBranch   string            `koanf:"base_branch"`
	Labels       []string          `koanf:"labels"`
	Model        string            `koanf:"model"`
	RateLimit    RateLimitConfig   `koanf:"rate_limit"`
	Personality  PersonalityConfig `koanf:"personality"`
	Log          LogConfig         `koanf:"log"`
	TUI          TUIConfig         `koanf:"tui"`
}

type RateLimitConfig struct {
	MaxPerPage     int           `koanf:"max_per_page"`
	DefaultPerPage int           `koanf:"default_per_page"`
	MaxWait        time.Duration `koanf:"max_wait"`
}

type PersonalityConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type TUIConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// Overrides are values passed explicitly (CLI flags, constructor args).
// They win over both environment and file.
type Overrides struct {
	Token        string
	Workdir      string
	StateFile    string
	Model        string
	Labels       []string
	PollInterval time.Duration
	ErrorWait    time.Duration
	Verbose      bool
}

// Load builds the merged configuration. A missing file at path is fine
// (first run, everything from env/defaults); a malformed one is not.
func Load(path string, ov Overrides) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := k.Load(rawbytes.Provider(data), kyaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// ISSUEPILOT_TOKEN -> token, ISSUEPILOT_RATE_LIMIT__MAX_PER_PAGE ->
	// rate_limit.max_per_page. Double underscore separates sections so
	// single underscores survive inside field names.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Token precedence: explicit argument > environment > config file.
	if t := os.Getenv(tokenEnvVar); t != "" {
		cfg.Token = t
	}
	applyOverrides(&cfg, ov)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyOverrides(c *Config, ov Overrides) {
	if ov.Token != "" {
		c.Token = ov.Token
	}
	if ov.Workdir != "" {
		c.Workdir = ov.Workdir
	}
	if ov.StateFile != "" {
		c.StateFile = ov.StateFile
	}
	if ov.Model != "" {
		c.Model = ov.Model
	}
	if len(ov.Labels) > 0 {
		c.Labels = ov.Labels
	}
	if ov.PollInterval > 0 {
		c.PollInterval = ov.PollInterval
	}
	if ov.ErrorWait > 0 {
		c.ErrorWait = ov.ErrorWait
	}
	if ov.Verbose {
		c.Log.Level = "debug"
	}
}

func (c *Config) setDefaults() {
	if c.Workdir == "" {
		c.Workdir = filepath.Join(os.TempDir(), "issuepilot")
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(c.Workdir, "processed_issues.json")
	}
	if c.PollInterval == 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ErrorWait == 0 {
		c.ErrorWait = 300 * time.Second
	}
	if c.BaseBranch == "" {
		c.BaseBranch = "main"
	}
	if c.RateLimit.MaxPerPage == 0 {
		c.RateLimit.MaxPerPage = 100
	}
	if c.RateLimit.DefaultPerPage == 0 {
		c.RateLimit.DefaultPerPage = 30
	}
	if c.RateLimit.MaxWait == 0 {
		c.RateLimit.MaxWait = 15 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Workdir, "logs", "issuepilot.log")
	}
	if c.TUI.RefreshInterval == 0 {
		c.TUI.RefreshInterval = 3 * time.Second
	}
}

func (c *Config) validate() error {
	if c.RateLimit.MaxPerPage < 1 || c.RateLimit.MaxPerPage > 100 {
		return fmt.Errorf("rate_limit.max_per_page must be 1..100, got %d", c.RateLimit.MaxPerPage)
	}
	if c.RateLimit.DefaultPerPage < 1 || c.RateLimit.DefaultPerPage > c.RateLimit.MaxPerPage {
		return fmt.Errorf("rate_limit.default_per_page must be 1..%d, got %d",
			c.RateLimit.MaxPerPage, c.RateLimit.DefaultPerPage)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.ErrorWait <= 0 {
		return fmt.Errorf("error_wait must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}
