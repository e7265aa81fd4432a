package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.ErrorWait)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, 100, cfg.RateLimit.MaxPerPage)
	assert.Equal(t, 30, cfg.RateLimit.DefaultPerPage)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.MaxWait)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(cfg.Workdir, "processed_issues.json"), cfg.StateFile)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Overrides{})
	assert.NoError(t, err)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := writeConfig(t, ":\n  - not: [valid")
	_, err := Load(path, Overrides{})
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
token: file-token
poll_interval: 30s
base_branch: develop
labels: [bug, automation]
rate_limit:
  max_per_page: 50
  default_per_page: 20
personality:
  enabled: true
`)
	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, "develop", cfg.BaseBranch)
	assert.Equal(t, []string{"bug", "automation"}, cfg.Labels)
	assert.Equal(t, 50, cfg.RateLimit.MaxPerPage)
	assert.Equal(t, 20, cfg.RateLimit.DefaultPerPage)
	assert.True(t, cfg.Personality.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "base_branch: develop\npoll_interval: 30s\n")
	t.Setenv("ISSUEPILOT_BASE_BRANCH", "trunk")
	t.Setenv("ISSUEPILOT_RATE_LIMIT__MAX_PER_PAGE", "40")
	t.Setenv("ISSUEPILOT_RATE_LIMIT__DEFAULT_PER_PAGE", "15")

	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "trunk", cfg.BaseBranch)
	assert.Equal(t, 30*time.Second, cfg.PollInterval, "file value survives where env is silent")
	assert.Equal(t, 40, cfg.RateLimit.MaxPerPage)
	assert.Equal(t, 15, cfg.RateLimit.DefaultPerPage)
}

func TestOverridesWinOverEnv(t *testing.T) {
	t.Setenv("ISSUEPILOT_MODEL", "env-model")

	cfg, err := Load("", Overrides{Model: "flag-model", PollInterval: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "flag-model", cfg.Model)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestTokenPrecedence(t *testing.T) {
	path := writeConfig(t, "token: file-token\n")

	t.Run("file only", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		cfg, err := Load(path, Overrides{})
		require.NoError(t, err)
		assert.Equal(t, "file-token", cfg.Token)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "env-token")
		cfg, err := Load(path, Overrides{})
		require.NoError(t, err)
		assert.Equal(t, "env-token", cfg.Token)
	})

	t.Run("explicit beats env", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "env-token")
		cfg, err := Load(path, Overrides{Token: "flag-token"})
		require.NoError(t, err)
		assert.Equal(t, "flag-token", cfg.Token)
	})
}

func TestVerboseOverride(t *testing.T) {
	cfg, err := Load("", Overrides{Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"per_page above ceiling", "rate_limit:\n  max_per_page: 500\n"},
		{"default above max", "rate_limit:\n  max_per_page: 10\n  default_per_page: 50\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml), Overrides{})
			assert.Error(t, err)
		})
	}
}
