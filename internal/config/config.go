// Package config loads lmbridge settings from an optional lmbridge.yaml and
// LMBRIDGE_* environment variables. Environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "lmbridge"

// DefaultFile is the file Load looks for when no path is given.
const DefaultFile = "lmbridge.yaml"

type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`

	LogLevel string `mapstructure:"log_level"`
	// DebugLog is the JSONL middleware debug log path; empty disables it.
	DebugLog            string   `mapstructure:"debug_log"`
	DisabledMiddlewares []string `mapstructure:"disabled_middlewares"`
	TokenBudget         int      `mapstructure:"token_budget"`

	// MaxSteps bounds model round trips per user turn in the tool loop.
	MaxSteps int `mapstructure:"max_steps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "ollama")
	v.SetDefault("model", "llama3.2")
	v.SetDefault("base_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug_log", "")
	v.SetDefault("disabled_middlewares", []string{})
	v.SetDefault("token_budget", 0)
	v.SetDefault("max_steps", 8)
}

// Load reads configuration. If path is empty, lmbridge.yaml is looked up in
// the working directory and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lmbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 1
	}
	return &cfg, nil
}

// Save writes cfg to path. The format follows the file extension; empty
// credentials are left out.
func Save(cfg Config, path string) error {
	v := viper.New()
	v.Set("provider", cfg.Provider)
	v.Set("model", cfg.Model)
	if cfg.BaseURL != "" {
		v.Set("base_url", cfg.BaseURL)
	}
	if cfg.APIKey != "" {
		v.Set("api_key", cfg.APIKey)
	}
	v.Set("log_level", cfg.LogLevel)
	if cfg.DebugLog != "" {
		v.Set("debug_log", cfg.DebugLog)
	}
	v.Set("disabled_middlewares", cfg.DisabledMiddlewares)
	v.Set("token_budget", cfg.TokenBudget)
	v.Set("max_steps", cfg.MaxSteps)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
