package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// envOverrides are read from the process environment after the file.
// Non-empty values win over the file.
type envOverrides struct {
	BaseURL  string `env:"WALLETSTREAM_BASE_URL"`
	UserID   string `env:"WALLETSTREAM_USER_ID"`
	Token    string `env:"WALLETSTREAM_TOKEN"`
	LogLevel string `env:"WALLETSTREAM_LOG_LEVEL"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	o, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.BaseURL != "" {
		c.Server.BaseURL = o.BaseURL
	}
	if o.UserID != "" {
		c.Auth.UserID = o.UserID
	}
	if o.Token != "" {
		c.Auth.Token = o.Token
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	return nil
}
