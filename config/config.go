//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

// Package config loads the process configuration record from an optional
// YAML file with SEMGRAPH_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted by the "provider" key.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the resolved configuration record. Every field maps to a
// documented key; see Defaults for the key names.
type Config struct {
	// Provider selects the model transport: "anthropic" or "openai".
	Provider string `mapstructure:"provider"`

	Model struct {
		// Name is the provider-side model identifier.
		Name string `mapstructure:"name"`
		// APIKey authenticates against the provider. Usually supplied via
		// SEMGRAPH_MODEL_API_KEY rather than the file.
		APIKey string `mapstructure:"api_key"`
		// BaseURL overrides the provider endpoint, for gateways and mocks.
		BaseURL string `mapstructure:"base_url"`
		// MaxTokens caps the provider completion length.
		MaxTokens int `mapstructure:"max_tokens"`
	} `mapstructure:"model"`

	WebSocket struct {
		// Addr is the listen address of the broadcast server.
		Addr string `mapstructure:"addr"`
		// Path is the WebSocket endpoint path.
		Path string `mapstructure:"path"`
	} `mapstructure:"websocket"`

	Prompt struct {
		// TokenBudget bounds the serialized graph slice.
		TokenBudget int `mapstructure:"token_budget"`
		// HistoryLimit bounds the chat-history section.
		HistoryLimit int `mapstructure:"history_limit"`
		// RulesFile optionally overrides the critical-errors prompt text.
		RulesFile string `mapstructure:"rules_file"`
	} `mapstructure:"prompt"`

	Cache struct {
		// TTL is the response cache time-to-live.
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Log struct {
		// Level is the zap level name: debug, info, warn, error.
		Level string `mapstructure:"level"`
		// File redirects log output; empty means stderr.
		File string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// newViper builds the viper instance with defaults and env binding. Env keys
// replace dots with underscores, so "model.api_key" becomes
// SEMGRAPH_MODEL_API_KEY.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SEMGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider", ProviderAnthropic)
	v.SetDefault("model.name", "claude-sonnet-4-20250514")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.max_tokens", 8192)
	v.SetDefault("websocket.addr", ":8081")
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("prompt.token_budget", 4000)
	v.SetDefault("prompt.history_limit", 20)
	v.SetDefault("prompt.rules_file", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	return v
}

// Load reads the configuration from the given YAML file, if any, applies
// environment overrides and validates the result. An empty path loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the closed-set and range constraints.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("provider: %q is invalid (valid values: anthropic, openai)", c.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name: must not be empty")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens: must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Prompt.TokenBudget <= 0 {
		return fmt.Errorf("prompt.token_budget: must be positive, got %d", c.Prompt.TokenBudget)
	}
	if c.Prompt.HistoryLimit <= 0 {
		return fmt.Errorf("prompt.history_limit: must be positive, got %d", c.Prompt.HistoryLimit)
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket.path: must start with /, got %q", c.WebSocket.Path)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: %q is invalid (valid values: debug, info, warn, error)", c.Log.Level)
	}
	return nil
}
