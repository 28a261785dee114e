//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, ":8081", cfg.WebSocket.Addr)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, 4000, cfg.Prompt.TokenBudget)
	assert.Equal(t, 20, cfg.Prompt.HistoryLimit)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: openai
model:
  name: gpt-4o
  max_tokens: 2048
websocket:
  addr: ":9000"
prompt:
  token_budget: 1500
cache:
  ttl: 30m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 2048, cfg.Model.MaxTokens)
	assert.Equal(t, ":9000", cfg.WebSocket.Addr)
	assert.Equal(t, 1500, cfg.Prompt.TokenBudget)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	// Keys the file leaves alone keep their defaults.
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SEMGRAPH_MODEL_API_KEY", "sk-test")
	t.Setenv("SEMGRAPH_PROVIDER", "openai")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Provider = "bedrock"
	assert.ErrorContains(t, cfg.Validate(), "provider")

	cfg = base()
	cfg.Model.Name = ""
	assert.ErrorContains(t, cfg.Validate(), "model.name")

	cfg = base()
	cfg.Prompt.TokenBudget = 0
	assert.ErrorContains(t, cfg.Validate(), "token_budget")

	cfg = base()
	cfg.WebSocket.Path = "ws"
	assert.ErrorContains(t, cfg.Validate(), "websocket.path")

	cfg = base()
	cfg.Log.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "log.level")
}
