package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TranscriberMock, cfg.Transcriber.Type)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 150, cfg.Poll.MaxAttempts)
	assert.Equal(t, "en", cfg.FallbackLanguage)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transcriber:
  type: assemblyai
  api_key: file-key
  rate_limit_per_min: 10
poll:
  interval: 500ms
  max_attempts: 20
fallback_language: de
defaults:
  language: fr
  sensitivity: 80
redis:
  addr: localhost:6379
  ttl: 24h
`), 0o644))

	t.Setenv("ASSEMBLYAI_API_KEY", "")
	t.Setenv("TRANSCRIBER_TYPE", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TranscriberAssemblyAI, cfg.Transcriber.Type)
	assert.Equal(t, "file-key", cfg.Transcriber.APIKey)
	assert.Equal(t, 10, cfg.Transcriber.RateLimitPerMin)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Poll.MaxAttempts)
	assert.Equal(t, "de", cfg.FallbackLanguage)
	assert.Equal(t, "fr", cfg.Defaults.Language)
	assert.Equal(t, 80, cfg.Defaults.Sensitivity)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)

	// Untouched sections keep their defaults
	assert.Equal(t, "transcripts.db", cfg.Storage.DBPath)
	assert.Equal(t, 2, cfg.Workers.Count)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  interval: 1s\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll:\n  max_attempts: 20\n"), 0o644))

	t.Setenv("POLL_MAX_ATTEMPTS", "40")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Poll.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnvParseErrors(t *testing.T) {
	env := map[string]string{
		"POLL_INTERVAL":  "soon",
		"WORKER_COUNT":   "many",
		"RATE_LIMIT_RPM": "12",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	err := cfg.applyEnv(lookup)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Contains(t, err.Error(), "WORKER_COUNT")
	assert.Equal(t, 12, cfg.Transcriber.RateLimitPerMin)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval, "invalid values leave the previous setting")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid mock", func(*Config) {}, ""},
		{"type is normalized", func(c *Config) { c.Transcriber.Type = " Mock " }, ""},
		{"assemblyai needs key", func(c *Config) { c.Transcriber.Type = "assemblyai" }, "api key is required"},
		{"assemblyai with key", func(c *Config) {
			c.Transcriber.Type = "assemblyai"
			c.Transcriber.APIKey = "k"
		}, ""},
		{"unknown type", func(c *Config) { c.Transcriber.Type = "whisper" }, "unknown type"},
		{"negative rate", func(c *Config) { c.Transcriber.RateLimitPerMin = -1 }, "rate limit"},
		{"zero interval", func(c *Config) { c.Poll.Interval = 0 }, "interval must be positive"},
		{"zero attempts", func(c *Config) { c.Poll.MaxAttempts = 0 }, "max attempts"},
		{"auto fallback", func(c *Config) { c.FallbackLanguage = "auto" }, "fallback language"},
		{"sensitivity range", func(c *Config) { c.Defaults.Sensitivity = 101 }, "sensitivity"},
		{"no db path", func(c *Config) { c.Storage.DBPath = "" }, "db path"},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, "count must be positive"},
		{"no concurrency", func(c *Config) { c.Workers.Concurrency = 0 }, "concurrency"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
