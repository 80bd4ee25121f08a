package config

import (
	"log/slog"
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
	assert.Equal(t, "ws://127.0.0.1:7125/websocket", cfg.Moonraker.URL)
	assert.Equal(t, time.Second, cfg.Exporter.Interval)
	assert.Equal(t, ":9101", cfg.Exporter.Listen)
	assert.Equal(t, "/metrics", cfg.Exporter.Path)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
moonraker:
  url: ws://voron.local:7125/websocket
  backoff:
    initial: 1s
    max: 1m
exporter:
  interval: 5s
log:
  level: debug
  protocol_file: /tmp/capture.mrlog
  protocol_max_bytes: 1048576
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ws://voron.local:7125/websocket", cfg.Moonraker.URL)
	assert.Equal(t, time.Second, cfg.Moonraker.Backoff.Initial)
	assert.Equal(t, time.Minute, cfg.Moonraker.Backoff.Max)
	assert.Equal(t, 2.0, cfg.Moonraker.Backoff.Multiplier)
	assert.Equal(t, 5*time.Second, cfg.Exporter.Interval)
	assert.Equal(t, ":9101", cfg.Exporter.Listen)
	assert.Equal(t, "/tmp/capture.mrlog", cfg.Log.ProtocolFile)
	assert.Equal(t, int64(1<<20), cfg.Log.ProtocolMaxBytes)

	rc := cfg.Moonraker.ReconnectConfig()
	assert.Equal(t, time.Second, rc.Backoff.Initial)
	assert.Equal(t, time.Minute, rc.Backoff.Max)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("moonraker:\n  endpoint: ws://x/websocket\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.Moonraker.URL = "http://printer/websocket" }},
		{"zero interval", func(c *Config) { c.Exporter.Interval = 0 }},
		{"no listen", func(c *Config) { c.Exporter.Listen = "" }},
		{"relative path", func(c *Config) { c.Exporter.Path = "metrics" }},
		{"initial above max", func(c *Config) { c.Moonraker.Backoff.Initial = time.Hour }},
		{"jitter too large", func(c *Config) { c.Moonraker.Backoff.Jitter = 1.5 }},
		{"multiplier one", func(c *Config) { c.Moonraker.Backoff.Multiplier = 1 }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
		{"negative capture size", func(c *Config) { c.Log.ProtocolMaxBytes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidateDiscoverIgnoresURL(t *testing.T) {
	cfg := Default()
	cfg.Moonraker.Discover = true
	cfg.Moonraker.URL = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mamalluca.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exporter:\n  listen: 127.0.0.1:9200\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9200", cfg.Exporter.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("info")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)

	l, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
}
