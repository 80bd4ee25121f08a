package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamalluca/mamalluca-go/internal/config"
	"github.com/mamalluca/mamalluca-go/internal/moontest"
	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

func parse(t *testing.T, args ...string) Flags {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, err := parseFlags(fs, args)
	require.NoError(t, err)
	return f
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		args   []string
		level  slog.Level
		source bool
	}{
		{nil, slog.LevelWarn, false},
		{[]string{"-v"}, slog.LevelInfo, false},
		{[]string{"-v", "-v"}, slog.LevelDebug, false},
		{[]string{"-v", "-v", "-v"}, slog.LevelDebug, true},
		{[]string{"-v=2"}, slog.LevelDebug, false},
	}

	for _, tt := range tests {
		f := parse(t, tt.args...)
		assert.Equal(t, tt.level, f.Verbosity.Level(), "args %v", tt.args)
		assert.Equal(t, tt.source, f.Verbosity.AddSource(), "args %v", tt.args)
	}
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := resolveConfig(parse(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mamalluca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
moonraker:
  url: ws://printer.lan:7125/websocket
exporter:
  listen: ":9200"
  interval: 5s
log:
  level: error
`), 0o600))

	cfg, err := resolveConfig(parse(t,
		"-config", path,
		"-listen", "127.0.0.1:9300",
		"-v",
		"-protocol-log", "/tmp/capture.mrlog",
	))
	require.NoError(t, err)

	assert.Equal(t, "ws://printer.lan:7125/websocket", cfg.Moonraker.URL)
	assert.Equal(t, "127.0.0.1:9300", cfg.Exporter.Listen)
	assert.Equal(t, 5*time.Second, cfg.Exporter.Interval)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, "/tmp/capture.mrlog", cfg.Log.ProtocolFile)
}

func TestResolveConfigRejectsBadURL(t *testing.T) {
	_, err := resolveConfig(parse(t, "-moonraker-url", "http://printer.lan"))
	assert.ErrorIs(t, err, config.ErrInvalid)

	// Discovery does not need a URL.
	_, err = resolveConfig(parse(t, "-moonraker-url", "http://printer.lan", "-discover"))
	assert.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger(&buf, "loud", false)
	assert.Error(t, err)
}

func TestRunSubscribesAndStops(t *testing.T) {
	srv := moontest.NewServer()
	defer srv.Close()
	srv.SetObjects("extruder", "heater_bed", "gcode_macro START")
	srv.SetStatus("extruder", map[string]any{"temperature": 21.5})

	capture := filepath.Join(t.TempDir(), "capture.mrlog")
	cfg := config.Default()
	cfg.Moonraker.URL = srv.URL
	cfg.Exporter.Listen = "127.0.0.1:0"
	cfg.Exporter.Interval = 10 * time.Millisecond
	cfg.Log.ProtocolFile = capture

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	_, err := srv.WaitForRequests(wire.MethodObjectsSubscribe, 1, 5*time.Second)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	r, err := log.NewReader(capture)
	require.NoError(t, err)
	defer r.Close()
	ev, err := r.Next()
	require.NoError(t, err)
	assert.False(t, ev.Timestamp.IsZero())
}
