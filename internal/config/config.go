// Package config loads the mamalluca configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mamalluca/mamalluca-go/pkg/connection"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
)

// Defaults.
const (
	DefaultMoonrakerURL   = "ws://127.0.0.1:7125/websocket"
	DefaultListen         = ":9101"
	DefaultMetricsPath    = "/metrics"
	DefaultExportInterval = time.Second
	DefaultLogLevel       = "warn"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full configuration.
type Config struct {
	Moonraker MoonrakerConfig `yaml:"moonraker"`
	Exporter  ExporterConfig  `yaml:"exporter"`
	Log       LogConfig       `yaml:"log"`
}

// MoonrakerConfig selects and tunes the upstream connection.
type MoonrakerConfig struct {
	URL            string        `yaml:"url"`
	Discover       bool          `yaml:"discover"`
	Interface      string        `yaml:"interface"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// BackoffConfig mirrors connection.BackoffConfig.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// ExporterConfig configures the Prometheus endpoint.
type ExporterConfig struct {
	Listen   string        `yaml:"listen"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// ProtocolFile, if set, receives a CBOR protocol capture.
	ProtocolFile string `yaml:"protocol_file"`

	// ProtocolMaxBytes rotates the capture to <file>.1 once it would grow
	// past this size. Zero keeps a single growing file.
	ProtocolMaxBytes int64 `yaml:"protocol_max_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Moonraker: MoonrakerConfig{
			URL:            DefaultMoonrakerURL,
			ConnectTimeout: connection.DefaultConnectTimeout,
			Backoff: BackoffConfig{
				Initial:    connection.InitialBackoff,
				Max:        connection.MaxBackoff,
				Multiplier: connection.BackoffMultiplier,
				Jitter:     connection.JitterFactor,
			},
		},
		Exporter: ExporterConfig{
			Listen:   DefaultListen,
			Path:     DefaultMetricsPath,
			Interval: DefaultExportInterval,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that can never work.
func (c *Config) Validate() error {
	var errs []error

	if !c.Moonraker.Discover {
		if _, err := transport.ParseEndpoint(c.Moonraker.URL); err != nil {
			errs = append(errs, fmt.Errorf("moonraker.url: %w", err))
		}
	}
	if c.Moonraker.ConnectTimeout < 0 {
		errs = append(errs, errors.New("moonraker.connect_timeout must not be negative"))
	}
	b := c.Moonraker.Backoff
	if b.Initial < 0 || b.Max < 0 {
		errs = append(errs, errors.New("moonraker.backoff durations must not be negative"))
	}
	if b.Max > 0 && b.Initial > b.Max {
		errs = append(errs, errors.New("moonraker.backoff.initial exceeds max"))
	}
	if b.Multiplier != 0 && b.Multiplier <= 1 {
		errs = append(errs, errors.New("moonraker.backoff.multiplier must be greater than 1"))
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		errs = append(errs, errors.New("moonraker.backoff.jitter must be in [0, 1)"))
	}

	if c.Exporter.Listen == "" {
		errs = append(errs, errors.New("exporter.listen is required"))
	}
	if !strings.HasPrefix(c.Exporter.Path, "/") {
		errs = append(errs, errors.New("exporter.path must start with /"))
	}
	if c.Exporter.Interval <= 0 {
		errs = append(errs, errors.New("exporter.interval must be positive"))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.ProtocolMaxBytes < 0 {
		errs = append(errs, errors.New("log.protocol_max_bytes must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}

// ReconnectConfig converts the backoff settings for the transport.
func (c *MoonrakerConfig) ReconnectConfig() connection.Config {
	return connection.Config{
		Backoff: connection.BackoffConfig{
			Initial:    c.Backoff.Initial,
			Max:        c.Backoff.Max,
			Multiplier: c.Backoff.Multiplier,
			Jitter:     c.Backoff.Jitter,
		},
		ConnectTimeout: c.ConnectTimeout,
	}
}
