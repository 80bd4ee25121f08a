// Command mamalluca mirrors a Klipper printer's status through Moonraker and
// exposes it as Prometheus metrics.
//
// It keeps a reconnecting JSON-RPC session with Moonraker, subscribes to
// every printer object it knows how to interpret, applies status updates to
// an in-memory cache and projects the cache into metrics once per interval.
//
// Usage:
//
//	mamalluca [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-v                     Increase verbosity (repeatable: -v info, -v -v debug)
//	-moonraker-url string  Moonraker WebSocket URL (default "ws://127.0.0.1:7125/websocket")
//	-discover              Find Moonraker via mDNS instead of -moonraker-url
//	-listen string         Metrics listen address (default ":9101")
//	-interval duration     Export interval (default 1s)
//	-protocol-log string   Write a CBOR protocol capture to this file
//
// Examples:
//
//	# Export a local printer
//	mamalluca
//
//	# Export a printer on the network with debug logging
//	mamalluca -moonraker-url ws://voron.local:7125/websocket -v -v
//
//	# Discover the printer and record the protocol for mamalluca-log
//	mamalluca -discover -protocol-log /tmp/moonraker.mrlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mamalluca/mamalluca-go/internal/config"
	"github.com/mamalluca/mamalluca-go/pkg/discovery"
	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/metrics"
	"github.com/mamalluca/mamalluca-go/pkg/status"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
	"github.com/mamalluca/mamalluca-go/pkg/updater"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Flags holds command-line overrides. Empty values leave the
// configuration file (or the default) in place.
type Flags struct {
	ConfigFile   string
	Verbosity    verbosity
	MoonrakerURL string
	Discover     bool
	Listen       string
	Interval     time.Duration
	ProtocolLog  string
}

func parseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.ConfigFile, "config", "", "Configuration file path (YAML)")
	fs.Var(&f.Verbosity, "v", "Increase verbosity (repeatable)")
	fs.StringVar(&f.MoonrakerURL, "moonraker-url", "", "Moonraker WebSocket URL (default \""+config.DefaultMoonrakerURL+"\")")
	fs.BoolVar(&f.Discover, "discover", false, "Find Moonraker via mDNS")
	fs.StringVar(&f.Listen, "listen", "", "Metrics listen address (default \""+config.DefaultListen+"\")")
	fs.DurationVar(&f.Interval, "interval", 0, "Export interval (default 1s)")
	fs.StringVar(&f.ProtocolLog, "protocol-log", "", "Write a CBOR protocol capture to this file")
	err := fs.Parse(args)
	return f, err
}

// resolveConfig loads the configuration file, if any, and applies flags on
// top of it.
func resolveConfig(f Flags) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if f.MoonrakerURL != "" {
		cfg.Moonraker.URL = f.MoonrakerURL
	}
	if f.Discover {
		cfg.Moonraker.Discover = true
	}
	if f.Listen != "" {
		cfg.Exporter.Listen = f.Listen
	}
	if f.Interval != 0 {
		cfg.Exporter.Interval = f.Interval
	}
	if f.ProtocolLog != "" {
		cfg.Log.ProtocolFile = f.ProtocolLog
	}
	if f.Verbosity > 0 {
		cfg.Log.Level = f.Verbosity.Level().String()
	}

	return cfg, cfg.Validate()
}

func main() {
	fs := flag.NewFlagSet("mamalluca", flag.ExitOnError)
	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := resolveConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(os.Stderr, cfg.Log.Level, f.Verbosity.AddSource())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		stop()
		os.Exit(1)
	}
}

// run starts the session, consumer, exporter and HTTP server and blocks
// until ctx is done or one of them fails.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	endpoint := cfg.Moonraker.URL
	if cfg.Moonraker.Discover {
		svc, err := discover(ctx, cfg.Moonraker, logger)
		if err != nil {
			return err
		}
		endpoint = svc.URL()
	}

	plog, closeCapture, err := protocolLogger(cfg.Log, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	// Events queue inside the session until the updater starts consuming.
	session, err := transport.Connect(endpoint, transport.SessionConfig{
		Reconnect:      cfg.Moonraker.ReconnectConfig(),
		Logger:         logger.With("component", "transport"),
		ProtocolLogger: plog,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	cache := status.NewCache()

	// The exporter observes the updater and reads its state; it is created
	// second and reached through this closure.
	var exporter *metrics.Exporter
	upd := updater.New(session, cache, updater.Config{
		Logger:         logger.With("component", "updater"),
		ProtocolLogger: plog,
		Observer: updater.ObserverFunc(func(s updater.DeviceState) {
			if exporter != nil {
				exporter.DeviceStateChanged(s)
			}
		}),
	})

	exporter, err = metrics.NewExporter(cache, upd, metrics.ExporterConfig{
		Interval: cfg.Exporter.Interval,
		Logger:   logger.With("component", "exporter"),
	})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	logger.Info("starting", "moonraker", endpoint, "listen", cfg.Exporter.Listen, "path", cfg.Exporter.Path)

	mux := http.NewServeMux()
	mux.Handle(cfg.Exporter.Path, exporter.Handler())
	srv := &http.Server{
		Addr:              cfg.Exporter.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- upd.Run(ctx, session.Events())
	}()
	go func() {
		errCh <- exporter.Run(ctx)
	}()
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func discover(ctx context.Context, cfg config.MoonrakerConfig, logger *slog.Logger) (*discovery.MoonrakerService, error) {
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: cfg.Interface})
	defer browser.Stop()

	logger.Info("browsing for moonraker", "service", discovery.ServiceTypeMoonraker)
	svc, err := discovery.FindFirst(ctx, browser)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	logger.Info("found moonraker", "instance", svc.InstanceName, "url", svc.URL())
	return svc, nil
}

// protocolLogger builds the protocol capture sink. Events always reach the
// operational logger at debug level; a capture file is added when
// configured.
func protocolLogger(cfg config.LogConfig, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger.With("component", "protocol"))
	if cfg.ProtocolFile == "" {
		return adapter, func() {}, nil
	}

	file, err := log.NewRotatingFileLogger(cfg.ProtocolFile, cfg.ProtocolMaxBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	closeFn := func() {
		if err := file.Close(); err != nil {
			logger.Warn("closing protocol log", "error", err)
		}
		if n := file.Dropped(); n > 0 {
			logger.Warn("protocol log dropped events", "path", file.Path(), "dropped", n)
		}
	}
	return log.NewMultiLogger(adapter, file), closeFn, nil
}
