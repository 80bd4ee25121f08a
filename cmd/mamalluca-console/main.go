// Command mamalluca-console is an interactive JSON-RPC shell for Moonraker.
//
// It opens the same reconnecting session the exporter uses and lets you
// issue arbitrary calls while printing the notifications Moonraker pushes.
//
// Usage:
//
//	mamalluca-console [flags]
//
// Flags:
//
//	-moonraker-url string  Moonraker WebSocket URL (default "ws://127.0.0.1:7125/websocket")
//	-discover              Find Moonraker via mDNS
//	-interface string      Network interface for mDNS discovery
//	-protocol-log string   Write a CBOR protocol capture to this file
//	-log-level string      Log level: debug, info, warn, error (default "warn")
//
// Examples:
//
//	# Query the local printer
//	mamalluca-console
//	moonraker> call printer.objects.query {"objects": {"extruder": null}}
//
//	# Watch status updates from a discovered printer
//	mamalluca-console -discover
//	moonraker> subscribe extruder heater_bed
//	moonraker> watch notify_status_update
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mamalluca/mamalluca-go/cmd/mamalluca-console/interactive"
	"github.com/mamalluca/mamalluca-go/internal/config"
	"github.com/mamalluca/mamalluca-go/pkg/discovery"
	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
)

var (
	moonrakerURL = flag.String("moonraker-url", config.DefaultMoonrakerURL, "Moonraker WebSocket URL")
	discover     = flag.Bool("discover", false, "Find Moonraker via mDNS")
	iface        = flag.String("interface", "", "Network interface for mDNS discovery")
	protocolLog  = flag.String("protocol-log", "", "Write a CBOR protocol capture to this file")
	logLevel     = flag.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	endpoint := *moonrakerURL
	if *discover {
		browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: *iface})
		svc, err := discovery.FindFirst(ctx, browser)
		browser.Stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: discover: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Found %s at %s\n", svc.InstanceName, svc.URL())
		endpoint = svc.URL()
	}

	var plog log.Logger
	if *protocolLog != "" {
		fl, err := log.NewFileLogger(*protocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: protocol log: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		plog = fl
	}

	// Log output moves to the readline writer once the console exists.
	out := &lateWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	defaults := config.Default()
	session, err := transport.Connect(endpoint, transport.SessionConfig{
		Reconnect:      defaults.Moonraker.ReconnectConfig(),
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	console, err := interactive.New(session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	out.set(console.Stdout())

	console.Run(ctx, cancel)
}

// lateWriter forwards to a writer that can be replaced after construction.
type lateWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lateWriter) set(w io.Writer) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}

func (l *lateWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
