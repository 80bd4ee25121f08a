// Package log provides protocol capture for the Moonraker session.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (WebSocket, JSON-RPC, status
// synchronization). It is separate from operational logging (slog): capture
// provides a complete machine-readable trace of what was exchanged with
// Moonraker, for debugging and replay.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a capture file, rotated at 64 MiB
//	cfg.ProtocolLogger, _ = log.NewRotatingFileLogger("/var/log/mamalluca/session.mrlog", 64<<20)
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw WebSocket text frames (FrameEvent)
//   - Wire: Decoded JSON-RPC requests, responses and notifications (MessageEvent)
//   - Service: Connection, subscription and Klippy state (StateChangeEvent)
//
// WebSocket control frames (ping/pong/close) and errors have dedicated
// event types.
//
// # File Format
//
// Capture files are a stream of CBOR items, conventionally with the .mrlog
// extension. A rotated capture keeps its predecessor as <file>.1. The
// mamalluca-log tool views, filters and exports them, and NewReader reads
// them back in order.
package log
