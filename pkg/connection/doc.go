// Package connection provides connection lifecycle management for the
// Moonraker session.
//
// This package handles:
//   - Exponential backoff for reconnection attempts
//   - Connection state tracking
//   - Automatic reconnection on connection loss
//
// # Reconnection Strategy
//
// The first attempt made by Start runs immediately. After a failed attempt
// or a lost connection the manager waits before trying again:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 500ms on successful connection
//
// # Jitter
//
//	actual_delay = base_delay + random(0, base_delay * 0.2)
//
// # Success Criteria
//
// A connection is successful when the WebSocket handshake completes. Klippy
// itself may still be starting; that is reported through printer events, not
// through the connection state.
package connection
