// Package transport provides the Moonraker WebSocket session.
//
// The transport layer handles:
//   - WebSocket connections (github.com/gorilla/websocket)
//   - JSON-RPC 2.0 request/response correlation
//   - Classification of inbound frames into responses and notifications
//   - Keep-alive ping/pong for connection liveness
//   - Automatic reconnection with backoff
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   JSON-RPC 2.0 (pkg/wire)      │
//	├────────────────────────────────┤
//	│   WebSocket text frames        │
//	├────────────────────────────────┤
//	│   HTTP/1.1 upgrade, TCP        │
//	└────────────────────────────────┘
//
// # Session Lifecycle
//
// Connect validates the endpoint and returns immediately; the first dial
// happens in the background. Every successful handshake emits
// EventConnected on Events. When the connection drops, every pending Call
// fails with ErrConnectionLost, EventDisconnected is emitted, and the
// session redials with backoff. Close ends the session and closes Events.
//
//	sess, err := transport.Connect("ws://127.0.0.1:7125/websocket", transport.SessionConfig{})
//	for ev := range sess.Events() {
//	    switch ev.Type {
//	    case transport.EventConnected:
//	        result, err := sess.Call(ctx, "printer.objects.list", nil)
//	        ...
//	    }
//	}
//
// # Keep-Alive
//
// Connection liveness is monitored using WebSocket ping/pong frames:
//   - Ping interval: 30 seconds
//   - Pong timeout: 10 seconds
//   - Max missed pongs: 2
//   - Maximum detection delay: 70 seconds
package transport
