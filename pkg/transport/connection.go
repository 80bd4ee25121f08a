package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates graceful close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
)

// DefaultMaxMessageSize bounds a single inbound WebSocket message.
// Full printer.objects.subscribe replies on large machines exceed 1 MiB.
const DefaultMaxMessageSize = 8 << 20

// ConnectionConfig configures a WebSocket connection to Moonraker.
type ConnectionConfig struct {
	// MaxMessageSize is the maximum inbound message size (default: 8 MiB).
	MaxMessageSize int64

	// KeepAlive configuration
	KeepAlive KeepAliveConfig

	// HandshakeTimeout bounds the WebSocket upgrade (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout is the deadline for each write (default: 10s).
	WriteTimeout time.Duration

	// CloseTimeout is how long Close waits for the peer to answer the
	// close frame (default: 2s).
	CloseTimeout time.Duration

	// Header is sent with the upgrade request.
	Header http.Header
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxMessageSize:   DefaultMaxMessageSize,
		KeepAlive:        DefaultKeepAliveConfig(),
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		CloseTimeout:     2 * time.Second,
	}
}

func (c *ConnectionConfig) applyDefaults() {
	def := DefaultConnectionConfig()
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = def.CloseTimeout
	}
}

// ConnectionHandler handles connection events.
// Callbacks run on the connection's read goroutine, except OnStateChange
// for the transitions made by Connect and Close.
type ConnectionHandler interface {
	// OnMessage is called for every inbound text message, in arrival order.
	OnMessage(msg []byte)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called when the connection fails.
	OnError(err error)

	// OnControl is called for ping, pong and close frames in either
	// direction.
	OnControl(frameType int, outbound bool)
}

// ParseEndpoint validates a Moonraker WebSocket URL.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q is not ws or wss", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return u, nil
}

// Connection is one WebSocket connection to Moonraker.
// A Connection is used for a single dial; reconnecting creates a new one.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler

	// Network connection
	ws *websocket.Conn

	// Keep-alive
	keepAlive *KeepAlive
	rtt       atomic.Int64

	// State
	state     atomic.Int32
	startOnce sync.Once
	closeOnce sync.Once
	readDone  chan struct{}

	// Synchronization
	mu      sync.RWMutex
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnection creates a new connection (not yet connected).
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	config.applyDefaults()

	c := &Connection{
		config:   config,
		handler:  handler,
		readDone: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))

	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connect dials endpoint and performs the WebSocket upgrade.
// Reading does not begin until Start is called.
func (c *Connection) Connect(ctx context.Context, endpoint string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, c.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial %s: %w (HTTP %d)", endpoint, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	ws.SetReadLimit(c.config.MaxMessageSize)

	c.mu.Lock()
	c.ws = ws
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected)

	return nil
}

// Start begins reading messages and sending keep-alive pings.
func (c *Connection) Start() {
	if c.State() != StateConnected {
		return
	}
	c.startOnce.Do(func() {
		c.mu.RLock()
		ws := c.ws
		c.mu.RUnlock()

		ws.SetPingHandler(func(data string) error {
			c.handler.OnControl(websocket.PingMessage, false)
			c.handler.OnControl(websocket.PongMessage, true)
			err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.config.WriteTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				return err
			}
			return nil
		})
		ws.SetPongHandler(func(data string) error {
			c.handler.OnControl(websocket.PongMessage, false)
			if seq, err := DecodePingPayload(data); err == nil && c.keepAlive != nil {
				c.keepAlive.PongReceived(seq)
			}
			return nil
		})

		c.startKeepAlive()
		go c.readLoop(ws)
	})
}

// Send writes one text message.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()

	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	defer ws.SetWriteDeadline(time.Time{})

	return ws.WriteMessage(websocket.TextMessage, data)
}

// sendPing writes a ping control frame carrying seq.
func (c *Connection) sendPing(seq uint32) error {
	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()

	if ws == nil || c.State() != StateConnected {
		return ErrNotConnected
	}
	return ws.WriteControl(websocket.PingMessage, EncodePingPayload(seq), time.Now().Add(c.config.WriteTimeout))
}

// Close sends a close frame, waits briefly for the peer to answer, then
// closes the socket.
func (c *Connection) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		currentState := c.State()
		if currentState == StateDisconnected {
			return
		}

		c.state.Store(int32(StateClosing))
		c.notifyStateChange(currentState, StateClosing)

		c.mu.RLock()
		ws := c.ws
		c.mu.RUnlock()

		if ws != nil {
			c.handler.OnControl(websocket.CloseMessage, true)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			closeErr = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout))

			// The read loop exits when the peer's close frame arrives.
			if c.startedReading() {
				select {
				case <-c.readDone:
				case <-time.After(c.config.CloseTimeout):
				}
			}
		}

		c.teardown()
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateClosing, StateDisconnected)
	})

	return closeErr
}

// ForceClose immediately closes the socket without a close handshake.
func (c *Connection) ForceClose() {
	c.closeOnce.Do(func() {
		currentState := c.State()

		c.teardown()

		c.state.Store(int32(StateDisconnected))
		if currentState != StateDisconnected {
			c.notifyStateChange(currentState, StateDisconnected)
		}
	})
}

// Done is closed when the read loop has exited. It is never closed if
// Start was not called.
func (c *Connection) Done() <-chan struct{} {
	return c.readDone
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ws != nil {
		return c.ws.RemoteAddr()
	}
	return nil
}

func (c *Connection) startedReading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keepAlive != nil
}

func (c *Connection) teardown() {
	c.mu.Lock()
	ka := c.keepAlive
	cancel := c.cancel
	ws := c.ws
	c.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close()
	}
}

// startKeepAlive starts probing the peer with pings.
func (c *Connection) startKeepAlive() {
	ka := NewKeepAlive(c.config.KeepAlive, KeepAliveHooks{
		Ping: func(seq uint32) error {
			c.handler.OnControl(websocket.PingMessage, true)
			return c.sendPing(seq)
		},
		Timeout: func() {
			c.handler.OnError(fmt.Errorf("keep-alive timeout after %d unanswered pings", c.config.KeepAlive.withDefaults().MaxMissedPongs))
			c.ForceClose()
		},
		Pong: func(_ uint32, rtt time.Duration) {
			c.rtt.Store(int64(rtt))
		},
	})

	c.mu.Lock()
	c.keepAlive = ka
	ctx := c.ctx
	c.mu.Unlock()

	ka.Start(ctx)
}

// RTT returns the round trip of the last answered keep-alive ping, or 0
// before the first pong.
func (c *Connection) RTT() time.Duration {
	return time.Duration(c.rtt.Load())
}

// readLoop reads messages until the socket fails or is closed.
func (c *Connection) readLoop(ws *websocket.Conn) {
	defer close(c.readDone)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			state := c.State()
			if state == StateClosing || state == StateDisconnected {
				return // Expected during close
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.handler.OnControl(websocket.CloseMessage, false)
			}
			c.handler.OnError(fmt.Errorf("read error: %w", err))
			c.ForceClose()
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}
		c.handler.OnMessage(data)
	}
}

// notifyStateChange notifies the handler of state changes.
func (c *Connection) notifyStateChange(oldState, newState ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
