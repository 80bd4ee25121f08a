package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mamalluca/mamalluca-go/pkg/connection"
	"github.com/mamalluca/mamalluca-go/pkg/interaction"
	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// Session errors.
var (
	// ErrConnectionLost fails calls that were pending when the connection
	// dropped.
	ErrConnectionLost = errors.New("connection lost")

	// ErrSessionClosed fails calls made after, or pending during, Close.
	ErrSessionClosed = errors.New("session closed")
)

var _ interaction.SequencedCaller = (*Session)(nil)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Connection configures each WebSocket connection.
	Connection ConnectionConfig

	// Reconnect configures backoff between connection attempts.
	Reconnect connection.Config

	// Logger is used for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

type inflight struct {
	method string
	sent   time.Time
}

// Session is a reconnecting JSON-RPC session with Moonraker.
//
// It owns at most one live Connection at a time. Inbound frames are handled
// by that connection's read goroutine in arrival order: responses resolve
// pending calls, notifications are queued for Events. Call is safe for
// concurrent use.
type Session struct {
	endpoint string
	config   SessionConfig
	logger   *slog.Logger
	plog     log.Logger

	correlator *interaction.Correlator
	manager    *connection.Manager

	// frameSeq numbers decoded inbound frames. Only the read goroutine of
	// the live connection advances it.
	frameSeq atomic.Uint64

	mu       sync.Mutex
	conn     *Connection
	connID   string
	inflight map[uint64]inflight

	queue  *eventQueue
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
	pumpDone  chan struct{}
}

// Connect validates endpoint and starts a session that connects in the
// background and keeps reconnecting until Close. The only error returned
// is for an endpoint that can never be dialed.
func Connect(endpoint string, config SessionConfig) (*Session, error) {
	if _, err := ParseEndpoint(endpoint); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	config.Connection.applyDefaults()

	s := &Session{
		endpoint:   endpoint,
		config:     config,
		logger:     logger.With("endpoint", endpoint),
		plog:       log.OrNoop(config.ProtocolLogger),
		correlator: interaction.NewCorrelator(),
		inflight:   make(map[uint64]inflight),
		queue:      newEventQueue(),
		events:     make(chan Event),
		done:       make(chan struct{}),
		pumpDone:   make(chan struct{}),
	}

	s.manager = connection.NewManagerWithConfig(s.dial, config.Reconnect)
	s.manager.OnStateChange(s.onManagerState)
	s.manager.OnConnected(s.onConnected)
	s.manager.OnReconnecting(func(attempt int, delay time.Duration) {
		s.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	})
	s.manager.OnConnectError(func(attempt int, err error) {
		s.logger.Warn("connect failed", "attempt", attempt, "error", err)
	})

	go s.pump()

	if err := s.manager.Start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Events returns the lifecycle and notification stream. The channel is
// closed after Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Endpoint returns the WebSocket URL the session dials.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// State returns the connection manager's state.
func (s *Session) State() connection.State {
	return s.manager.State()
}

// RTT returns the keep-alive round trip of the current connection, or 0
// while disconnected or before the first pong.
func (s *Session) RTT() time.Duration {
	conn, _ := s.current()
	if conn == nil {
		return 0
	}
	return conn.RTT()
}

// Pending returns the number of calls awaiting a response.
func (s *Session) Pending() int {
	return s.correlator.Pending()
}

// Call sends a JSON-RPC request and waits for its response.
//
// It returns the raw result on success, a *wire.RemoteError if Moonraker
// answered with an error object, ErrConnectionLost if the connection dropped
// first, ErrNotConnected if there is no connection, or ctx.Err().
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, _, err := s.CallSeq(ctx, method, params)
	return raw, err
}

// CallSeq is Call that also returns the inbound frame sequence number of
// the response. Notifications on Events with a lower Seq arrived before
// the response.
func (s *Session) CallSeq(ctx context.Context, method string, params any) (json.RawMessage, uint64, error) {
	select {
	case <-s.done:
		return nil, 0, ErrSessionClosed
	default:
	}

	id := s.correlator.NextID()
	req := wire.NewRequest(method, id, params)
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, 0, err
	}

	// Registration happens under s.mu so a concurrent connectionLost either
	// sees this call and fails it, or the call sees no connection.
	s.mu.Lock()
	conn, connID := s.conn, s.connID
	if conn == nil {
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("%s: %w", method, ErrNotConnected)
	}
	slot, err := s.correlator.Register(id)
	if err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	s.inflight[id] = inflight{method: method, sent: time.Now()}
	s.mu.Unlock()

	s.logRequest(connID, id, method, params)

	if err := conn.Send(data); err != nil {
		s.forget(id)
		return nil, 0, fmt.Errorf("%s: send: %w", method, err)
	}

	select {
	case res := <-slot:
		if res.Err != nil {
			return nil, res.Seq, res.Err
		}
		return res.Value, res.Seq, nil
	case <-ctx.Done():
		s.forget(id)
		return nil, 0, ctx.Err()
	}
}

// SendAsync sends a JSON-RPC notification without waiting for anything.
func (s *Session) SendAsync(method string, params any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	conn, connID := s.current()
	if conn == nil {
		return fmt.Errorf("%s: %w", method, ErrNotConnected)
	}

	data, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}

	s.logOutbound(connID, log.MessageTypeNotification, 0, method, params)
	return conn.Send(data)
}

// Close stops reconnecting, closes the connection, fails every pending call
// with ErrSessionClosed and closes the Events channel.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.manager.Close()

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		n := s.correlator.FailAll(ErrSessionClosed)
		s.inflight = make(map[uint64]inflight)
		s.mu.Unlock()

		if n > 0 {
			s.logger.Debug("failed pending calls on close", "count", n)
		}
		if conn != nil {
			err = conn.Close()
			if errors.Is(err, websocket.ErrCloseSent) {
				err = nil
			}
		}
		<-s.pumpDone
	})
	return err
}

// dial is the connection manager's ConnectFunc.
func (s *Session) dial(ctx context.Context) error {
	connID := uuid.New().String()
	h := &connHandler{session: s, connID: connID}
	conn := NewConnection(s.config.Connection, h)
	h.conn = conn

	if err := conn.Connect(ctx, s.endpoint); err != nil {
		s.logError(connID, log.LayerTransport, err, "dial")
		return err
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		conn.ForceClose()
		return ErrSessionClosed
	default:
	}
	s.conn = conn
	s.connID = connID
	s.mu.Unlock()

	if addr := conn.RemoteAddr(); addr != nil {
		s.logger.Info("connected", "conn_id", connID, "remote", addr.String())
	}
	return nil
}

// onConnected runs after the manager marks the connection established.
// Connected is queued before the read loop starts so it precedes every
// notification of the new epoch.
func (s *Session) onConnected() {
	conn, connID := s.current()
	if conn == nil {
		return
	}
	s.queue.push(Event{Type: EventConnected, ConnectionID: connID})
	conn.Start()
}

func (s *Session) onManagerState(oldState, newState connection.State) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.currentID(),
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		Endpoint:     s.endpoint,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})
}

// connectionLost tears down state for conn exactly once.
func (s *Session) connectionLost(conn *Connection, connID string, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	n := s.correlator.FailAll(ErrConnectionLost)
	s.inflight = make(map[uint64]inflight)
	s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	s.logger.Warn("connection lost", "conn_id", connID, "failed_calls", n, "error", cause)

	s.queue.push(Event{Type: EventDisconnected, ConnectionID: connID, Err: cause})
	s.manager.NotifyConnectionLost()
}

// dispatch handles one inbound text frame.
func (s *Session) dispatch(connID string, data []byte) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        log.NewFrameEvent(data, 0),
	})

	frame, err := wire.DecodeFrame(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "conn_id", connID, "error", err)
		s.logError(connID, log.LayerWire, err, "decode")
		return
	}
	seq := s.frameSeq.Add(1)

	switch frame.Type {
	case wire.MessageTypeResponse:
		s.logResponse(connID, frame.Response)
		if !s.correlator.Resolve(frame.Response, seq) {
			s.logger.Warn("response for unknown call id", "conn_id", connID, "id", frame.Response.ID)
			s.logError(connID, log.LayerWire, fmt.Errorf("response for unknown call id %d", frame.Response.ID), "dispatch")
		}

	case wire.MessageTypeNotification:
		n := frame.Notification
		s.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:    log.MessageTypeNotification,
				Method:  n.Method,
				Payload: n.Params,
			},
		})
		s.queue.push(Event{Type: EventNotification, ConnectionID: connID, Seq: seq, Notification: n})
	}
}

// pump moves queued events to the Events channel.
func (s *Session) pump() {
	defer close(s.pumpDone)
	defer close(s.events)

	for {
		ev, ok := s.queue.pop()
		if !ok {
			select {
			case <-s.queue.signal:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Session) current() (*Connection, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.connID
}

func (s *Session) currentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// forget drops a call that will not be awaited.
func (s *Session) forget(id uint64) {
	s.correlator.Cancel(id)
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// connHandler routes one connection's callbacks to the session.
type connHandler struct {
	session *Session
	conn    *Connection
	connID  string
}

func (h *connHandler) OnMessage(msg []byte) {
	h.session.dispatch(h.connID, msg)
}

func (h *connHandler) OnStateChange(oldState, newState ConnectionState) {
	if newState == StateDisconnected && oldState != StateConnecting {
		h.session.connectionLost(h.conn, h.connID, nil)
	}
}

func (h *connHandler) OnError(err error) {
	h.session.logError(h.connID, log.LayerTransport, err, "read")
	h.session.connectionLost(h.conn, h.connID, err)
}

func (h *connHandler) OnControl(frameType int, outbound bool) {
	var typ log.ControlMsgType
	switch frameType {
	case websocket.PingMessage:
		typ = log.ControlMsgPing
	case websocket.PongMessage:
		typ = log.ControlMsgPong
	case websocket.CloseMessage:
		typ = log.ControlMsgClose
	default:
		return
	}
	dir := log.DirectionIn
	if outbound {
		dir = log.DirectionOut
	}
	h.session.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: h.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: typ},
	})
}
