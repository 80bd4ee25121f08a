package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// DefaultConnectTimeout bounds a single connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc is called to establish a connection.
// It should return nil on success or an error on failure.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Backoff controls the delay between attempts.
	Backoff BackoffConfig

	// ConnectTimeout bounds each call to the ConnectFunc.
	// Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Manager manages connection lifecycle with automatic reconnection.
type Manager struct {
	mu sync.RWMutex

	// Current state
	state State

	// Backoff calculator
	backoff *Backoff

	// Connection function
	connectFn      ConnectFunc
	connectTimeout time.Duration

	// Auto-reconnect enabled
	autoReconnect bool

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for reconnection goroutine
	wg       sync.WaitGroup
	loopOnce sync.Once

	// Channel to signal reconnection should start. The value tells the loop
	// whether to skip the first backoff delay.
	reconnectCh chan bool

	// Callbacks
	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
	onConnectError func(attempt int, err error)
}

// NewManager creates a new connection manager with default settings.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, Config{})
}

// NewManagerWithConfig creates a connection manager with custom settings.
func NewManagerWithConfig(connectFn ConnectFunc, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoff(cfg.Backoff),
		connectFn:      connectFn,
		connectTimeout: cfg.ConnectTimeout,
		autoReconnect:  true,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan bool, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Start begins connecting in the background. The first attempt is made
// immediately; failures are retried with backoff until one succeeds or the
// manager is closed.
func (m *Manager) Start() error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnecting)

	m.StartReconnectLoop()
	m.triggerReconnect(true)
	return nil
}

// Connect makes a single synchronous connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}

	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnecting)

	// Attempt connection
	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyStateChange(StateConnecting, StateDisconnected)
		return err
	}

	m.state = StateConnected
	m.backoff.Reset()
	m.mu.Unlock()

	m.notifyStateChange(StateConnecting, StateConnected)
	if fn := m.connectedCallback(); fn != nil {
		fn()
	}

	return nil
}

// Disconnect marks the connection as closed by the local side.
// If autoReconnect is enabled, reconnection will be attempted.
func (m *Manager) Disconnect() {
	m.connectionEnded()
}

// NotifyConnectionLost should be called when a connection loss is detected.
// Only the first call per established connection has an effect; it fires
// OnDisconnected and triggers automatic reconnection if enabled.
func (m *Manager) NotifyConnectionLost() {
	m.connectionEnded()
}

func (m *Manager) connectionEnded() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	autoReconnect := m.autoReconnect

	if autoReconnect {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	onDisconnected := m.onDisconnected
	m.mu.Unlock()

	m.notifyStateChange(oldState, newState)
	if onDisconnected != nil {
		onDisconnected()
	}

	if autoReconnect {
		m.triggerReconnect(false)
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Start calls it; calling it more than once has no effect.
func (m *Manager) StartReconnectLoop() {
	m.loopOnce.Do(func() {
		m.wg.Add(1)
		go m.reconnectLoop()
	})
}

// Close shuts down the connection manager and waits for the reconnection
// loop to exit. A connection attempt in flight is cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}

	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

// Done is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect(immediate bool) {
	select {
	case m.reconnectCh <- immediate:
	default:
		// Already pending
	}
}

// reconnectLoop runs in a goroutine and handles reconnection attempts.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case immediate := <-m.reconnectCh:
			m.attemptReconnect(immediate)
		}
	}
}

// attemptReconnect performs connection attempts with backoff until one
// succeeds or the manager is closed.
func (m *Manager) attemptReconnect(immediate bool) {
	attempt := 0
	for {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()

		if state == StateClosed || state == StateConnected {
			return
		}

		attempt++
		if !immediate || attempt > 1 {
			delay := m.backoff.Peek()
			if fn := m.reconnectingCallback(); fn != nil {
				fn(m.backoff.Attempts()+1, delay)
			}
			if _, err := m.backoff.Wait(m.ctx); err != nil {
				return
			}
		}

		// Attempt connection
		m.mu.Lock()
		if m.state == StateClosed || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, m.connectTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			if fn := m.connectErrorCallback(); fn != nil {
				fn(attempt, err)
			}
			continue
		}

		m.mu.Lock()
		if m.state == StateClosed {
			m.mu.Unlock()
			return
		}
		oldState := m.state
		m.state = StateConnected
		m.backoff.Reset()
		m.mu.Unlock()

		m.notifyStateChange(oldState, StateConnected)
		if fn := m.connectedCallback(); fn != nil {
			fn()
		}
		return
	}
}

func (m *Manager) notifyStateChange(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

func (m *Manager) connectedCallback() func() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onConnected
}

func (m *Manager) reconnectingCallback() func(int, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onReconnecting
}

func (m *Manager) connectErrorCallback() func(int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onConnectError
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for successful connection.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for disconnection.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each delayed attempt.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// OnConnectError sets a callback for failed connection attempts made by the
// background loop.
func (m *Manager) OnConnectError(fn func(attempt int, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnectError = fn
}

// BackoffAttempts returns the current number of reconnection attempts.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}
