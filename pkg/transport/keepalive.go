package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Moonraker answers WebSocket pings but never sends its own, so liveness
// is probed from this side.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 10 * time.Second
	DefaultMaxMissedPongs = 2
)

// EncodePingPayload renders a probe sequence number as ping application
// data. Peers echo it back verbatim in the pong.
func EncodePingPayload(seq uint32) []byte {
	return strconv.AppendUint(nil, uint64(seq), 10)
}

// DecodePingPayload parses the application data of a pong frame.
func DecodePingPayload(data string) (uint32, error) {
	seq, err := strconv.ParseUint(data, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad pong payload %q: %w", data, err)
	}
	return uint32(seq), nil
}

// KeepAliveConfig configures liveness probing. Zero fields take the
// defaults.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default probing configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// DetectionDelay is the longest a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	c = c.withDefaults()
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAliveHooks connects a KeepAlive to its socket. Ping is required;
// the others may be nil. Hooks run on the probe goroutine.
type KeepAliveHooks struct {
	// Ping sends a ping carrying seq.
	Ping func(seq uint32) error

	// Timeout is called once MaxMissedPongs probes went unanswered.
	Timeout func()

	// Pong is called with the round trip of each answered probe.
	Pong func(seq uint32, rtt time.Duration)
}

// KeepAliveStats is a snapshot of the probe state.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastRTT      time.Duration
	MissedPongs  int
	CurrentSeq   uint32
}

// probe is an unanswered ping.
type probe struct {
	seq  uint32
	sent time.Time
}

// KeepAlive pings on an interval and reports a dead peer after too many
// unanswered probes. Only the newest probe is tracked; late pongs for
// older ones are ignored.
type KeepAlive struct {
	config KeepAliveConfig
	hooks  KeepAliveHooks
	pongCh chan uint32

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	seq     uint32
	pending *probe
	stats   KeepAliveStats
}

// NewKeepAlive returns a stopped KeepAlive.
func NewKeepAlive(config KeepAliveConfig, hooks KeepAliveHooks) *KeepAlive {
	return &KeepAlive{
		config: config.withDefaults(),
		hooks:  hooks,
		pongCh: make(chan uint32, 1),
	}
}

// Start launches the probe goroutine, which runs until Stop or ctx ends.
// Starting a running KeepAlive does nothing.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.run(ctx, ka.stopCh)
}

// Stop ends probing. It is safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the probe goroutine is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived hands a pong to the probe goroutine. It is called from the
// WebSocket pong handler and never blocks.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// Stats returns a snapshot of the probe state.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	s := ka.stats
	s.CurrentSeq = ka.seq
	return s
}

func (ka *KeepAlive) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	if ka.ping() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if ka.expire() || ka.ping() {
				return
			}
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

// expire counts the pending probe as missed once its timeout passed. It
// reports whether the peer is now considered dead.
func (ka *KeepAlive) expire() bool {
	ka.mu.Lock()
	p := ka.pending
	if p == nil || time.Since(p.sent) < ka.config.PongTimeout {
		ka.mu.Unlock()
		return false
	}
	ka.pending = nil
	return ka.miss()
}

// ping sends the next probe and reports whether the peer is considered
// dead because the send failed once too often.
func (ka *KeepAlive) ping() bool {
	ka.mu.Lock()
	ka.seq++
	p := &probe{seq: ka.seq, sent: time.Now()}
	ka.pending = p
	ka.stats.LastPingTime = p.sent
	ka.mu.Unlock()

	if err := ka.hooks.Ping(p.seq); err != nil {
		// The read loop notices a closed socket by itself; a half-open one
		// only shows up here.
		ka.mu.Lock()
		ka.pending = nil
		return ka.miss()
	}
	return false
}

// miss records a missed probe. It is called with ka.mu held and releases
// it.
func (ka *KeepAlive) miss() bool {
	ka.stats.MissedPongs++
	dead := ka.stats.MissedPongs >= ka.config.MaxMissedPongs
	ka.mu.Unlock()

	if dead && ka.hooks.Timeout != nil {
		ka.hooks.Timeout()
	}
	return dead
}

func (ka *KeepAlive) pong(seq uint32) {
	now := time.Now()

	ka.mu.Lock()
	ka.stats.LastPongTime = now
	p := ka.pending
	if p == nil || p.seq != seq {
		ka.mu.Unlock()
		return
	}
	rtt := now.Sub(p.sent)
	ka.pending = nil
	ka.stats.MissedPongs = 0
	ka.stats.LastRTT = rtt
	ka.mu.Unlock()

	if ka.hooks.Pong != nil {
		ka.hooks.Pong(seq, rtt)
	}
}
