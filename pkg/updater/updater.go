package updater

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mamalluca/mamalluca-go/pkg/interaction"
	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/status"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
)

// ErrEventChannelClosed is returned by Run when the event stream ends
// while the updater is still running.
var ErrEventChannelClosed = errors.New("updater: event channel closed")

// DefaultCallTimeout bounds each call made during Bootstrap.
const DefaultCallTimeout = 30 * time.Second

// Config configures an Updater.
type Config struct {
	// Logger is used for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives subscription and Klippy state changes.
	ProtocolLogger log.Logger

	// Observer is told about device state changes. Optional.
	Observer Observer

	// CallTimeout bounds each Bootstrap call (default: 30s).
	CallTimeout time.Duration
}

// Updater applies session events to a status cache.
type Updater struct {
	client *interaction.Client
	cache  *status.Cache
	config Config
	logger *slog.Logger
	plog   log.Logger

	state  atomic.Int32
	device atomic.Int32

	// Only touched on the consumer goroutine.
	connID string
	// seededSeq is the frame sequence number of the subscribe reply the
	// cache was last seeded from. Status updates numbered below it are
	// already part of the seed.
	seededSeq uint64
}

// New creates an updater that issues calls through caller and maintains
// cache.
func New(caller interaction.Caller, cache *status.Cache, config Config) *Updater {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Updater{
		client: interaction.NewClient(caller),
		cache:  cache,
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
	}
}

// State returns the current connection state.
func (u *Updater) State() ConnectionState {
	return ConnectionState(u.state.Load())
}

// DeviceState returns the last reported Klippy state.
func (u *Updater) DeviceState() DeviceState {
	return DeviceState(u.device.Load())
}

// Cache returns the cache the updater maintains.
func (u *Updater) Cache() *status.Cache {
	return u.cache
}

// Run consumes events until ctx is done or the channel closes. It returns
// ctx.Err() on cancellation and ErrEventChannelClosed if the channel closes
// first.
func (u *Updater) Run(ctx context.Context, events <-chan transport.Event) error {
	u.setState(StateConnecting, "")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				u.logger.Error("event channel closed unexpectedly")
				return ErrEventChannelClosed
			}
			u.Handle(ctx, ev)
		}
	}
}

// Handle applies one event. It is exported for callers that drive the
// updater from their own loop; it must not be called concurrently.
func (u *Updater) Handle(ctx context.Context, ev transport.Event) {
	switch ev.Type {
	case transport.EventConnected:
		u.connID = ev.ConnectionID
		u.setState(StateConnected, "")
		u.setDeviceState(DeviceStateUnknown, "")
		if err := u.Bootstrap(ctx); err != nil {
			u.logger.Warn("bootstrap failed", "conn_id", u.connID, "error", err)
		}

	case transport.EventDisconnected:
		n := u.cache.Len()
		u.cache.Clear()
		reason := ""
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		u.setState(StateDisconnected, reason)
		u.logger.Info("disconnected, cache cleared", "conn_id", ev.ConnectionID, "entries", n)

	case transport.EventNotification:
		if ev.Notification == nil {
			return
		}
		u.route(ctx, ev.Seq, ev.Notification)

	default:
		u.logger.Debug("ignoring event", "type", ev.Type)
	}
}

func (u *Updater) setState(s ConnectionState, reason string) {
	old := ConnectionState(u.state.Swap(int32(s)))
	if old == s {
		return
	}
	u.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: u.connID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

func (u *Updater) setDeviceState(s DeviceState, reason string) {
	old := DeviceState(u.device.Swap(int32(s)))
	if old == s {
		return
	}
	u.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: u.connID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityKlippy,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
	if u.config.Observer != nil {
		u.config.Observer.DeviceStateChanged(s)
	}
}
