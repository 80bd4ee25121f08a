package connection

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Default backoff parameters. Klippy restarts take a few seconds and a
// printer host reboot well under a minute, so the cap stays short.
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest extra delay as a fraction of the base.
	JitterFactor = 0.2
)

// BackoffConfig describes an exponential backoff. Zero fields take the
// package defaults; a Multiplier <= 1 is treated as unset.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns the package defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Initial > c.Max {
		c.Initial = c.Max
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Base returns the un-jittered delay before retry number attempt (0-based).
func (c BackoffConfig) Base(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	if d >= float64(c.Max) || math.IsInf(d, 1) {
		return c.Max
	}
	return time.Duration(d)
}

// Sequence returns the base delays from Initial up to and including the
// first one capped at Max.
func (c BackoffConfig) Sequence() []time.Duration {
	c = c.withDefaults()
	var seq []time.Duration
	for attempt := 0; ; attempt++ {
		d := c.Base(attempt)
		seq = append(seq, d)
		if d == c.Max {
			return seq
		}
	}
}

// Backoff hands out successive delays of a BackoffConfig. It is safe for
// concurrent use.
type Backoff struct {
	config BackoffConfig

	mu       sync.Mutex
	attempts int
}

// NewBackoff returns a Backoff for cfg.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{config: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (b *Backoff) Config() BackoffConfig {
	return b.config
}

func (b *Backoff) jittered(base time.Duration) time.Duration {
	if b.config.Jitter == 0 {
		return base
	}
	return base + time.Duration(float64(base)*b.config.Jitter*rand.Float64())
}

// Next returns the next jittered delay and counts an attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	base := b.config.Base(b.attempts)
	b.attempts++
	b.mu.Unlock()
	return b.jittered(base)
}

// Peek returns a jittered delay for the next attempt without counting it.
// Successive calls return different values when jitter is enabled.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	base := b.config.Base(b.attempts)
	b.mu.Unlock()
	return b.jittered(base)
}

// Reset starts over from Initial. The manager calls it after a successful
// connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Wait sleeps for the next delay. It returns the delay, and ctx.Err() if
// the context ended first.
func (b *Backoff) Wait(ctx context.Context) (time.Duration, error) {
	delay := b.Next()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return delay, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}
