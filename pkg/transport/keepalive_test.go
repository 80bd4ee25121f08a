package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pinger records pings and lets the test answer them.
type pinger struct {
	count   atomic.Int32
	lastSeq atomic.Uint32
	fail    atomic.Bool
}

func (p *pinger) ping(seq uint32) error {
	p.count.Add(1)
	p.lastSeq.Store(seq)
	if p.fail.Load() {
		return ErrNotConnected
	}
	return nil
}

func TestKeepAliveConfigDefaults(t *testing.T) {
	config := DefaultKeepAliveConfig()
	assert.Equal(t, DefaultPingInterval, config.PingInterval)
	assert.Equal(t, DefaultPongTimeout, config.PongTimeout)
	assert.Equal(t, DefaultMaxMissedPongs, config.MaxMissedPongs)
	assert.Equal(t, 70*time.Second, config.DetectionDelay())

	// Zero fields fall back to the defaults.
	assert.Equal(t, 70*time.Second, KeepAliveConfig{}.DetectionDelay())
}

func TestDetectionDelay(t *testing.T) {
	tests := []struct {
		config KeepAliveConfig
		want   time.Duration
	}{
		{KeepAliveConfig{30 * time.Second, 5 * time.Second, 3}, 95 * time.Second},
		{KeepAliveConfig{10 * time.Second, 2 * time.Second, 5}, 52 * time.Second},
		{KeepAliveConfig{time.Second, time.Second, 1}, 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.config.DetectionDelay(), "%+v", tt.config)
	}
}

func TestKeepAlivePingsOnInterval(t *testing.T) {
	p := &pinger{}
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    100 * time.Millisecond,
		MaxMissedPongs: 5,
	}, KeepAliveHooks{Ping: p.ping})

	ka.Start(context.Background())
	defer ka.Stop()

	require.Eventually(t, func() bool { return p.count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, ka.Stats().CurrentSeq, uint32(3))
	assert.False(t, ka.Stats().LastPingTime.IsZero())
}

func TestKeepAliveTimesOutWithoutPongs(t *testing.T) {
	timedOut := make(chan struct{})
	p := &pinger{}
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, KeepAliveHooks{
		Ping:    p.ping,
		Timeout: func() { close(timedOut) },
	})

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("timeout hook not called")
	}
	assert.Equal(t, 2, ka.Stats().MissedPongs)
}

func TestKeepAlivePongResetsMisses(t *testing.T) {
	p := &pinger{}
	rtts := make(chan time.Duration, 8)
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   30 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 3,
	}, KeepAliveHooks{
		Ping:    p.ping,
		Timeout: func() { t.Error("timeout hook should not be called") },
		Pong:    func(_ uint32, rtt time.Duration) { rtts <- rtt },
	})

	ka.Start(context.Background())
	defer ka.Stop()

	// Let one probe expire, then answer the next one.
	require.Eventually(t, func() bool {
		return ka.Stats().MissedPongs == 1 && p.count.Load() == 2
	}, time.Second, time.Millisecond)
	seq := p.lastSeq.Load()
	ka.PongReceived(seq)

	select {
	case rtt := <-rtts:
		assert.Greater(t, rtt, time.Duration(0))
	case <-time.After(time.Second):
		t.Fatal("pong hook not called")
	}
	stats := ka.Stats()
	assert.Equal(t, 0, stats.MissedPongs)
	assert.Greater(t, stats.LastRTT, time.Duration(0))
}

func TestKeepAliveIgnoresStalePong(t *testing.T) {
	p := &pinger{}
	var pongs atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   time.Hour,
		PongTimeout:    time.Hour,
		MaxMissedPongs: 1,
	}, KeepAliveHooks{
		Ping: p.ping,
		Pong: func(uint32, time.Duration) { pongs.Add(1) },
	})

	ka.Start(context.Background())
	defer ka.Stop()
	require.Eventually(t, func() bool { return p.count.Load() == 1 }, time.Second, time.Millisecond)

	ka.PongReceived(p.lastSeq.Load() + 7)
	require.Eventually(t, func() bool { return !ka.Stats().LastPongTime.IsZero() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), pongs.Load())
}

func TestKeepAliveStartStop(t *testing.T) {
	p := &pinger{}
	ka := NewKeepAlive(DefaultKeepAliveConfig(), KeepAliveHooks{Ping: p.ping})

	assert.False(t, ka.IsRunning())
	ka.Start(context.Background())
	ka.Start(context.Background())
	assert.True(t, ka.IsRunning())

	ka.Stop()
	ka.Stop()
	assert.False(t, ka.IsRunning())

	// A stopped KeepAlive can be started again.
	ka.Start(context.Background())
	assert.True(t, ka.IsRunning())
	ka.Stop()
}

func TestKeepAliveStopsOnContextCancel(t *testing.T) {
	p := &pinger{}
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    time.Hour,
		MaxMissedPongs: 100,
	}, KeepAliveHooks{Ping: p.ping})

	ctx, cancel := context.WithCancel(context.Background())
	ka.Start(ctx)
	require.Eventually(t, func() bool { return p.count.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	before := p.count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, p.count.Load(), "pings continued after cancel")
}

func TestKeepAliveSendFailureTimesOut(t *testing.T) {
	timedOut := make(chan struct{}, 1)
	p := &pinger{}
	p.fail.Store(true)

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   15 * time.Millisecond,
		PongTimeout:    time.Hour,
		MaxMissedPongs: 2,
	}, KeepAliveHooks{
		Ping:    p.ping,
		Timeout: func() { timedOut <- struct{}{} },
	})

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("timeout hook not called after failed pings")
	}
	assert.Equal(t, int32(2), p.count.Load())
}

func TestPingPayload(t *testing.T) {
	for _, seq := range []uint32{0, 1, 42, 4294967295} {
		got, err := DecodePingPayload(string(EncodePingPayload(seq)))
		require.NoError(t, err)
		assert.Equal(t, seq, got)
	}

	_, err := DecodePingPayload("not-a-number")
	assert.Error(t, err)
	_, err = DecodePingPayload("")
	assert.Error(t, err)
}
