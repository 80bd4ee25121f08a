package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"version=v0.9.3", "path=/printer", "flag", ""})
	assert.Equal(t, TXTRecordMap{"version": "v0.9.3", "path": "/printer", "flag": ""}, txt)
}

func TestServiceURL(t *testing.T) {
	tests := []struct {
		name  string
		entry ServiceEntry
		want  string
	}{
		{
			name:  "ipv4",
			entry: ServiceEntry{Instance: "Moonraker-voron", Host: "voron.local.", Port: 7125, Addrs: []string{"192.168.1.20"}},
			want:  "ws://192.168.1.20:7125/websocket",
		},
		{
			name:  "host only",
			entry: ServiceEntry{Instance: "Moonraker-voron", Host: "voron.local.", Port: 80},
			want:  "ws://voron.local:80/websocket",
		},
		{
			name:  "ipv6 zone",
			entry: ServiceEntry{Instance: "m", Host: "m.local.", Port: 7125, Addrs: []string{"fe80::1%eth0"}},
			want:  "ws://[fe80::1]:7125/websocket",
		},
		{
			name:  "default port and path",
			entry: ServiceEntry{Instance: "m", Host: "m.local.", Text: []string{"path=/printer/"}, Addrs: []string{"10.0.0.2"}},
			want:  "ws://10.0.0.2:7125/printer/websocket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.ToMoonrakerService().URL())
		})
	}
}

func TestServiceVersion(t *testing.T) {
	e := ServiceEntry{Instance: "m", Text: []string{"version=v0.9.3-12"}}
	assert.Equal(t, "v0.9.3-12", e.ToMoonrakerService().Version)
}

func TestAggregator(t *testing.T) {
	agg := newAggregator()

	svc, isNew := agg.add(&ServiceEntry{Instance: "a", Port: 7125, Addrs: []string{"10.0.0.1"}})
	require.True(t, isNew)
	assert.Equal(t, []string{"10.0.0.1"}, svc.Addresses)

	same, isNew := agg.add(&ServiceEntry{Instance: "a", Port: 7125, Addrs: []string{"10.0.0.1", "fd00::1"}})
	assert.False(t, isNew)
	assert.Same(t, svc, same)
	assert.Equal(t, []string{"10.0.0.1", "fd00::1"}, svc.Addresses)

	agg.remove(&ServiceEntry{Instance: "a", Addrs: []string{"10.0.0.1"}})
	assert.Equal(t, []string{"fd00::1"}, svc.Addresses)

	agg.remove(&ServiceEntry{Instance: "a", Addrs: []string{"fd00::1"}})
	_, found := agg.services["a"]
	assert.False(t, found)

	agg.remove(&ServiceEntry{Instance: "unknown"})

	_, isNew = agg.add(&ServiceEntry{Instance: "a", Addrs: []string{"10.0.0.3"}})
	assert.True(t, isNew)
}

type fakeBrowser struct {
	services []*MoonrakerService
}

func (f *fakeBrowser) Browse(ctx context.Context) (<-chan *MoonrakerService, error) {
	out := make(chan *MoonrakerService)
	go func() {
		defer close(out)
		for _, s := range f.services {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeBrowser) Stop() {}

func TestFindFirst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first := &MoonrakerService{InstanceName: "a", Port: 7125, Addresses: []string{"10.0.0.1"}}
	svc, err := FindFirst(ctx, &fakeBrowser{services: []*MoonrakerService{first, {InstanceName: "b"}}})
	require.NoError(t, err)
	assert.Same(t, first, svc)

	_, err = FindFirst(ctx, &fakeBrowser{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMDNSBrowserStopped(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{})
	assert.Equal(t, BrowseTimeout, b.config.BrowseTimeout)

	b.Stop()
	_, err := b.Browse(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
