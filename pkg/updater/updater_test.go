package updater_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mamalluca/mamalluca-go/pkg/interaction/mocks"
	"github.com/mamalluca/mamalluca-go/pkg/status"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
	"github.com/mamalluca/mamalluca-go/pkg/updater"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

var (
	extruder  = status.Key{Kind: status.KindExtruder, Name: "extruder"}
	heaterBed = status.Key{Kind: status.KindHeaterBed, Name: "heater_bed"}
	toolhead  = status.Key{Kind: status.KindToolhead}
)

func notification(t *testing.T, method string, params ...any) transport.Event {
	t.Helper()
	n := &wire.Notification{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		n.Params = data
	}
	return transport.Event{Type: transport.EventNotification, ConnectionID: "c1", Notification: n}
}

func connected() transport.Event {
	return transport.Event{Type: transport.EventConnected, ConnectionID: "c1"}
}

func expectList(caller *mocks.MockCaller, topics ...string) *mocks.MockCaller_Call_Call {
	data, _ := json.Marshal(map[string]any{"objects": topics})
	return caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsList, mock.Anything).
		Return(json.RawMessage(data), nil)
}

func expectSubscribe(t *testing.T, caller *mocks.MockCaller, wantParams, reply string) *mocks.MockCaller_Call_Call {
	return caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsSubscribe, mock.Anything).
		Run(func(_ context.Context, _ string, params interface{}) {
			data, err := json.Marshal(params)
			require.NoError(t, err)
			assert.JSONEq(t, wantParams, string(data))
		}).
		Return(json.RawMessage(reply), nil)
}

func cached(t *testing.T, cache *status.Cache, key status.Key) string {
	t.Helper()
	v, ok := cache.Get(key)
	require.True(t, ok, "no cache entry for %s", key)
	return string(v)
}

func TestBootstrapFiltersAndSeeds(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	expectList(caller, "extruder", "mcu bogus_unknown_subsystem", "heater_bed", "gcode_macro PRINT_START")
	expectSubscribe(t, caller,
		`{"objects":{"extruder":null,"heater_bed":null}}`,
		`{"eventtime":100.0,"status":{"extruder":{"temperature":200.0,"target":210.0},"heater_bed":{"temperature":60.0}}}`)

	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{})

	u.Handle(context.Background(), connected())

	assert.Equal(t, updater.StateSubscribed, u.State())
	assert.Equal(t, 2, cache.Len())
	assert.JSONEq(t, `{"temperature":200.0,"target":210.0}`, cached(t, cache, extruder))
	assert.JSONEq(t, `{"temperature":60.0}`, cached(t, cache, heaterBed))
}

func TestBootstrapClearsBeforeSeeding(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	expectList(caller, "extruder")
	expectSubscribe(t, caller, `{"objects":{"extruder":null}}`,
		`{"eventtime":1.0,"status":{"extruder":{"temperature":20.0}}}`)

	cache := status.NewCache()
	require.NoError(t, cache.Merge(toolhead, json.RawMessage(`{"homed_axes":"xyz"}`)))
	require.NoError(t, cache.Merge(extruder, json.RawMessage(`{"stale":true}`)))

	u := updater.New(caller, cache, updater.Config{})
	require.NoError(t, u.Bootstrap(context.Background()))

	_, ok := cache.Get(toolhead)
	assert.False(t, ok)
	assert.JSONEq(t, `{"temperature":20.0}`, cached(t, cache, extruder))
}

func TestBootstrapListFailure(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsList, mock.Anything).
		Return(nil, &wire.RemoteError{Code: 503, Message: "Klippy Host not connected"})

	cache := status.NewCache()
	require.NoError(t, cache.Merge(toolhead, json.RawMessage(`{}`)))

	u := updater.New(caller, cache, updater.Config{})
	u.Handle(context.Background(), connected())

	assert.Equal(t, updater.StateConnected, u.State())
	assert.Equal(t, 1, cache.Len())

	var rerr *wire.RemoteError
	err := u.Bootstrap(context.Background())
	assert.ErrorAs(t, err, &rerr)
}

func TestBootstrapSubscribeFailure(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	expectList(caller, "extruder")
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsSubscribe, mock.Anything).
		Return(nil, transport.ErrConnectionLost)

	cache := status.NewCache()
	require.NoError(t, cache.Merge(toolhead, json.RawMessage(`{}`)))

	u := updater.New(caller, cache, updater.Config{})
	err := u.Bootstrap(context.Background())
	assert.ErrorIs(t, err, transport.ErrConnectionLost)
	assert.Equal(t, 1, cache.Len())
	assert.NotEqual(t, updater.StateSubscribed, u.State())
}

func TestDisconnectClearsCache(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	cache := status.NewCache()
	require.NoError(t, cache.Merge(extruder, json.RawMessage(`{"temperature":200}`)))

	u := updater.New(caller, cache, updater.Config{})
	u.Handle(context.Background(), transport.Event{
		Type: transport.EventDisconnected,
		Err:  errors.New("read error"),
	})

	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, updater.StateDisconnected, u.State())
}

func TestStatusUpdateSkipsBadTopics(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	cache := status.NewCache()
	require.NoError(t, cache.Merge(extruder, json.RawMessage(`{"temperature":200.0,"target":210.0}`)))

	u := updater.New(caller, cache, updater.Config{})
	u.Handle(context.Background(), notification(t, wire.NotifyStatusUpdate,
		map[string]any{
			"extruder":        map[string]any{"temperature": 205.3},
			"no_such_thing":   map[string]any{"x": 1},
			"toolhead extra":  map[string]any{"x": 1},
			"moonraker":       map[string]any{"x": 1},
			"heater_bed":      map[string]any{"temperature": 60.0},
			"temperature_fan": map[string]any{"speed": 1},
		}, 1234.5))

	assert.JSONEq(t, `{"temperature":205.3,"target":210.0}`, cached(t, cache, extruder))
	assert.JSONEq(t, `{"temperature":60.0}`, cached(t, cache, heaterBed))
	assert.Equal(t, 2, cache.Len())
}

func TestStatusUpdateMalformed(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{})

	events := []transport.Event{
		notification(t, wire.NotifyStatusUpdate),
		notification(t, wire.NotifyStatusUpdate, "not an object"),
		{Type: transport.EventNotification, Notification: &wire.Notification{
			Method: wire.NotifyStatusUpdate, Params: json.RawMessage(`{"extruder":{}}`),
		}},
		{Type: transport.EventNotification},
	}
	for _, ev := range events {
		assert.NotPanics(t, func() { u.Handle(context.Background(), ev) })
	}
	assert.Equal(t, 0, cache.Len())
}

func TestProcStatUpdate(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{})

	u.Handle(context.Background(), notification(t, wire.NotifyProcStatUpdate, map[string]any{
		"moonraker_stats":       map[string]any{"cpu_usage": 2.5, "memory": 41000},
		"websocket_connections": 3,
	}))
	u.Handle(context.Background(), notification(t, wire.NotifyProcStatUpdate, map[string]any{
		"moonraker_stats": map[string]any{"cpu_usage": 3.0, "memory": 41500},
		"cpu_temp":        48.2,
	}))

	assert.JSONEq(t,
		`{"moonraker_stats":{"cpu_usage":3.0,"memory":41500},"websocket_connections":3,"cpu_temp":48.2}`,
		cached(t, cache, status.MoonrakerKey))
}

func TestKlippyEvents(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	expectList(caller, "toolhead").Once()
	expectSubscribe(t, caller, `{"objects":{"toolhead":null}}`,
		`{"eventtime":1.0,"status":{"toolhead":{"homed_axes":""}}}`).Once()

	var seen []updater.DeviceState
	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{
		Observer: updater.ObserverFunc(func(s updater.DeviceState) { seen = append(seen, s) }),
	})

	ctx := context.Background()
	u.Handle(ctx, notification(t, wire.NotifyKlippyShutdown))
	assert.Equal(t, updater.DeviceStateShutdown, u.DeviceState())

	u.Handle(ctx, notification(t, wire.NotifyKlippyDisconnected))
	u.Handle(ctx, notification(t, wire.NotifyKlippyReady))

	assert.Equal(t, updater.DeviceStateReady, u.DeviceState())
	assert.Equal(t, updater.StateSubscribed, u.State())
	assert.Equal(t, []updater.DeviceState{
		updater.DeviceStateShutdown,
		updater.DeviceStateDisconnected,
		updater.DeviceStateReady,
	}, seen)
	assert.JSONEq(t, `{"homed_axes":""}`, cached(t, cache, toolhead))
}

func TestUnknownNotificationIgnored(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{})

	u.Handle(context.Background(), notification(t, "notify_gcode_response", "ok"))
	assert.Equal(t, 0, cache.Len())
}

func TestRunChannelClosed(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	u := updater.New(caller, status.NewCache(), updater.Config{})

	events := make(chan transport.Event)
	close(events)

	err := u.Run(context.Background(), events)
	assert.ErrorIs(t, err, updater.ErrEventChannelClosed)
}

func TestRunContextCanceled(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	u := updater.New(caller, status.NewCache(), updater.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan transport.Event)

	done := make(chan error, 1)
	go func() { done <- u.Run(ctx, events) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunProcessesInOrder(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	expectList(caller, "extruder", "mcu bogus_unknown_subsystem", "heater_bed")
	expectSubscribe(t, caller,
		`{"objects":{"extruder":null,"heater_bed":null}}`,
		`{"eventtime":1.0,"status":{"extruder":{"temperature":190.0},"heater_bed":{"temperature":55.0}}}`)

	cache := status.NewCache()
	u := updater.New(caller, cache, updater.Config{})

	events := make(chan transport.Event, 4)
	events <- connected()
	events <- notification(t, wire.NotifyStatusUpdate, map[string]any{"extruder": map[string]any{"temperature": 205.3}}, 2.0)
	events <- notification(t, wire.NotifyStatusUpdate, map[string]any{"heater_bed": map[string]any{"temperature": 60.0}}, 3.0)
	close(events)

	err := u.Run(context.Background(), events)
	assert.ErrorIs(t, err, updater.ErrEventChannelClosed)

	assert.Equal(t, updater.StateSubscribed, u.State())
	assert.JSONEq(t, `{"temperature":205.3}`, cached(t, cache, extruder))
	assert.JSONEq(t, `{"temperature":60.0}`, cached(t, cache, heaterBed))
}
