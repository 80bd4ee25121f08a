package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mamalluca/mamalluca-go/pkg/log"
)

var testConnID = "abc12345-6789-0123-4567-890abcdef012"

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mrlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

// exchange returns a subscribe request, its response and a status
// notification, as the transport records them.
func exchange(ts time.Time) []log.Event {
	latency := 12 * time.Millisecond
	return []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: testConnID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Endpoint:     "ws://printer.lan:7125/websocket",
			Message: &log.MessageEvent{
				Type:    log.MessageTypeRequest,
				CallID:  7,
				Method:  "printer.objects.subscribe",
				Payload: []byte(`{"objects": {"extruder": null}}`),
			},
		},
		{
			Timestamp:    ts.Add(latency),
			ConnectionID: testConnID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:    log.MessageTypeResponse,
				CallID:  7,
				Method:  "printer.objects.subscribe",
				Payload: []byte(`{"eventtime":1.5,"status":{"extruder":{"temperature":205.3}}}`),
				Latency: &latency,
			},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: testConnID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:    log.MessageTypeNotification,
				Method:  "notify_status_update",
				Payload: []byte(`[{"extruder":{"temperature":206.1}},2.5]`),
			},
		},
	}
}
