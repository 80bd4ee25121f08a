package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/mamalluca/mamalluca-go/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByConnectionID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-2", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
	}

	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.mrlog")

	n, err := RunFilter(path, FilterOptions{Output: outPath, ConnID: "conn-1"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}

	for _, event := range readAll(t, outPath) {
		if event.ConnectionID != "conn-1" {
			t.Errorf("expected conn-1, got %s", event.ConnectionID)
		}
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: base},
		{Timestamp: base.Add(time.Minute)},
		{Timestamp: base.Add(2 * time.Minute)},
		{Timestamp: base.Add(3 * time.Minute)},
	}

	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.mrlog")

	n, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: base.Add(time.Minute).Format(time.RFC3339),
		TimeEnd:   base.Add(3 * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events in [start, end), got %d", n)
	}
}

func TestFilterByMethodAndCallID(t *testing.T) {
	path := createTestLogFile(t, exchange(time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)))
	outPath := filepath.Join(t.TempDir(), "filtered.mrlog")

	n, err := RunFilter(path, FilterOptions{
		Output: outPath,
		Method: "printer.objects.subscribe",
		CallID: "7",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected request and response, got %d", n)
	}

	got := readAll(t, outPath)
	if got[0].Message.Type != log.MessageTypeRequest || got[1].Message.Type != log.MessageTypeResponse {
		t.Errorf("unexpected message order: %v, %v", got[0].Message.Type, got[1].Message.Type)
	}
}

func TestFilterRejectsBadOptions(t *testing.T) {
	path := createTestLogFile(t, exchange(time.Now()))
	outPath := filepath.Join(t.TempDir(), "filtered.mrlog")

	tests := map[string]FilterOptions{
		"call id":    {Output: outPath, CallID: "seven"},
		"time start": {Output: outPath, TimeStart: "yesterday"},
		"layer":      {Output: outPath, Layer: "physical"},
		"direction":  {Output: outPath, Direction: "up"},
		"category":   {Output: outPath, Category: "snapshot"},
	}

	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := RunFilter(path, opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}
