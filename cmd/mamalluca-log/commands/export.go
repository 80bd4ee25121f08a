package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mamalluca/mamalluca-go/pkg/log"
)

// exportRecord is the JSON shape of one exported event. Payloads are
// embedded as JSON rather than base64.
type exportRecord struct {
	Timestamp    time.Time      `json:"timestamp"`
	ConnectionID string         `json:"connection_id,omitempty"`
	Direction    string         `json:"direction"`
	Layer        string         `json:"layer"`
	Category     string         `json:"category"`
	Endpoint     string         `json:"endpoint,omitempty"`
	Type         string         `json:"type"`
	Frame        *exportFrame   `json:"frame,omitempty"`
	Message      *exportMessage `json:"message,omitempty"`
	State        *exportState   `json:"state,omitempty"`
	Control      *exportControl `json:"control,omitempty"`
	Error        *exportError   `json:"error,omitempty"`
}

type exportFrame struct {
	Size      int    `json:"size"`
	Data      string `json:"data,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type exportMessage struct {
	CallID    uint64          `json:"call_id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ErrorCode *int            `json:"error_code,omitempty"`
	LatencyMS *float64        `json:"latency_ms,omitempty"`
}

type exportState struct {
	Entity   string `json:"entity"`
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state"`
	Reason   string `json:"reason,omitempty"`
}

type exportControl struct {
	Type      string `json:"type"`
	CloseCode *int   `json:"close_code,omitempty"`
}

type exportError struct {
	Layer   string `json:"layer"`
	Message string `json:"message"`
	Code    *int   `json:"code,omitempty"`
	Context string `json:"context,omitempty"`
}

func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "state"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "error"
	default:
		return "unknown"
	}
}

func newExportRecord(event log.Event) exportRecord {
	rec := exportRecord{
		Timestamp:    event.Timestamp.UTC(),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Layer:        event.Layer.String(),
		Category:     event.Category.String(),
		Endpoint:     event.Endpoint,
		Type:         eventType(event),
	}

	if f := event.Frame; f != nil {
		rec.Frame = &exportFrame{Size: f.Size, Data: string(f.Data), Truncated: f.Truncated}
	}
	if m := event.Message; m != nil {
		em := &exportMessage{CallID: m.CallID, Method: m.Method, ErrorCode: m.ErrorCode}
		if len(m.Payload) > 0 && json.Valid(m.Payload) {
			em.Payload = json.RawMessage(m.Payload)
		}
		if m.Latency != nil {
			ms := float64(*m.Latency) / float64(time.Millisecond)
			em.LatencyMS = &ms
		}
		rec.Message = em
	}
	if s := event.StateChange; s != nil {
		rec.State = &exportState{
			Entity:   s.Entity.String(),
			OldState: s.OldState,
			NewState: s.NewState,
			Reason:   s.Reason,
		}
	}
	if c := event.ControlMsg; c != nil {
		rec.Control = &exportControl{Type: c.Type.String(), CloseCode: c.CloseCode}
	}
	if e := event.Error; e != nil {
		rec.Error = &exportError{
			Layer:   e.Layer.String(),
			Message: e.Message,
			Code:    e.Code,
			Context: e.Context,
		}
	}
	return rec
}

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(newExportRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "type", "call_id", "method", "latency_ms"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var callID, method, latency string
		if m := event.Message; m != nil {
			if m.Type != log.MessageTypeNotification {
				callID = strconv.FormatUint(m.CallID, 10)
			}
			method = m.Method
			if m.Latency != nil {
				latency = strconv.FormatFloat(float64(*m.Latency)/float64(time.Millisecond), 'f', 3, 64)
			}
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			eventType(event),
			callID,
			method,
			latency,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
