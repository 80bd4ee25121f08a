package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// Client errors.
var (
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Caller issues one JSON-RPC call and waits for its result.
// Implemented by transport.Session.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// SequencedCaller is a Caller that also reports where in the inbound frame
// stream the response arrived. Implemented by transport.Session.
type SequencedCaller interface {
	Caller
	CallSeq(ctx context.Context, method string, params any) (json.RawMessage, uint64, error)
}

// Client provides a typed API over the Moonraker printer object methods.
type Client struct {
	caller Caller
}

// NewClient creates a new interaction client.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// StatusResult is the reply to a subscribe or query call.
type StatusResult struct {
	// EventTime is Klipper's monotonic clock at the time of the snapshot.
	EventTime float64 `json:"eventtime"`

	// Status maps each object topic to its full current value.
	Status map[string]json.RawMessage `json:"status"`

	// Seq is the inbound frame sequence number of the reply, or 0 if the
	// caller does not report one. Notifications with a lower number were
	// sent before this snapshot was taken.
	Seq uint64 `json:"-"`
}

// PrinterInfo is the reply to printer.info.
type PrinterInfo struct {
	State           string `json:"state"`
	StateMessage    string `json:"state_message"`
	Hostname        string `json:"hostname"`
	SoftwareVersion string `json:"software_version"`
	CPUInfo         string `json:"cpu_info"`
}

// ListObjects returns every printer object topic Klipper has loaded.
func (c *Client) ListObjects(ctx context.Context) ([]string, error) {
	raw, err := c.caller.Call(ctx, wire.MethodObjectsList, nil)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Objects []string `json:"objects"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", wire.MethodObjectsList, ErrUnexpectedReply, err)
	}
	if reply.Objects == nil {
		return nil, fmt.Errorf("%s: %w: missing objects", wire.MethodObjectsList, ErrUnexpectedReply)
	}
	return reply.Objects, nil
}

// Subscribe replaces the connection's subscription with topics and returns
// the initial status of every subscribed object. Each topic is subscribed
// without a field filter so the server sends whole objects.
func (c *Client) Subscribe(ctx context.Context, topics []string) (*StatusResult, error) {
	return c.statusCall(ctx, wire.MethodObjectsSubscribe, topics)
}

// Query returns the current status of topics without subscribing.
func (c *Client) Query(ctx context.Context, topics []string) (*StatusResult, error) {
	return c.statusCall(ctx, wire.MethodObjectsQuery, topics)
}

// PrinterInfo returns the Klippy host state.
func (c *Client) PrinterInfo(ctx context.Context) (*PrinterInfo, error) {
	raw, err := c.caller.Call(ctx, wire.MethodPrinterInfo, nil)
	if err != nil {
		return nil, err
	}

	var info PrinterInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", wire.MethodPrinterInfo, ErrUnexpectedReply, err)
	}
	return &info, nil
}

func (c *Client) statusCall(ctx context.Context, method string, topics []string) (*StatusResult, error) {
	// A null field list asks for every field of the object.
	objects := make(map[string][]string, len(topics))
	for _, topic := range topics {
		objects[topic] = nil
	}

	raw, seq, err := c.call(ctx, method, map[string]any{"objects": objects})
	if err != nil {
		return nil, err
	}

	result := StatusResult{Seq: seq}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", method, ErrUnexpectedReply, err)
	}
	if result.Status == nil {
		return nil, fmt.Errorf("%s: %w: missing status", method, ErrUnexpectedReply)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, uint64, error) {
	if sc, ok := c.caller.(SequencedCaller); ok {
		return sc.CallSeq(ctx, method, params)
	}
	raw, err := c.caller.Call(ctx, method, params)
	return raw, 0, err
}
