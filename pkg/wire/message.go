package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the JSON-RPC protocol version sent with every outbound frame.
const Version = "2.0"

// Request represents an outbound JSON-RPC call.
//
// JSON encoding:
//
//	{"jsonrpc": "2.0", "method": "printer.objects.list", "id": 7, "params": {}}
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

// NewRequest creates a request with the protocol version set.
func NewRequest(method string, id uint64, params any) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
		Params:  params,
	}
}

// Validate checks if the request can be sent.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return ErrEmptyMethod
	}
	return nil
}

// Response represents a server reply to a Request.
//
// JSON encoding:
//
//	{"jsonrpc": "2.0", "id": 7, "result": {...}}
//	{"jsonrpc": "2.0", "id": 7, "error": {"code": -32601, "message": "..."}}
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// IsSuccess returns true if the response carries no error object.
func (r *Response) IsSuccess() bool {
	return r.Error == nil
}

// Notification represents a message without an id.
// Inbound notifications are server pushes; outbound ones are
// fire-and-forget calls that expect no reply.
//
// JSON encoding:
//
//	{"jsonrpc": "2.0", "method": "notify_status_update", "params": [{...}, 1234.5]}
type Notification struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ParamsArray decodes the notification params as a JSON array.
// Moonraker sends positional params for all of its notify_* methods.
func (n *Notification) ParamsArray() ([]json.RawMessage, error) {
	if len(n.Params) == 0 {
		return nil, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(n.Params, &arr); err != nil {
		return nil, fmt.Errorf("%s: params is not an array: %w", n.Method, err)
	}
	return arr, nil
}

// MessageType represents the type of a decoded frame.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeNotification
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// Frame is a classified inbound frame. Exactly one of Response or
// Notification is set, matching Type.
type Frame struct {
	Type         MessageType
	Response     *Response
	Notification *Notification
}
