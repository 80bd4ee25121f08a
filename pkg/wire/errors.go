package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire errors.
var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrMissingID    = errors.New("response without id")
	ErrEmptyMethod  = errors.New("empty method name")
)

// Standard JSON-RPC error codes that Moonraker returns.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// RemoteError is the error object of a failed JSON-RPC response.
// It is returned as-is to callers so they can inspect the code.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d", e.Code)
}

// IsMethodNotFound returns true if the peer does not know the method.
func (e *RemoteError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}
