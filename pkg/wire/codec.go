package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// emptyParams is sent when a request has no params.
var emptyParams = json.RawMessage(`{}`)

// EncodeRequest encodes a request to JSON bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	out := *req
	if out.JSONRPC == "" {
		out.JSONRPC = Version
	}
	if out.Params == nil {
		out.Params = emptyParams
	}
	return json.Marshal(&out)
}

// EncodeNotification encodes an outbound notification to JSON bytes.
func EncodeNotification(method string, params any) ([]byte, error) {
	if method == "" {
		return nil, fmt.Errorf("invalid notification: %w", ErrEmptyMethod)
	}
	if params == nil {
		params = emptyParams
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params"`
	}{Version, method, params})
}

// EncodeResponse encodes a response to JSON bytes.
// Used by test servers that stand in for Moonraker.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		*Response
	}{Version, resp})
}

// rawFrame holds every member a frame may carry.
type rawFrame struct {
	Method *string         `json:"method"`
	ID     json.RawMessage `json:"id"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// DecodeFrame parses one inbound frame and classifies it.
//
// Classification logic:
//   - Notification: has a "method" member
//   - Response: everything else; "id" must be a non-negative integer
func DecodeFrame(data []byte) (*Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	if raw.Method != nil {
		return &Frame{
			Type: MessageTypeNotification,
			Notification: &Notification{
				JSONRPC: Version,
				Method:  *raw.Method,
				Params:  raw.Params,
			},
		}, nil
	}

	id, err := parseID(raw.ID)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type: MessageTypeResponse,
		Response: &Response{
			ID:     id,
			Result: raw.Result,
			Error:  raw.Error,
		},
	}, nil
}

// parseID accepts integer ids and, for lenient peers, integer strings.
func parseID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrMissingID
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %s", ErrInvalidFrame, raw)
	}
	return id, nil
}
