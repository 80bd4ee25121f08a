package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{
			name: "nil params become empty object",
			req:  NewRequest(MethodObjectsList, 1, nil),
			want: `{"jsonrpc":"2.0","method":"printer.objects.list","id":1,"params":{}}`,
		},
		{
			name: "subscribe with null field filters",
			req: NewRequest(MethodObjectsSubscribe, 42, map[string]any{
				"objects": map[string]any{"extruder": nil},
			}),
			want: `{"jsonrpc":"2.0","method":"printer.objects.subscribe","id":42,"params":{"objects":{"extruder":null}}}`,
		},
		{
			name: "missing version is filled in",
			req:  &Request{Method: MethodServerInfo, ID: 3},
			want: `{"jsonrpc":"2.0","method":"server.info","id":3,"params":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("EncodeRequest = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestEncodeRequestEmptyMethod(t *testing.T) {
	_, err := EncodeRequest(NewRequest("  ", 1, nil))
	if !errors.Is(err, ErrEmptyMethod) {
		t.Errorf("err = %v, want ErrEmptyMethod", err)
	}
}

func TestEncodeNotification(t *testing.T) {
	data, err := EncodeNotification(MethodIdentify, map[string]string{"client_name": "mamalluca"})
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, hasID := decoded["id"]; hasID {
		t.Error("notification must not carry an id")
	}
	if decoded["method"] != MethodIdentify {
		t.Errorf("method = %v, want %s", decoded["method"], MethodIdentify)
	}
}

func TestDecodeFrame(t *testing.T) {
	t.Run("Result", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","id":7,"result":{"objects":["toolhead"]}}`))
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if frame.Type != MessageTypeResponse {
			t.Fatalf("Type = %v, want RESPONSE", frame.Type)
		}
		if frame.Response.ID != 7 {
			t.Errorf("ID = %d, want 7", frame.Response.ID)
		}
		if !frame.Response.IsSuccess() {
			t.Error("IsSuccess() = false, want true")
		}
		if string(frame.Response.Result) != `{"objects":["toolhead"]}` {
			t.Errorf("Result = %s", frame.Response.Result)
		}
	})

	t.Run("Error", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"id":8,"error":{"code":-32601,"message":"Method not found"}}`))
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if frame.Response.IsSuccess() {
			t.Fatal("IsSuccess() = true, want false")
		}
		if !frame.Response.Error.IsMethodNotFound() {
			t.Errorf("Code = %d, want %d", frame.Response.Error.Code, CodeMethodNotFound)
		}
		if frame.Response.Error.Error() != "remote error -32601: Method not found" {
			t.Errorf("Error() = %q", frame.Response.Error.Error())
		}
	})

	t.Run("Notification", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","method":"notify_status_update","params":[{"extruder":{"temperature":201.5}},1234.56]}`))
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if frame.Type != MessageTypeNotification {
			t.Fatalf("Type = %v, want NOTIFICATION", frame.Type)
		}
		params, err := frame.Notification.ParamsArray()
		if err != nil {
			t.Fatalf("ParamsArray failed: %v", err)
		}
		if len(params) != 2 {
			t.Errorf("len(params) = %d, want 2", len(params))
		}
	})

	t.Run("NotificationWithoutParams", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","method":"notify_klippy_ready"}`))
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		params, err := frame.Notification.ParamsArray()
		if err != nil || params != nil {
			t.Errorf("ParamsArray = %v, %v; want nil, nil", params, err)
		}
	})

	t.Run("StringID", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"id":"12","result":"ok"}`))
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if frame.Response.ID != 12 {
			t.Errorf("ID = %d, want 12", frame.Response.ID)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`{"result":"ok"}`))
		if !errors.Is(err, ErrMissingID) {
			t.Errorf("err = %v, want ErrMissingID", err)
		}
	})

	t.Run("NegativeID", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`{"id":-1,"result":"ok"}`))
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("err = %v, want ErrInvalidFrame", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`not json`))
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("err = %v, want ErrInvalidFrame", err)
		}
	})
}

func TestEncodeResponse(t *testing.T) {
	data, err := EncodeResponse(&Response{ID: 5, Result: json.RawMessage(`{"state":"ready"}`)})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if frame.Response.ID != 5 || string(frame.Response.Result) != `{"state":"ready"}` {
		t.Errorf("decoded = %+v", frame.Response)
	}
}
