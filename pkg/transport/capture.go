package transport

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mamalluca/mamalluca-go/pkg/log"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// Protocol capture helpers. All of them are no-ops beyond building the
// event when capture is disabled.

func (s *Session) logRequest(connID string, id uint64, method string, params any) {
	s.logOutbound(connID, log.MessageTypeRequest, id, method, params)
}

func (s *Session) logOutbound(connID string, typ log.MessageType, id uint64, method string, params any) {
	if _, off := s.plog.(log.NoopLogger); off {
		return
	}

	var payload []byte
	if params != nil {
		payload, _ = json.Marshal(params)
	}

	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Endpoint:     s.endpoint,
		Message: &log.MessageEvent{
			Type:    typ,
			CallID:  id,
			Method:  method,
			Payload: payload,
		},
	})
}

func (s *Session) logResponse(connID string, resp *wire.Response) {
	s.mu.Lock()
	info, known := s.inflight[resp.ID]
	delete(s.inflight, resp.ID)
	s.mu.Unlock()

	if _, off := s.plog.(log.NoopLogger); off {
		return
	}

	msg := &log.MessageEvent{
		Type:    log.MessageTypeResponse,
		CallID:  resp.ID,
		Payload: resp.Result,
	}
	if known {
		msg.Method = info.method
		latency := time.Since(info.sent)
		msg.Latency = &latency
	}
	if resp.Error != nil {
		code := resp.Error.Code
		msg.ErrorCode = &code
		msg.Payload, _ = json.Marshal(resp.Error)
	}

	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message:      msg,
	})
}

func (s *Session) logError(connID string, layer log.Layer, err error, context string) {
	ev := &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	var remote *wire.RemoteError
	if errors.As(err, &remote) {
		code := remote.Code
		ev.Code = &code
	}

	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     log.CategoryError,
		Endpoint:     s.endpoint,
		Error:        ev,
	})
}
