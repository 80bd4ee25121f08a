// Package moontest provides an in-process fake Moonraker WebSocket server
// for tests.
package moontest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// Errors returned by the fake server.
var (
	ErrNoConnections = errors.New("no client connected")
	ErrTimeout       = errors.New("timed out waiting")
)

// Request is one JSON-RPC request received from a client.
type Request struct {
	Method string
	ID     uint64
	Params json.RawMessage

	// HasID is false for notifications sent by the client.
	HasID bool
}

// HandlerFunc answers a request. Returning a non-nil *wire.RemoteError
// sends an error response. Returning NoReply sends nothing.
type HandlerFunc func(params json.RawMessage) (any, *wire.RemoteError)

// NoReply makes a handler leave the request unanswered.
var NoReply = &wire.RemoteError{Code: -1, Message: "moontest: no reply"}

// Server is a fake Moonraker instance serving /websocket.
type Server struct {
	// URL is the ws:// endpoint of the server.
	URL string

	http     *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	objects  []string
	status   map[string]json.RawMessage
	handlers map[string]HandlerFunc
	requests []Request
	peers    map[*peer]struct{}
	connects int
	reqCh    chan struct{}
	connCh   chan struct{}
}

type peer struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, data)
}

// NewServer starts a fake Moonraker with no printer objects.
func NewServer() *Server {
	s := &Server{
		status:   make(map[string]json.RawMessage),
		handlers: make(map[string]HandlerFunc),
		peers:    make(map[*peer]struct{}),
		reqCh:    make(chan struct{}, 1),
		connCh:   make(chan struct{}, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.serveWS)
	s.http = httptest.NewServer(mux)
	s.URL = "ws" + strings.TrimPrefix(s.http.URL, "http") + "/websocket"
	return s
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.http.Close()
}

// SetObjects sets the topics returned by printer.objects.list.
func (s *Server) SetObjects(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append([]string(nil), topics...)
}

// SetStatus sets the full status document of topic returned by subscribe
// and query.
func (s *Server) SetStatus(topic string, doc any) {
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[topic] = data
}

// Handle overrides the answer for method.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// Notify sends a notification to every connected client.
func (s *Server) Notify(method string, params any) error {
	data, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}

	peers := s.snapshotPeers()
	if len(peers) == 0 {
		return ErrNoConnections
	}
	for _, p := range peers {
		if err := p.write(data); err != nil {
			return err
		}
	}
	return nil
}

// NotifyStatus sends notify_status_update with the given partial documents.
func (s *Server) NotifyStatus(patches map[string]any, eventtime float64) error {
	return s.Notify(wire.NotifyStatusUpdate, []any{patches, eventtime})
}

// SendRaw writes data verbatim to every connected client.
func (s *Server) SendRaw(data []byte) error {
	peers := s.snapshotPeers()
	if len(peers) == 0 {
		return ErrNoConnections
	}
	for _, p := range peers {
		if err := p.write(data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client socket without a close handshake.
func (s *Server) DropConnections() {
	for _, p := range s.snapshotPeers() {
		p.ws.Close()
	}
}

// Connects returns how many WebSocket handshakes have completed.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsFor returns the requests received for method.
func (s *Server) RequestsFor(method string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// WaitForRequests blocks until at least n requests for method have been
// received.
func (s *Server) WaitForRequests(method string, n int, timeout time.Duration) ([]Request, error) {
	deadline := time.After(timeout)
	for {
		if reqs := s.RequestsFor(method); len(reqs) >= n {
			return reqs, nil
		}
		select {
		case <-s.reqCh:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return s.RequestsFor(method), ErrTimeout
		}
	}
}

// WaitForConnects blocks until at least n handshakes have completed.
func (s *Server) WaitForConnects(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		if s.Connects() >= n {
			return nil
		}
		select {
		case <-s.connCh:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return ErrTimeout
		}
	}
}

func (s *Server) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{ws: ws}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.connects++
	s.mu.Unlock()
	signal(s.connCh)

	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			Method string          `json:"method"`
			ID     *uint64         `json:"id"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		rec := Request{Method: req.Method, Params: req.Params}
		if req.ID != nil {
			rec.ID = *req.ID
			rec.HasID = true
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()
		signal(s.reqCh)

		if req.ID == nil {
			continue
		}

		result, rerr := s.answer(req.Method, req.Params)
		if rerr == NoReply {
			continue
		}
		resp := &wire.Response{ID: *req.ID}
		if rerr != nil {
			resp.Error = rerr
		} else {
			resp.Result, _ = json.Marshal(result)
		}
		out, _ := wire.EncodeResponse(resp)
		if err := p.write(out); err != nil {
			return
		}
	}
}

func (s *Server) answer(method string, params json.RawMessage) (any, *wire.RemoteError) {
	s.mu.Lock()
	fn := s.handlers[method]
	s.mu.Unlock()
	if fn != nil {
		return fn(params)
	}

	switch method {
	case wire.MethodObjectsList:
		s.mu.Lock()
		objects := append([]string{}, s.objects...)
		s.mu.Unlock()
		return map[string]any{"objects": objects}, nil

	case wire.MethodObjectsSubscribe, wire.MethodObjectsQuery:
		var p struct {
			Objects map[string]json.RawMessage `json:"objects"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &wire.RemoteError{Code: wire.CodeInvalidParams, Message: err.Error()}
		}
		status := make(map[string]json.RawMessage, len(p.Objects))
		s.mu.Lock()
		for topic := range p.Objects {
			if doc, ok := s.status[topic]; ok {
				status[topic] = doc
			} else {
				status[topic] = json.RawMessage(`{}`)
			}
		}
		s.mu.Unlock()
		return map[string]any{"eventtime": 1.0, "status": status}, nil

	case wire.MethodPrinterInfo:
		return map[string]any{
			"state":            "ready",
			"state_message":    "Printer is ready",
			"hostname":         "moontest",
			"software_version": "v0.12.0-moontest",
		}, nil

	case wire.MethodServerInfo:
		return map[string]any{
			"klippy_connected":       true,
			"klippy_state":           "ready",
			"moonraker_version":      "v0.9.3-moontest",
			"websocket_count":        len(s.snapshotPeers()),
			"registered_directories": []string{"config", "gcodes"},
		}, nil
	}

	return nil, &wire.RemoteError{Code: wire.CodeMethodNotFound, Message: "Method not found"}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
