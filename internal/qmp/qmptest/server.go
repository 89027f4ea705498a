// Package qmptest provides an in-process fake QMP server for tests.
//
// The server speaks just enough of the protocol for client tests: it sends a
// greeting on accept, negotiates qmp_capabilities, answers commands through a
// caller-supplied handler, and can emit asynchronous events.
package qmptest

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
)

// ErrorPayload mirrors the QMP error object.
type ErrorPayload struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// Handler answers one command. Return a non-nil errPayload to reject it.
type Handler func(cmd string, args json.RawMessage) (ret any, errPayload *ErrorPayload)

// Server is a fake QMP endpoint on a unix socket.
type Server struct {
	t       *testing.T
	ln      net.Listener
	handler Handler

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder

	connected chan struct{}
	stopped   chan struct{}
}

type request struct {
	Execute   string          `json:"execute"`
	Arguments json.RawMessage `json:"arguments"`
	ID        *uint64         `json:"id"`
}

// Serve starts a server listening on socketPath. The listener is closed via
// t.Cleanup. A nil handler answers every command with an empty return.
func Serve(t *testing.T, socketPath string, handler Handler) *Server {
	t.Helper()

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("qmptest: listen %s: %v", socketPath, err)
	}

	if handler == nil {
		handler = func(string, json.RawMessage) (any, *ErrorPayload) {
			return struct{}{}, nil
		}
	}

	s := &Server{
		t:         t,
		ln:        ln,
		handler:   handler,
		connected: make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	go s.acceptLoop()
	t.Cleanup(s.Close)

	return s
}

// Emit writes an asynchronous event to the connected client. It blocks until
// a client has connected.
func (s *Server) Emit(event string, data any) {
	s.t.Helper()
	<-s.connected

	payload := map[string]any{
		"event":     event,
		"timestamp": map[string]int64{"seconds": 1700000000, "microseconds": 0},
	}
	if data != nil {
		payload["data"] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(payload); err != nil {
		s.t.Logf("qmptest: emit %s: %v", event, err)
	}
}

// DropConnection closes the client connection without closing the listener.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close shuts the server down. Safe to call more than once.
func (s *Server) Close() {
	select {
	case <-s.stopped:
		return
	default:
		close(s.stopped)
	}
	_ = s.ln.Close()
	s.DropConnection()
}

func (s *Server) acceptLoop() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.enc = json.NewEncoder(conn)
	s.mu.Unlock()

	s.send(map[string]any{
		"QMP": map[string]any{
			"version": map[string]any{
				"qemu":    map[string]int{"major": 9, "minor": 0, "micro": 0},
				"package": "qmptest",
			},
			"capabilities": []string{"oob"},
		},
	})
	close(s.connected)

	dec := json.NewDecoder(conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		s.answer(req)
	}
}

func (s *Server) answer(req request) {
	resp := map[string]any{}
	if req.ID != nil {
		resp["id"] = *req.ID
	}

	if req.Execute == "qmp_capabilities" {
		resp["return"] = struct{}{}
		s.send(resp)
		return
	}

	ret, errPayload := s.handler(req.Execute, req.Arguments)
	if errPayload != nil {
		resp["error"] = errPayload
	} else {
		if ret == nil {
			ret = struct{}{}
		}
		resp["return"] = ret
	}
	s.send(resp)
}

func (s *Server) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(v); err != nil {
		select {
		case <-s.stopped:
		default:
			s.t.Logf("qmptest: send: %v", err)
		}
	}
}
