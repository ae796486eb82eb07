// ABOUTME: In-process fake chat hub for tests, built on httptest and coder/websocket
// ABOUTME: Acknowledges the handshake, echoes pings, records invocations and replays scripted frames

// Package hubtest provides a fake chat hub server for tests.
package hubtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const separator = "\x1e"

// Conn is the server side of one client connection.
type Conn struct {
	ws  *websocket.Conn
	ctx context.Context
}

// Send writes records as a single delivery, each followed by the separator.
func (c *Conn) Send(records ...string) error {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r)
		b.WriteString(separator)
	}
	return c.ws.Write(c.ctx, websocket.MessageText, []byte(b.String()))
}

// SendRaw writes data as-is.
func (c *Conn) SendRaw(data string) error {
	return c.ws.Write(c.ctx, websocket.MessageText, []byte(data))
}

// Options tunes the fake hub.
type Options struct {
	// SkipAck suppresses the handshake acknowledgment.
	SkipAck bool
	// BeforeAck, when set, is written before the acknowledgment.
	BeforeAck string
	// OnInvocation runs for every type-4 record the client sends.
	OnInvocation func(c *Conn, invocation gjson.Result)
}

// Server is a fake chat hub.
type Server struct {
	*httptest.Server
	URL string

	opts Options

	mu          sync.Mutex
	invocations []gjson.Result
	pings       int
	handshakes  int
	connections int
	closed      chan struct{}
}

// New starts a fake hub and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts Options) *Server {
	t.Helper()
	s := &Server{opts: opts, closed: make(chan struct{}, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer ws.CloseNow()

	s.mu.Lock()
	s.connections++
	s.mu.Unlock()
	defer func() {
		select {
		case s.closed <- struct{}{}:
		default:
		}
	}()

	conn := &Conn{ws: ws, ctx: r.Context()}
	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			return
		}
		for _, rec := range strings.Split(string(data), separator) {
			if rec == "" {
				continue
			}
			s.dispatch(conn, gjson.Parse(rec))
		}
	}
}

func (s *Server) dispatch(conn *Conn, rec gjson.Result) {
	switch {
	case rec.Get("protocol").Exists():
		s.mu.Lock()
		s.handshakes++
		s.mu.Unlock()
		if s.opts.BeforeAck != "" {
			_ = conn.SendRaw(s.opts.BeforeAck)
		}
		if !s.opts.SkipAck {
			_ = conn.Send(`{}`)
		}
	case rec.Get("type").Int() == 6:
		s.mu.Lock()
		s.pings++
		s.mu.Unlock()
		_ = conn.Send(`{"type":6}`)
	case rec.Get("type").Int() == 4:
		s.mu.Lock()
		s.invocations = append(s.invocations, rec)
		s.mu.Unlock()
		if s.opts.OnInvocation != nil {
			s.opts.OnInvocation(conn, rec)
		}
	}
}

// Invocations returns the invocation records received so far.
func (s *Server) Invocations() []gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gjson.Result, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// Pings reports how many keepalive records arrived.
func (s *Server) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Handshakes reports how many handshake records arrived.
func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes
}

// Connections reports how many sockets were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// Disconnected receives once per connection after its handler returns.
func (s *Server) Disconnected() <-chan struct{} {
	return s.closed
}
