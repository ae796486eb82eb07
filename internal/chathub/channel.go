// ABOUTME: Duplex WebSocket channel to the chat hub: connect, JSON handshake, keepalive, frame dispatch
// ABOUTME: Close cancels keepalive, drops the socket and detaches listeners; safe to call repeatedly

package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/chathub/internal/metrics"
)

// DefaultURL is the production chat hub endpoint.
const DefaultURL = "wss://sydney.bing.com/sydney/ChatHub"

const (
	// DefaultKeepaliveInterval matches the service's observed idle tolerance.
	DefaultKeepaliveInterval = 15 * time.Second
	// DefaultHandshakeTimeout bounds the wait for the handshake acknowledgment.
	DefaultHandshakeTimeout = 10 * time.Second

	// Records for the bot's reply can be large (adaptive cards, suggestions).
	readLimit    = 16 << 20
	writeTimeout = 10 * time.Second
)

const (
	handshakeRecord = `{"protocol":"json","version":1}` + RecordSeparator
	pingRecord      = `{"type":6}` + RecordSeparator
)

// ErrHandshakeTimeout is returned by Dial when no acknowledgment arrives in time.
var ErrHandshakeTimeout = errors.New("handshake acknowledgment not received")

// ErrClosed is returned when sending on a channel that is not Ready.
var ErrClosed = errors.New("channel closed")

// State is the lifecycle position of a Channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakeWait
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakeWait:
		return "handshake_wait"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures Dial.
type Options struct {
	URL               string
	HTTPClient        *http.Client // carries proxy settings; must not set Timeout
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// Channel is one socket connection to the hub. It is not reused across turns.
type Channel struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics

	keepalive time.Duration

	mu        sync.Mutex
	state     State
	listeners []func(Frame)

	readCtx    context.Context
	cancelRead context.CancelFunc
	stop       chan struct{}
	closeOnce  sync.Once
}

// Dial connects to the hub, performs the JSON protocol handshake and starts
// keepalive. It returns once the channel is Ready.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Channel{
		logger:    logger.With("component", "chathub"),
		metrics:   opts.Metrics,
		keepalive: opts.KeepaliveInterval,
		state:     StateConnecting,
		stop:      make(chan struct{}),
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		c.metrics.Handshake(false)
		return nil, fmt.Errorf("connecting to %s: %w", opts.URL, err)
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	c.readCtx, c.cancelRead = context.WithCancel(context.Background())

	if err := c.handshake(ctx, opts.HandshakeTimeout); err != nil {
		c.metrics.Handshake(false)
		c.Close()
		return nil, err
	}
	c.metrics.Handshake(true)

	c.setState(StateReady)
	go c.keepaliveLoop()
	go c.readLoop()

	return c, nil
}

func (c *Channel) handshake(ctx context.Context, timeout time.Duration) error {
	c.setState(StateHandshakeWait)
	c.logger.Debug("performing handshake")

	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.conn.Write(hsCtx, websocket.MessageText, []byte(handshakeRecord)); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}

	for {
		_, data, err := c.conn.Read(hsCtx)
		if err != nil {
			if errors.Is(hsCtx.Err(), context.DeadlineExceeded) {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("awaiting handshake: %w", err)
		}
		frames, dropped := DecodeRecords(data)
		c.metrics.FramesDropped(dropped)
		for _, f := range frames {
			if f.Kind == KindHandshakeAck {
				c.logger.Debug("handshake established")
				return nil
			}
			c.logger.Debug("ignoring record before handshake", "kind", f.Kind.String())
		}
	}
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// OnFrame registers fn to receive every decoded frame after the handshake.
// Listeners run on the read goroutine and must not block for long.
func (c *Channel) OnFrame(fn func(Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.listeners = append(c.listeners, fn)
}

// Send marshals v as JSON and writes it as one record.
func (c *Channel) Send(ctx context.Context, v any) error {
	if c.State() != StateReady {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return c.write(ctx, append(data, RecordSeparator...))
}

func (c *Channel) write(ctx context.Context, record []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, record); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (c *Channel) keepaliveLoop() {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(c.readCtx, []byte(pingRecord)); err != nil {
				c.logger.Debug("keepalive failed", "error", err)
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.Read(c.readCtx)
		if err != nil {
			if c.State() != StateClosed {
				c.logger.Debug("disconnected", "error", err)
			}
			return
		}

		frames, dropped := DecodeRecords(data)
		c.metrics.FramesDropped(dropped)
		if len(frames) == 0 {
			continue
		}

		c.mu.Lock()
		listeners := make([]func(Frame), len(c.listeners))
		copy(listeners, c.listeners)
		c.mu.Unlock()

		for _, f := range frames {
			if c.State() == StateClosed {
				return
			}
			c.metrics.FrameDecoded(f.Kind.String())
			if c.logger.Enabled(context.Background(), slog.LevelDebug) {
				c.logger.Debug("frame received", "kind", f.Kind.String(), "raw", f.Raw)
			}
			for _, fn := range listeners {
				fn(f)
			}
		}
	}
}

// Close stops keepalive, closes the socket and detaches listeners.
// Safe to call multiple times and from a listener.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.listeners = nil
		c.mu.Unlock()

		close(c.stop)
		if c.conn != nil {
			err = c.conn.CloseNow()
		}
		if c.cancelRead != nil {
			c.cancelRead()
		}
		c.logger.Debug("channel closed")
	})
	return err
}
