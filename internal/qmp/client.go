// Package qmp implements an asynchronous client for the QEMU Machine
// Protocol over a unix control socket.
//
// The client separates the two traffic classes QMP multiplexes on one
// connection: command responses are correlated back to the issuing Execute
// call by id, and asynchronous events are delivered to single-shot listeners
// registered with SubscribeOnce. One reader goroutine owns the socket.
package qmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schedscope/schedscope/internal/errors"
	"github.com/schedscope/schedscope/internal/retry"
)

// DefaultPollInterval is the interval at which Connect re-checks for the
// control socket's existence.
const DefaultPollInterval = time.Second

// DefaultDialRetry bounds the dial and greeting handshake. The socket file
// can exist before the server accepts on it, so the first attempts may be
// refused.
var DefaultDialRetry = retry.Config{
	MaxRetries:     5,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     250 * time.Millisecond,
}

// Config contains client configuration.
type Config struct {
	Logger zerolog.Logger
	// PollInterval overrides the socket existence poll interval.
	PollInterval time.Duration
	// DialRetry overrides the dial/handshake retry policy. The zero value
	// means DefaultDialRetry.
	DialRetry retry.Config
}

// Client is a QMP control session. It is safe for concurrent use after
// Connect returns.
type Client struct {
	log          zerolog.Logger
	pollInterval time.Duration
	dialRetry    retry.Config

	mu         sync.Mutex
	conn       net.Conn
	enc        *json.Encoder
	nextID     uint64
	pending    map[uint64]chan *message
	listeners  map[string][]chan Event
	closed     bool
	socketPath string

	done    chan struct{} // closed when the reader exits
	readErr error         // reason the reader exited; set before done closes
}

// NewClient creates a disconnected client.
func NewClient(cfg Config) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	dialRetry := cfg.DialRetry
	if dialRetry.MaxRetries <= 0 {
		dialRetry = DefaultDialRetry
	}
	return &Client{
		log:          cfg.Logger.With().Str("component", "qmp").Logger(),
		pollInterval: interval,
		dialRetry:    dialRetry,
		pending:      make(map[uint64]chan *message),
		listeners:    make(map[string][]chan Event),
		done:         make(chan struct{}),
	}
}

// Connect waits for the control socket to exist, dials it, and performs the
// QMP handshake (greeting followed by qmp_capabilities). It blocks until the
// socket appears or ctx is cancelled.
func (c *Client) Connect(ctx context.Context, socketPath string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.log.Info().Str("socket", socketPath).Msg("waiting for control socket")

	err := retry.Poll(ctx, c.pollInterval, func() (bool, error) {
		if _, err := os.Stat(socketPath); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return &ConnectionError{SocketPath: socketPath, Op: "wait for", Err: err}
	}

	// The socket file can exist before the server accepts on it; the dial
	// and the greeting are retried together with backoff.
	var (
		conn   net.Conn
		dec    *json.Decoder
		banner message
	)
	err = retry.Do(ctx, c.dialRetry, func() error {
		var d net.Dialer
		cn, err := d.DialContext(ctx, "unix", socketPath)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}

		// The decoder buffers; the reader goroutine must reuse this
		// exact one.
		dc := json.NewDecoder(cn)

		banner = message{}
		if err := dc.Decode(&banner); err != nil || banner.QMP == nil {
			errors.DeferClose(c.log, cn, "close socket after failed handshake")
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
			return fmt.Errorf("handshake: missing greeting banner")
		}

		conn, dec = cn, dc
		return nil
	}, nil)
	if err != nil {
		return &ConnectionError{SocketPath: socketPath, Op: "establish session with", Err: err}
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect raced the handshake: done is already closed, so the
		// reader must not start, and the fresh conn must not leak.
		c.mu.Unlock()
		errors.DeferClose(c.log, conn, "close socket after late disconnect")
		return ErrClosed
	}
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.socketPath = socketPath
	c.mu.Unlock()

	go c.readLoop(dec)

	// Capabilities negotiation ends the greeting phase; commands are
	// rejected until it completes.
	if _, err := c.Execute(ctx, "qmp_capabilities", nil); err != nil {
		_ = c.Disconnect()
		return &ConnectionError{SocketPath: socketPath, Op: "negotiate capabilities with", Err: err}
	}

	c.log.Debug().Str("package", banner.QMP.Version.Package).Msg("control session established")
	return nil
}

// Execute sends a command and blocks until the matching response arrives.
// A protocol-level rejection is returned as a *CommandError carrying the
// server's error payload.
func (c *Client) Execute(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	id := c.nextID
	c.nextID++
	ch := make(chan *message, 1)
	c.pending[id] = ch

	// Encode under the lock so concurrent Executes cannot interleave writes.
	if err := c.enc.Encode(command{Execute: cmd, Arguments: args, ID: id}); err != nil {
		delete(c.pending, id)
		path := c.socketPath
		c.mu.Unlock()
		return nil, &ConnectionError{SocketPath: path, Op: "send to", Err: err}
	}
	c.mu.Unlock()

	select {
	case m := <-ch:
		return c.unpackResponse(cmd, m)
	default:
	}

	select {
	case m := <-ch:
		return c.unpackResponse(cmd, m)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, &ConnectionError{SocketPath: c.socketPath, Op: "await response from", Err: c.readErr}
	}
}

func (c *Client) unpackResponse(cmd string, m *message) (json.RawMessage, error) {
	if m.Error != nil {
		m.Error.Command = cmd
		return nil, m.Error
	}
	return m.Return, nil
}

// Listener is a single-shot subscription to one event name.
type Listener struct {
	ch   chan Event
	done <-chan struct{}
	c    *Client
}

// SubscribeOnce registers a single-shot subscription resolving on the next
// event with the given name. Subscriptions to different names are
// independent; an event arriving before Wait is called is retained.
func (c *Client) SubscribeOnce(event string) *Listener {
	ch := make(chan Event, 1)
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], ch)
	c.mu.Unlock()
	return &Listener{ch: ch, done: c.done, c: c}
}

// Wait blocks until the subscribed event fires, ctx is cancelled, or the
// session ends.
func (l *Listener) Wait(ctx context.Context) (Event, error) {
	// An already-delivered event wins over a concurrently closed session.
	select {
	case ev := <-l.ch:
		return ev, nil
	default:
	}

	select {
	case ev := <-l.ch:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-l.done:
		return Event{}, &ConnectionError{SocketPath: l.c.socketPath, Op: "await event from", Err: l.c.readErr}
	}
}

// Disconnect releases the session. It is idempotent; pending Executes and
// Waits fail once the reader observes the closed socket.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Never connected; unblock any waiters.
		c.readErr = ErrClosed
		close(c.done)
		return nil
	}
	return conn.Close()
}

func (c *Client) readLoop(dec *json.Decoder) {
	for {
		var m message
		if err := dec.Decode(&m); err != nil {
			c.mu.Lock()
			if c.closed {
				c.readErr = ErrClosed
			} else {
				c.readErr = err
				c.log.Warn().Err(err).Msg("control session read failed")
			}
			c.mu.Unlock()
			close(c.done)
			return
		}

		switch {
		case m.isResponse() && m.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*m.ID]
			delete(c.pending, *m.ID)
			c.mu.Unlock()
			if ok {
				ch <- &m
			}
		case m.Event != "":
			ev := Event{Name: m.Event, Data: m.Data}
			if m.Timestamp != nil {
				ev.Timestamp = *m.Timestamp
			}
			c.mu.Lock()
			subs := c.listeners[m.Event]
			delete(c.listeners, m.Event)
			c.mu.Unlock()
			for _, sub := range subs {
				sub <- ev
			}
			c.log.Debug().Str("event", m.Event).Int("listeners", len(subs)).Msg("event received")
		}
	}
}
