// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/bureau-foundation/parley/lib/codec"
)

// Status is the observable connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	// StatusError is terminal: the retry budget is exhausted and the
	// connection will not recover until Start is called again.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrNotConnected is returned by Emit while the connection is not in
// StatusConnected. Nothing is queued.
var ErrNotConnected = errors.New("wire: not connected")

// Handler receives the raw payload of one inbound envelope. Handlers
// are called serially on the read loop goroutine and must not block.
type Handler func(payload codec.RawMessage)

const (
	// maxFrameSize bounds inbound frames. Message payloads are small;
	// anything larger indicates a protocol error.
	maxFrameSize = 1 << 20

	writeTimeout = 5 * time.Second

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// maxConsecutiveFailures is the retry budget: this many failures
	// in a row parks the connection in StatusError. A connection that
	// drops before minStableUptime counts as a failure too, so a
	// server that accepts and immediately closes cannot drive an
	// unbounded redial loop.
	maxConsecutiveFailures = 5
	minStableUptime        = 30 * time.Second
)

// Config configures a Conn.
type Config struct {
	// SocketURL is the websocket endpoint (ws:// or wss://).
	SocketURL string

	// OnStatus, if set, is called on every status transition. Called
	// from the connection goroutine; must not block.
	OnStatus func(Status)

	// OnConnect, if set, is called each time the connection reaches
	// StatusConnected, including after a reconnect. Used to replay
	// per-connection server state (the currently open conversation,
	// which the server forgets when the transport drops). Emit is
	// valid inside the callback.
	OnConnect func()

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient, if set, is used for the websocket dial. Tests use
	// this to point at an in-process server.
	HTTPClient *http.Client
}

// Conn is one persistent push connection. It owns the websocket
// exclusively: no other component opens or closes the transport.
// All methods are safe for concurrent use.
type Conn struct {
	config Config
	logger *slog.Logger

	// Backoff parameters, settable in tests.
	backoffInitial time.Duration
	backoffMax     time.Duration
	stableUptime   time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	status   Status
	ws       *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Conn in StatusDisconnected. Call Subscribe to register
// event handlers, then Start to open the connection.
func New(config Config) (*Conn, error) {
	if config.SocketURL == "" {
		return nil, fmt.Errorf("wire: socket URL is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		config:         config,
		logger:         logger,
		backoffInitial: initialBackoff,
		backoffMax:     maxBackoff,
		stableUptime:   minStableUptime,
		handlers:       make(map[string]Handler),
		status:         StatusDisconnected,
	}, nil
}

// Subscribe registers the handler for an inbound event name, replacing
// any previous handler for that name. Safe to call at any time;
// handlers registered after Start apply to subsequent frames.
func (c *Conn) Subscribe(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Status returns the current connection status.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start opens the connection authenticated with the given bearer
// token and keeps it open until Stop: transport drops reconnect with
// exponential backoff, and the retry budget parks the connection in
// StatusError when exhausted. Returns an error if already started.
// After the connection parks in StatusError, call Stop (which is safe
// once the loop has exited) before starting again.
func (c *Conn) Start(token string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("wire: connection already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, token)
	}()
	return nil
}

// Stop closes the connection and waits for the connection goroutine
// to exit. After Stop returns, no handler will fire. Idempotent.
func (c *Conn) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Emit sends one envelope. Fails fast with ErrNotConnected while the
// connection is not StatusConnected — the caller owns retry policy.
func (c *Conn) Emit(event string, payload any) error {
	envelope, err := NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("wire: failed to encode %s payload: %w", event, err)
	}
	frame, err := codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("wire: failed to encode %s envelope: %w", event, err)
	}

	c.mu.Lock()
	ws := c.ws
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("wire: failed to send %s: %w", event, err)
	}
	return nil
}

// run is the connection loop: dial, read until the transport drops,
// reconnect with backoff. Every failure path sleeps before the next
// attempt. Exits on context cancellation (Stop) or when the retry
// budget is exhausted. The failure count only resets once a
// connection has stayed up for stableUptime, so an immediate drop
// after a successful dial still counts against the budget.
func (c *Conn) run(ctx context.Context, token string) {
	backoff := c.backoffInitial
	failures := 0

	for {
		select {
		case <-ctx.Done():
			c.setStatus(StatusDisconnected)
			return
		default:
		}

		c.setStatus(StatusConnecting)

		ws, err := c.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				c.setStatus(StatusDisconnected)
				return
			}
			failures++
			if failures >= maxConsecutiveFailures {
				c.logger.Error("connection retry budget exhausted",
					"failures", failures,
					"error", err,
				)
				c.setStatus(StatusError)
				return
			}
			c.logger.Warn("dial failed, retrying",
				"error", err,
				"backoff", backoff,
				"failures", failures,
			)
			if !c.sleep(ctx, backoff) {
				c.setStatus(StatusDisconnected)
				return
			}
			backoff = c.nextBackoff(backoff)
			continue
		}

		connectedAt := time.Now()

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setStatus(StatusConnected)
		c.logger.Info("connected", "url", c.config.SocketURL)

		if c.config.OnConnect != nil {
			c.config.OnConnect()
		}

		readErr := c.readLoop(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")

		if ctx.Err() != nil {
			c.setStatus(StatusDisconnected)
			return
		}

		if time.Since(connectedAt) >= c.stableUptime {
			failures = 0
			backoff = c.backoffInitial
		} else {
			failures++
			if failures >= maxConsecutiveFailures {
				c.logger.Error("connection retry budget exhausted",
					"failures", failures,
					"error", readErr,
				)
				c.setStatus(StatusError)
				return
			}
		}
		c.logger.Warn("connection dropped, reconnecting",
			"error", readErr,
			"backoff", backoff,
			"failures", failures,
		)
		if !c.sleep(ctx, backoff) {
			c.setStatus(StatusDisconnected)
			return
		}
		backoff = c.nextBackoff(backoff)
	}
}

// sleep waits for the backoff duration. Returns false if the context
// was cancelled first.
func (c *Conn) sleep(ctx context.Context, backoff time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}

func (c *Conn) nextBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > c.backoffMax {
		backoff = c.backoffMax
	}
	return backoff
}

func (c *Conn) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, _, err := websocket.Dial(dialCtx, c.config.SocketURL, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: c.config.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", c.config.SocketURL, err)
	}
	ws.SetReadLimit(maxFrameSize)
	return ws, nil
}

// readLoop reads frames until the transport fails, dispatching each
// envelope serially to its subscribed handler. Returns the read error.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		messageType, frame, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		if messageType != websocket.MessageBinary {
			c.logger.Warn("ignoring non-binary frame", "type", messageType)
			continue
		}

		var envelope Envelope
		if err := codec.Unmarshal(frame, &envelope); err != nil {
			c.logger.Warn("ignoring malformed envelope", "error", err)
			continue
		}

		c.mu.Lock()
		handler := c.handlers[envelope.Event]
		c.mu.Unlock()

		if handler == nil {
			c.logger.Debug("no handler for event", "event", envelope.Event)
			continue
		}
		handler(envelope.Payload)
	}
}

func (c *Conn) setStatus(status Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	c.mu.Unlock()

	if c.config.OnStatus != nil {
		c.config.OnStatus(status)
	}
}
