package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Channel is one long-lived WebSocket connection bound to a topic.
// A Channel may be re-opened after it closes; each open is a new session.
type Channel struct {
	topic  string
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	pending *session // dialing, not yet open
	sess    *session // open
}

// session is one transport connection and its goroutines.
type session struct {
	id       string
	conn     *websocket.Conn
	handlers Handlers
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	local    atomic.Bool  // closed by Close()
	stale    atomic.Bool  // closed by the heartbeat
	lastPong atomic.Int64 // unix nanos
}

// New creates an idle Channel for topic.
func New(topic string, cfg Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		topic:  topic,
		cfg:    cfg,
		logger: logger.With("topic", topic),
		state:  StateIdle,
	}
}

// Topic returns the topic this channel is bound to.
func (c *Channel) Topic() string { return c.topic }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsOpen reports whether the channel is ready to send.
func (c *Channel) IsOpen() bool { return c.State() == StateOpen }

// ConnectionID returns the id of the open session, or "" when not open.
func (c *Channel) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Open dials url and returns once the connection is ready.
// url must already carry the credentials. Errors before readiness are
// returned and fire no handlers.
func (c *Channel) Open(ctx context.Context, url string, h Handlers) error {
	s := &session{
		id:       uuid.NewString(),
		handlers: h,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = StateConnecting
	c.pending = s
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		c.mu.Lock()
		if c.pending == s {
			c.pending = nil
			c.state = StateClosed
		}
		c.mu.Unlock()
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	if c.pending != s {
		// Close() ran while dialing
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.pending = nil
	s.conn = conn
	s.lastPong.Store(time.Now().UnixNano())
	c.sess = s
	c.state = StateOpen
	c.mu.Unlock()

	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		s.lastPong.Store(time.Now().UnixNano())
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		s.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	c.logger.Debug("channel open", "connection_id", s.id)

	if h.OnReady != nil {
		h.OnReady()
	}

	go c.readLoop(s)
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop(s)
	}

	return nil
}

// Send writes one text frame. It is a no-op with a warning unless the
// channel is open; it never queues.
func (c *Channel) Send(payload []byte) bool {
	c.mu.RLock()
	s := c.sess
	state := c.state
	c.mu.RUnlock()

	if state != StateOpen || s == nil {
		c.logger.Warn("channel not open, dropping message",
			"state", state,
			"bytes", len(payload),
		)
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("send failed", "connection_id", s.id, "error", err)
		return false
	}
	return true
}

// SendJSON marshals v and sends it.
func (c *Channel) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("marshal outbound message", "error", err)
		return false
	}
	return c.Send(data)
}

// Close ends the current session, if any. Idempotent. It returns without
// waiting for the close handshake.
func (c *Channel) Close() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.pending = nil
	c.state = StateClosed
	c.mu.Unlock()

	if s == nil {
		return
	}

	s.local.Store(true)

	// The close handshake may stall on a wedged peer; the caller never waits for it
	go func() {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.conn.Close()
	}()

	c.logger.Debug("channel closed", "connection_id", s.id)
}

// readLoop delivers inbound frames in order until the session ends.
func (c *Channel) readLoop(s *session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			c.finish(s, err)
			return
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(data)
		}
	}
}

// finish tears down a session and fires OnError/OnClose exactly once.
func (c *Channel) finish(s *session, err error) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
		c.state = StateClosed
	}
	c.mu.Unlock()

	close(s.done)
	s.conn.Close()

	var reason error
	switch {
	case s.local.Load():
		// Closed by us
	case s.stale.Load():
		reason = ErrStaleConnection
	default:
		reason = err
	}

	if reason != nil && !websocket.IsCloseError(reason, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Warn("channel error", "connection_id", s.id, "error", reason)
		if s.handlers.OnError != nil {
			s.handlers.OnError(reason)
		}
	}

	c.logger.Debug("channel session ended", "connection_id", s.id, "local", s.local.Load())

	if s.handlers.OnClose != nil {
		s.handlers.OnClose(reason)
	}
}

// heartbeatLoop sends pings and detects stale sessions.
func (c *Channel) heartbeatLoop(s *session) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if c.cfg.WriteTimeout <= 0 {
				deadline = time.Now().Add(time.Second)
			}
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if c.cfg.PongTimeout <= 0 {
				continue
			}
			last := time.Unix(0, s.lastPong.Load())
			if time.Since(last) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", last,
					"timeout", c.cfg.PongTimeout,
				)
				s.stale.Store(true)
				s.conn.Close()
				return
			}
		}
	}
}
