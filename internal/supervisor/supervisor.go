package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rickgao/walletstream/internal/auth"
	"github.com/rickgao/walletstream/internal/channel"
	"github.com/rickgao/walletstream/internal/notify"
	"github.com/rickgao/walletstream/internal/wire"
)

// Supervisor owns one Channel per topic and keeps the group connected.
// The group is always connected, retried and torn down as a whole.
type Supervisor struct {
	cfg        Config
	creds      auth.Credentials
	dispatcher Dispatcher
	notifier   notify.Notifier
	logger     *slog.Logger
	schedule   Scheduler
	backoff    *backoff.Backoff

	topics   []wire.Topic
	channels map[wire.Topic]*channel.Channel

	mu          sync.Mutex
	connecting  bool
	connectLost bool
	generation  uint64 // bumped whenever the current group is abandoned
	attempts    int
	exhausted   bool
	cancelRetry func() bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the sink for the terminal connection-lost toast.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Supervisor) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithScheduler replaces time.AfterFunc for reconnect timers.
func WithScheduler(sched Scheduler) Option {
	return func(s *Supervisor) {
		if sched != nil {
			s.schedule = sched
		}
	}
}

// New creates a Supervisor. No connection is made until Connect.
func New(cfg Config, creds auth.Credentials, d Dispatcher, opts ...Option) (*Supervisor, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNoDispatcher
	}

	topics := cfg.Topics
	if len(topics) == 0 {
		topics = wire.AllTopics
	}
	seen := make(map[wire.Topic]bool, len(topics))
	for _, t := range topics {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown topic %q", t)
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate topic %q", t)
		}
		seen[t] = true
	}

	// Validate the base URL once up front
	if _, err := creds.ChannelURL(cfg.BaseURL, string(topics[0])); err != nil {
		return nil, err
	}

	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultConfig().ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultConfig().MaxReconnectAttempts
	}
	if cfg.MaxReconnectAttempts > maxAttemptsCap {
		cfg.MaxReconnectAttempts = maxAttemptsCap
	}

	s := &Supervisor{
		cfg:        cfg,
		creds:      creds,
		dispatcher: d,
		notifier:   notify.Discard,
		logger:     slog.Default(),
		schedule:   AfterFunc,
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    maxDelay(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts),
			Factor: 2,
			Jitter: false,
		},
		topics:   topics,
		channels: make(map[wire.Topic]*channel.Channel, len(topics)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, t := range topics {
		s.channels[t] = channel.New(string(t), cfg.Channel, s.logger)
	}

	return s, nil
}

// Topics returns the topics in connect order.
func (s *Supervisor) Topics() []wire.Topic {
	out := make([]wire.Topic, len(s.topics))
	copy(out, s.topics)
	return out
}

// Delay returns the wait before retry number attempt (1-based):
// base, 2*base, 4*base, ...
func (s *Supervisor) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.backoff.ForAttempt(float64(attempt - 1))
}

// maxDelay is base × 2^(attempts−1), clamped to the largest Duration.
func maxDelay(base time.Duration, attempts int) time.Duration {
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if base > time.Duration(math.MaxInt64)>>shift {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

// Connect opens every topic sequentially and returns once all are ready.
// A Connect arriving while another is in flight returns nil immediately.
// On failure the opened channels are closed and a group retry is scheduled.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.exhausted {
		s.mu.Unlock()
		return ErrReconnectExhausted
	}
	if s.connecting {
		s.mu.Unlock()
		s.logger.Debug("connect already in flight")
		return nil
	}
	if s.allOpenLocked() {
		s.mu.Unlock()
		return nil
	}

	// Abandon whatever is left of the previous group
	s.generation++
	gen := s.generation
	s.stopRetryLocked()
	s.closeAllLocked()
	s.connecting = true
	s.connectLost = false
	s.mu.Unlock()

	start := time.Now()
	err := s.openAll(ctx, gen)

	s.mu.Lock()
	s.connecting = false
	lost := s.connectLost
	s.connectLost = false

	if s.generation != gen {
		s.closeAllLocked()
		s.mu.Unlock()
		s.logger.Info("connect abandoned by disconnect")
		return ErrDisconnected
	}

	if err == nil && lost {
		err = ErrChannelLost
	}

	if err == nil {
		s.attempts = 0
		s.mu.Unlock()
		s.logger.Info("connected",
			"topics", len(s.topics),
			"elapsed", time.Since(start),
		)
		return nil
	}

	s.generation++
	s.closeAllLocked()
	gaveUp := s.scheduleRetryLocked()
	s.mu.Unlock()

	s.logger.Warn("connect failed", "error", err)
	if gaveUp {
		s.giveUp()
	}
	return err
}

// openAll opens each topic in order and stops at the first failure.
func (s *Supervisor) openAll(ctx context.Context, gen uint64) error {
	for _, topic := range s.topics {
		url, err := s.creds.ChannelURL(s.cfg.BaseURL, string(topic))
		if err != nil {
			return fmt.Errorf("open %s: %w", topic, err)
		}

		s.logger.Debug("opening channel", "topic", topic, "url", auth.Redact(url))

		if err := s.channels[topic].Open(ctx, url, s.handlersFor(topic, gen)); err != nil {
			return fmt.Errorf("open %s: %w", topic, err)
		}

		s.mu.Lock()
		stop := s.generation != gen || s.connectLost
		s.mu.Unlock()
		if stop {
			return nil
		}
	}
	return nil
}

// handlersFor binds channel callbacks to one connect generation.
func (s *Supervisor) handlersFor(topic wire.Topic, gen uint64) channel.Handlers {
	return channel.Handlers{
		OnReady: func() {
			s.logger.Debug("channel ready", "topic", topic)
		},
		OnMessage: func(data []byte) {
			s.dispatcher.Dispatch(topic, data)
		},
		OnError: func(err error) {
			s.logger.Warn("channel transport error", "topic", topic, "error", err)
		},
		OnClose: func(err error) {
			s.handleClose(topic, gen, err)
		},
	}
}

// handleClose reacts to a channel session ending. Closes caused by the
// supervisor itself carry an old generation and are ignored.
func (s *Supervisor) handleClose(topic wire.Topic, gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	if s.connecting {
		s.connectLost = true
		s.mu.Unlock()
		s.logger.Warn("channel lost during connect", "topic", topic, "error", err)
		return
	}

	s.generation++
	s.closeAllLocked()
	gaveUp := s.scheduleRetryLocked()
	s.mu.Unlock()

	s.logger.Warn("channel lost, reconnecting group", "topic", topic, "error", err)
	if gaveUp {
		s.giveUp()
	}
}

// scheduleRetryLocked arms the next retry for the current generation.
// It returns true when the retry budget has just run out.
func (s *Supervisor) scheduleRetryLocked() bool {
	if s.exhausted {
		return false
	}
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.exhausted = true
		return true
	}

	s.attempts++
	attempt := s.attempts
	delay := s.Delay(attempt)
	gen := s.generation

	s.stopRetryLocked()
	s.cancelRetry = s.schedule(delay, func() {
		s.retry(gen, attempt)
	})

	s.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max_attempts", s.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
	return false
}

// retry is the timer callback. It does nothing if the group was abandoned
// since the timer was armed.
func (s *Supervisor) retry(gen uint64, attempt int) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("stale reconnect timer ignored", "attempt", attempt)
		return
	}
	s.cancelRetry = nil
	s.mu.Unlock()

	s.logger.Info("attempting reconnection", "attempt", attempt)

	if err := s.Connect(context.Background()); err != nil {
		s.logger.Warn("reconnection failed", "attempt", attempt, "error", err)
		return
	}
	s.logger.Info("reconnected", "attempt", attempt)
}

func (s *Supervisor) giveUp() {
	s.logger.Error("giving up reconnecting",
		"attempts", s.cfg.MaxReconnectAttempts,
	)
	s.notifier.Notify(notify.Toast{Level: notify.LevelError, Message: LostToast})
}

// Disconnect closes every channel and cancels any pending retry.
// Idempotent and safe before any Connect. Fires no handlers.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.generation++
	s.stopRetryLocked()
	s.closeAllLocked()
	s.mu.Unlock()

	s.logger.Debug("disconnected")
}

// IsConnected reports whether any channel is open.
func (s *Supervisor) IsConnected() bool {
	for _, t := range s.topics {
		if s.channels[t].IsOpen() {
			return true
		}
	}
	return false
}

// Send writes payload on the channel for topic. It returns false with a
// warning for an unknown topic or a channel that is not open.
func (s *Supervisor) Send(topic wire.Topic, payload []byte) bool {
	ch, ok := s.channels[topic]
	if !ok {
		s.logger.Warn("send on unknown topic", "topic", topic)
		return false
	}
	return ch.Send(payload)
}

// SendJSON marshals v and sends it on topic.
func (s *Supervisor) SendJSON(topic wire.Topic, v any) bool {
	ch, ok := s.channels[topic]
	if !ok {
		s.logger.Warn("send on unknown topic", "topic", topic)
		return false
	}
	return ch.SendJSON(v)
}

// State returns the lifecycle state of the channel for topic.
func (s *Supervisor) State(topic wire.Topic) (channel.State, bool) {
	ch, ok := s.channels[topic]
	if !ok {
		return channel.StateIdle, false
	}
	return ch.State(), true
}

// Stats returns a snapshot for status reporting.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Connecting:       s.connecting,
		Attempts:         s.attempts,
		Exhausted:        s.exhausted,
		ReconnectPending: s.cancelRetry != nil,
	}
	s.mu.Unlock()

	st.Channels = make([]ChannelStats, 0, len(s.topics))
	for _, t := range s.topics {
		ch := s.channels[t]
		state := ch.State()
		if state == channel.StateOpen {
			st.Connected = true
		}
		st.Channels = append(st.Channels, ChannelStats{
			Topic:        t,
			State:        state.String(),
			ConnectionID: ch.ConnectionID(),
		})
	}
	return st
}

func (s *Supervisor) allOpenLocked() bool {
	for _, t := range s.topics {
		if !s.channels[t].IsOpen() {
			return false
		}
	}
	return true
}

// closeAllLocked closes every channel. Channel.Close neither calls back
// synchronously nor waits on the network, so holding s.mu is safe.
func (s *Supervisor) closeAllLocked() {
	for _, t := range s.topics {
		s.channels[t].Close()
	}
}

func (s *Supervisor) stopRetryLocked() {
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
}
