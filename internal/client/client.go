// Package client is the public entry point of a realtime session.
//
// A Client wires one Supervisor to one Dispatcher and exposes the named
// outbound operations of the backend. A Holder keeps at most one live
// Client per owner.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/walletstream/internal/auth"
	"github.com/rickgao/walletstream/internal/channel"
	"github.com/rickgao/walletstream/internal/dispatch"
	"github.com/rickgao/walletstream/internal/notify"
	"github.com/rickgao/walletstream/internal/supervisor"
	"github.com/rickgao/walletstream/internal/wire"
)

// Config configures a Client.
type Config struct {
	Supervisor        supervisor.Config
	KeepaliveInterval time.Duration // Application-level ping on every open topic (0 = disabled)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Supervisor: supervisor.DefaultConfig(),
	}
}

// Stats combines supervisor and dispatcher statistics.
type Stats struct {
	Supervisor supervisor.Stats `json:"supervisor"`
	Dispatch   dispatch.Stats   `json:"dispatch"`
}

// Client is one realtime session for one user.
type Client struct {
	sup        *supervisor.Supervisor
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	keepalive  time.Duration

	mu            sync.Mutex
	stopKeepalive chan struct{}
	keepaliveDone chan struct{}
}

type options struct {
	logger    *slog.Logger
	notifier  notify.Notifier
	recorder  dispatch.Recorder
	scheduler supervisor.Scheduler
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNotifier sets the toast sink.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithRecorder sets a recorder observing every decoded envelope.
func WithRecorder(r dispatch.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithScheduler replaces the reconnect timer implementation.
func WithScheduler(s supervisor.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// New creates a Client. No connection is made until Connect.
func New(cfg Config, creds auth.Credentials, handlers dispatch.Handlers, opts ...Option) (*Client, error) {
	o := options{
		logger:   slog.Default(),
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	d := dispatch.New(handlers,
		dispatch.WithLogger(o.logger.With("component", "dispatch")),
		dispatch.WithNotifier(o.notifier),
		dispatch.WithRecorder(o.recorder),
	)

	sup, err := supervisor.New(cfg.Supervisor, creds, d,
		supervisor.WithLogger(o.logger.With("component", "supervisor")),
		supervisor.WithNotifier(o.notifier),
		supervisor.WithScheduler(o.scheduler),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		sup:        sup,
		dispatcher: d,
		logger:     o.logger,
		keepalive:  cfg.KeepaliveInterval,
	}, nil
}

// Connect opens every topic. See supervisor.Supervisor.Connect.
func (c *Client) Connect(ctx context.Context) error {
	c.startKeepalive()
	return c.sup.Connect(ctx)
}

// Disconnect closes every topic and cancels pending reconnects.
func (c *Client) Disconnect() {
	c.stopKeepaliveLoop()
	c.sup.Disconnect()
}

// IsConnected reports whether any topic is open.
func (c *Client) IsConnected() bool {
	return c.sup.IsConnected()
}

// State returns the state of the channel for topic.
func (c *Client) State(topic wire.Topic) (channel.State, bool) {
	return c.sup.State(topic)
}

// Send writes msg on topic. A []byte is sent as is; anything else is
// marshaled to JSON. Unknown or closed topics drop the message with a warning.
func (c *Client) Send(msg any, topic wire.Topic) bool {
	if raw, ok := msg.([]byte); ok {
		return c.sup.Send(topic, raw)
	}
	return c.sup.SendJSON(topic, msg)
}

// SubscribeTransactions asks the wallet topic for recent transactions.
func (c *Client) SubscribeTransactions() bool {
	return c.Send(wire.SubscribeTransactions(), wire.TopicWallet)
}

// RequestWalletStatus asks the wallet topic for balances and totals.
func (c *Client) RequestWalletStatus() bool {
	return c.Send(wire.GetWalletStatus(), wire.TopicWallet)
}

// SubscribeBotUpdates asks the bots topic for updates of one bot.
func (c *Client) SubscribeBotUpdates(botID string) bool {
	return c.Send(wire.SubscribeBotUpdates(botID), wire.TopicBots)
}

// Ping sends an application-level ping on the wallet topic.
func (c *Client) Ping() bool {
	return c.Send(wire.Ping(), wire.TopicWallet)
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Supervisor: c.sup.Stats(),
		Dispatch:   c.dispatcher.Stats(),
	}
}

func (c *Client) startKeepalive() {
	if c.keepalive <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopKeepalive != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopKeepalive = stop
	c.keepaliveDone = done

	go c.keepaliveLoop(stop, done)
}

func (c *Client) stopKeepaliveLoop() {
	c.mu.Lock()
	stop, done := c.stopKeepalive, c.keepaliveDone
	c.stopKeepalive, c.keepaliveDone = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// keepaliveLoop pings every open topic on each tick. Closed topics are skipped.
func (c *Client) keepaliveLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, topic := range c.sup.Topics() {
				if state, _ := c.sup.State(topic); state != channel.StateOpen {
					continue
				}
				c.sup.SendJSON(topic, wire.Ping())
			}
		}
	}
}
