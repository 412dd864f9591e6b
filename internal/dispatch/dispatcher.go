package dispatch

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/walletstream/internal/notify"
	"github.com/rickgao/walletstream/internal/wire"
)

// Handlers holds at most one handler per event kind. Nil handlers are skipped.
type Handlers struct {
	ConnectionEstablished    func(topic wire.Topic, ev wire.ConnectionEstablished)
	BalanceUpdate            func(ev wire.BalanceUpdate)
	TransactionNotification  func(ev wire.TransactionNotification)
	BotStatusUpdate          func(ev wire.BotStatusUpdate)
	SystemNotification       func(ev wire.SystemNotification)
	ErrorNotification        func(ev wire.ErrorNotification)
	Pong                     func(topic wire.Topic, ev wire.Pong)
	TransactionHistory       func(ev wire.TransactionHistory)
	WalletStatus             func(ev wire.WalletStatus)
	BotStatusInitial         func(ev wire.BotStatusInitial)
	BotSubscriptionConfirmed func(ev wire.BotSubscriptionConfirmed)
}

// Recorder observes every successfully decoded envelope.
type Recorder interface {
	Record(topic wire.Topic, env wire.Envelope, receivedAt time.Time)
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived   int64
	MessagesDispatched int64
	ParseErrors        int64
	UnknownMessages    int64
	HandlerPanics      int64
}

// Dispatcher decodes frames and invokes handlers.
// Handlers are fixed at construction; Dispatch is safe for concurrent use.
type Dispatcher struct {
	handlers Handlers
	notifier notify.Notifier
	recorder Recorder
	logger   *slog.Logger

	received      atomic.Int64
	dispatched    atomic.Int64
	parseErrors   atomic.Int64
	unknown       atomic.Int64
	handlerPanics atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets the toast sink.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithRecorder sets an envelope recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher for handlers.
func New(handlers Handlers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		notifier: notify.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch decodes one raw frame received on topic and routes it.
// It never panics and never returns an error: bad frames are logged and dropped.
func (d *Dispatcher) Dispatch(topic wire.Topic, raw []byte) {
	receivedAt := time.Now()
	d.received.Add(1)

	env, ev, err := wire.Decode(raw)
	if err != nil {
		d.parseErrors.Add(1)
		d.logger.Warn("dropping malformed message",
			"topic", topic,
			"error", err,
			"bytes", len(raw),
		)
		return
	}

	if d.recorder != nil {
		d.recorder.Record(topic, env, receivedAt)
	}

	d.Handle(topic, ev)
}

// Handle routes an already decoded event.
func (d *Dispatcher) Handle(topic wire.Topic, ev wire.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.handlerPanics.Add(1)
			d.logger.Error("handler panicked",
				"topic", topic,
				"kind", ev.Kind(),
				"panic", fmt.Sprint(r),
			)
		}
	}()

	h := d.handlers
	handled := false

	switch e := ev.(type) {
	case wire.ConnectionEstablished:
		d.logger.Debug("connection established", "topic", topic, "connection_id", e.ConnectionID)
		if h.ConnectionEstablished != nil {
			h.ConnectionEstablished(topic, e)
			handled = true
		}

	case wire.BalanceUpdate:
		if h.BalanceUpdate != nil {
			h.BalanceUpdate(e)
			handled = true
		}

	case wire.TransactionNotification:
		if h.TransactionNotification != nil {
			h.TransactionNotification(e)
			handled = true
		}
		d.notifier.Notify(TransactionToast(e.Transaction))

	case wire.BotStatusUpdate:
		if h.BotStatusUpdate != nil {
			h.BotStatusUpdate(e)
			handled = true
		}

	case wire.SystemNotification:
		if h.SystemNotification != nil {
			h.SystemNotification(e)
			handled = true
		}
		d.notifier.Notify(SystemToast(e))

	case wire.ErrorNotification:
		if h.ErrorNotification != nil {
			h.ErrorNotification(e)
			handled = true
		}
		if e.Error != "" {
			d.notifier.Notify(notify.Toast{Level: notify.LevelError, Message: e.Error})
		}

	case wire.Pong:
		if h.Pong != nil {
			h.Pong(topic, e)
			handled = true
		}

	case wire.TransactionHistory:
		if h.TransactionHistory != nil {
			h.TransactionHistory(e)
			handled = true
		}

	case wire.WalletStatus:
		if h.WalletStatus != nil {
			h.WalletStatus(e)
			handled = true
		}

	case wire.BotStatusInitial:
		if h.BotStatusInitial != nil {
			h.BotStatusInitial(e)
			handled = true
		}

	case wire.BotSubscriptionConfirmed:
		if h.BotSubscriptionConfirmed != nil {
			h.BotSubscriptionConfirmed(e)
			handled = true
		}

	case wire.Unknown:
		d.unknown.Add(1)
		d.logger.Debug("ignoring unknown message type", "topic", topic, "type", e.Type)
		return

	default:
		d.unknown.Add(1)
		d.logger.Warn("unhandled event variant", "topic", topic, "kind", ev.Kind())
		return
	}

	if handled {
		d.dispatched.Add(1)
	}
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		MessagesReceived:   d.received.Load(),
		MessagesDispatched: d.dispatched.Load(),
		ParseErrors:        d.parseErrors.Load(),
		UnknownMessages:    d.unknown.Load(),
		HandlerPanics:      d.handlerPanics.Load(),
	}
}
