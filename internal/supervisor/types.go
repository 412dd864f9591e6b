package supervisor

import (
	"errors"
	"time"

	"github.com/rickgao/walletstream/internal/channel"
	"github.com/rickgao/walletstream/internal/wire"
)

// Errors
var (
	ErrDisconnected       = errors.New("disconnected while connecting")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrChannelLost        = errors.New("channel lost while connecting")
	ErrNoDispatcher       = errors.New("dispatcher is required")
)

// LostToast is the message raised once when reconnection gives up.
const LostToast = "Connection lost. Restart the session to reconnect."

// maxAttemptsCap bounds the delay exponent.
const maxAttemptsCap = 30

// Config configures the Supervisor.
type Config struct {
	BaseURL              string        // http(s) or ws(s) base of the backend
	Topics               []wire.Topic  // Topics to open, in connect order (empty = all)
	Channel              channel.Config
	ReconnectBaseDelay   time.Duration // Delay before the first retry
	MaxReconnectAttempts int           // Retries before giving up
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Topics:               wire.AllTopics,
		Channel:              channel.DefaultConfig(),
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Dispatcher receives every inbound frame with the topic it arrived on.
type Dispatcher interface {
	Dispatch(topic wire.Topic, raw []byte)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(topic wire.Topic, raw []byte)

// Dispatch calls f.
func (f DispatchFunc) Dispatch(topic wire.Topic, raw []byte) { f(topic, raw) }

// Scheduler runs f once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

// AfterFunc is the default Scheduler.
func AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ChannelStats describes one channel.
type ChannelStats struct {
	Topic        wire.Topic `json:"topic"`
	State        string     `json:"state"`
	ConnectionID string     `json:"connection_id,omitempty"`
}

// Stats is a snapshot of the supervisor.
type Stats struct {
	Connected        bool           `json:"connected"`
	Connecting       bool           `json:"connecting"`
	Attempts         int            `json:"attempts"`
	Exhausted        bool           `json:"exhausted"`
	ReconnectPending bool           `json:"reconnect_pending"`
	Channels         []ChannelStats `json:"channels"`
}
