package channel

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyOpen     = errors.New("channel already open")
	ErrClosed          = errors.New("channel closed")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// closeGracePeriod bounds the close handshake of a local Close.
const closeGracePeriod = time.Second

// State is the lifecycle state of a Channel.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "invalid"
}

// Handlers receive the events of one open session.
// OnReady fires once before any OnMessage; OnClose fires once when the session ends.
// OnError precedes OnClose when the session ended abnormally.
type Handlers struct {
	OnReady   func()
	OnMessage func(data []byte)
	OnClose   func(err error)
	OnError   func(err error)
}

// Config configures a Channel transport.
type Config struct {
	HandshakeTimeout time.Duration // Dial + upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	PingInterval     time.Duration // Interval between ping control frames (0 = disabled)
	PongTimeout      time.Duration // Max time without pong/ping before the session is considered stale
	MaxMessageSize   int64         // Inbound frame limit in bytes (0 = unlimited)
	UserAgent        string        // User-Agent header on the upgrade request
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}
