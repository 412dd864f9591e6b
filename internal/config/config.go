package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the walletstream configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Connections ConnectionsConfig `yaml:"connections"`
	Journal     JournalConfig     `yaml:"journal"`
	Status      StatusConfig      `yaml:"status"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig identifies the realtime backend.
type ServerConfig struct {
	BaseURL string   `yaml:"base_url"`
	Topics  []string `yaml:"topics"`
}

// AuthConfig holds the session identity. The token may come from a file.
type AuthConfig struct {
	UserID    string `yaml:"user_id"`
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// ConnectionsConfig holds channel and reconnect settings.
type ConnectionsConfig struct {
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"` // 0 = default, negative = heartbeat disabled
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	MaxMessageSize       int64         `yaml:"max_message_size"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"`
}

// HeartbeatInterval is the transport ping interval, 0 when disabled.
func (cc ConnectionsConfig) HeartbeatInterval() time.Duration {
	if cc.PingInterval < 0 {
		return 0
	}
	return cc.PingInterval
}

// JournalConfig controls persistence of inbound events.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the local status server settings.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SlogLevel maps the configured level to slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
