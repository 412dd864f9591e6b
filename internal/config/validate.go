package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// maxReconnectAttempts bounds the exponential delay.
const maxReconnectAttempts = 30

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server.base_url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server.base_url has no host")
	}

	seen := make(map[string]bool, len(c.Server.Topics))
	for _, t := range c.Server.Topics {
		if !isKnownTopic(t) {
			return fmt.Errorf("server.topics: unknown topic %q", t)
		}
		if seen[t] {
			return fmt.Errorf("server.topics: duplicate topic %q", t)
		}
		seen[t] = true
	}

	if c.Auth.UserID == "" {
		return errors.New("auth.user_id is required")
	}
	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return errors.New("auth.token or auth.token_file is required")
	}

	if err := c.Connections.validate(); err != nil {
		return err
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (cc *ConnectionsConfig) validate() error {
	if cc.HandshakeTimeout <= 0 {
		return errors.New("connections.handshake_timeout must be > 0")
	}
	if cc.WriteTimeout <= 0 {
		return errors.New("connections.write_timeout must be > 0")
	}
	if cc.PingInterval > 0 && cc.PongTimeout <= cc.PingInterval {
		return fmt.Errorf("connections.pong_timeout (%s) must exceed ping_interval (%s)", cc.PongTimeout, cc.PingInterval)
	}
	if cc.MaxMessageSize < 0 {
		return errors.New("connections.max_message_size must be >= 0")
	}
	if cc.ReconnectBaseDelay <= 0 {
		return errors.New("connections.reconnect_base_delay must be > 0")
	}
	if cc.MaxReconnectAttempts < 1 || cc.MaxReconnectAttempts > maxReconnectAttempts {
		return fmt.Errorf("connections.max_reconnect_attempts must be between 1 and %d, got %d", maxReconnectAttempts, cc.MaxReconnectAttempts)
	}
	if cc.KeepaliveInterval < 0 {
		return errors.New("connections.keepalive_interval must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func isKnownTopic(t string) bool {
	for _, known := range DefaultTopics {
		if t == known {
			return true
		}
	}
	return false
}
