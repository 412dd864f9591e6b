// Package auth holds the session credentials used to open realtime channels.
//
// The backend authenticates a WebSocket by a bearer token passed as the
// "token" query parameter; the token is issued and refreshed by the HTTP
// layer and is only carried here.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Errors
var (
	ErrMissingToken  = errors.New("bearer token is required")
	ErrMissingUserID = errors.New("user id is required")
)

// TokenParam is the query parameter carrying the bearer token.
const TokenParam = "token"

// Credentials identify one user session.
type Credentials struct {
	UserID string
	Token  string
}

// LoadCredentials builds credentials, reading the token from tokenPath when
// token is empty.
func LoadCredentials(userID, token, tokenPath string) (Credentials, error) {
	if token == "" && tokenPath != "" {
		t, err := LoadToken(tokenPath)
		if err != nil {
			return Credentials{}, fmt.Errorf("load token: %w", err)
		}
		token = t
	}

	creds := Credentials{UserID: userID, Token: token}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// LoadToken reads a bearer token from a file, trimming surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	if c.UserID == "" {
		return ErrMissingUserID
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// ChannelURL builds <base>/ws/<topic>/<userID>?token=<token>.
// http and https bases are mapped to ws and wss.
func (c Credentials) ChannelURL(base, topic string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}

	u = u.JoinPath("ws", topic, c.UserID)

	q := u.Query()
	q.Set(TokenParam, c.Token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Redact replaces the token query parameter so the URL is safe to log.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has(TokenParam) {
		q.Set(TokenParam, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
