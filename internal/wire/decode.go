package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned for frames without a "type" field.
var ErrMissingType = errors.New("envelope has no type")

// ParseEnvelope decodes the outer frame only.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Decode parses a raw frame into its Event variant.
// Unrecognized types decode to Unknown without error.
func Decode(raw []byte) (Envelope, Event, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return Envelope{}, nil, err
	}
	ev, err := DecodeEnvelope(env)
	if err != nil {
		return env, nil, err
	}
	return env, ev, nil
}

// DecodeEnvelope decodes the payload of an already parsed envelope.
func DecodeEnvelope(env Envelope) (Event, error) {
	switch KindOf(env.Type) {
	case KindConnectionEstablished:
		return ConnectionEstablished{
			Message:      env.Message,
			ConnectionID: env.ConnectionID,
			Timestamp:    env.Timestamp,
		}, nil

	case KindPong:
		return Pong{Timestamp: env.Timestamp}, nil

	case KindBalanceUpdate:
		var ev BalanceUpdate
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		ev.UserID = env.UserID
		return ev, nil

	case KindTransactionNotification:
		var ev TransactionNotification
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		ev.UserID = env.UserID
		return ev, nil

	case KindBotStatusUpdate:
		var ev BotStatusUpdate
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		ev.UserID = env.UserID
		return ev, nil

	case KindSystemNotification:
		var ev SystemNotification
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		ev.UserID = env.UserID
		return ev, nil

	case KindErrorNotification:
		var ev ErrorNotification
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		ev.UserID = env.UserID
		return ev, nil

	case KindTransactionHistory:
		var ev TransactionHistory
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case KindWalletStatus:
		var ev WalletStatus
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case KindBotStatusInitial:
		var ev BotStatusInitial
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case KindBotSubscriptionConfirmed:
		var ev BotSubscriptionConfirmed
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}

	return Unknown{Type: env.Type, Raw: env.Data}, nil
}

// decodeData unmarshals env.Data into v. A missing or null payload leaves v zeroed.
func decodeData(env Envelope, v any) error {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return nil
}
