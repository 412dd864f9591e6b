package wire

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind enumerates the semantic event kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionEstablished
	KindBalanceUpdate
	KindTransactionNotification
	KindBotStatusUpdate
	KindSystemNotification
	KindErrorNotification
	KindPong
	KindTransactionHistory
	KindWalletStatus
	KindBotStatusInitial
	KindBotSubscriptionConfirmed
)

var kindNames = map[Kind]string{
	KindUnknown:                  "unknown",
	KindConnectionEstablished:    TypeConnectionEstablished,
	KindBalanceUpdate:            TypeBalanceUpdate,
	KindTransactionNotification:  TypeTransactionNotification,
	KindBotStatusUpdate:          TypeBotStatusUpdate,
	KindSystemNotification:       TypeSystemNotification,
	KindErrorNotification:        TypeErrorNotification,
	KindPong:                     TypePong,
	KindTransactionHistory:       TypeTransactionHistory,
	KindWalletStatus:             TypeWalletStatus,
	KindBotStatusInitial:         TypeBotStatusInitial,
	KindBotSubscriptionConfirmed: TypeBotSubscriptionConfirmed,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf maps a wire type to its kind. Unrecognized types map to KindUnknown.
func KindOf(msgType string) Kind {
	for k, name := range kindNames {
		if k != KindUnknown && name == msgType {
			return k
		}
	}
	return KindUnknown
}

// Event is one decoded inbound message. The set of implementations is closed.
type Event interface {
	Kind() Kind
	sealed()
}

// ConnectionEstablished is the welcome frame sent after the backend accepts a socket.
type ConnectionEstablished struct {
	Message      string
	ConnectionID string
	Timestamp    string
}

// BalanceUpdate carries the wallet balances after a change.
type BalanceUpdate struct {
	UserID      string          `json:"-"`
	BalanceKES  decimal.Decimal `json:"balance_kes"`
	BalanceUSDT decimal.Decimal `json:"balance_usdt"`
	Timestamp   string          `json:"timestamp"`
}

// TransactionNotification announces a completed wallet transaction.
type TransactionNotification struct {
	UserID      string      `json:"-"`
	Transaction Transaction `json:"transaction"`
	Timestamp   string      `json:"timestamp"`
}

// BotStatusUpdate reports a trading bot state change.
type BotStatusUpdate struct {
	UserID      string         `json:"-"`
	BotID       string         `json:"bot_id"`
	Status      string         `json:"status"`
	Performance map[string]any `json:"performance"`
	Timestamp   string         `json:"timestamp"`
}

// SystemNotification is a free-form message with a severity level.
type SystemNotification struct {
	UserID    string `json:"-"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
}

// ErrorNotification reports a backend-side failure.
type ErrorNotification struct {
	UserID    string         `json:"-"`
	Error     string         `json:"error"`
	Details   map[string]any `json:"details"`
	Timestamp string         `json:"timestamp"`
}

// Pong answers a ping.
type Pong struct {
	Timestamp string
}

// TransactionHistory answers subscribe_transactions.
type TransactionHistory struct {
	Transactions []Transaction `json:"transactions"`
	Timestamp    string        `json:"timestamp"`
}

// WalletStatus answers get_wallet_status.
type WalletStatus struct {
	BalanceKES         decimal.Decimal `json:"balance_kes"`
	BalanceUSDT        decimal.Decimal `json:"balance_usdt"`
	TotalReceived      decimal.Decimal `json:"total_received"`
	TotalSent          decimal.Decimal `json:"total_sent"`
	DailyTransferCount int             `json:"daily_transfer_count"`
	Timestamp          string          `json:"timestamp"`
}

// BotStatusInitial lists the user's bots right after the bots topic opens.
type BotStatusInitial struct {
	Bots      []map[string]any `json:"bots"`
	Timestamp string           `json:"timestamp"`
}

// BotSubscriptionConfirmed answers subscribe_bot_updates.
type BotSubscriptionConfirmed struct {
	BotID     string `json:"bot_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Unknown is any frame whose type is not recognized.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (ConnectionEstablished) Kind() Kind    { return KindConnectionEstablished }
func (BalanceUpdate) Kind() Kind            { return KindBalanceUpdate }
func (TransactionNotification) Kind() Kind  { return KindTransactionNotification }
func (BotStatusUpdate) Kind() Kind          { return KindBotStatusUpdate }
func (SystemNotification) Kind() Kind       { return KindSystemNotification }
func (ErrorNotification) Kind() Kind        { return KindErrorNotification }
func (Pong) Kind() Kind                     { return KindPong }
func (TransactionHistory) Kind() Kind       { return KindTransactionHistory }
func (WalletStatus) Kind() Kind             { return KindWalletStatus }
func (BotStatusInitial) Kind() Kind         { return KindBotStatusInitial }
func (BotSubscriptionConfirmed) Kind() Kind { return KindBotSubscriptionConfirmed }
func (Unknown) Kind() Kind                  { return KindUnknown }

func (ConnectionEstablished) sealed()    {}
func (BalanceUpdate) sealed()            {}
func (TransactionNotification) sealed()  {}
func (BotStatusUpdate) sealed()          {}
func (SystemNotification) sealed()       {}
func (ErrorNotification) sealed()        {}
func (Pong) sealed()                     {}
func (TransactionHistory) sealed()       {}
func (WalletStatus) sealed()             {}
func (BotStatusInitial) sealed()         {}
func (BotSubscriptionConfirmed) sealed() {}
func (Unknown) sealed()                  {}
