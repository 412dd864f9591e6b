package wire

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Topic names one logical stream on the backend.
type Topic string

const (
	TopicWallet        Topic = "wallet"
	TopicBots          Topic = "bots"
	TopicNotifications Topic = "notifications"
)

// AllTopics lists the topics a session opens, in connect order.
var AllTopics = []Topic{TopicWallet, TopicBots, TopicNotifications}

// Valid reports whether t is a topic the backend serves.
func (t Topic) Valid() bool {
	switch t {
	case TopicWallet, TopicBots, TopicNotifications:
		return true
	}
	return false
}

// Inbound message types.
const (
	TypeConnectionEstablished    = "connection_established"
	TypeBalanceUpdate            = "balance_update"
	TypeTransactionNotification  = "transaction_notification"
	TypeBotStatusUpdate          = "bot_status_update"
	TypeSystemNotification       = "system_notification"
	TypeErrorNotification        = "error_notification"
	TypePong                     = "pong"
	TypeTransactionHistory       = "transaction_history"
	TypeWalletStatus             = "wallet_status"
	TypeBotStatusInitial         = "bot_status_initial"
	TypeBotSubscriptionConfirmed = "bot_subscription_confirmed"
)

// Outbound message types.
const (
	TypePing                  = "ping"
	TypeSubscribeTransactions = "subscribe_transactions"
	TypeGetWalletStatus       = "get_wallet_status"
	TypeSubscribeBotUpdates   = "subscribe_bot_updates"
)

// Envelope is the inbound wire unit.
type Envelope struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`

	// Set at the top level by connection_established only.
	Message      string `json:"message,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// Outbound is a command sent to the backend.
type Outbound struct {
	Type  string `json:"type"`
	BotID string `json:"bot_id,omitempty"`
}

// Ping is the application-level keepalive. The backend answers with pong.
func Ping() Outbound { return Outbound{Type: TypePing} }

// SubscribeTransactions asks the wallet topic for recent transactions.
func SubscribeTransactions() Outbound { return Outbound{Type: TypeSubscribeTransactions} }

// GetWalletStatus asks the wallet topic for the current balances and totals.
func GetWalletStatus() Outbound { return Outbound{Type: TypeGetWalletStatus} }

// SubscribeBotUpdates asks the bots topic for updates of one bot.
func SubscribeBotUpdates(botID string) Outbound {
	return Outbound{Type: TypeSubscribeBotUpdates, BotID: botID}
}

// Polarity tells whether a transaction moved money into or out of the wallet.
type Polarity int

const (
	Debit Polarity = iota
	Credit
)

func (p Polarity) String() string {
	if p == Credit {
		return "credit"
	}
	return "debit"
}

// receiveMarker is the category fragment that marks incoming money
// (p2p_receive, bank_receive, mpesa_receive).
const receiveMarker = "receive"

// Transaction is a wallet transaction as embedded in notifications.
type Transaction struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Category       string          `json:"transaction_type"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Fee            decimal.Decimal `json:"fee"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         string          `json:"status"`
	Reference      string          `json:"reference"`
	Description    string          `json:"description,omitempty"`
	RecipientPhone string          `json:"recipient_phone,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
}

// Polarity derives credit/debit from the transaction category.
func (t Transaction) Polarity() Polarity {
	if strings.Contains(t.Category, receiveMarker) {
		return Credit
	}
	return Debit
}
