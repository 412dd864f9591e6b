package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_BalanceUpdate(t *testing.T) {
	env, ev, err := Decode([]byte(`{"type":"balance_update","user_id":"u1","data":{"balance_kes":500}}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", env.UserID)

	bu, ok := ev.(BalanceUpdate)
	require.True(t, ok, "got %T", ev)
	assert.True(t, bu.BalanceKES.Equal(decimal.NewFromInt(500)), "balance_kes = %s", bu.BalanceKES)
	assert.True(t, bu.BalanceUSDT.IsZero())
	assert.Equal(t, "u1", bu.UserID)
}

func TestDecode_ConnectionEstablished(t *testing.T) {
	raw := `{"type":"connection_established","message":"WebSocket connection established","timestamp":"2024-01-15T12:00:00","connection_id":"c-1"}`

	_, ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	ce, ok := ev.(ConnectionEstablished)
	require.True(t, ok)
	assert.Equal(t, "c-1", ce.ConnectionID)
	assert.Equal(t, "WebSocket connection established", ce.Message)
	assert.Equal(t, KindConnectionEstablished, ce.Kind())
}

func TestDecode_TransactionNotification(t *testing.T) {
	raw := `{"type":"transaction_notification","user_id":"u1","data":{"transaction":{"id":"t1","transaction_type":"p2p_receive","amount":1500.5,"currency":"KES","fee":0,"total_amount":1500.5,"status":"completed","reference":"REF1","description":null}}}`

	_, ev, err := Decode([]byte(raw))
	require.NoError(t, err)

	tn, ok := ev.(TransactionNotification)
	require.True(t, ok)
	assert.Equal(t, "t1", tn.Transaction.ID)
	assert.Equal(t, "p2p_receive", tn.Transaction.Category)
	assert.True(t, tn.Transaction.Amount.Equal(decimal.RequireFromString("1500.5")))
	assert.Equal(t, Credit, tn.Transaction.Polarity())
}

func TestDecode_UnknownType(t *testing.T) {
	_, ev, err := Decode([]byte(`{"type":"market_crash","data":{"x":1}}`))
	require.NoError(t, err)

	u, ok := ev.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "market_crash", u.Type)
	assert.Equal(t, KindUnknown, u.Kind())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"type":`},
		{name: "missing type", raw: `{"data":{}}`},
		{name: "bad payload", raw: `{"type":"balance_update","data":{"balance_kes":"lots"}}`},
		{name: "not an object", raw: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ev, err := Decode([]byte(tt.raw))
			assert.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}

func TestDecode_MissingData(t *testing.T) {
	_, ev, err := Decode([]byte(`{"type":"system_notification","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, SystemNotification{}, ev)
}

func TestDecode_SupplementalReplies(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{raw: `{"type":"transaction_history","data":{"transactions":[{"id":"a"},{"id":"b"}]}}`, want: KindTransactionHistory},
		{raw: `{"type":"wallet_status","data":{"balance_kes":10,"daily_transfer_count":2}}`, want: KindWalletStatus},
		{raw: `{"type":"bot_status_initial","data":{"bots":[{"id":"bot-1"}]}}`, want: KindBotStatusInitial},
		{raw: `{"type":"bot_subscription_confirmed","data":{"bot_id":"bot-1","message":"Subscribed to bot updates"}}`, want: KindBotSubscriptionConfirmed},
		{raw: `{"type":"pong","timestamp":"2024-01-15T12:00:00"}`, want: KindPong},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			_, ev, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Kind())
		})
	}

	_, ev, err := Decode([]byte(tests[0].raw))
	require.NoError(t, err)
	assert.Len(t, ev.(TransactionHistory).Transactions, 2)
}

func TestTransactionPolarity(t *testing.T) {
	categories := []string{
		"p2p_send", "p2p_receive", "bank_transfer", "bank_receive",
		"mpesa_send", "mpesa_receive", "crypto_deposit", "crypto_withdrawal",
		"trading_profit", "trading_loss", "fee", "", "received",
	}

	for _, c := range categories {
		tx := Transaction{Category: c}
		want := Debit
		if strings.Contains(c, "receive") {
			want = Credit
		}
		assert.Equal(t, want, tx.Polarity(), "category %q", c)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindBalanceUpdate, KindOf("balance_update"))
	assert.Equal(t, KindPong, KindOf("pong"))
	assert.Equal(t, KindUnknown, KindOf("ping"))
	assert.Equal(t, KindUnknown, KindOf(""))
	assert.Equal(t, "bot_status_update", KindBotStatusUpdate.String())
}

func TestOutbound_Shapes(t *testing.T) {
	tests := []struct {
		msg  Outbound
		want string
	}{
		{msg: Ping(), want: `{"type":"ping"}`},
		{msg: SubscribeTransactions(), want: `{"type":"subscribe_transactions"}`},
		{msg: GetWalletStatus(), want: `{"type":"get_wallet_status"}`},
		{msg: SubscribeBotUpdates("bot-7"), want: `{"type":"subscribe_bot_updates","bot_id":"bot-7"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))
	}
}

func TestTopicValid(t *testing.T) {
	for _, topic := range AllTopics {
		assert.True(t, topic.Valid(), topic)
	}
	assert.False(t, Topic("orders").Valid())
}
