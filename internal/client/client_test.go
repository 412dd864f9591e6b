package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/walletstream/internal/auth"
	"github.com/rickgao/walletstream/internal/channel"
	"github.com/rickgao/walletstream/internal/dispatch"
	"github.com/rickgao/walletstream/internal/wire"
)

var testCreds = auth.Credentials{UserID: "u1", Token: "secret"}

type inbound struct {
	topic string
	msg   wire.Outbound
}

// mockBackend accepts every topic and records what clients send.
func mockBackend(t *testing.T) (*httptest.Server, <-chan inbound) {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	out := make(chan inbound, 256)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		topic := parts[1]

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wire.Outbound
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case out <- inbound{topic: topic, msg: msg}:
			default:
			}
		}
	}))
	t.Cleanup(server.Close)

	return server, out
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.Supervisor.BaseURL = baseURL
	cfg.Supervisor.Channel = channel.Config{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     time.Second,
	}
	return cfg
}

// noRetry keeps reconnect timers from ever firing in tests.
func noRetry(time.Duration, func()) func() bool {
	return func() bool { return true }
}

func expect(t *testing.T, ch <-chan inbound) inbound {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbound message")
	}
	return inbound{}
}

func TestClient_ConvenienceOperations(t *testing.T) {
	server, received := mockBackend(t)

	c, err := New(testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(context.Background()))
	require.True(t, c.IsConnected())

	tests := []struct {
		name      string
		send      func() bool
		wantTopic string
		want      wire.Outbound
	}{
		{"subscribe transactions", c.SubscribeTransactions, "wallet", wire.Outbound{Type: "subscribe_transactions"}},
		{"wallet status", c.RequestWalletStatus, "wallet", wire.Outbound{Type: "get_wallet_status"}},
		{"bot updates", func() bool { return c.SubscribeBotUpdates("bot-7") }, "bots", wire.Outbound{Type: "subscribe_bot_updates", BotID: "bot-7"}},
		{"ping", c.Ping, "wallet", wire.Outbound{Type: "ping"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.send())
			got := expect(t, received)
			assert.Equal(t, tt.wantTopic, got.topic)
			assert.Equal(t, tt.want, got.msg)
		})
	}
}

func TestClient_SendRawAndDropped(t *testing.T) {
	server, received := mockBackend(t)

	c, err := New(testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	// Not connected yet
	assert.False(t, c.Send(wire.Ping(), wire.TopicWallet))

	require.NoError(t, c.Connect(context.Background()))

	assert.False(t, c.Send(wire.Ping(), "prices"))
	assert.True(t, c.Send([]byte(`{"type":"ping"}`), wire.TopicNotifications))

	got := expect(t, received)
	assert.Equal(t, "notifications", got.topic)
	assert.Equal(t, "ping", got.msg.Type)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, c.Ping())
}

func TestClient_Keepalive(t *testing.T) {
	server, received := mockBackend(t)

	cfg := testConfig(server.URL)
	cfg.KeepaliveInterval = 20 * time.Millisecond

	c, err := New(cfg, testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(context.Background()))

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case got := <-received:
			assert.Equal(t, "ping", got.msg.Type)
			seen[got.topic] = true
		case <-deadline:
			t.Fatalf("keepalive reached only %v", seen)
		}
	}

	c.Disconnect()
	c.Disconnect()
}

func TestHolder_InitializeTwiceKeepsOneLiveClient(t *testing.T) {
	server, _ := mockBackend(t)

	var h Holder
	t.Cleanup(h.Teardown)

	first, err := h.Initialize(context.Background(), testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)
	require.True(t, first.IsConnected())

	second, err := h.Initialize(context.Background(), testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)

	assert.Same(t, second, h.Instance())
	assert.NotSame(t, first, second)
	assert.True(t, second.IsConnected())

	assert.False(t, first.IsConnected())
	for _, topic := range wire.AllTopics {
		state, ok := first.State(topic)
		require.True(t, ok)
		assert.Equal(t, channel.StateClosed, state, "topic %s", topic)
	}
}

func TestHolder_Teardown(t *testing.T) {
	server, _ := mockBackend(t)

	var h Holder
	assert.Nil(t, h.Instance())
	h.Teardown()

	c, err := h.Initialize(context.Background(), testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)

	h.Teardown()
	h.Teardown()

	assert.Nil(t, h.Instance())
	assert.False(t, c.IsConnected())
}

func TestHolder_InitializeInvalidCredentials(t *testing.T) {
	var h Holder

	c, err := h.Initialize(context.Background(), testConfig("ws://localhost"), auth.Credentials{Token: "t"}, dispatch.Handlers{})
	assert.ErrorIs(t, err, auth.ErrMissingUserID)
	assert.Nil(t, c)
	assert.Nil(t, h.Instance())
}

func TestHolder_FailedInitializeStillTearsDownPrevious(t *testing.T) {
	server, _ := mockBackend(t)

	var h Holder
	t.Cleanup(h.Teardown)

	first, err := h.Initialize(context.Background(), testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
	require.NoError(t, err)
	require.True(t, first.IsConnected())

	c, err := h.Initialize(context.Background(), testConfig(server.URL), auth.Credentials{Token: "t"}, dispatch.Handlers{})
	assert.ErrorIs(t, err, auth.ErrMissingUserID)
	assert.Nil(t, c)

	assert.Nil(t, h.Instance())
	assert.False(t, first.IsConnected())
}

func TestHolder_ConcurrentInitialize(t *testing.T) {
	server, _ := mockBackend(t)

	var h Holder
	t.Cleanup(h.Teardown)

	var wg sync.WaitGroup
	clients := make([]*Client, 4)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := h.Initialize(context.Background(), testConfig(server.URL), testCreds, dispatch.Handlers{}, WithScheduler(noRetry))
			clients[i] = c
		}(i)
	}
	wg.Wait()

	live := h.Instance()
	require.NotNil(t, live)

	for _, c := range clients {
		if c == live {
			continue
		}
		assert.False(t, c.IsConnected())
	}
}
