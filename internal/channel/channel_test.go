package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig() Config {
	return Config{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     time.Second,
	}
}

// recorder collects handler invocations.
type recorder struct {
	ready    atomic.Int32
	errs     atomic.Int32
	closes   atomic.Int32
	mu       sync.Mutex
	messages []string
	closeErr error
	closed   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan struct{})}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnReady: func() { r.ready.Add(1) },
		OnMessage: func(data []byte) {
			r.mu.Lock()
			r.messages = append(r.messages, string(data))
			r.mu.Unlock()
		},
		OnError: func(error) { r.errs.Add(1) },
		OnClose: func(err error) {
			r.mu.Lock()
			r.closeErr = err
			r.mu.Unlock()
			if r.closes.Add(1) == 1 {
				close(r.closed)
			}
		},
	}
}

func (r *recorder) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-r.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnClose")
	}
}

func TestChannel_OpenClose(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	ch := New("wallet", testConfig(), nil)
	if ch.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", ch.State())
	}

	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !ch.IsOpen() {
		t.Error("expected channel to be open")
	}
	if ch.ConnectionID() == "" {
		t.Error("expected a connection id")
	}
	if got := rec.ready.Load(); got != 1 {
		t.Errorf("OnReady fired %d times, want 1", got)
	}

	ch.Close()
	rec.waitClosed(t)

	if ch.State() != StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}
	if rec.closeErr != nil {
		t.Errorf("local close reason = %v, want nil", rec.closeErr)
	}
	if rec.errs.Load() != 0 {
		t.Error("OnError should not fire on local close")
	}

	// Second close should be no-op
	ch.Close()
	time.Sleep(20 * time.Millisecond)
	if got := rec.closes.Load(); got != 1 {
		t.Errorf("OnClose fired %d times, want 1", got)
	}
}

func TestChannel_CloseDoesNotWaitOnBlockedWriter(t *testing.T) {
	stop := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so the client's socket buffer fills up
		<-stop
	})
	defer server.Close()
	defer close(stop)

	cfg := testConfig()
	cfg.WriteTimeout = 10 * time.Second
	ch := New("wallet", cfg, nil)
	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	payload := make([]byte, 1<<20)
	go func() {
		for ch.Send(payload) {
		}
	}()

	// Let the writer wedge on the full buffer
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	ch.Close()
	if elapsed := time.Since(start); elapsed > closeGracePeriod/2 {
		t.Errorf("Close took %v", elapsed)
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}

	rec.waitClosed(t)
}

func TestChannel_AlreadyOpen(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	ch := New("wallet", testConfig(), nil)
	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
}

func TestChannel_OpenFailure(t *testing.T) {
	server := mockWSServer(t, drain)
	url := wsURL(server)
	server.Close()

	ch := New("bots", testConfig(), nil)
	rec := newRecorder()

	err := ch.Open(context.Background(), url, rec.handlers())
	if err == nil {
		t.Fatal("expected Open to fail")
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}
	if rec.ready.Load() != 0 || rec.closes.Load() != 0 || rec.errs.Load() != 0 {
		t.Error("no handler should fire when open fails")
	}
}

func TestChannel_OpenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "policy violation", http.StatusForbidden)
	}))
	defer server.Close()

	ch := New("wallet", testConfig(), nil)
	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); err == nil {
		t.Fatal("expected Open to fail on rejected handshake")
	}
}

func TestChannel_Messages(t *testing.T) {
	testMessages := []string{
		`{"type":"balance_update","data":{"balance_kes":1}}`,
		`{"type":"balance_update","data":{"balance_kes":2}}`,
		`{"type":"balance_update","data":{"balance_kes":3}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		drain(conn)
	})
	defer server.Close()

	ch := New("wallet", testConfig(), nil)
	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.messages)
		rec.mu.Unlock()
		if n == len(testMessages) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != len(testMessages) {
		t.Fatalf("received %d messages, want %d", len(rec.messages), len(testMessages))
	}
	for i, want := range testMessages {
		if rec.messages[i] != want {
			t.Errorf("message %d: got %q, want %q", i, rec.messages[i], want)
		}
	}
}

func TestChannel_Send(t *testing.T) {
	received := make(chan string, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		drain(conn)
	})
	defer server.Close()

	ch := New("wallet", testConfig(), nil)
	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	if !ch.SendJSON(map[string]string{"type": "ping"}) {
		t.Fatal("SendJSON returned false")
	}

	select {
	case got := <-received:
		if got != `{"type":"ping"}` {
			t.Errorf("server received %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannel_SendNotOpen(t *testing.T) {
	ch := New("wallet", testConfig(), nil)

	if ch.Send([]byte(`{"type":"ping"}`)) {
		t.Error("Send on idle channel should return false")
	}

	ch.Close()
	if ch.Send([]byte(`{"type":"ping"}`)) {
		t.Error("Send on closed channel should return false")
	}
}

func TestChannel_RemoteNormalClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	ch := New("notifications", testConfig(), nil)
	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	rec.waitClosed(t)

	if rec.closeErr == nil {
		t.Error("remote close should carry a reason")
	}
	if rec.errs.Load() != 0 {
		t.Error("OnError should not fire on a normal remote close")
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}
}

func TestChannel_AbnormalClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close frame
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	ch := New("bots", testConfig(), nil)
	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	rec.waitClosed(t)

	if rec.errs.Load() != 1 {
		t.Errorf("OnError fired %d times, want 1", rec.errs.Load())
	}
	if rec.closeErr == nil {
		t.Error("expected a close reason")
	}
}

func TestChannel_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read, so pings are never answered
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongTimeout = 50 * time.Millisecond

	ch := New("wallet", cfg, nil)
	rec := newRecorder()
	if err := ch.Open(context.Background(), wsURL(server), rec.handlers()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	rec.waitClosed(t)

	if !errors.Is(rec.closeErr, ErrStaleConnection) {
		t.Errorf("close reason = %v, want ErrStaleConnection", rec.closeErr)
	}
}

func TestChannel_Reopen(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	ch := New("wallet", testConfig(), nil)

	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	first := ch.ConnectionID()
	ch.Close()

	if err := ch.Open(context.Background(), wsURL(server), Handlers{}); err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer ch.Close()

	if ch.ConnectionID() == first {
		t.Error("expected a fresh connection id after reopen")
	}
	if !ch.IsOpen() {
		t.Error("expected channel to be open after reopen")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
