package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/protocol"
)

type staticTokens string

func (s staticTokens) Token() (string, error) {
	if s == "" {
		return "", errors.New("no token")
	}
	return string(s), nil
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// chatServer is a scripted websocket endpoint. The handler runs per upgraded
// socket; upgrades are counted so tests can assert on redial behavior.
type chatServer struct {
	server   *httptest.Server
	upgrades atomic.Int64
	handler  func(ws *websocket.Conn)
}

func newChatServer(t *testing.T, handler func(ws *websocket.Conn)) *chatServer {
	cs := &chatServer{handler: handler}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.upgrades.Add(1)
		defer ws.Close()
		cs.handler(ws)
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cs.server.URL, "http") + "/ws"
}

// answerPings reads frames and replies to ping with pong until the socket
// drops. Other inbound frames are ignored.
func answerPings(ws *websocket.Conn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if strings.Contains(string(frame), `"ping"`) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
	}
}

func testOptions(url string) Options {
	return Options{
		URL:                  url,
		Tokens:               staticTokens("tok"),
		DialTimeout:          time.Second,
		PingInterval:         30 * time.Millisecond,
		PongTimeout:          200 * time.Millisecond,
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    40 * time.Millisecond,
	}
}

// waitForState drains the state stream until the wanted state shows up.
func waitForState(t *testing.T, c *Conn, want State) StateChange {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case change := <-c.States():
			if change.New == want {
				return change
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, current %s", want, c.State())
		}
	}
}

func TestConnectWithoutTokenFailsWithoutDialing(t *testing.T) {
	cs := newChatServer(t, answerPings)

	opts := testOptions(cs.wsURL())
	opts.Tokens = staticTokens("")
	c := New(opts)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, int64(0), cs.upgrades.Load())
}

func TestConnectDeliversEvents(t *testing.T) {
	cs := newChatServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{
			"type": "message",
			"data": {"id": "m-1", "from_user_id": "u-2", "content": "hello", "chat_type": "room", "chat_id": "general"},
			"timestamp": "2024-03-01T10:00:00Z"
		}`))
		answerPings(ws)
	})

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForState(t, c, StateOpen)

	select {
	case ev := <-c.Events():
		msg, ok := ev.(protocol.MessageEvent)
		require.True(t, ok, "expected MessageEvent, got %T", ev)
		assert.Equal(t, "hello", msg.Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestConnectWhileOpenIsANoOp(t *testing.T) {
	cs := newChatServer(t, answerPings)

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitForState(t, c, StateOpen)

	require.NoError(t, c.Connect(context.Background()))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), cs.upgrades.Load())
}

func TestReconnectBudgetExhaustionGoesTerminal(t *testing.T) {
	// Point at a server that is already gone so every dial fails.
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http") + "/ws"
	dead.Close()

	c := New(testOptions(url))
	require.NoError(t, c.Connect(context.Background()))

	change := waitForState(t, c, StateClosed)
	assert.Error(t, change.Err)
	assert.Equal(t, clienterr.KindTransport, clienterr.KindOf(change.Err))
	assert.Equal(t, StateClosed, c.State())
}

func TestAbnormalCloseTriggersReconnect(t *testing.T) {
	cs := newChatServer(t, func(ws *websocket.Conn) {
		// Drop the TCP connection without a close handshake after a short
		// serve window so the client sees an abnormal close.
		go answerPings(ws)
		time.Sleep(60 * time.Millisecond)
		_ = ws.UnderlyingConn().Close()
	})

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForState(t, c, StateOpen)
	waitForState(t, c, StateConnecting)
	waitForState(t, c, StateOpen)
	assert.GreaterOrEqual(t, cs.upgrades.Load(), int64(2))
}

func TestManualDisconnectSuppressesReconnect(t *testing.T) {
	cs := newChatServer(t, answerPings)

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	c.Disconnect()
	waitForState(t, c, StateClosed)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), cs.upgrades.Load())
	assert.Equal(t, StateClosed, c.State())
}

func TestAuthCloseCodeIsTerminal(t *testing.T) {
	cs := newChatServer(t, func(ws *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCodeAuthFailure, "token expired"), deadline)
		// Wait for the peer to acknowledge before tearing down.
		_, _, _ = ws.ReadMessage()
	})

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))

	change := waitForState(t, c, StateClosed)
	require.Error(t, change.Err)
	assert.ErrorIs(t, change.Err, ErrUnauthenticated)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), cs.upgrades.Load())
}

func TestPongWatchdogForcesReconnect(t *testing.T) {
	cs := newChatServer(t, func(ws *websocket.Conn) {
		// Swallow everything, never answer pings.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	opts := testOptions(cs.wsURL())
	opts.PingInterval = 20 * time.Millisecond
	opts.PongTimeout = 60 * time.Millisecond
	c := New(opts)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitForState(t, c, StateOpen)
	waitForState(t, c, StateConnecting)

	require.Eventually(t, func() bool {
		return cs.upgrades.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond, "watchdog should force a redial")
}

func TestSendWhileClosedReturnsNotConnected(t *testing.T) {
	c := New(testOptions("ws://127.0.0.1:1/ws"))
	err := c.Send(protocol.FrameSendMessage, protocol.SendMessagePayload{Content: "x"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExplicitReconnectResetsBudget(t *testing.T) {
	cs := newChatServer(t, answerPings)

	c := New(testOptions(cs.wsURL()))
	require.NoError(t, c.Connect(context.Background()))
	waitForState(t, c, StateOpen)

	c.Disconnect()
	waitForState(t, c, StateClosed)

	require.NoError(t, c.Reconnect(context.Background()))
	waitForState(t, c, StateOpen)
	defer c.Disconnect()

	assert.Equal(t, int64(2), cs.upgrades.Load())
}
