package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, e *env, cfg TransportConfig) *httptest.Server {
	t.Helper()
	srv := NewServer(e.gw, cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts
}

func wsURL(ts *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, token), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one named name arrives.
func readUntil(t *testing.T, conn *websocket.Conn, name string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", name)
		var f frame
		require.NoError(t, json.Unmarshal(msg, &f))
		if f.Event == name {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": name, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func TestServer_RejectsBeforeUpgrade(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{})

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{name: "missing token", token: "", code: "UNAUTHENTICATED"},
		{name: "garbage token", token: "not-a-jwt", code: "UNAUTHENTICATED"},
		{name: "unknown user", token: e.token(t, "ghost"), code: "UNAUTHENTICATED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tt.token), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, 0, e.hub.Count())
}

func TestServer_HandshakeRateLimit(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{HandshakeRate: 0.001, HandshakeBurst: 1})

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_ChatBetweenSockets(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{})

	alice := dial(t, ts, e.token(t, "alice"))
	bob := dial(t, ts, e.token(t, "bob"))

	online := readUntil(t, alice, "presence:online")
	assert.Contains(t, string(online.Data), `"bob"`)

	send(t, alice, "join:conversation", "c1")
	send(t, bob, "join:conversation", "c1")
	// Round-trip a query so bob's join is processed before alice sends.
	send(t, bob, "presence:get_online", map[string]any{"userIds": []string{"alice"}})
	readUntil(t, bob, "presence:online_status")

	send(t, alice, "chat:send", map[string]any{"conversationId": "c1", "text": "hello bob", "clientId": "tmp-9"})

	got := readUntil(t, bob, "chat:new")
	assert.Contains(t, string(got.Data), "hello bob")

	ack := readUntil(t, alice, "chat:delivered")
	var d Delivered
	require.NoError(t, json.Unmarshal(ack.Data, &d))
	assert.Equal(t, "tmp-9", d.ClientID)
	assert.NotEmpty(t, d.MessageID)
}

func TestServer_ErrorEventKeepsConnectionOpen(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{})
	alice := dial(t, ts, e.token(t, "alice"))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	readUntil(t, alice, "error")

	send(t, alice, "presence:get_online", map[string]any{"userIds": []string{"alice"}})
	f := readUntil(t, alice, "presence:online_status")
	assert.Contains(t, string(f.Data), `"isOnline":true`)
}

func TestServer_CloseAnnouncesOffline(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{})

	alice := dial(t, ts, e.token(t, "alice"))
	bob := dial(t, ts, e.token(t, "bob"))
	readUntil(t, alice, "presence:online")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = bob.Close()

	off := readUntil(t, alice, "presence:offline")
	assert.Contains(t, string(off.Data), `"bob"`)

	require.Eventually(t, func() bool { return e.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, e.presence.Count())
}

func TestServer_PingKeepsAlive(t *testing.T) {
	e := newEnv(t)
	ts := newTestServer(t, e, TransportConfig{
		PingInterval: 20 * time.Millisecond,
		PongWait:     200 * time.Millisecond,
	})

	pings := make(chan struct{}, 16)
	alice := dial(t, ts, e.token(t, "alice"))
	alice.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return alice.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Control frames are handled while reading.
	go func() {
		for {
			if _, _, err := alice.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}

	// Well past PongWait the session is still registered because pongs
	// extend the read deadline.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, e.hub.Count())
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "same host", origin: "http://chat.example", host: "chat.example", want: true},
		{name: "foreign", origin: "http://evil.example", host: "chat.example", want: false},
		{name: "listed", allowed: []string{"http://app.example"}, origin: "http://app.example", host: "api.example", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://any.example", host: "api.example", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{cfg: TransportConfig{AllowedOrigins: tt.allowed}}
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}

func TestHandshakeLimiter_Cleanup(t *testing.T) {
	l := newHandshakeLimiter(1, 1)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.1:5555"

	assert.True(t, l.allow(r))
	assert.False(t, l.allow(r))

	assert.Equal(t, 0, l.cleanup(time.Now()))
	assert.Equal(t, 1, l.cleanup(time.Now().Add(11*time.Minute)))
	assert.True(t, l.allow(r))
}
