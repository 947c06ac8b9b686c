package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careconnect-server/internal/utils"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// next returns the next frame named event, skipping others.
func next(t *testing.T, c *Client, event string) frame {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case raw, ok := <-c.Send:
			require.True(t, ok, "send queue closed while waiting for %s", event)
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("client %s did not receive %s", c.ID, event)
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func send(t *testing.T, h *Hub, c *Client, event string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	h.HandleMessage(c, raw)
}

func TestHub_RegisterAnnouncesPresence(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	alice := NewClient("c1", "alice", 16)
	bob := NewClient("c2", "bob", 16)

	hub.Register(ctx, alice)
	hub.Register(ctx, bob)
	assert.Equal(t, 2, hub.ClientCount())

	f := next(t, alice, EventConnected)
	assert.JSONEq(t, `{"userId":"alice"}`, string(f.Data))
	f = next(t, alice, EventConnected)
	assert.JSONEq(t, `{"userId":"bob"}`, string(f.Data))
	f = next(t, alice, EventOnlineUsers)
	assert.JSONEq(t, `["alice","bob"]`, string(f.Data))

	online, err := hub.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	alice := NewClient("c1", "alice", 32)
	bob := NewClient("c2", "bob", 32)
	hub.Register(ctx, alice)
	hub.Register(ctx, bob)
	hub.Join(alice, "room-1", "")
	hub.Join(bob, "room-1", "")
	drain(alice)
	drain(bob)

	hub.Unregister(ctx, bob)
	hub.Unregister(ctx, bob)

	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1, hub.RoomCount("room-1"))
	_, open := <-bob.Send
	assert.False(t, open)

	f := next(t, alice, EventDisconnected)
	assert.JSONEq(t, `{"userId":"bob"}`, string(f.Data))
	f = next(t, alice, EventOnlineUsers)
	assert.JSONEq(t, `["alice"]`, string(f.Data))

	hub.Unregister(ctx, alice)
	assert.Zero(t, hub.RoomCount("room-1"))
}

func TestHub_RoomRelay(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	alice := NewClient("c1", "alice", 32)
	bob := NewClient("c2", "bob", 32)
	carol := NewClient("c3", "carol", 32)
	for _, c := range []*Client{alice, bob, carol} {
		hub.Register(ctx, c)
	}

	send(t, hub, alice, EventJoin, map[string]string{"room": "r", "peer": "peer-a"})
	send(t, hub, bob, EventJoin, map[string]string{"room": "r", "peer": "peer-b"})
	f := next(t, alice, EventUserJoined)
	assert.JSONEq(t, `{"userId":"bob","peer":"peer-b"}`, string(f.Data))
	drain(bob)
	drain(carol)

	send(t, hub, bob, EventNewMessage, map[string]interface{}{"room": "r", "message": map[string]string{"body": "hi"}})
	f = next(t, alice, EventNewMessage)
	assert.JSONEq(t, `{"room":"r","userId":"bob","message":{"body":"hi"}}`, string(f.Data))
	assert.Empty(t, bob.Send, "sender does not receive its own message")
	assert.Empty(t, carol.Send, "non-members receive nothing")

	send(t, hub, carol, EventNewMessage, map[string]interface{}{"room": "r", "message": "intrusion"})
	assert.Empty(t, alice.Send, "non-members cannot post to a room")

	for _, event := range []string{EventCallOffer, EventCallAnswer, EventICECandidate} {
		send(t, hub, alice, event, map[string]interface{}{"room": "r", "payload": map[string]string{"sdp": "x"}})
		f = next(t, bob, event)
		assert.JSONEq(t, `{"room":"r","userId":"alice","payload":{"sdp":"x"}}`, string(f.Data))
	}

	send(t, hub, bob, EventLeftRoom, map[string]string{"room": "r", "peer": "peer-b"})
	f = next(t, alice, EventLeftRoom)
	assert.JSONEq(t, `{"userId":"bob","peer":"peer-b"}`, string(f.Data))
	assert.Equal(t, 1, hub.RoomCount("r"))
}

func TestHub_IgnoresMalformedFrames(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	alice := NewClient("c1", "alice", 16)
	hub.Register(ctx, alice)
	drain(alice)

	hub.HandleMessage(alice, []byte("not json"))
	hub.HandleMessage(alice, []byte(`{"event":"join","data":"oops"}`))
	hub.HandleMessage(alice, []byte(`{"event":"join","data":{}}`))
	hub.HandleMessage(alice, []byte(`{"event":"dance","data":{"room":"r"}}`))

	assert.Zero(t, hub.RoomCount("r"))
	assert.Empty(t, alice.Send)
}

func TestHub_SendToUserReachesEveryConnection(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	phone := NewClient("c1", "alice", 16)
	laptop := NewClient("c2", "alice", 16)
	bob := NewClient("c3", "bob", 16)
	for _, c := range []*Client{phone, laptop, bob} {
		hub.Register(ctx, c)
		drain(c)
	}
	drain(phone)
	drain(laptop)

	hub.SendToUser("alice", EventNewMessage, map[string]string{"body": "ping"})
	next(t, phone, EventNewMessage)
	next(t, laptop, EventNewMessage)
	assert.Empty(t, bob.Send)

	online, err := hub.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)
}

func TestHub_FullQueueDropsFrames(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	slow := NewClient("c1", "slow", 1)
	hub.Register(ctx, slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.SendToUser("slow", EventNewMessage, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sends blocked on a full queue")
	}
	assert.Len(t, slow.Send, 1)
}

func TestHub_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient(string(rune('a'+i%26))+"-conn", "user", 4)
			hub.Register(ctx, c)
			hub.Join(c, "lobby", "")
			hub.ToRoom("lobby", EventNewMessage, i, c)
			hub.Unregister(ctx, c)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, hub.ClientCount())
	assert.Zero(t, hub.RoomCount("lobby"))
}

type staticTokens map[string]string

func (s staticTokens) ValidateAccessToken(token string) (*utils.Claims, error) {
	userID, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &utils.Claims{UserID: userID}, nil
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(hub, staticTokens{"tok-alice": "alice", "tok-bob": "bob"}, nil, zerolog.Nop())
	router.GET("/ws", handler.Connect)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event == event {
			return f
		}
	}
}

func TestHandler_RejectsBadToken(t *testing.T) {
	srv := newTestServer(t, NewHub(nil, zerolog.Nop()))

	conn, resp, err := dial(t, srv, "forged")
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RelaysBetweenConnections(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	srv := newTestServer(t, hub)

	alice, _, err := dial(t, srv, "tok-alice")
	require.NoError(t, err)
	defer alice.Close()
	f := readEvent(t, alice, EventConnected)
	assert.JSONEq(t, `{"userId":"alice"}`, string(f.Data))

	bob, _, err := dial(t, srv, "tok-bob")
	require.NoError(t, err)
	defer bob.Close()
	f = readEvent(t, alice, EventOnlineUsers)
	if string(f.Data) != `["alice","bob"]` {
		f = readEvent(t, alice, EventOnlineUsers)
	}
	assert.JSONEq(t, `["alice","bob"]`, string(f.Data))

	require.NoError(t, alice.WriteJSON(map[string]interface{}{"event": EventJoin, "data": map[string]string{"room": "r"}}))
	require.Eventually(t, func() bool { return hub.RoomCount("r") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, bob.WriteJSON(map[string]interface{}{"event": EventJoin, "data": map[string]string{"room": "r"}}))
	require.Eventually(t, func() bool { return hub.RoomCount("r") == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bob.WriteJSON(map[string]interface{}{"event": EventNewMessage, "data": map[string]interface{}{"room": "r", "message": "hello"}}))
	f = readEvent(t, alice, EventNewMessage)
	assert.JSONEq(t, `{"room":"r","userId":"bob","message":"hello"}`, string(f.Data))

	hub.SendToUser("bob", EventNewMessage, map[string]string{"body": "direct"})
	f = readEvent(t, bob, EventNewMessage)
	assert.JSONEq(t, `{"body":"direct"}`, string(f.Data))

	require.NoError(t, bob.Close())
	f = readEvent(t, alice, EventDisconnected)
	assert.JSONEq(t, `{"userId":"bob"}`, string(f.Data))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}
