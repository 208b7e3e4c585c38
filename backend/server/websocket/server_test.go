package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiteboard-labs/whiteboard-relay/backend/relay"
	"github.com/whiteboard-labs/whiteboard-relay/backend/service"
	store "github.com/whiteboard-labs/whiteboard-relay/backend/storage/memory"
)

const readWait = 3 * time.Second

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	registry := relay.NewRegistry(&logger)
	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Registry:  registry,
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:       &logger,
		RelayService: svc,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, roomCode string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/room/" + roomCode
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func users(t *testing.T, ev map[string]any) []string {
	t.Helper()
	require.Equal(t, "user_list", ev["type"], "expected user_list, got %v", ev)
	raw, ok := ev["users"].([]any)
	require.True(t, ok)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		out = append(out, u.(string))
	}
	return out
}

// Runs the full wire-level exchange between two live clients: join and
// presence, chat echo, targeted signaling, validation faults, unknown
// kinds and disconnect cleanup.
func TestServer_TwoClientExchange(t *testing.T) {
	ts := newTestServer(t)

	connA := dial(t, ts, "R1")
	send(t, connA, `{"type": "join", "username": "alice"}`)
	assert.Equal(t, []string{"alice"}, users(t, readEvent(t, connA)))

	connB := dial(t, ts, "R1")
	send(t, connB, `{"type": "join", "username": "bob"}`)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users(t, readEvent(t, connA)))
	assert.ElementsMatch(t, []string{"alice", "bob"}, users(t, readEvent(t, connB)))

	// Chat echoes to the sender as well.
	send(t, connA, `{"type": "chat", "username": "alice", "text": "hi"}`)
	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		assert.Equal(t, "chat", ev["type"])
		assert.Equal(t, "alice", ev["username"])
		assert.Equal(t, "hi", ev["text"])
	}

	// Targeted offer reaches only bob. The follow-up chat proves the
	// offer never landed on alice's connection: her next event is the
	// chat, in order.
	send(t, connA, `{"type": "webrtc_offer", "payload": {"sdp": "..."}, "sender": "alice", "target": "bob"}`)
	ev := readEvent(t, connB)
	assert.Equal(t, "webrtc_offer", ev["type"])
	assert.Equal(t, "alice", ev["sender"])
	assert.Equal(t, "bob", ev["target"])
	send(t, connB, `{"type": "chat", "username": "bob", "text": "got it"}`)
	assert.Equal(t, "chat", readEvent(t, connA)["type"])
	assert.Equal(t, "chat", readEvent(t, connB)["type"])

	// Invalid draw: one error event to the offender, no broadcast.
	send(t, connB, `{"type": "draw", "from": {"x": 1, "y": 1}}`)
	ev = readEvent(t, connB)
	assert.Equal(t, "error", ev["type"])
	assert.Contains(t, ev["message"], "to")

	// Unrecognized kind: no error, no broadcast, connection stays open.
	send(t, connB, `{"type": "ping"}`)

	send(t, connB, `{"type": "draw", "from": {"x": 1, "y": 1}, "to": {"x": 2, "y": 2}}`)
	for _, conn := range []*websocket.Conn{connA, connB} {
		ev = readEvent(t, conn)
		assert.Equal(t, "draw", ev["type"])
		assert.Equal(t, "#000000", ev["color"])
		assert.Equal(t, float64(4), ev["size"])
	}

	// Disconnect broadcasts the shrunken user list to the remaining
	// member.
	require.NoError(t, connA.Close())
	assert.Equal(t, []string{"bob"}, users(t, readEvent(t, connB)))
}

func TestServer_RoomIsolation(t *testing.T) {
	ts := newTestServer(t)

	connA := dial(t, ts, "R1")
	send(t, connA, `{"type": "join", "username": "alice"}`)
	assert.Equal(t, []string{"alice"}, users(t, readEvent(t, connA)))

	connOther := dial(t, ts, "R2")
	send(t, connOther, `{"type": "join", "username": "eve"}`)
	// Eve's join produced a user_list only in R2; alice's next event is
	// her own chat.
	assert.Equal(t, []string{"eve"}, users(t, readEvent(t, connOther)))

	send(t, connA, `{"type": "chat", "username": "alice", "text": "private"}`)
	ev := readEvent(t, connA)
	assert.Equal(t, "chat", ev["type"])
}

func TestServer_MalformedPayload(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts, "R1")
	send(t, conn, `this is not json`)
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Contains(t, ev["message"], "JSON")

	// Still connected and functional afterwards.
	send(t, conn, `{"type": "join", "username": "alice"}`)
	assert.Equal(t, []string{"alice"}, users(t, readEvent(t, conn)))
}
