package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/auth"
	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/registry"
	"github.com/fastbreaklabs/leaguesync/internal/room"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

func testServer(t *testing.T, verifier auth.Verifier, maxConns int) (*httptest.Server, *registry.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zap.NewNop()
	counters := &health.Counters{}
	reg := registry.New(logger)
	h := hub.NewHub(ctx, room.Options{
		MaxConnections:   maxConns,
		HistoryLimit:     16,
		ConflictLimit:    16,
		OfflineLimit:     10,
		OfflineRetention: time.Minute,
		ConflictWindow:   30 * time.Second,
	}, counters, logger)

	srv := httptest.NewServer(Handler(Deps{
		Hub:        h,
		Registry:   reg,
		Verifier:   verifier,
		Counters:   counters,
		OutboxSize: 16,
		Logger:     logger,
	}))
	t.Cleanup(srv.Close)
	return srv, reg
}

func wsURL(srv *httptest.Server, query string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + "/?" + query
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func TestHandshake_MissingParams(t *testing.T) {
	srv, _ := testServer(t, auth.Permissive{}, 4)

	resp, err := http.Get(srv.URL + "/?room=league-1&identity=alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandshake_AuthFailure(t *testing.T) {
	secret := "test-secret"
	srv, _ := testServer(t, auth.NewJWTVerifier(secret), 4)

	resp, err := http.Get(srv.URL + "/?room=league-1&identity=alice&token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A valid token for a different identity is also refused.
	token, err := auth.NewJWTVerifier(secret).Issue("bob", time.Minute)
	require.NoError(t, err)
	resp, err = http.Get(srv.URL + "/?room=league-1&identity=alice&token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnection_SyncAndPing(t *testing.T) {
	srv, reg := testServer(t, auth.Permissive{}, 4)
	conn := dial(t, srv, "room=league-1&identity=alice&token=alice")

	first := readMsg(t, conn)
	require.Equal(t, types.MsgInitialSync, first.Type)
	require.Equal(t, uint64(0), first.Version)

	require.Eventually(t, func() bool { return reg.Active() == 1 }, time.Second, 10*time.Millisecond)

	writeMsg(t, conn, types.ClientMessage{Type: types.MsgPing})
	pong := readMsg(t, conn)
	require.Equal(t, types.MsgPong, pong.Type)
	require.NotZero(t, pong.Timestamp)

	writeMsg(t, conn, types.ClientMessage{
		Type:      types.MsgSyncEvent,
		EventType: "chat-message",
		Data:      json.RawMessage(`{"from":"alice","text":"hello"}`),
	})
	bcast := readMsg(t, conn)
	require.Equal(t, types.MsgSyncEvent, bcast.Type)
	require.Equal(t, "chat-message", bcast.Event.Type)
	require.Equal(t, uint64(1), bcast.Event.Version)
	require.Equal(t, "alice", bcast.Event.Identity)
}

func TestConnection_BroadcastReachesOthers(t *testing.T) {
	srv, _ := testServer(t, auth.Permissive{}, 4)
	alice := dial(t, srv, "room=league-1&identity=alice&token=alice")
	bob := dial(t, srv, "room=league-1&identity=bob&token=bob")
	_ = readMsg(t, alice)
	_ = readMsg(t, bob)

	writeMsg(t, alice, types.ClientMessage{
		Type:      types.MsgSyncEvent,
		EventType: "score-update",
		Data:      json.RawMessage(`{"gameId":"g1","homeScore":7}`),
	})

	got := readMsg(t, bob)
	require.Equal(t, types.MsgSyncEvent, got.Type)
	require.Equal(t, "score-update", got.Event.Type)
}

func TestConnection_MalformedInputStaysOpen(t *testing.T) {
	srv, _ := testServer(t, auth.Permissive{}, 4)
	conn := dial(t, srv, "room=league-1&identity=alice&token=alice")
	_ = readMsg(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	errMsg := readMsg(t, conn)
	require.Equal(t, types.MsgError, errMsg.Type)
	require.Equal(t, "bad json", errMsg.Error)

	// Unknown event type is rejected the same way, connection still usable.
	writeMsg(t, conn, types.ClientMessage{Type: types.MsgSyncEvent, EventType: "roster-explosion"})
	errMsg = readMsg(t, conn)
	require.Equal(t, types.MsgError, errMsg.Type)

	writeMsg(t, conn, types.ClientMessage{Type: types.MsgPing})
	require.Equal(t, types.MsgPong, readMsg(t, conn).Type)
}

func TestConnection_RoomFull(t *testing.T) {
	srv, _ := testServer(t, auth.Permissive{}, 1)
	first := dial(t, srv, "room=league-1&identity=alice&token=alice")
	_ = readMsg(t, first)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv, "room=league-1&identity=bob&token=bob"), nil)
	require.NoError(t, err) // handshake upgrades, then the join is refused
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
