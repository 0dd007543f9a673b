package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/room"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

// fakeFeed serves a fixed sequence of frames to the first consumer, then
// holds the connection open.
func fakeFeed(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for _, f := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return srv
}

func recvEvent(t *testing.T, out <-chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for feed event")
		return types.ServerMessage{}
	}
}

func TestConsumer_FansOutUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zap.NewNop()
	h := hub.NewHub(ctx, room.Options{
		MaxConnections:   4,
		HistoryLimit:     16,
		ConflictLimit:    16,
		OfflineLimit:     10,
		OfflineRetention: time.Minute,
		ConflictWindow:   30 * time.Second,
	}, &health.Counters{}, logger)

	rm := h.Ensure("league-1")
	out := make(chan types.ServerMessage, 16)
	reply := make(chan error, 1)
	rm.Inbox() <- room.Join{P: room.Participant{ConnID: "c1", Identity: "alice", Outbox: out}, Reply: reply}
	require.NoError(t, <-reply)
	_ = recvEvent(t, out) // initial sync

	srv := fakeFeed(t, []string{
		`{not json`,
		`{"type":"roster-explosion","data":{}}`,
		`{"type":"score-update","rooms":["league-1"],"data":{"gameId":"g1","homeScore":21}}`,
		`{"type":"injury-alert","data":{"playerId":"p1","status":"out"}}`,
	})

	consumer := NewConsumer(strings.Replace(srv.URL, "http", "ws", 1),
		10*time.Millisecond, time.Second, h, logger)
	go consumer.Run(ctx)

	// Malformed and unknown-type frames are skipped without killing the feed.
	score := recvEvent(t, out)
	require.Equal(t, types.MsgSyncEvent, score.Type)
	require.Equal(t, "score-update", score.Event.Type)
	require.Empty(t, score.Event.Identity) // feed events carry no identity

	// Broadcast injury alerts default to critical priority.
	injury := recvEvent(t, out)
	require.Equal(t, "injury-alert", injury.Event.Type)
	require.Equal(t, "critical", injury.Event.Priority)
}
