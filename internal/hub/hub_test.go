package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/room"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	opts := room.Options{
		MaxConnections:   4,
		HistoryLimit:     16,
		ConflictLimit:    16,
		OfflineLimit:     10,
		OfflineRetention: time.Minute,
		ConflictWindow:   30 * time.Second,
	}
	return NewHub(ctx, opts, &health.Counters{}, zap.NewNop())
}

func TestEnsure_CreatesOnce(t *testing.T) {
	h := testHub(t)

	rm := h.Ensure("league-1")
	require.NotNil(t, rm)
	require.Same(t, rm, h.Ensure("league-1"))
	require.NotSame(t, rm, h.Ensure("league-2"))
	require.Len(t, h.List(), 2)
}

func TestGet_DoesNotCreate(t *testing.T) {
	h := testHub(t)

	require.Nil(t, h.Get("league-1"))
	require.Empty(t, h.List())

	h.Ensure("league-1")
	require.NotNil(t, h.Get("league-1"))
}

func TestRemoveRoom(t *testing.T) {
	h := testHub(t)
	h.Ensure("league-1")

	h.Inbox() <- RemoveRoom{ID: "league-1"}
	require.Eventually(t, func() bool {
		return h.Get("league-1") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestShutdown_StopsRooms(t *testing.T) {
	h := testHub(t)
	rm := h.Ensure("league-1")

	out := make(chan types.ServerMessage, 8)
	reply := make(chan error, 1)
	rm.Inbox() <- room.Join{P: room.Participant{ConnID: "c1", Identity: "alice", Outbox: out}, Reply: reply}
	require.NoError(t, <-reply)

	h.Inbox() <- ShutdownHub{}

	// The room closes every participant outbox on the way down.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("participant outbox not closed after hub shutdown")
		}
	}
}
