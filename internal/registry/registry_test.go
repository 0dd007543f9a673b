package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegister_CountsReconnects(t *testing.T) {
	r := New(zap.NewNop())

	c1 := r.Register("c1", "alice", "league-1", nil, nil)
	require.Equal(t, 0, c1.Reconnects)
	r.Unregister("c1")

	// Same identity and room again: counted as a reconnect.
	c2 := r.Register("c2", "alice", "league-1", nil, nil)
	require.Equal(t, 1, c2.Reconnects)

	// Same identity, different room: a fresh session.
	c3 := r.Register("c3", "alice", "league-2", nil, nil)
	require.Equal(t, 0, c3.Reconnects)

	require.Equal(t, 2, r.Active())
	require.Equal(t, int64(3), r.Total())
}

func TestAck_Lifecycle(t *testing.T) {
	r := New(zap.NewNop())
	r.Register("c1", "alice", "league-1", nil, nil)

	require.False(t, r.Ack("c1", "ev-1")) // never expected

	r.ExpectAck("c1", "ev-1")
	require.True(t, r.Ack("c1", "ev-1"))
	require.False(t, r.Ack("c1", "ev-1")) // already cleared

	require.False(t, r.Ack("ghost", "ev-1"))
}

func TestStale_FindsIdleConnections(t *testing.T) {
	r := New(zap.NewNop())
	r.Register("c1", "alice", "league-1", nil, nil)
	r.Register("c2", "bob", "league-1", nil, nil)

	now := time.Now()
	require.Empty(t, r.Stale(now, time.Minute))

	stale := r.Stale(now.Add(2*time.Minute), time.Minute)
	require.Len(t, stale, 2)

	// Activity on one connection keeps it out of the stale set.
	r.Touch("c1")
	stale = r.Stale(now.Add(2*time.Minute), time.Minute)
	require.Len(t, stale, 1)
	require.Equal(t, "c2", stale[0].ID)
}

func TestRecordPing_UpdatesLatency(t *testing.T) {
	r := New(zap.NewNop())
	r.Register("c1", "alice", "league-1", nil, nil)

	r.RecordPing("c1", 42*time.Millisecond)
	require.Equal(t, 42*time.Millisecond, r.Latency("c1"))
	require.Zero(t, r.Latency("ghost"))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 42*time.Millisecond, snap[0].Latency)
	require.False(t, snap[0].LastPing.IsZero())
}

func TestClose_InvokesTransportTeardown(t *testing.T) {
	r := New(zap.NewNop())
	var gotReason string
	r.Register("c1", "alice", "league-1", nil, func(reason string) { gotReason = reason })

	r.Close("c1", "heartbeat timeout")
	require.Equal(t, "heartbeat timeout", gotReason)

	r.Close("ghost", "whatever") // no-op
}

func TestProbe(t *testing.T) {
	r := New(zap.NewNop())
	r.Register("c1", "alice", "league-1", func(context.Context) (time.Duration, error) {
		return 5 * time.Millisecond, nil
	}, nil)

	rtt, err := r.Probe(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 5*time.Millisecond, rtt)

	_, err = r.Probe(context.Background(), "ghost")
	require.Error(t, err)
}
