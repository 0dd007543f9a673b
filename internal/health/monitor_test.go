package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/registry"
)

func TestMonitor_EvictsSilentConnection(t *testing.T) {
	reg := registry.New(zap.NewNop())
	counters := &Counters{}

	var closedReason atomic.Value
	// A dead socket: probes never answer, so no activity is ever recorded.
	probe := func(ctx context.Context) (time.Duration, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	reg.Register("c1", "alice", "league-1", probe, func(reason string) {
		closedReason.Store(reason)
		reg.Unregister("c1")
	})

	m := NewMonitor(reg, counters, 20*time.Millisecond, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		r, _ := closedReason.Load().(string)
		return r == "heartbeat timeout"
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), counters.Evictions.Load())
	require.Equal(t, 0, reg.Active())
}

func TestMonitor_ProbeKeepsHealthyConnectionAlive(t *testing.T) {
	reg := registry.New(zap.NewNop())
	var closed atomic.Bool
	probe := func(context.Context) (time.Duration, error) { return 3 * time.Millisecond, nil }
	reg.Register("c1", "alice", "league-1", probe, func(string) { closed.Store(true) })

	m := NewMonitor(reg, &Counters{}, 20*time.Millisecond, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Successful probes record activity, so the connection survives well past
	// the eviction deadline.
	require.Eventually(t, func() bool {
		return reg.Latency("c1") == 3*time.Millisecond
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.False(t, closed.Load())
	require.Equal(t, 1, reg.Active())
}

func TestMonitor_SnapshotAggregates(t *testing.T) {
	reg := registry.New(zap.NewNop())
	reg.Register("c1", "alice", "league-1", nil, nil)
	reg.Register("c2", "bob", "league-1", nil, nil)
	reg.RecordPing("c1", 10*time.Millisecond)
	reg.RecordPing("c2", 30*time.Millisecond)
	reg.ExpectAck("c1", "ev-1")

	counters := &Counters{}
	counters.EventsReceived.Store(100)
	counters.EventsApplied.Store(90)
	counters.Conflicts.Store(10)
	counters.Errors.Store(5)

	m := NewMonitor(reg, counters, time.Hour, time.Hour, zap.NewNop())
	snap := m.Snapshot()

	require.Equal(t, 2, snap.ActiveConnections)
	require.Equal(t, int64(2), snap.TotalConnections)
	require.Equal(t, 20*time.Millisecond, snap.AverageLatency)
	require.InDelta(t, 0.10, snap.ConflictRate, 1e-9)
	require.InDelta(t, 0.05, snap.ErrorRate, 1e-9)
	require.Equal(t, 1, snap.PendingAcks)
	require.Equal(t, int64(90), snap.Totals.EventsApplied)
	require.False(t, snap.Timestamp.IsZero())
}

func TestCounters_Totals(t *testing.T) {
	c := &Counters{}
	c.EventsReceived.Add(3)
	c.Conflicts.Add(2)
	c.Escalations.Add(1)

	totals := c.Totals()
	require.Equal(t, int64(3), totals.EventsReceived)
	require.Equal(t, int64(2), totals.Conflicts)
	require.Equal(t, int64(1), totals.Escalations)
	require.Zero(t, totals.EventsApplied)
}
