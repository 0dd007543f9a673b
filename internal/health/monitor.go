// Package health probes connection liveness, evicts stale connections, and
// aggregates engine metrics into a read-only snapshot.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/registry"
)

// Snapshot is the point-in-time metrics view exposed to admin tooling.
type Snapshot struct {
	Timestamp         time.Time     `json:"timestamp"`
	ActiveConnections int           `json:"activeConnections"`
	TotalConnections  int64         `json:"totalConnections"`
	EventsPerSecond   float64       `json:"eventsPerSecond"`
	AverageLatency    time.Duration `json:"averageLatencyNs"`
	ConflictRate      float64       `json:"conflictRate"`
	ErrorRate         float64       `json:"errorRate"`
	PendingAcks       int           `json:"pendingAcks"`
	Totals            CounterTotals `json:"totals"`
}

// Monitor owns the heartbeat and metrics tickers. A connection silent for
// more than twice the heartbeat interval is evicted as an ordinary
// disconnect.
type Monitor struct {
	reg      *registry.Registry
	counters *Counters
	interval time.Duration
	metrics  time.Duration
	logger   *zap.Logger

	mu           sync.RWMutex
	snapshot     Snapshot
	lastApplied  int64
	lastSnapshot time.Time
}

// NewMonitor wires a monitor over the registry and shared counters.
func NewMonitor(reg *registry.Registry, counters *Counters, heartbeat, metrics time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		reg:          reg,
		counters:     counters,
		interval:     heartbeat,
		metrics:      metrics,
		logger:       logger,
		lastSnapshot: time.Now(),
	}
}

// Run drives both tickers until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	probe := time.NewTicker(m.interval)
	defer probe.Stop()
	aggregate := time.NewTicker(m.metrics)
	defer aggregate.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
			m.probeAll(ctx)
		case <-aggregate.C:
			m.aggregate()
		}
	}
}

// probeAll pings every connection and evicts the ones past the liveness
// deadline. Probes run off the monitor goroutine so one slow socket cannot
// delay the sweep.
func (m *Monitor) probeAll(ctx context.Context) {
	now := time.Now()
	for _, info := range m.reg.Stale(now, 2*m.interval) {
		m.logger.Info("evicting stale connection",
			zap.String("conn", info.ID),
			zap.String("room", info.RoomID),
			zap.Duration("idle", now.Sub(info.LastSeen)))
		m.counters.Evictions.Add(1)
		m.reg.Close(info.ID, "heartbeat timeout")
	}

	for _, info := range m.reg.Snapshot() {
		id := info.ID
		go func() {
			probeCtx, cancel := context.WithTimeout(ctx, m.interval)
			defer cancel()
			rtt, err := m.reg.Probe(probeCtx, id)
			if err != nil {
				return
			}
			m.reg.RecordPing(id, rtt)
		}()
	}
}

// aggregate recomputes the metrics snapshot.
func (m *Monitor) aggregate() {
	now := time.Now()
	totals := m.counters.Totals()
	conns := m.reg.Snapshot()

	var latencySum time.Duration
	var latencyCount, pendingAcks int
	for _, c := range conns {
		if c.Latency > 0 {
			latencySum += c.Latency
			latencyCount++
		}
		pendingAcks += c.PendingAcks
	}
	var avgLatency time.Duration
	if latencyCount > 0 {
		avgLatency = latencySum / time.Duration(latencyCount)
	}

	var conflictRate, errorRate float64
	if totals.EventsReceived > 0 {
		conflictRate = float64(totals.Conflicts) / float64(totals.EventsReceived)
		errorRate = float64(totals.Errors) / float64(totals.EventsReceived)
	}

	m.mu.Lock()
	elapsed := now.Sub(m.lastSnapshot).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(totals.EventsApplied-m.lastApplied) / elapsed
	}
	m.lastApplied = totals.EventsApplied
	m.lastSnapshot = now
	m.snapshot = Snapshot{
		Timestamp:         now,
		ActiveConnections: len(conns),
		TotalConnections:  m.reg.Total(),
		EventsPerSecond:   throughput,
		AverageLatency:    avgLatency,
		ConflictRate:      conflictRate,
		ErrorRate:         errorRate,
		PendingAcks:       pendingAcks,
		Totals:            totals,
	}
	m.mu.Unlock()
}

// Snapshot returns the latest aggregated view, recomputing if none has been
// taken yet.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	if snap.Timestamp.IsZero() {
		m.aggregate()
		m.mu.RLock()
		snap = m.snapshot
		m.mu.RUnlock()
	}
	return snap
}
