// Package registry tracks live client connections: identity, room
// membership, liveness and latency metrics, and pending acknowledgements.
// Connection records are owned here; other components read them through
// snapshots.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc sends one liveness probe and reports the round trip time.
type ProbeFunc func(ctx context.Context) (time.Duration, error)

// CloseFunc tears down the transport with a reason.
type CloseFunc func(reason string)

// Conn is one live client connection. Mutable fields are guarded by the
// registry's lock.
type Conn struct {
	ID          string
	Identity    string
	RoomID      string
	ConnectedAt time.Time
	Reconnects  int

	probe ProbeFunc
	close CloseFunc

	lastSeen    time.Time
	lastPing    time.Time
	latency     time.Duration
	pendingAcks map[string]struct{}
}

// Info is a read-only copy of a connection record.
type Info struct {
	ID          string
	Identity    string
	RoomID      string
	ConnectedAt time.Time
	LastSeen    time.Time
	LastPing    time.Time
	Latency     time.Duration
	Reconnects  int
	PendingAcks int
}

// Registry is the process-wide connection table.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	// seen counts prior registrations per (identity, room) to derive
	// reconnect counts.
	seen   map[string]int
	total  int64
	logger *zap.Logger
}

// New builds an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		seen:   make(map[string]int),
		logger: logger,
	}
}

// Register records a successfully handshaken connection. Never called for
// rejected handshakes.
func (r *Registry) Register(id, identity, roomID string, probe ProbeFunc, closeFn CloseFunc) *Conn {
	now := time.Now()
	key := identity + "\x00" + roomID

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Conn{
		ID:          id,
		Identity:    identity,
		RoomID:      roomID,
		ConnectedAt: now,
		Reconnects:  r.seen[key],
		probe:       probe,
		close:       closeFn,
		lastSeen:    now,
		pendingAcks: make(map[string]struct{}),
	}
	r.seen[key]++
	r.conns[id] = c
	r.total++
	r.logger.Info("connection registered",
		zap.String("conn", id),
		zap.String("identity", identity),
		zap.String("room", roomID),
		zap.Int("reconnects", c.Reconnects))
	return c
}

// Unregister drops a connection record. Safe to call twice.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		r.logger.Info("connection unregistered", zap.String("conn", id))
	}
}

// Touch marks inbound activity on a connection.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.lastSeen = time.Now()
	}
	r.mu.Unlock()
}

// RecordPing stores the latest probe result.
func (r *Registry) RecordPing(id string, rtt time.Duration) {
	now := time.Now()
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.lastSeen = now
		c.lastPing = now
		c.latency = rtt
	}
	r.mu.Unlock()
}

// Latency returns the connection's last measured round trip time.
func (r *Registry) Latency(id string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return c.latency
	}
	return 0
}

// ExpectAck records that an event requiring acknowledgement was delivered.
func (r *Registry) ExpectAck(id, eventID string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.pendingAcks[eventID] = struct{}{}
	}
	r.mu.Unlock()
}

// Ack clears a pending acknowledgement. Reports whether it was expected.
func (r *Registry) Ack(id, eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, ok := c.pendingAcks[eventID]; !ok {
		return false
	}
	delete(c.pendingAcks, eventID)
	return true
}

// Stale returns connections with no activity for longer than maxIdle.
func (r *Registry) Stale(now time.Time, maxIdle time.Duration) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Info
	for _, c := range r.conns {
		if now.Sub(c.lastSeen) > maxIdle {
			out = append(out, c.infoLocked())
		}
	}
	return out
}

// Close tears down one connection's transport with a reason. The transport
// teardown triggers the normal disconnect path.
func (r *Registry) Close(id, reason string) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if ok && c.close != nil {
		c.close(reason)
	}
}

// Probe sends one liveness probe on the connection.
func (r *Registry) Probe(ctx context.Context, id string) (time.Duration, error) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok || c.probe == nil {
		return 0, context.Canceled
	}
	return c.probe(ctx)
}

// Snapshot copies every connection record.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.infoLocked())
	}
	return out
}

// Active reports the current live connection count.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Total reports connections ever registered.
func (r *Registry) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (c *Conn) infoLocked() Info {
	return Info{
		ID:          c.ID,
		Identity:    c.Identity,
		RoomID:      c.RoomID,
		ConnectedAt: c.ConnectedAt,
		LastSeen:    c.lastSeen,
		LastPing:    c.lastPing,
		Latency:     c.latency,
		Reconnects:  c.Reconnects,
		PendingAcks: len(c.pendingAcks),
	}
}
