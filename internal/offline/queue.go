// Package offline buffers events for identities whose connection is absent,
// bounded per (identity, room), for replay as one ordered batch on reconnect.
package offline

import (
	"time"

	"github.com/fastbreaklabs/leaguesync/internal/event"
)

// Queue holds pending events for one disconnected identity in one room.
type Queue struct {
	Identity  string
	RoomID    string
	events    []event.Event
	limit     int
	LastSync  time.Time // when the identity last held a live connection
	Conflicts int       // conflicts detected in the room while offline
	Dropped   int       // oldest entries discarded due to the bound
}

// Batch is the drained contents of a queue, delivered as one offline-sync.
type Batch struct {
	Events    []event.Event
	LastSync  time.Time
	Conflicts int
}

// Queues tracks every offline identity for a single room. It is owned and
// mutated only by that room's goroutine, so it needs no locking.
type Queues struct {
	limit     int
	retention time.Duration
	byID      map[string]*Queue
}

// New builds a queue set with the given per-identity bound and retention.
func New(limit int, retention time.Duration) *Queues {
	return &Queues{limit: limit, retention: retention, byID: make(map[string]*Queue)}
}

// Track begins queueing for an identity that just lost its last connection.
func (q *Queues) Track(identity, roomID string, now time.Time) {
	if identity == "" {
		return
	}
	if _, ok := q.byID[identity]; ok {
		return
	}
	q.byID[identity] = &Queue{
		Identity: identity,
		RoomID:   roomID,
		limit:    q.limit,
		LastSync: now,
	}
}

// Tracking reports whether the identity currently has an offline queue.
func (q *Queues) Tracking(identity string) bool {
	_, ok := q.byID[identity]
	return ok
}

// Append parks an applied event for every tracked identity except the
// originator. Exceeding the bound drops the oldest entries first. Returns
// the number of queues appended to.
func (q *Queues) Append(e event.Event) int {
	n := 0
	for _, entry := range q.byID {
		if entry.Identity == e.Identity {
			continue
		}
		entry.events = append(entry.events, e)
		if over := len(entry.events) - entry.limit; over > 0 {
			entry.events = entry.events[over:]
			entry.Dropped += over
		}
		n++
	}
	return n
}

// NoteConflict bumps every tracked identity's conflict counter.
func (q *Queues) NoteConflict() {
	for _, entry := range q.byID {
		entry.Conflicts++
	}
}

// Drain removes the identity's queue and returns its batch in original
// order. Returns nil when the identity was not tracked.
func (q *Queues) Drain(identity string) *Batch {
	entry, ok := q.byID[identity]
	if !ok {
		return nil
	}
	delete(q.byID, identity)
	return &Batch{
		Events:    entry.events,
		LastSync:  entry.LastSync,
		Conflicts: entry.Conflicts,
	}
}

// Sweep discards queues whose identity has been offline longer than the
// retention period. Returns the number of queues discarded.
func (q *Queues) Sweep(now time.Time) int {
	if q.retention <= 0 {
		return 0
	}
	dropped := 0
	for id, entry := range q.byID {
		if now.Sub(entry.LastSync) > q.retention {
			delete(q.byID, id)
			dropped++
		}
	}
	return dropped
}

// Len reports how many identities are currently tracked.
func (q *Queues) Len() int { return len(q.byID) }
