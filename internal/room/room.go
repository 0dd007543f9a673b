// Package room implements the per-league synchronization scope. Each Room is
// a single goroutine owning versioned state; every mutation flows through its
// inbox, so concurrent submissions targeting one room are strictly ordered
// while distinct rooms proceed in parallel.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/conflict"
	"github.com/fastbreaklabs/leaguesync/internal/event"
	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/offline"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

var ErrRoomFull = errors.New("room at capacity")

// Options bounds a room's state and tunes its conflict behavior.
type Options struct {
	MaxConnections   int
	HistoryLimit     int
	ConflictLimit    int
	OfflineLimit     int
	OfflineRetention time.Duration
	ConflictWindow   time.Duration
	SweepInterval    time.Duration
}

// Msg is the room inbox protocol.
type Msg interface{ isRoomMsg() }

// Participant is a connection's presence in a room. The room writes
// outbound messages to Outbox and never reads from it; a full outbox drops
// the participant.
type Participant struct {
	ConnID   string
	Identity string
	Outbox   chan types.ServerMessage
}

// Join admits a participant, delivers the initial snapshot, and flushes any
// offline queue for its identity.
type Join struct {
	P     Participant
	Reply chan error
}

// Leave removes a participant and begins offline tracking for its identity.
type Leave struct{ ConnID string }

// Submit carries one or more events through the processor. Events submitted
// together are conflict-checked against each other before either applies.
type Submit struct {
	Events []event.Event
	Sender string // conn id for error routing; empty for the feed
}

// Resolve is a client's explicit decision on an escalated conflict.
type Resolve struct {
	ConflictID string
	Choice     string
	Sender     string
}

// Subscribe narrows or extends a participant's channel set.
type Subscribe struct {
	ConnID   string
	Channels []string
}

// Unsubscribe removes channels from a participant's set.
type Unsubscribe struct {
	ConnID   string
	Channels []string
}

// ForceResync re-sends the initial snapshot to every participant.
type ForceResync struct{}

// GetView exposes internal state without data races (admin + tests).
type GetView struct{ Reply chan View }

// Shutdown stops the room goroutine and closes every outbox.
type Shutdown struct{}

func (Join) isRoomMsg()        {}
func (Leave) isRoomMsg()       {}
func (Submit) isRoomMsg()      {}
func (Resolve) isRoomMsg()     {}
func (Subscribe) isRoomMsg()   {}
func (Unsubscribe) isRoomMsg() {}
func (ForceResync) isRoomMsg() {}
func (GetView) isRoomMsg()     {}
func (Shutdown) isRoomMsg()    {}

// View is a copy of the room's observable state.
type View struct {
	RoomID           string
	Version          uint64
	LastUpdate       time.Time
	Participants     int
	HistoryLen       int
	PendingConflicts int
	OfflineQueues    int
	Data             types.RoomData
	Recent           []types.WireEvent
}

type participant struct {
	Participant
	all  bool
	subs map[string]struct{}
}

type historyEntry struct {
	ev        event.Event
	appliedAt time.Time
}

// Room is one league session's serialization unit.
type Room struct {
	id     string
	opts   Options
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc

	version      uint64
	lastUpdate   time.Time
	participants map[string]*participant
	history      []historyEntry
	applied      map[string]struct{}
	data         *event.Materialized
	conflicts    map[string]*conflict.Resolution
	conflictIDs  []string
	offline      *offline.Queues

	counters *health.Counters
	logger   *zap.Logger
}

// New starts a room goroutine.
func New(parent context.Context, id string, opts Options, counters *health.Counters, logger *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	r := &Room{
		id:           id,
		opts:         opts,
		inbox:        make(chan Msg, 64),
		ctx:          ctx,
		cancel:       cancel,
		participants: make(map[string]*participant),
		applied:      make(map[string]struct{}),
		data:         event.NewMaterialized(),
		conflicts:    make(map[string]*conflict.Resolution),
		offline:      offline.New(opts.OfflineLimit, opts.OfflineRetention),
		counters:     counters,
		logger:       logger.With(zap.String("room", id)),
	}
	go r.loop()
	return r
}

// Inbox exposes the room's message channel.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// ID returns the room id.
func (r *Room) ID() string { return r.id }

func (r *Room) loop() {
	sweep := time.NewTicker(r.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case now := <-sweep.C:
			if n := r.offline.Sweep(now); n > 0 {
				r.logger.Info("swept expired offline queues", zap.Int("count", n))
			}

		case m := <-r.inbox:
			if r.handle(m) {
				return
			}
		}
	}
}

// handle dispatches one message. Returns true when the room should stop.
func (r *Room) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		r.join(msg)

	case Leave:
		r.leave(msg.ConnID)

	case Submit:
		batch, deferred := r.drainSubmits(msg)
		r.processBatch(batch)
		for _, dm := range deferred {
			if r.handle(dm) {
				return true
			}
		}

	case Resolve:
		r.resolve(msg)

	case Subscribe:
		r.subscribe(msg.ConnID, msg.Channels, true)

	case Unsubscribe:
		r.subscribe(msg.ConnID, msg.Channels, false)

	case ForceResync:
		for _, p := range r.participants {
			r.send(p, r.initialSync())
		}

	case GetView:
		msg.Reply <- r.view()

	case Shutdown:
		r.shutdown()
		return true
	}
	return false
}

type queued struct {
	ev     event.Event
	sender string
}

// drainSubmits coalesces consecutively queued Submit messages so that
// near-simultaneous submissions are conflict-checked pairwise before either
// applies. Draining stops at the first non-Submit message, which the caller
// handles after the batch.
func (r *Room) drainSubmits(first Submit) ([]queued, []Msg) {
	batch := make([]queued, 0, len(first.Events))
	for _, e := range first.Events {
		batch = append(batch, queued{ev: e, sender: first.Sender})
	}
	var deferred []Msg
	for {
		select {
		case m := <-r.inbox:
			if s, ok := m.(Submit); ok {
				for _, e := range s.Events {
					batch = append(batch, queued{ev: e, sender: s.Sender})
				}
				continue
			}
			deferred = append(deferred, m)
		default:
		}
		break
	}
	return batch, deferred
}

func (r *Room) processBatch(batch []queued) {
	skip := make([]bool, len(batch))
	for i := range batch {
		if skip[i] {
			continue
		}
		r.processOne(batch, i, skip)
	}
}

// processOne conflict-checks and applies a single submission. A panic while
// applying is contained here: the offending event is dropped and the room
// keeps serving.
func (r *Room) processOne(batch []queued, i int, skip []bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.counters.Errors.Add(1)
			r.logger.Error("panic applying event, dropped",
				zap.String("event", batch[i].ev.ID),
				zap.Any("panic", rec))
			r.sendError(batch[i].sender, "internal error applying event")
		}
	}()

	q := batch[i]
	r.counters.EventsReceived.Add(1)

	if _, dup := r.applied[q.ev.ID]; dup {
		r.counters.EventsDuplicate.Add(1)
		return
	}

	policy := event.PolicyFor(q.ev.Type, r.opts.ConflictWindow)
	if policy.Keys == nil {
		r.apply(q.ev)
		return
	}
	keys := policy.Keys(q.ev.Payload)
	if len(keys) == 0 {
		r.apply(q.ev)
		return
	}

	if rec := r.pendingConflictFor(q.ev.Type, keys); rec != nil {
		r.sendError(q.sender, "conflict "+rec.ID+" pending for this target")
		return
	}

	// Racing partner queued in the same batch?
	for j := i + 1; j < len(batch); j++ {
		if skip[j] || batch[j].ev.Type != q.ev.Type {
			continue
		}
		otherKeys := policy.Keys(batch[j].ev.Payload)
		if event.KeysOverlap(keys, otherKeys) {
			skip[j] = true
			r.runConflict(policy, q.ev, batch[j].ev, false, q.sender)
			return
		}
	}

	// Applied candidate within the trailing window?
	now := time.Now()
	for k := len(r.history) - 1; k >= 0; k-- {
		entry := r.history[k]
		if now.Sub(entry.appliedAt) > policy.Window {
			break
		}
		if entry.ev.Type != q.ev.Type {
			continue
		}
		if event.KeysOverlap(keys, policy.Keys(entry.ev.Payload)) {
			r.runConflict(policy, entry.ev, q.ev, true, q.sender)
			return
		}
	}

	r.apply(q.ev)
}

// runConflict records and resolves a racing pair under the room's
// serialized path, so state reflects exactly one winning or merged event.
func (r *Room) runConflict(policy event.Policy, original, conflicting event.Event, originalApplied bool, sender string) {
	now := time.Now()
	rec := conflict.Detect(policy.Strategy, original, conflicting, now)
	r.retain(rec)
	r.counters.Conflicts.Add(1)
	r.offline.NoteConflict()

	winner, err := rec.Run(now, originalApplied)
	if err != nil {
		r.counters.Errors.Add(1)
		r.logger.Error("conflict resolution failed",
			zap.String("conflict", rec.ID), zap.Error(err))
		r.sendError(sender, "conflict resolution failed")
		return
	}

	if rec.Status == conflict.StatusEscalated {
		r.counters.Escalations.Add(1)
		r.logger.Info("conflict escalated for manual review",
			zap.String("conflict", rec.ID),
			zap.String("original", original.ID),
			zap.String("conflicting", conflicting.ID))
		r.notifyConflict(rec)
		return
	}

	r.counters.Resolutions.Add(1)
	if winner != nil {
		r.apply(*winner)
	}
	r.notifyConflict(rec)
}

func (r *Room) resolve(msg Resolve) {
	rec, ok := r.conflicts[msg.ConflictID]
	if !ok {
		r.sendError(msg.Sender, "unknown conflict id")
		return
	}
	_, originalApplied := r.applied[rec.Original.ID]
	winner, err := rec.Decide(msg.Choice, time.Now(), originalApplied)
	if err != nil {
		r.sendError(msg.Sender, err.Error())
		return
	}
	r.counters.Resolutions.Add(1)
	if winner != nil {
		r.apply(*winner)
	}
	r.notifyConflict(rec)
}

// apply is the only place room state mutates for an event: version,
// history, materialized data, and offline queues advance together.
func (r *Room) apply(e event.Event) {
	now := time.Now()
	e.Version = r.version + 1
	r.version++
	r.lastUpdate = now
	r.data.Apply(e)

	r.history = append(r.history, historyEntry{ev: e, appliedAt: now})
	r.applied[e.ID] = struct{}{}
	if over := len(r.history) - r.opts.HistoryLimit; over > 0 {
		for _, old := range r.history[:over] {
			delete(r.applied, old.ev.ID)
		}
		r.history = r.history[over:]
	}

	r.counters.EventsApplied.Add(1)
	if n := r.offline.Append(e); n > 0 {
		r.counters.OfflineQueued.Add(int64(n))
	}

	wire := e.Wire()
	out := types.ServerMessage{Type: types.MsgSyncEvent, Event: &wire, Timestamp: now.UnixMilli()}
	for _, p := range r.participants {
		if !p.wants(e) {
			continue
		}
		r.send(p, out)
	}
	r.counters.Broadcasts.Add(1)
}

func (p *participant) wants(e event.Event) bool {
	if e.Priority == event.PriorityCritical || p.all {
		return true
	}
	_, ok := p.subs[string(e.Type)]
	return ok
}

func (r *Room) join(msg Join) {
	if len(r.participants) >= r.opts.MaxConnections {
		msg.Reply <- ErrRoomFull
		return
	}
	p := &participant{Participant: msg.P, all: true, subs: make(map[string]struct{})}
	r.participants[msg.P.ConnID] = p
	msg.Reply <- nil

	r.send(p, r.initialSync())

	if batch := r.offline.Drain(msg.P.Identity); batch != nil {
		events := make([]types.WireEvent, 0, len(batch.Events))
		for _, e := range batch.Events {
			events = append(events, e.Wire())
		}
		r.send(p, types.ServerMessage{
			Type:          types.MsgOfflineSync,
			Events:        events,
			LastSync:      batch.LastSync.UnixMilli(),
			ConflictCount: batch.Conflicts,
			Timestamp:     time.Now().UnixMilli(),
		})
	}
}

func (r *Room) leave(connID string) {
	p, ok := r.participants[connID]
	if !ok {
		return
	}
	delete(r.participants, connID)
	close(p.Outbox)

	if p.Identity == "" {
		return
	}
	for _, other := range r.participants {
		if other.Identity == p.Identity {
			return
		}
	}
	r.offline.Track(p.Identity, r.id, time.Now())
}

func (r *Room) subscribe(connID string, channels []string, add bool) {
	p, ok := r.participants[connID]
	if !ok {
		return
	}
	if add {
		if p.all {
			p.all = false
			p.subs = make(map[string]struct{})
		}
		for _, ch := range channels {
			p.subs[ch] = struct{}{}
		}
	} else {
		if p.all {
			p.all = false
			p.subs = make(map[string]struct{})
			for _, t := range event.AllTypes() {
				p.subs[string(t)] = struct{}{}
			}
		}
		for _, ch := range channels {
			delete(p.subs, ch)
		}
	}
	r.send(p, types.ServerMessage{
		Type:      types.MsgSubscriptionConfirmed,
		Channels:  p.channels(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (p *participant) channels() []string {
	if p.all {
		return []string{"*"}
	}
	out := make([]string, 0, len(p.subs))
	for ch := range p.subs {
		out = append(out, ch)
	}
	return out
}

// send delivers without blocking the room; a full outbox means the
// participant is too slow and is dropped.
func (r *Room) send(p *participant, msg types.ServerMessage) {
	select {
	case p.Outbox <- msg:
	default:
		r.logger.Warn("dropping slow participant", zap.String("conn", p.ConnID))
		delete(r.participants, p.ConnID)
		close(p.Outbox)
	}
}

func (r *Room) sendError(connID, text string) {
	if connID == "" {
		return
	}
	p, ok := r.participants[connID]
	if !ok {
		return
	}
	r.send(p, types.ServerMessage{
		Type:      types.MsgError,
		Error:     text,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (r *Room) notifyConflict(rec *conflict.Resolution) {
	msg := types.ServerMessage{
		Type:      types.MsgConflictNotification,
		Conflict:  rec.Wire(),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, p := range r.participants {
		r.send(p, msg)
	}
}

func (r *Room) initialSync() types.ServerMessage {
	recent := make([]types.WireEvent, 0, len(r.history))
	for _, entry := range r.history {
		recent = append(recent, entry.ev.Wire())
	}
	return types.ServerMessage{
		Type:         types.MsgInitialSync,
		Version:      r.version,
		Data:         r.data.Wire(),
		RecentEvents: recent,
		Timestamp:    time.Now().UnixMilli(),
	}
}

// retain stores a conflict record in the bounded audit trail, evicting the
// oldest decided record first and never an undecided one if avoidable.
func (r *Room) retain(rec *conflict.Resolution) {
	r.conflicts[rec.ID] = rec
	r.conflictIDs = append(r.conflictIDs, rec.ID)
	if len(r.conflictIDs) <= r.opts.ConflictLimit {
		return
	}
	evict := 0
	for i, id := range r.conflictIDs {
		if r.conflicts[id].Status != conflict.StatusEscalated {
			evict = i
			break
		}
	}
	delete(r.conflicts, r.conflictIDs[evict])
	r.conflictIDs = append(r.conflictIDs[:evict], r.conflictIDs[evict+1:]...)
}

func (r *Room) pendingConflictFor(t event.Type, keys []string) *conflict.Resolution {
	policy := event.PolicyFor(t, r.opts.ConflictWindow)
	for _, id := range r.conflictIDs {
		rec := r.conflicts[id]
		if rec.Status != conflict.StatusEscalated || rec.Original.Type != t {
			continue
		}
		if event.KeysOverlap(keys, policy.Keys(rec.Original.Payload)) ||
			event.KeysOverlap(keys, policy.Keys(rec.Conflicting.Payload)) {
			return rec
		}
	}
	return nil
}

func (r *Room) view() View {
	pending := 0
	for _, rec := range r.conflicts {
		if rec.Status == conflict.StatusEscalated {
			pending++
		}
	}
	recent := make([]types.WireEvent, 0, len(r.history))
	for _, entry := range r.history {
		recent = append(recent, entry.ev.Wire())
	}
	return View{
		RoomID:           r.id,
		Version:          r.version,
		LastUpdate:       r.lastUpdate,
		Participants:     len(r.participants),
		HistoryLen:       len(r.history),
		PendingConflicts: pending,
		OfflineQueues:    r.offline.Len(),
		Data:             r.data.Wire(),
		Recent:           recent,
	}
}

func (r *Room) shutdown() {
	for id, p := range r.participants {
		close(p.Outbox)
		delete(r.participants, id)
	}
	r.cancel()
}
