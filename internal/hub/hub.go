// Package hub owns the process-wide room table. A single goroutine serves
// lookups and lazy creation, so rooms are never double-created and shutdown
// fans out exactly once.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/room"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the named room, creating it lazily on first join so a
// legitimate first joiner is never rejected.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

// GetRoom returns the named room or nil without creating it.
type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// ListRooms snapshots every live room (feed fan-out, metrics).
type ListRooms struct {
	Reply chan []*room.Room
}

// RemoveRoom drops a room from the table. The room goroutine itself is
// stopped by its context.
type RemoveRoom struct{ ID string }

// ShutdownHub stops every room and then the hub.
type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ListRooms) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub serializes access to the room table.
type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	opts     room.Options
	counters *health.Counters
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the hub goroutine.
func NewHub(parent context.Context, opts room.Options, counters *health.Counters, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		opts:     opts,
		counters: counters,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

// Inbox exposes the hub's message channel.
func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Ensure is a convenience wrapper around EnsureRoom.
func (h *Hub) Ensure(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.inbox <- EnsureRoom{ID: id, Reply: reply}
	return <-reply
}

// Get is a convenience wrapper around GetRoom. May return nil.
func (h *Hub) Get(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.inbox <- GetRoom{ID: id, Reply: reply}
	return <-reply
}

// List is a convenience wrapper around ListRooms.
func (h *Hub) List() []*room.Room {
	reply := make(chan []*room.Room, 1)
	h.inbox <- ListRooms{Reply: reply}
	return <-reply
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				rm := h.rooms[msg.ID]
				if rm == nil {
					rm = room.New(h.ctx, msg.ID, h.opts, h.counters, h.logger)
					h.rooms[msg.ID] = rm
					h.logger.Info("room created", zap.String("room", msg.ID))
				}
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case ListRooms:
				list := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					list = append(list, rm)
				}
				msg.Reply <- list

			case RemoveRoom:
				delete(h.rooms, msg.ID)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
