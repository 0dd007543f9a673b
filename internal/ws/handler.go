// Package ws is the client-facing transport: one bidirectional websocket per
// client, addressed at handshake by room, identity, and an auth token.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/auth"
	"github.com/fastbreaklabs/leaguesync/internal/event"
	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/registry"
	"github.com/fastbreaklabs/leaguesync/internal/room"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

const writeTimeout = 3 * time.Second

// Deps carries everything the handler needs.
type Deps struct {
	Hub        *hub.Hub
	Registry   *registry.Registry
	Verifier   auth.Verifier
	Counters   *health.Counters
	OutboxSize int
	Logger     *zap.Logger
}

// Handler performs the handshake and runs the connection's read/write pumps.
// Rejections (missing parameters, auth failure, room at capacity) happen
// before any connection state is created.
func Handler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		identity := r.URL.Query().Get("identity")
		token := r.URL.Query().Get("token")
		if roomID == "" || identity == "" || token == "" {
			http.Error(w, "missing room, identity, or token", http.StatusBadRequest)
			return
		}

		verified, err := d.Verifier.Verify(token)
		if err != nil || verified != identity {
			http.Error(w, "auth failure", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		rm := d.Hub.Ensure(roomID)
		connID := uuid.NewString()
		outbox := make(chan types.ServerMessage, d.OutboxSize)

		joined := make(chan error, 1)
		rm.Inbox() <- room.Join{
			P:     room.Participant{ConnID: connID, Identity: identity, Outbox: outbox},
			Reply: joined,
		}
		if err := <-joined; err != nil {
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}

		d.Registry.Register(connID, identity, roomID,
			func(ctx context.Context) (time.Duration, error) {
				start := time.Now()
				if err := conn.Ping(ctx); err != nil {
					return 0, err
				}
				return time.Since(start), nil
			},
			func(reason string) {
				conn.Close(websocket.StatusGoingAway, reason)
			})

		logger := d.Logger.With(
			zap.String("conn", connID),
			zap.String("room", roomID),
			zap.String("identity", identity))

		c := &client{
			deps:     d,
			conn:     conn,
			room:     rm,
			connID:   connID,
			identity: identity,
			roomID:   roomID,
			outbox:   outbox,
			replies:  make(chan types.ServerMessage, 16),
			logger:   logger,
		}
		defer func() {
			rm.Inbox() <- room.Leave{ConnID: connID}
			d.Registry.Unregister(connID)
		}()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go c.writePump(writeCtx)

		c.readPump(r.Context())
	}
}

type client struct {
	deps     Deps
	conn     *websocket.Conn
	room     *room.Room
	connID   string
	identity string
	roomID   string
	outbox   chan types.ServerMessage // room -> client
	replies  chan types.ServerMessage // handler -> client (pong, errors)
	logger   *zap.Logger
}

// writePump serializes every outbound frame. It exits when the room closes
// the outbox (drop or shutdown) or the context ends, then closes the socket.
func (c *client) writePump(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "bye")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.outbox:
			if !ok {
				return
			}
			if msg.Type == types.MsgSyncEvent && msg.Event != nil && msg.Event.RequiresAck {
				c.deps.Registry.ExpectAck(c.connID, msg.Event.ID)
			}
			if !c.write(ctx, msg) {
				return
			}
		case msg := <-c.replies:
			if !c.write(ctx, msg) {
				return
			}
		}
	}
}

func (c *client) write(ctx context.Context, msg types.ServerMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal outbound message", zap.Error(err))
		return true
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return false
	}
	return true
}

// readPump parses inbound frames. Malformed input produces an error frame to
// this sender only; the connection stays open.
func (c *client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					c.deps.Counters.Errors.Add(1)
					c.logger.Info("transport failure", zap.Error(err))
				}
			}
			return
		}

		c.deps.Registry.Touch(c.connID)

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reject("bad json")
			continue
		}
		c.dispatch(cm)
	}
}

func (c *client) dispatch(cm types.ClientMessage) {
	switch cm.Type {
	case types.MsgPing:
		c.reply(types.ServerMessage{
			Type:      types.MsgPong,
			Timestamp: time.Now().UnixMilli(),
			LatencyMS: c.deps.Registry.Latency(c.connID).Milliseconds(),
		})

	case types.MsgSubscribe:
		c.room.Inbox() <- room.Subscribe{ConnID: c.connID, Channels: cm.Channels}

	case types.MsgUnsubscribe:
		c.room.Inbox() <- room.Unsubscribe{ConnID: c.connID, Channels: cm.Channels}

	case types.MsgSyncEvent:
		e, err := c.buildEvent(cm)
		if err != nil {
			c.reject(err.Error())
			return
		}
		c.room.Inbox() <- room.Submit{Events: []event.Event{e}, Sender: c.connID}

	case types.MsgAck:
		if cm.EventID == "" {
			c.reject("ack requires eventId")
			return
		}
		c.deps.Registry.Ack(c.connID, cm.EventID)

	case types.MsgConflictResolution:
		if cm.ConflictID == "" {
			c.reject("conflict-resolution requires conflictId")
			return
		}
		c.room.Inbox() <- room.Resolve{
			ConflictID: cm.ConflictID,
			Choice:     cm.Resolution,
			Sender:     c.connID,
		}

	default:
		c.reject("unknown message type")
	}
}

func (c *client) buildEvent(cm types.ClientMessage) (event.Event, error) {
	t, err := event.ParseType(cm.EventType)
	if err != nil {
		return event.Event{}, err
	}
	prio, err := event.ParsePriority(cm.Priority)
	if err != nil {
		return event.Event{}, err
	}
	payload, err := event.DecodePayload(t, cm.Data)
	if err != nil {
		return event.Event{}, err
	}
	ts := time.Now()
	if cm.Timestamp > 0 {
		ts = time.UnixMilli(cm.Timestamp)
	}
	return event.New(t, c.roomID, c.identity, ts, prio, cm.RequiresAck, payload), nil
}

// reject reports a malformed message to the sender only.
func (c *client) reject(text string) {
	c.deps.Counters.Errors.Add(1)
	c.reply(types.ServerMessage{
		Type:      types.MsgError,
		Error:     text,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *client) reply(msg types.ServerMessage) {
	select {
	case c.replies <- msg:
	default:
	}
}
