// Package feed consumes the external live-data stream (scores, player
// stats, injuries), wraps each update into a sync event, and fans it out to
// the affected rooms. The feed's own polling behavior lives upstream; this
// consumer only reads, reconnecting with exponential backoff.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/fastbreaklabs/leaguesync/internal/event"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/room"
)

// Update is one inbound domain update from the feed. An empty Rooms list
// targets every live room.
type Update struct {
	Type     string          `json:"type"`
	Rooms    []string        `json:"rooms,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Consumer reads the feed and submits wrapped events through the hub.
type Consumer struct {
	url       string
	baseDelay time.Duration
	maxDelay  time.Duration
	hub       *hub.Hub
	logger    *zap.Logger
}

// NewConsumer builds a feed consumer. url must be non-empty.
func NewConsumer(url string, baseDelay, maxDelay time.Duration, h *hub.Hub, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:       url,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		hub:       h,
		logger:    logger,
	}
}

// Run keeps a connection to the feed until ctx is cancelled. Each dropped
// connection doubles the retry delay up to the cap; a successful read
// resets it.
func (c *Consumer) Run(ctx context.Context) {
	delay := c.baseDelay
	for {
		if err := c.consume(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("feed connection lost", zap.Error(err), zap.Duration("retry", delay))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	c.logger.Info("feed connected", zap.String("url", c.url))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var upd Update
		if err := json.Unmarshal(data, &upd); err != nil {
			c.logger.Warn("malformed feed update, skipped", zap.Error(err))
			continue
		}
		c.fanOut(upd)
	}
}

// fanOut wraps the update into one event per target room. Injury alerts are
// delivered at critical priority unless the feed says otherwise.
func (c *Consumer) fanOut(upd Update) {
	t, err := event.ParseType(upd.Type)
	if err != nil {
		c.logger.Warn("feed update with unknown type, skipped", zap.String("type", upd.Type))
		return
	}
	prioRaw := upd.Priority
	if prioRaw == "" && t == event.TypeInjuryAlert {
		prioRaw = string(event.PriorityCritical)
	}
	prio, err := event.ParsePriority(prioRaw)
	if err != nil {
		prio = event.PriorityMedium
	}

	targets := upd.Rooms
	if len(targets) == 0 {
		for _, rm := range c.hub.List() {
			targets = append(targets, rm.ID())
		}
	}
	now := time.Now()
	for _, roomID := range targets {
		payload, err := event.DecodePayload(t, upd.Data)
		if err != nil {
			c.logger.Warn("feed update with bad payload, skipped",
				zap.String("type", upd.Type), zap.Error(err))
			return
		}
		rm := c.hub.Ensure(roomID)
		e := event.New(t, roomID, "", now, prio, false, payload)
		rm.Inbox() <- room.Submit{Events: []event.Event{e}}
	}
}
