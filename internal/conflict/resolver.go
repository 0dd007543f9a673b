// Package conflict implements per-strategy resolution of racing sync events.
// Resolution records move PENDING -> RESOLVED | ESCALATED and are retained as
// an audit trail by the owning room.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastbreaklabs/leaguesync/internal/event"
	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

var (
	ErrAlreadyTerminal = errors.New("conflict already resolved or escalated")
	ErrUnknownChoice   = errors.New("unknown resolution choice")
)

// Status is the resolution state machine position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Resolution choices a client may send for an escalated conflict.
const (
	ChoiceOriginal    = "original"
	ChoiceConflicting = "conflicting"
)

// Resolution is the audit record for one detected conflict. Original is the
// earlier event (already applied or first queued); Conflicting arrived after.
type Resolution struct {
	ID          string
	Strategy    event.Strategy
	Status      Status
	Original    event.Event
	Conflicting event.Event
	Resolved    *event.Event
	DetectedAt  time.Time
	DecidedAt   time.Time
}

// Wire converts the record to its JSON contract form.
func (r *Resolution) Wire() *types.WireConflict {
	w := &types.WireConflict{
		ConflictID:  r.ID,
		Strategy:    string(r.Strategy),
		Status:      string(r.Status),
		Original:    r.Original.Wire(),
		Conflicting: r.Conflicting.Wire(),
	}
	if r.Resolved != nil {
		wr := r.Resolved.Wire()
		w.Resolved = &wr
	}
	return w
}

// Detect builds a pending record for a racing pair.
func Detect(strategy event.Strategy, original, conflicting event.Event, now time.Time) *Resolution {
	return &Resolution{
		ID:          uuid.NewString(),
		Strategy:    strategy,
		Status:      StatusPending,
		Original:    original,
		Conflicting: conflicting,
		DetectedAt:  now,
	}
}

// Run executes the record's strategy. For auto strategies it transitions to
// RESOLVED and returns the single event to apply; originalApplied indicates
// whether Original already went through the room's apply path, in which case
// a resolution in its favor returns nil (nothing further to apply). For the
// manual-review strategy it transitions to ESCALATED and returns nil.
func (r *Resolution) Run(now time.Time, originalApplied bool) (*event.Event, error) {
	if r.Status != StatusPending {
		return nil, ErrAlreadyTerminal
	}
	switch r.Strategy {
	case event.StrategyLastWrite:
		// Newer arrival wins unconditionally.
		return r.resolve(r.Conflicting, now, originalApplied), nil

	case event.StrategyTimestamp:
		// Greater origination timestamp wins, independent of arrival order.
		winner := r.Original
		if r.Conflicting.Timestamp.After(r.Original.Timestamp) {
			winner = r.Conflicting
		}
		return r.resolve(winner, now, originalApplied), nil

	case event.StrategyMerge:
		merged, err := event.Merge(r.Original, r.Conflicting)
		if err != nil {
			return nil, fmt.Errorf("merge strategy: %w", err)
		}
		return r.resolve(merged, now, false), nil

	case event.StrategyEscalate:
		r.Status = StatusEscalated
		return nil, nil

	default:
		return nil, fmt.Errorf("strategy %q cannot auto-resolve", r.Strategy)
	}
}

// Decide applies a client's explicit choice to an escalated conflict and
// returns the chosen event for the normal apply path. Choosing an event that
// was already applied yields nil.
func (r *Resolution) Decide(choice string, now time.Time, originalApplied bool) (*event.Event, error) {
	if r.Status != StatusEscalated {
		return nil, ErrAlreadyTerminal
	}
	switch choice {
	case ChoiceOriginal:
		return r.resolve(r.Original, now, originalApplied), nil
	case ChoiceConflicting:
		return r.resolve(r.Conflicting, now, false), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}
}

func (r *Resolution) resolve(winner event.Event, now time.Time, alreadyApplied bool) *event.Event {
	r.Status = StatusResolved
	r.DecidedAt = now
	r.Resolved = &winner
	if alreadyApplied && winner.ID == r.Original.ID {
		return nil
	}
	return &winner
}
