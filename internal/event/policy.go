package event

import (
	"fmt"
	"time"
)

// Strategy names how a detected conflict between two events is resolved.
type Strategy string

const (
	// StrategyLastWrite applies the newer-arriving event unconditionally.
	StrategyLastWrite Strategy = "last-write-wins"
	// StrategyTimestamp applies the event with the greater origination
	// timestamp, independent of arrival order.
	StrategyTimestamp Strategy = "timestamp-priority"
	// StrategyMerge combines both payloads field-wise; on overlap the field
	// from the larger-timestamp event wins.
	StrategyMerge Strategy = "merge"
	// StrategyEscalate never auto-applies; a client must resolve explicitly.
	StrategyEscalate Strategy = "manual-review"
	// StrategyNone marks a type that deliberately never conflicts.
	StrategyNone Strategy = "none"
)

// Policy is the per-type conflict configuration. A nil Keys function means
// the type never conflicts.
type Policy struct {
	Strategy Strategy
	Window   time.Duration
	Keys     func(Payload) []string
}

// DefaultWindow is the trailing span within which two events on the same
// key are considered racing, unless overridden per type.
const DefaultWindow = 30 * time.Second

// PolicyFor returns the conflict policy for t with the given default window.
// Chat messages and draft picks carry no key function: chat is append-only
// and draft picks are serialized by the room's version order, so neither can
// race on a logical key.
func PolicyFor(t Type, window time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	switch t {
	case TypeScoreUpdate:
		return Policy{Strategy: StrategyLastWrite, Window: window, Keys: scoreKeys}
	case TypePlayerUpdate:
		return Policy{Strategy: StrategyLastWrite, Window: window, Keys: playerKeys}
	case TypeInjuryAlert:
		return Policy{Strategy: StrategyLastWrite, Window: window, Keys: injuryKeys}
	case TypeLineupChange:
		return Policy{Strategy: StrategyTimestamp, Window: window, Keys: lineupKeys}
	case TypeTradeProposal:
		return Policy{Strategy: StrategyEscalate, Window: window, Keys: tradeKeys}
	case TypeWaiverClaim:
		return Policy{Strategy: StrategyEscalate, Window: window, Keys: waiverKeys}
	case TypeLeagueSettings:
		return Policy{Strategy: StrategyMerge, Window: window, Keys: settingsKeys}
	default:
		return Policy{Strategy: StrategyNone}
	}
}

func scoreKeys(p Payload) []string {
	if s, ok := p.(ScoreUpdate); ok {
		return []string{"game:" + s.GameID}
	}
	return nil
}

func playerKeys(p Payload) []string {
	if u, ok := p.(PlayerUpdate); ok {
		return []string{"player:" + u.PlayerID}
	}
	return nil
}

func injuryKeys(p Payload) []string {
	if a, ok := p.(InjuryAlert); ok {
		return []string{"player:" + a.PlayerID}
	}
	return nil
}

func lineupKeys(p Payload) []string {
	if l, ok := p.(LineupChange); ok {
		return []string{fmt.Sprintf("lineup:%s:%d", l.TeamID, l.Week)}
	}
	return nil
}

// tradeKeys returns one key per involved player so two proposals conflict
// whenever their player sets overlap.
func tradeKeys(p Payload) []string {
	t, ok := p.(TradeProposal)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(t.OfferedPlayers)+len(t.RequestedPlayers))
	for _, id := range t.OfferedPlayers {
		keys = append(keys, "player:"+id)
	}
	for _, id := range t.RequestedPlayers {
		keys = append(keys, "player:"+id)
	}
	return keys
}

func waiverKeys(p Payload) []string {
	if w, ok := p.(WaiverClaim); ok {
		return []string{"player:" + w.PlayerID}
	}
	return nil
}

func settingsKeys(Payload) []string {
	return []string{"settings"}
}

// KeysOverlap reports whether two key sets share any element.
func KeysOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
