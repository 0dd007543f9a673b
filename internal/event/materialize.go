package event

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

// Materialized is the derived current view of a room: the result of applying
// the full event history in order. At most one value exists per (type, key).
type Materialized struct {
	Scores   map[string]ScoreUpdate
	Players  map[string]PlayerUpdate
	Lineups  map[string]LineupChange
	Trades   map[string]TradeProposal
	Waivers  map[string]WaiverClaim
	Injuries map[string]InjuryAlert
	Settings map[string]string
	Picks    map[string]DraftPick
}

// NewMaterialized returns an empty view.
func NewMaterialized() *Materialized {
	return &Materialized{
		Scores:   make(map[string]ScoreUpdate),
		Players:  make(map[string]PlayerUpdate),
		Lineups:  make(map[string]LineupChange),
		Trades:   make(map[string]TradeProposal),
		Waivers:  make(map[string]WaiverClaim),
		Injuries: make(map[string]InjuryAlert),
		Settings: make(map[string]string),
		Picks:    make(map[string]DraftPick),
	}
}

// Apply folds one event into the view. Chat messages leave the view
// untouched. Settings updates merge key-wise; every other type overwrites
// its slot.
func (m *Materialized) Apply(e Event) {
	switch p := e.Payload.(type) {
	case ScoreUpdate:
		m.Scores[p.GameID] = p
	case PlayerUpdate:
		m.Players[p.PlayerID] = p
	case LineupChange:
		m.Lineups[fmt.Sprintf("%s:%d", p.TeamID, p.Week)] = p
	case TradeProposal:
		m.Trades[p.TradeID] = p
	case WaiverClaim:
		m.Waivers[p.ClaimID] = p
	case InjuryAlert:
		m.Injuries[p.PlayerID] = p
	case LeagueSettings:
		maps.Copy(m.Settings, p.Settings)
	case DraftPick:
		m.Picks[fmt.Sprintf("%d", p.Pick)] = p
	case ChatMessage:
		// transient
	}
}

// Wire renders the view into the JSON contract form used by initial-sync.
func (m *Materialized) Wire() types.RoomData {
	data := types.RoomData{
		"scores":   wireSection(m.Scores),
		"players":  wireSection(m.Players),
		"lineups":  wireSection(m.Lineups),
		"trades":   wireSection(m.Trades),
		"waivers":  wireSection(m.Waivers),
		"injuries": wireSection(m.Injuries),
		"draft":    wireSection(m.Picks),
	}
	settings := make(map[string]json.RawMessage, len(m.Settings))
	for k, v := range m.Settings {
		raw, _ := json.Marshal(v)
		settings[k] = raw
	}
	data["settings"] = settings
	return data
}

func wireSection[T any](section map[string]T) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(section))
	for k, v := range section {
		raw, _ := json.Marshal(v)
		out[k] = raw
	}
	return out
}
