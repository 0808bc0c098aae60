package game

import "time"

// Totals are the running figures shown for the player.
type Totals struct {
	DistanceKm   float64 `json:"distance_km"`
	Calories     float64 `json:"calories"`
	TerritoryKm2 float64 `json:"territory_km2"`
}

// State is one committed tick. A published State is never modified; callers
// must treat every field, slices and maps included, as read-only.
type State struct {
	Session      string           `json:"session_id"`
	Tick         uint64           `json:"tick"`
	Agents       map[string]Agent `json:"agents"`
	Order        []string         `json:"order"`
	ClaimedAreas []ClaimedArea    `json:"claimed_areas"`
	Elapsed      time.Duration    `json:"elapsed"`
	Remaining    time.Duration    `json:"remaining"`
	Totals       Totals           `json:"totals"`
	Running      bool             `json:"running"`
}

// Agent returns the committed copy of one agent.
func (s *State) Agent(id string) (Agent, bool) {
	a, ok := s.Agents[id]
	return a, ok
}

// EndReason says why a session stopped running.
type EndReason string

const (
	EndTimeout  EndReason = "timeout"
	EndStopped  EndReason = "stopped"
	EndCanceled EndReason = "canceled"
)

// Summary is the per-agent result reported when a session ends.
type Summary struct {
	Session string        `json:"session_id"`
	Reason  EndReason     `json:"reason"`
	Elapsed time.Duration `json:"elapsed"`
	Results []Result      `json:"results"`
	Final   *State        `json:"-"`
}

// Result is one agent's banked figures.
type Result struct {
	AgentID     string  `json:"agent_id"`
	Bot         bool    `json:"bot"`
	DistanceM   float64 `json:"distance_m"`
	Calories    float64 `json:"calories"`
	TerritoryM2 float64 `json:"territory_m2"`
	Claims      int     `json:"claims"`
	CutsDealt   int     `json:"cuts_dealt"`
	CutsTaken   int     `json:"cuts_taken"`
}
