package game

import (
	"slices"
	"time"
)

// RoutePoint is one sampled position. Points are never modified once created.
type RoutePoint struct {
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	Time    time.Time `json:"ts"`
	Session string    `json:"session_id,omitempty"`
}

// Status is the trail state of an agent.
type Status uint8

const (
	StatusActive Status = iota
	StatusCompleted
	StatusCut
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCut:
		return "cut"
	default:
		return "active"
	}
}

// MarshalText lets Status appear as a string in JSON documents.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Agent is the human runner or one bot.
type Agent struct {
	ID        string       `json:"id"`
	Bot       bool         `json:"bot"`
	Color     string       `json:"color"`
	Status    Status       `json:"status"`
	Heading   float64      `json:"heading,omitempty"`
	Trail     []RoutePoint `json:"trail"`
	Distance  float64      `json:"distance_m"`
	Territory float64      `json:"territory_m2"`
}

// Last returns the newest trail point.
func (a *Agent) Last() (RoutePoint, bool) {
	if len(a.Trail) == 0 {
		return RoutePoint{}, false
	}
	return a.Trail[len(a.Trail)-1], true
}

// Head returns the agent's latest movement segment.
func (a *Agent) Head() (from, to RoutePoint, ok bool) {
	n := len(a.Trail)
	if n < 2 {
		return RoutePoint{}, RoutePoint{}, false
	}
	return a.Trail[n-2], a.Trail[n-1], true
}

// clone returns a copy that shares nothing mutable with a.
func (a *Agent) clone() Agent {
	c := *a
	c.Trail = slices.Clone(a.Trail)
	return c
}

// resetTo truncates the trail to its single last point and marks the agent cut.
func (a *Agent) resetTo(p RoutePoint) {
	a.Trail = append(a.Trail[:0], p)
	a.Status = StatusCut
}

// ClaimedArea is territory captured by closing a loop.
type ClaimedArea struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	Polygon   []RoutePoint `json:"polygon"`
	Color     string       `json:"color"`
	AreaM2    float64      `json:"area_m2"`
	ClaimedAt time.Time    `json:"claimed_at"`
}

// Cut records one agent's head segment crossing another agent's trail.
type Cut struct {
	AttackerID string     `json:"attacker_id"`
	VictimID   string     `json:"victim_id"`
	At         RoutePoint `json:"at"`
	Tick       uint64     `json:"tick"`
}
