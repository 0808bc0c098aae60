package main

import (
	"encoding/json"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/vmihailenco/msgpack/v5"
)

// Client -> Server message types
const (
	MsgList     = "list"    // list sessions
	MsgCreate   = "create"  // create session, creator becomes the runner
	MsgJoin     = "join"    // attach as runner or viewer
	MsgPos      = "pos"     // runner position fix
	MsgLeave    = "leave"   // detach from session
	MsgEnd      = "end"     // owner ends the session
	MsgRestart  = "restart" // owner restarts with fresh trails
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth" // resume with a stored token
	MsgProfile  = "profile"
)

// Server -> Client message types
const (
	MsgState       = "state" // binary msgpack frame, never sent as JSON
	MsgSessions    = "sessions"
	MsgCreated     = "created"
	MsgJoined      = "joined"
	MsgWelcome     = "welcome"
	MsgClaim       = "claim"
	MsgCut         = "cut"
	MsgEnded       = "ended"
	MsgError       = "error"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
)

// Session roles
const (
	RoleRunner = "runner"
	RoleViewer = "viewer"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string `json:"t"`
	Data any    `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg is sent when a runner wants to start a session
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
}

// JoinMsg attaches a connection to a session
type JoinMsg struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
}

// PosMsg is one location fix from the runner. TS is unix milliseconds;
// zero means "now".
type PosMsg struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  int64   `json:"ts"`
}

// Time returns the fix timestamp.
func (p PosMsg) Time() time.Time {
	if p.TS <= 0 {
		return time.Now()
	}
	return time.UnixMilli(p.TS)
}

type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMsg struct {
	Token string `json:"token"`
}

type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	RunnerID int64  `json:"rid"`
}

// ProfileDataMsg carries lifetime stats for the authenticated runner
type ProfileDataMsg struct {
	Username    string  `json:"username"`
	DistanceKm  float64 `json:"distance_km"`
	Calories    float64 `json:"calories"`
	TerritoryM2 float64 `json:"territory_m2"`
	Claims      int     `json:"claims"`
	CutsDealt   int     `json:"cuts_dealt"`
	CutsTaken   int     `json:"cuts_taken"`
	Sessions    int     `json:"sessions"`
	Score       int     `json:"score"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Running bool   `json:"running"`
	Viewers int    `json:"viewers"`
	Runner  bool   `json:"runner"`
}

type JoinedMsg struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
}

// WelcomeMsg tells a newly attached client what it is looking at
type WelcomeMsg struct {
	SessionID   string  `json:"sid"`
	Name        string  `json:"name"`
	AgentID     string  `json:"agent,omitempty"` // runner only
	Color       string  `json:"color"`
	TickMs      int64   `json:"tick_ms"`
	BudgetSec   float64 `json:"budget_s"`
	MinSampleM  float64 `json:"min_sample_m"`
	ClosureM    float64 `json:"closure_m"`
	MaxTrailPts int     `json:"max_trail"`
}

// ClaimMsg announces a closed loop
type ClaimMsg struct {
	ID      string       `json:"id"`
	OwnerID string       `json:"owner"`
	Color   string       `json:"color"`
	AreaM2  float64      `json:"area_m2"`
	Polygon [][2]float64 `json:"polygon"`
}

// CutMsg announces a trail cut
type CutMsg struct {
	AttackerID string  `json:"attacker"`
	VictimID   string  `json:"victim"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// EndedMsg is sent when a session stops
type EndedMsg struct {
	Reason     string        `json:"reason"`
	ElapsedSec float64       `json:"elapsed_s"`
	Results    []game.Result `json:"results"`
	Score      int           `json:"score"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// --- binary state frames ---

// WireState is the msgpack form of one committed tick
type WireState struct {
	Session   string      `msgpack:"sid"`
	Tick      uint64      `msgpack:"tick"`
	Agents    []WireAgent `msgpack:"a"`
	Claims    []WireClaim `msgpack:"c"`
	Elapsed   float64     `msgpack:"el"` // seconds
	Remaining float64     `msgpack:"rm"`
	Totals    WireTotals  `msgpack:"tt"`
	Running   bool        `msgpack:"r"`
}

type WireAgent struct {
	ID      string       `msgpack:"id"`
	Bot     bool         `msgpack:"b"`
	Color   string       `msgpack:"col"`
	Status  string       `msgpack:"st"`
	Heading float64      `msgpack:"h"`
	Trail   [][2]float64 `msgpack:"tr"` // [lat, lng]
}

type WireClaim struct {
	ID      string       `msgpack:"id"`
	OwnerID string       `msgpack:"o"`
	Color   string       `msgpack:"col"`
	AreaM2  float64      `msgpack:"ar"`
	Ring    [][2]float64 `msgpack:"p"`
}

type WireTotals struct {
	DistanceKm   float64 `msgpack:"km"`
	Calories     float64 `msgpack:"kcal"`
	TerritoryKm2 float64 `msgpack:"km2"`
}

func latLngs(pts []game.RoutePoint) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.Lat, p.Lng}
	}
	return out
}

// ToWire flattens a committed state into its frame form. Agents keep the
// cutter order.
func ToWire(st *game.State) WireState {
	w := WireState{
		Session:   st.Session,
		Tick:      st.Tick,
		Agents:    make([]WireAgent, 0, len(st.Order)),
		Claims:    make([]WireClaim, 0, len(st.ClaimedAreas)),
		Elapsed:   st.Elapsed.Seconds(),
		Remaining: st.Remaining.Seconds(),
		Totals: WireTotals{
			DistanceKm:   st.Totals.DistanceKm,
			Calories:     st.Totals.Calories,
			TerritoryKm2: st.Totals.TerritoryKm2,
		},
		Running: st.Running,
	}
	for _, id := range st.Order {
		a := st.Agents[id]
		w.Agents = append(w.Agents, WireAgent{
			ID:      a.ID,
			Bot:     a.Bot,
			Color:   a.Color,
			Status:  a.Status.String(),
			Heading: a.Heading,
			Trail:   latLngs(a.Trail),
		})
	}
	for _, c := range st.ClaimedAreas {
		w.Claims = append(w.Claims, WireClaim{
			ID:      c.ID,
			OwnerID: c.OwnerID,
			Color:   c.Color,
			AreaM2:  c.AreaM2,
			Ring:    latLngs(c.Polygon),
		})
	}
	return w
}

// EncodeState packs a state frame for SendBinary.
func EncodeState(st *game.State) ([]byte, error) {
	return msgpack.Marshal(ToWire(st))
}

func claimMsg(c game.ClaimedArea) ClaimMsg {
	return ClaimMsg{ID: c.ID, OwnerID: c.OwnerID, Color: c.Color, AreaM2: c.AreaM2, Polygon: latLngs(c.Polygon)}
}

func cutMsg(c game.Cut) CutMsg {
	return CutMsg{AttackerID: c.AttackerID, VictimID: c.VictimID, Lat: c.At.Lat, Lng: c.At.Lng}
}
