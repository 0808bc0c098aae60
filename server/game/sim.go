package game

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultPlayerID names the single human agent when WithPlayers is not used.
const DefaultPlayerID = "player"

// human is a participant fed by an external location provider.
type human struct {
	agent   *Agent
	tracker *tracker

	pending  atomic.Pointer[RoutePoint] // latest unconsumed fix, latest wins
	accepted atomic.Int64               // unix nanos of the last fix the tracker took
}

// Option configures a Sim.
type Option func(*Sim)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sim) { s.log = l }
}

// WithClock replaces time.Now for claim timestamps and the session epoch.
func WithClock(now func() time.Time) Option {
	return func(s *Sim) { s.now = now }
}

// WithRand sets the random source driving bots.
func WithRand(r *rand.Rand) Option {
	return func(s *Sim) { s.rng = r }
}

// WithSessionID sets the session identifier stamped on every point.
func WithSessionID(id string) Option {
	return func(s *Sim) { s.session = id }
}

// WithPlayers declares the human agents, in the order the cutter visits them.
func WithPlayers(ids ...string) Option {
	return func(s *Sim) { s.playerIDs = ids }
}

// WithOrigin spawns bots around a fixed point at Start instead of waiting for
// the first player fix.
func WithOrigin(lat, lng float64) Option {
	return func(s *Sim) { s.origin = &RoutePoint{Lat: lat, Lng: lng} }
}

// Sim is one session's simulation. A single goroutine drives Tick (usually
// through Run); SubmitPosition and Snapshot are safe from anywhere.
type Sim struct {
	cfg      Config
	listener Listener
	log      *slog.Logger
	now      func() time.Time
	rng      *rand.Rand
	session  string
	origin   *RoutePoint

	playerIDs []string
	humans    []*human
	byID      map[string]*human // fixed after New
	bots      []*bot
	agents    []*Agent // cutter order: humans, then bots in spawn order
	tally     map[string]*Result
	claims    []ClaimedArea

	tick    uint64
	started time.Time
	elapsed time.Duration

	running atomic.Bool
	begun   atomic.Bool
	busy    atomic.Bool
	endReq  atomic.Pointer[EndReason]
	state   atomic.Pointer[State]
	done    chan struct{}
}

// New builds a Sim. It does not start ticking.
func New(cfg Config, l Listener, opts ...Option) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = NopListener{}
	}
	s := &Sim{
		cfg:      cfg,
		listener: l,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.session == "" {
		s.session = uuid.NewString()
	}
	if len(s.playerIDs) == 0 {
		s.playerIDs = []string{DefaultPlayerID}
	}

	s.byID = make(map[string]*human, len(s.playerIDs))
	s.tally = make(map[string]*Result)
	for _, id := range s.playerIDs {
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", errInvalidConfig, id)
		}
		a := &Agent{ID: id, Color: cfg.PlayerColor, Status: StatusActive}
		h := &human{agent: a, tracker: newTracker(a, &s.cfg)}
		h.accepted.Store(math.MinInt64)
		s.humans = append(s.humans, h)
		s.byID[id] = h
		s.agents = append(s.agents, a)
		s.tally[id] = &Result{AgentID: id}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Sim) ID() string { return s.session }

// Config returns the tuning the Sim was built with.
func (s *Sim) Config() Config { return s.cfg }

// Running reports whether the session is in its running state.
func (s *Sim) Running() bool { return s.running.Load() }

// Done is closed when the session ends.
func (s *Sim) Done() <-chan struct{} { return s.done }

// Snapshot returns the latest committed state, or nil before Start.
func (s *Sim) Snapshot() *State { return s.state.Load() }

// Start enters the running state and publishes the initial snapshot.
// A Sim runs once; build a new one to restart a session.
func (s *Sim) Start() error {
	if !s.begun.CompareAndSwap(false, true) {
		return ErrStarted
	}
	s.started = s.now()
	if s.origin != nil {
		o := *s.origin
		o.Time = s.started
		o.Session = s.session
		s.spawnBots(o)
	}
	s.running.Store(true)
	st := s.commit()
	s.log.Info("session started", "session", s.session, "players", len(s.humans), "policy", s.cfg.CutPolicy)
	s.listener.OnState(st)
	return nil
}

// Run ticks at the configured interval until the session ends or ctx is
// canceled. Cancellation ends the session.
func (s *Sim) Run(ctx context.Context) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-s.done:
			return nil
		case <-ctx.Done():
			s.requestEnd(EndCanceled)
			return nil
		}
	}
}

// End stops the session. Safe to call from any goroutine and more than once.
func (s *Sim) End() {
	s.requestEnd(EndStopped)
}

// SubmitPosition buffers the latest fix for a human agent. It is consumed by
// the next tick; an older unconsumed fix is replaced.
func (s *Sim) SubmitPosition(agentID string, lat, lng float64, ts time.Time) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	h, ok := s.byID[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	p := &RoutePoint{Lat: lat, Lng: lng, Time: ts, Session: s.session}
	if err := validFix(*p); err != nil {
		return err
	}
	if ts.UnixNano() <= h.accepted.Load() {
		return ErrStaleFix
	}
	for {
		old := h.pending.Load()
		if old != nil && !ts.After(old.Time) {
			return ErrStaleFix
		}
		if h.pending.CompareAndSwap(old, p) {
			return nil
		}
	}
}

// Tick runs one update. It returns false without doing anything when the
// session is not running or another tick is still in progress.
func (s *Sim) Tick() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	ran := s.running.Load()
	if ran {
		s.step()
	}
	s.busy.Store(false)
	s.drainEnd()
	return ran
}

func (s *Sim) step() {
	s.tick++
	at := s.started.Add(time.Duration(s.tick) * s.cfg.TickInterval)
	changed := make(map[*Agent]bool, len(s.agents))

	for _, b := range s.bots {
		if b.step(at, &s.cfg, s.rng) {
			changed[b.agent] = true
		}
	}

	for _, h := range s.humans {
		p := h.pending.Swap(nil)
		if p == nil {
			continue
		}
		appended, err := h.tracker.Move(*p)
		if err != nil {
			s.log.Debug("fix dropped", "session", s.session, "agent", h.agent.ID, "err", err)
			continue
		}
		h.accepted.Store(p.Time.UnixNano())
		if appended {
			changed[h.agent] = true
		}
		if s.bots == nil && s.origin == nil {
			center := *p
			center.Time = at
			s.spawnBots(center)
		}
	}

	var claims []ClaimedArea
	for _, a := range s.agents {
		if !changed[a] {
			continue
		}
		c, ok := claimLoop(a, s.cfg)
		if !ok {
			continue
		}
		c.ID = uuid.NewString()
		c.ClaimedAt = s.now()
		a.Territory += c.AreaM2
		s.tally[a.ID].Claims++
		claims = append(claims, c)
		s.log.Debug("loop closed", "session", s.session, "agent", a.ID, "points", len(c.Polygon), "area_m2", c.AreaM2)
	}

	cuts := CutTrails(s.agents, s.cfg.CutPolicy, s.tick)
	for _, c := range cuts {
		s.tally[c.AttackerID].CutsDealt++
		s.tally[c.VictimID].CutsTaken++
		s.log.Debug("trail cut", "session", s.session, "attacker", c.AttackerID, "victim", c.VictimID)
	}

	timedOut := false
	if s.tick%uint64(s.cfg.ClockDivider) == 0 {
		s.elapsed += s.cfg.TickInterval * time.Duration(s.cfg.ClockDivider)
		timedOut = s.cfg.TimeBudget > 0 && s.elapsed >= s.cfg.TimeBudget
	}

	s.claims = append(s.claims, claims...)
	var st *State
	if !timedOut {
		st = s.commit()
	}
	for _, c := range claims {
		s.listener.OnClaim(c)
	}
	for _, c := range cuts {
		s.listener.OnCut(c)
	}
	if timedOut {
		s.finish(EndTimeout)
		return
	}
	s.listener.OnState(st)
}

// spawnBots places the configured bots around center. Called once per session.
func (s *Sim) spawnBots(center RoutePoint) {
	s.bots = make([]*bot, 0, s.cfg.BotCount)
	for i := range s.cfg.BotCount {
		id := fmt.Sprintf("bot-%d", i+1)
		color := s.cfg.BotColors[i%len(s.cfg.BotColors)]
		b := spawnBot(id, color, center, &s.cfg, s.rng)
		s.bots = append(s.bots, b)
		s.agents = append(s.agents, b.agent)
		s.tally[id] = &Result{AgentID: id, Bot: true}
	}
	s.log.Debug("bots spawned", "session", s.session, "count", len(s.bots), "lat", center.Lat, "lng", center.Lng)
}

// requestEnd records why the session should stop and ends it as soon as no
// tick is in progress.
func (s *Sim) requestEnd(r EndReason) {
	s.endReq.CompareAndSwap(nil, &r)
	s.drainEnd()
}

// drainEnd finishes a pending end request. If a tick holds the guard, that
// tick calls drainEnd again once it releases it.
func (s *Sim) drainEnd() {
	for s.endReq.Load() != nil && s.running.Load() {
		if !s.busy.CompareAndSwap(false, true) {
			return
		}
		if r := s.endReq.Load(); r != nil && s.running.Load() {
			s.finish(*r)
		}
		s.busy.Store(false)
	}
}

// finish must run with the tick guard held.
func (s *Sim) finish(reason EndReason) {
	for _, a := range s.agents {
		if a.Status == StatusActive {
			a.Status = StatusCompleted
		}
	}
	s.running.Store(false)
	st := s.commit()

	sum := Summary{Session: s.session, Reason: reason, Elapsed: s.elapsed, Final: st}
	for _, a := range s.agents {
		r := *s.tally[a.ID]
		r.DistanceM = a.Distance
		r.Calories = a.Distance * s.cfg.CaloriesPerMeter
		r.TerritoryM2 = a.Territory
		sum.Results = append(sum.Results, r)
	}
	close(s.done)

	s.log.Info("session ended", "session", s.session, "reason", reason, "ticks", s.tick, "claims", len(s.claims))
	s.listener.OnState(st)
	s.listener.OnEnd(sum)
}

// commit publishes a deep copy of the working state.
func (s *Sim) commit() *State {
	st := &State{
		Session:      s.session,
		Tick:         s.tick,
		Agents:       make(map[string]Agent, len(s.agents)),
		Order:        make([]string, 0, len(s.agents)),
		ClaimedAreas: slices.Clip(s.claims),
		Elapsed:      s.elapsed,
		Running:      s.running.Load(),
	}
	if s.cfg.TimeBudget > 0 {
		st.Remaining = max(s.cfg.TimeBudget-s.elapsed, 0)
	}
	for _, a := range s.agents {
		st.Agents[a.ID] = a.clone()
		st.Order = append(st.Order, a.ID)
	}
	for _, h := range s.humans {
		st.Totals.DistanceKm += h.agent.Distance / 1000
		st.Totals.Calories += h.agent.Distance * s.cfg.CaloriesPerMeter
		st.Totals.TerritoryKm2 += h.agent.Territory / 1e6
	}
	s.state.Store(st)
	return st
}
