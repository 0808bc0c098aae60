package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/chandan989/StrideOn/server/game"
)

const (
	maxSessions   = 100
	runnerAgentID = "runner"
	reapEvery     = 30 * time.Second
	restartWait   = time.Second
)

// SessionIdleTimeout is how long a session with no peers and no position
// fixes survives before the reaper ends and removes it.
var SessionIdleTimeout = 10 * time.Minute

var (
	ErrTooManySessions = errors.New("too many active sessions")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotOwner        = errors.New("only the session owner can do that")
	ErrRunnerTaken     = errors.New("session already has a runner")
	ErrBadRole         = errors.New("role must be runner or viewer")
)

// Peer is anything that can receive session broadcasts
type Peer interface {
	SendJSON(msg any)
	SendBinary(data []byte)
}

// SessionDeps are the collaborators shared by every session
type SessionDeps struct {
	Game      game.Config
	DB        *DB
	Analytics *Analytics
	Publisher EventPublisher
	Archiver  Archiver
	Recorder  *Recorder
	Log       *slog.Logger
}

// SessionManager handles creation, lookup and reaping of sessions
type SessionManager struct {
	deps   SessionDeps
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(deps SessionDeps) *SessionManager {
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Archiver == nil {
		deps.Archiver = nopArchiver{}
	}
	if deps.Log == nil {
		deps.Log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// CreateSession creates a session and starts its simulation. ownerID is the
// creator's runner account, zero for guests.
func (sm *SessionManager) CreateSession(name, ownerName string, ownerID int64) (*Session, error) {
	sm.mu.Lock()
	if len(sm.sessions) >= maxSessions {
		sm.mu.Unlock()
		return nil, ErrTooManySessions
	}
	now := time.Now()
	sess := &Session{
		ID:         GenerateUUID(),
		Name:       name,
		OwnerName:  ownerName,
		OwnerID:    ownerID,
		Created:    now,
		m:          sm,
		viewers:    make(map[Peer]struct{}),
		lastActive: now,
	}
	sess.log = sm.deps.Log.With("session", sess.ID)
	sm.sessions[sess.ID] = sess
	count := len(sm.sessions)
	sm.mu.Unlock()

	sm.setActive(count)
	if err := sess.launch(1); err != nil {
		sm.remove(sess.ID)
		return nil, err
	}
	return sess, nil
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// ListSessions returns info about all sessions, oldest first
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	all := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		all = append(all, s)
	}
	sm.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Session) int { return a.Created.Compare(b.Created) })
	list := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		list = append(list, s.Info())
	}
	return list
}

// Count returns the number of sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Reap ends and removes sessions that have no peers and have been idle
// longer than SessionIdleTimeout. It returns how many were removed.
func (sm *SessionManager) Reap(now time.Time) int {
	sm.mu.RLock()
	var idle []*Session
	for _, s := range sm.sessions {
		if s.idleSince(now) > SessionIdleTimeout {
			idle = append(idle, s)
		}
	}
	sm.mu.RUnlock()

	for _, s := range idle {
		s.log.Info("reaping idle session")
		s.stop()
		sm.remove(s.ID)
	}
	return len(idle)
}

// RunReaper reaps idle sessions until ctx is done
func (sm *SessionManager) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(reapEvery)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sm.Reap(now)
		case <-ctx.Done():
			return nil
		}
	}
}

// Shutdown cancels every running simulation and waits for them to finish.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.cancel()
	sm.mu.RLock()
	sims := make([]*game.Sim, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		if sim := s.current(); sim != nil {
			sims = append(sims, sim)
		}
	}
	sm.mu.RUnlock()

	for _, sim := range sims {
		select {
		case <-sim.Done():
		case <-ctx.Done():
			return fmt.Errorf("shutdown sessions: %w", ctx.Err())
		}
	}
	return nil
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	count := len(sm.sessions)
	sm.mu.Unlock()
	sm.setActive(count)
}

func (sm *SessionManager) setActive(n int) {
	if sm.deps.Analytics != nil {
		sm.deps.Analytics.SetActiveSessions(n)
	}
}

// Session is one territory run: a single runner, any number of viewers and
// the bots of its simulation.
type Session struct {
	ID        string
	Name      string
	OwnerName string
	OwnerID   int64
	Created   time.Time

	m   *SessionManager
	log *slog.Logger

	mu         sync.Mutex
	sim        *game.Sim
	gen        uint64
	runner     Peer
	viewers    map[Peer]struct{}
	lastActive time.Time
	ended      *EndedMsg
}

// launch builds and starts the simulation for generation gen.
func (s *Session) launch(gen uint64) error {
	deps := s.m.deps
	sim, err := game.New(deps.Game, &sessionListener{s: s, gen: gen},
		game.WithLogger(s.log),
		game.WithSessionID(s.ID),
		game.WithPlayers(runnerAgentID),
	)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	s.mu.Lock()
	if s.gen >= gen {
		s.mu.Unlock()
		return nil
	}
	s.gen = gen
	s.sim = sim
	s.ended = nil
	s.mu.Unlock()

	s.recordStart()
	if err := sim.Start(); err != nil {
		return err
	}
	go func() {
		if err := sim.Run(s.m.ctx); err != nil {
			s.log.Error("simulation stopped", "err", err)
		}
	}()
	return nil
}

func (s *Session) current() *game.Sim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim
}

// Snapshot returns the latest committed state
func (s *Session) Snapshot() *game.State {
	if sim := s.current(); sim != nil {
		return sim.Snapshot()
	}
	return nil
}

// Running reports whether the current simulation is still ticking
func (s *Session) Running() bool {
	sim := s.current()
	return sim != nil && sim.Running()
}

// Ended returns the end message of the current run, or nil while running
func (s *Session) Ended() *EndedMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Info summarizes the session for listings
func (s *Session) Info() SessionInfo {
	running := s.Running()
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:      s.ID,
		Name:    s.Name,
		Owner:   s.OwnerName,
		Running: running,
		Viewers: len(s.viewers),
		Runner:  s.runner != nil,
	}
}

// Welcome describes the session to a newly attached peer
func (s *Session) Welcome(role string) WelcomeMsg {
	cfg := s.m.deps.Game
	w := WelcomeMsg{
		SessionID:   s.ID,
		Name:        s.Name,
		Color:       cfg.PlayerColor,
		TickMs:      cfg.TickInterval.Milliseconds(),
		BudgetSec:   cfg.TimeBudget.Seconds(),
		MinSampleM:  cfg.MinSampleDistance,
		ClosureM:    cfg.ClosureThreshold,
		MaxTrailPts: cfg.MaxTrailPoints,
	}
	if role == RoleRunner {
		w.AgentID = runnerAgentID
	}
	return w
}

// Attach adds a peer. Only one runner may be attached; owned sessions only
// accept their owner as runner.
func (s *Session) Attach(p Peer, role string, runnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case RoleRunner:
		if s.OwnerID != 0 && runnerID != s.OwnerID {
			return ErrNotOwner
		}
		if s.runner != nil && s.runner != p {
			return ErrRunnerTaken
		}
		delete(s.viewers, p)
		s.runner = p
	case RoleViewer:
		if s.runner == p {
			s.runner = nil
		}
		s.viewers[p] = struct{}{}
	default:
		return ErrBadRole
	}
	s.lastActive = time.Now()
	return nil
}

// Detach removes a peer from the session
func (s *Session) Detach(p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == p {
		s.runner = nil
	}
	delete(s.viewers, p)
	s.lastActive = time.Now()
}

// IsOwner reports whether the peer may end or restart the session. Guest
// sessions are controlled by whoever holds the runner slot.
func (s *Session) IsOwner(p Peer, runnerID int64) bool {
	if s.OwnerID != 0 {
		return runnerID == s.OwnerID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return p != nil && s.runner == p
}

// SubmitPosition hands a runner fix to the simulation
func (s *Session) SubmitPosition(lat, lng float64, ts time.Time) error {
	s.mu.Lock()
	sim := s.sim
	s.lastActive = time.Now()
	s.mu.Unlock()
	if sim == nil {
		return game.ErrNotRunning
	}
	return sim.SubmitPosition(runnerAgentID, lat, lng, ts)
}

// End stops the current run on behalf of p
func (s *Session) End(p Peer, runnerID int64) error {
	if !s.IsOwner(p, runnerID) {
		return ErrNotOwner
	}
	s.stop()
	return nil
}

// Restart ends the current run and replaces it with a fresh simulation.
func (s *Session) Restart(p Peer, runnerID int64) error {
	if !s.IsOwner(p, runnerID) {
		return ErrNotOwner
	}
	s.mu.Lock()
	old := s.sim
	next := s.gen + 1
	s.lastActive = time.Now()
	s.mu.Unlock()

	if old != nil {
		old.End()
		select {
		case <-old.Done():
		case <-time.After(restartWait):
			s.log.Warn("previous run did not stop in time")
		}
	}
	return s.launch(next)
}

func (s *Session) stop() {
	if sim := s.current(); sim != nil {
		sim.End()
	}
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil || len(s.viewers) > 0 {
		return 0
	}
	return now.Sub(s.lastActive)
}

// peersFor returns the attached peers if gen is still the live run.
func (s *Session) peersFor(gen uint64) ([]Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, false
	}
	peers := make([]Peer, 0, len(s.viewers)+1)
	if s.runner != nil {
		peers = append(peers, s.runner)
	}
	for p := range s.viewers {
		peers = append(peers, p)
	}
	return peers, true
}

// runnerAccount maps an agent to the account behind it, zero for bots and
// guest runners.
func (s *Session) runnerAccount(agentID string) int64 {
	if agentID == runnerAgentID {
		return s.OwnerID
	}
	return 0
}

func (s *Session) busEvent(kind string, at time.Time, payload any) BusEvent {
	return BusEvent{
		EventID:   GenerateUUID(),
		EventType: kind,
		SessionID: s.ID,
		At:        at.UTC(),
		Payload:   payload,
	}
}

func (s *Session) recordStart() {
	deps := s.m.deps
	deps.Analytics.Track(EvtSessionStart, s.OwnerID, s.ID, "")
	now := time.Now()
	evt := s.busEvent(EvtSessionStart, now, s.Info())
	deps.Recorder.Enqueue("session start", func(ctx context.Context) error {
		var err error
		if deps.DB != nil {
			err = deps.DB.RecordSessionStart(s.ID, s.Name, s.OwnerID, now)
		}
		return errors.Join(err, deps.Publisher.Publish(ctx, TopicSessions, evt))
	})
}

// sessionListener forwards one run's events to peers and the recorder.
type sessionListener struct {
	s   *Session
	gen uint64
}

func (l *sessionListener) broadcast(msg any) {
	peers, _ := l.s.peersFor(l.gen)
	for _, p := range peers {
		p.SendJSON(msg)
	}
}

func (l *sessionListener) OnState(st *game.State) {
	peers, live := l.s.peersFor(l.gen)
	if !live || len(peers) == 0 {
		return
	}
	data, err := EncodeState(st)
	if err != nil {
		l.s.log.Error("encode state", "err", err)
		return
	}
	for _, p := range peers {
		p.SendBinary(data)
	}
}

func (l *sessionListener) OnClaim(c game.ClaimedArea) {
	s := l.s
	deps := s.m.deps
	msg := claimMsg(c)
	l.broadcast(Envelope{T: MsgClaim, Data: msg})

	runner := s.runnerAccount(c.OwnerID)
	deps.Analytics.Track(EvtClaim, runner, s.ID, "")
	evt := s.busEvent(EvtClaim, c.ClaimedAt, msg)
	deps.Recorder.Enqueue("claim", func(ctx context.Context) error {
		var err error
		if deps.DB != nil {
			err = deps.DB.RecordClaim(s.ID, runner, c)
		}
		return errors.Join(err, deps.Publisher.Publish(ctx, TopicClaims, evt))
	})
}

func (l *sessionListener) OnCut(c game.Cut) {
	s := l.s
	deps := s.m.deps
	msg := cutMsg(c)
	l.broadcast(Envelope{T: MsgCut, Data: msg})

	attacker, victim := s.runnerAccount(c.AttackerID), s.runnerAccount(c.VictimID)
	deps.Analytics.Track(EvtCut, attacker, s.ID, "")
	evt := s.busEvent(EvtCut, c.At.Time, msg)
	deps.Recorder.Enqueue("cut", func(ctx context.Context) error {
		var err error
		if deps.DB != nil {
			err = deps.DB.RecordCut(s.ID, c, attacker, victim)
		}
		return errors.Join(err, deps.Publisher.Publish(ctx, TopicCuts, evt))
	})
}

func (l *sessionListener) OnEnd(sum game.Summary) {
	s := l.s
	deps := s.m.deps

	var res game.Result
	var found bool
	for _, r := range sum.Results {
		if r.AgentID == runnerAgentID {
			res, found = r, true
			break
		}
	}
	msg := &EndedMsg{
		Reason:     string(sum.Reason),
		ElapsedSec: sum.Elapsed.Seconds(),
		Results:    sum.Results,
		Score:      SessionScore(res),
	}

	s.mu.Lock()
	live := l.gen == s.gen
	if live {
		s.ended = msg
		s.lastActive = time.Now()
	}
	s.mu.Unlock()
	if live {
		l.broadcast(Envelope{T: MsgEnded, Data: msg})
	}

	deps.Analytics.Track(EvtSessionEnd, s.OwnerID, s.ID, "")
	endedAt := time.Now()
	evt := s.busEvent(EvtSessionEnd, endedAt, msg)
	deps.Recorder.Enqueue("session end", func(ctx context.Context) error {
		var errs []error
		if deps.DB != nil {
			errs = append(errs, deps.DB.RecordSessionEnd(s.ID, sum.Reason, sum.Elapsed, endedAt))
			if s.OwnerID != 0 && found {
				_, err := deps.DB.BankResult(s.OwnerID, res)
				errs = append(errs, err)
			}
		}
		errs = append(errs,
			deps.Publisher.Publish(ctx, TopicSessions, evt),
			deps.Archiver.Archive(ctx, sum),
		)
		return errors.Join(errs...)
	})
}
