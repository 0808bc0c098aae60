package game_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/chandan989/StrideOn/server/game/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const degPerMeter = 180 / (math.Pi * game.EarthRadius)

var base = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

func quietConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.BotCount = 0
	return cfg
}

func newSim(t *testing.T, cfg game.Config, l game.Listener, opts ...game.Option) *game.Sim {
	t.Helper()
	opts = append([]game.Option{game.WithClock(func() time.Time { return base })}, opts...)
	s, err := game.New(cfg, l, opts...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

// squareFixes walks a 50 m square near (0, 0) in 12 evenly spaced fixes.
func squareFixes() [][2]float64 {
	var out [][2]float64
	for k := range 12 {
		s := float64(k) * 200 / 12
		var n, e float64
		switch {
		case s <= 50:
			e = s
		case s <= 100:
			e, n = 50, s-50
		case s <= 150:
			e, n = 150-s, 50
		default:
			n = 200 - s
		}
		out = append(out, [2]float64{n * degPerMeter, e * degPerMeter})
	}
	return out
}

type endRecorder struct {
	game.NopListener
	ends chan game.Summary
}

func newEndRecorder() *endRecorder {
	return &endRecorder{ends: make(chan game.Summary, 1)}
}

func (r *endRecorder) OnEnd(s game.Summary) { r.ends <- s }

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.MaxTrailPoints = 0
	_, err := game.New(cfg, nil)
	assert.Error(t, err)

	_, err = game.New(game.DefaultConfig(), nil, game.WithPlayers("a", "a"))
	assert.Error(t, err)
}

func TestNewRejectsNonFiniteConfig(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*game.Config)
	}{
		{"closure threshold NaN", func(c *game.Config) { c.ClosureThreshold = math.NaN() }},
		{"closure threshold Inf", func(c *game.Config) { c.ClosureThreshold = math.Inf(1) }},
		{"min sample NaN", func(c *game.Config) { c.MinSampleDistance = math.NaN() }},
		{"bot min speed NaN", func(c *game.Config) { c.BotMinSpeed = math.NaN() }},
		{"bot max speed NaN", func(c *game.Config) { c.BotMaxSpeed = math.NaN() }},
		{"calories Inf", func(c *game.Config) { c.CaloriesPerMeter = math.Inf(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := game.DefaultConfig()
			tt.mut(&cfg)
			assert.ErrorContains(t, cfg.Validate(), "must be finite")
			_, err := game.New(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestStartPublishesInitialState(t *testing.T) {
	s, err := game.New(quietConfig(), nil, game.WithSessionID("s1"))
	require.NoError(t, err)
	assert.Nil(t, s.Snapshot())
	assert.ErrorIs(t, s.SubmitPosition(game.DefaultPlayerID, 0, 0, base), game.ErrNotRunning)

	require.NoError(t, s.Start())
	st := s.Snapshot()
	require.NotNil(t, st)
	assert.Equal(t, "s1", st.Session)
	assert.True(t, st.Running)
	assert.Equal(t, []string{game.DefaultPlayerID}, st.Order)
	assert.Equal(t, time.Hour, st.Remaining)

	assert.ErrorIs(t, s.Start(), game.ErrStarted)
}

func TestSubmitPositionRejectsBadInput(t *testing.T) {
	s := newSim(t, quietConfig(), nil, game.WithPlayers("runner"))

	assert.ErrorIs(t, s.SubmitPosition("ghost", 0, 0, base), game.ErrUnknownAgent)
	assert.ErrorIs(t, s.SubmitPosition("runner", math.NaN(), 0, base), game.ErrNonFinite)
	assert.ErrorIs(t, s.SubmitPosition("runner", 0, math.Inf(1), base), game.ErrNonFinite)

	require.NoError(t, s.SubmitPosition("runner", 0, 0, base.Add(2*time.Second)))
	assert.ErrorIs(t, s.SubmitPosition("runner", 0, 0, base.Add(time.Second)), game.ErrStaleFix)

	s.Tick()
	assert.ErrorIs(t, s.SubmitPosition("runner", 1, 1, base.Add(2*time.Second)), game.ErrStaleFix)
	assert.NoError(t, s.SubmitPosition("runner", 1, 1, base.Add(3*time.Second)))
}

func TestSubmitPositionLatestWins(t *testing.T) {
	s := newSim(t, quietConfig(), nil)
	for i := range 3 {
		require.NoError(t, s.SubmitPosition(game.DefaultPlayerID, 0, float64(i)*1e-3, base.Add(time.Duration(i)*time.Second)))
	}
	require.True(t, s.Tick())

	p, ok := s.Snapshot().Agent(game.DefaultPlayerID)
	require.True(t, ok)
	require.Len(t, p.Trail, 1)
	assert.Equal(t, 2e-3, p.Trail[0].Lng)

	// Nothing new buffered: the next tick leaves the trail alone.
	s.Tick()
	p, _ = s.Snapshot().Agent(game.DefaultPlayerID)
	assert.Len(t, p.Trail, 1)
}

func TestBotsSpawnAroundFirstFix(t *testing.T) {
	cfg := game.DefaultConfig()
	s := newSim(t, cfg, nil)
	s.Tick()
	assert.Len(t, s.Snapshot().Order, 1, "no bots before the first fix")

	require.NoError(t, s.SubmitPosition(game.DefaultPlayerID, 12.97, 77.59, base))
	s.Tick()
	st := s.Snapshot()
	require.Equal(t, []string{game.DefaultPlayerID, "bot-1", "bot-2", "bot-3", "bot-4"}, st.Order)
	for i, id := range st.Order[1:] {
		b := st.Agents[id]
		assert.True(t, b.Bot)
		assert.Equal(t, cfg.BotColors[i], b.Color)
		require.Len(t, b.Trail, 1)
		assert.InDelta(t, 12.97, b.Trail[0].Lat, cfg.SpawnRadiusDeg)
		assert.InDelta(t, 77.59, b.Trail[0].Lng, cfg.SpawnRadiusDeg)
	}

	for range 200 {
		s.Tick()
	}
	for _, id := range s.Snapshot().Order[1:] {
		assert.Greater(t, len(s.Snapshot().Agents[id].Trail), 1, "bot %s should have moved", id)
	}
}

func TestBotsSpawnAtOrigin(t *testing.T) {
	s := newSim(t, game.DefaultConfig(), nil, game.WithOrigin(51.5, -0.12))
	assert.Len(t, s.Snapshot().Order, 5)
}

func TestClockSubRateAndTimeBudget(t *testing.T) {
	cfg := quietConfig()
	cfg.TimeBudget = 2 * time.Second
	rec := newEndRecorder()
	s := newSim(t, cfg, rec)
	require.NoError(t, s.SubmitPosition(game.DefaultPlayerID, 0, 0, base))

	for i := 1; i <= 4; i++ {
		require.True(t, s.Tick())
		assert.Zero(t, s.Snapshot().Elapsed, "tick %d", i)
	}
	require.True(t, s.Tick())
	assert.Equal(t, time.Second, s.Snapshot().Elapsed)
	assert.Equal(t, time.Second, s.Snapshot().Remaining)

	for range 5 {
		s.Tick()
	}
	st := s.Snapshot()
	assert.False(t, st.Running)
	assert.Zero(t, st.Remaining)
	assert.Equal(t, game.StatusCompleted, st.Agents[game.DefaultPlayerID].Status)
	assert.False(t, s.Tick(), "no ticks after the budget runs out")

	select {
	case sum := <-rec.ends:
		assert.Equal(t, game.EndTimeout, sum.Reason)
		assert.Equal(t, 2*time.Second, sum.Elapsed)
	default:
		t.Fatal("OnEnd not called")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

type reentrant struct {
	game.NopListener
	sim    *game.Sim
	nested []bool
}

func (r *reentrant) OnState(*game.State) {
	if r.sim != nil {
		r.nested = append(r.nested, r.sim.Tick())
	}
}

func TestTickIsNotReentrant(t *testing.T) {
	l := &reentrant{}
	s := newSim(t, quietConfig(), l)
	l.sim = s

	require.True(t, s.Tick())
	require.True(t, s.Tick())
	assert.Equal(t, []bool{false, false}, l.nested)
	assert.Equal(t, uint64(2), s.Snapshot().Tick)
}

func TestSquareRunClaimsTerritory(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mocks.NewMockListener(ctrl)
	l.EXPECT().OnState(gomock.Any()).AnyTimes()
	l.EXPECT().OnClaim(gomock.Cond(func(c game.ClaimedArea) bool {
		return c.OwnerID == "runner" && len(c.Polygon) == 12 && c.ID != "" && c.ClaimedAt.Equal(base)
	})).Times(1)
	l.EXPECT().OnEnd(gomock.Any()).Do(func(sum game.Summary) {
		assert.Equal(t, game.EndStopped, sum.Reason)
		require.Len(t, sum.Results, 1)
		assert.Equal(t, 1, sum.Results[0].Claims)
		assert.InDelta(t, 2500, sum.Results[0].TerritoryM2, 25)
	}).Times(1)

	s := newSim(t, quietConfig(), l, game.WithPlayers("runner"))
	for i, f := range squareFixes() {
		require.NoError(t, s.SubmitPosition("runner", f[0], f[1], base.Add(time.Duration(i)*time.Second)))
		require.True(t, s.Tick())
	}

	st := s.Snapshot()
	require.Len(t, st.ClaimedAreas, 1)
	assert.Len(t, st.Agents["runner"].Trail, 12)
	assert.InDelta(t, 0.18333, st.Totals.DistanceKm, 1e-3)
	assert.InDelta(t, 11.0, st.Totals.Calories, 0.05)
	assert.InDelta(t, 0.0025, st.Totals.TerritoryKm2, 2.5e-5)

	s.End()
	s.End()
	assert.False(t, s.Running())
}

func TestPlayersCutEachOther(t *testing.T) {
	rec := newEndRecorder()
	s := newSim(t, quietConfig(), rec, game.WithPlayers("a", "b"))

	require.NoError(t, s.SubmitPosition("a", 0, 0, base))
	require.NoError(t, s.SubmitPosition("b", -1e-4, 1e-4, base))
	s.Tick()
	require.NoError(t, s.SubmitPosition("a", 0, 2e-4, base.Add(time.Second)))
	require.NoError(t, s.SubmitPosition("b", 1e-4, 1e-4, base.Add(time.Second)))
	s.Tick()

	st := s.Snapshot()
	assert.Equal(t, game.StatusCut, st.Agents["b"].Status)
	assert.Len(t, st.Agents["b"].Trail, 1)
	assert.Equal(t, game.StatusActive, st.Agents["a"].Status)
	assert.Len(t, st.Agents["a"].Trail, 2)

	s.End()
	sum := <-rec.ends
	require.Len(t, sum.Results, 2)
	assert.Equal(t, 1, sum.Results[0].CutsDealt)
	assert.Equal(t, 1, sum.Results[1].CutsTaken)
	assert.Equal(t, game.StatusCut, sum.Final.Agents["b"].Status, "a cut agent stays cut at the end")
	assert.Equal(t, game.StatusCompleted, sum.Final.Agents["a"].Status)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := newSim(t, quietConfig(), nil)
	require.NoError(t, s.SubmitPosition(game.DefaultPlayerID, 0, 0, base))
	s.Tick()
	before := s.Snapshot()

	require.NoError(t, s.SubmitPosition(game.DefaultPlayerID, 0, 1e-3, base.Add(time.Second)))
	s.Tick()

	assert.Len(t, before.Agents[game.DefaultPlayerID].Trail, 1)
	assert.Len(t, s.Snapshot().Agents[game.DefaultPlayerID].Trail, 2)
	assert.NotSame(t, before, s.Snapshot())
}

type endCaller struct {
	game.NopListener
	ended  bool
	states int
}

func (l *endCaller) OnState(*game.State) { l.states++ }
func (l *endCaller) OnEnd(game.Summary)  { l.ended = true }

// Without Run, End delivers the final callbacks before it returns.
func TestEndCallsListenerOnCaller(t *testing.T) {
	l := &endCaller{}
	s := newSim(t, quietConfig(), l)
	require.True(t, s.Tick())
	before := l.states

	s.End()
	assert.True(t, l.ended)
	assert.Equal(t, before+1, l.states)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRunStopsOnEnd(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.TickInterval = time.Millisecond
	rec := newEndRecorder()
	s := newSim(t, cfg, rec, game.WithOrigin(0, 0))

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return s.Snapshot().Tick > 10 }, time.Second, time.Millisecond)
	s.End()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	sum := <-rec.ends
	assert.Equal(t, game.EndStopped, sum.Reason)
	assert.False(t, sum.Final.Running)
}

func TestRunEndsOnCancel(t *testing.T) {
	cfg := quietConfig()
	cfg.TickInterval = time.Millisecond
	rec := newEndRecorder()
	s := newSim(t, cfg, rec)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	cancel()

	require.NoError(t, <-errc)
	assert.Equal(t, game.EndCanceled, (<-rec.ends).Reason)
	assert.ErrorIs(t, s.Run(context.Background()), game.ErrNotRunning)
}
