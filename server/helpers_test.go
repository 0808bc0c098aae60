package main

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/stretchr/testify/require"
)

const degPerMeter = 180 / (math.Pi * game.EarthRadius)

var base = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

var quietLog = slog.New(slog.DiscardHandler)

// manualGameConfig never ticks on its own within a test; tests drive Tick.
func manualGameConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.BotCount = 0
	cfg.TickInterval = time.Hour
	return cfg
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// drainRecorder runs every queued job and returns.
func drainRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
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

// walkSquare submits the square one fix per tick.
func walkSquare(t *testing.T, s *Session) {
	t.Helper()
	sim := s.current()
	require.NotNil(t, sim)
	for k, f := range squareFixes() {
		require.NoError(t, s.SubmitPosition(f[0], f[1], base.Add(time.Duration(k)*time.Second)))
		require.True(t, sim.Tick())
	}
}

type fakePeer struct {
	mu     sync.Mutex
	msgs   []Envelope
	frames [][]byte
}

func (p *fakePeer) SendJSON(msg any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg.(Envelope))
}

func (p *fakePeer) SendBinary(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, data)
}

func (p *fakePeer) messages(kind string) []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Envelope
	for _, m := range p.msgs {
		if m.T == kind {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) frameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

type fakeArchiver struct {
	mu   sync.Mutex
	sums []game.Summary
}

func (a *fakeArchiver) Archive(_ context.Context, sum game.Summary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sums = append(a.sums, sum)
	return nil
}

func (a *fakeArchiver) archived() []game.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]game.Summary(nil), a.sums...)
}
