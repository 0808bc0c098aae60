package game

import (
	"errors"
	"fmt"
)

var (
	ErrNonFinite    = errors.New("non-finite coordinate")
	ErrStaleFix     = errors.New("fix is not newer than the previous one")
	ErrUnknownAgent = errors.New("unknown agent")
	ErrNotRunning   = errors.New("session is not running")
	ErrStarted      = errors.New("session already started")
)

// tracker turns raw position fixes into trail appends for one agent.
type tracker struct {
	agent *Agent
	cfg   *Config

	raw    RoutePoint // last accepted raw fix
	hasRaw bool
}

func newTracker(a *Agent, cfg *Config) *tracker {
	return &tracker{agent: a, cfg: cfg}
}

func validFix(p RoutePoint) error {
	if !isFinite(p.Lat) || !isFinite(p.Lng) {
		return fmt.Errorf("%w: (%v, %v)", ErrNonFinite, p.Lat, p.Lng)
	}
	return nil
}

// Move feeds one raw fix: the distance accumulator always advances, the trail
// only when the fix clears the sample gate. It reports whether a point was
// appended.
func (t *tracker) Move(p RoutePoint) (bool, error) {
	if err := validFix(p); err != nil {
		return false, err
	}
	if t.hasRaw && !p.Time.After(t.raw.Time) {
		return false, ErrStaleFix
	}
	if t.hasRaw {
		t.agent.Distance += Distance(t.raw, p)
	}
	t.raw = p
	t.hasRaw = true
	return t.Offer(p), nil
}

// Offer appends p when the trail is empty or p is more than MinSampleDistance
// from the newest point, then evicts from the front down to the cap.
func (t *tracker) Offer(p RoutePoint) bool {
	a := t.agent
	if last, ok := a.Last(); ok {
		if Distance(last, p) <= t.cfg.MinSampleDistance {
			return false
		}
		if !p.Time.After(last.Time) {
			return false
		}
	}
	a.Trail = append(a.Trail, p)
	if over := len(a.Trail) - t.cfg.MaxTrailPoints; over > 0 {
		a.Trail = append(a.Trail[:0], a.Trail[over:]...)
	}
	if len(a.Trail) > t.cfg.MaxTrailPoints {
		panic("game: trail exceeds MaxTrailPoints")
	}
	if a.Status == StatusCut {
		a.Status = StatusActive
	}
	return true
}
