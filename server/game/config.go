package game

import (
	"errors"
	"fmt"
	"time"
)

// CutPolicy selects how cuts found in one pass interact.
type CutPolicy uint8

const (
	// CutSequential applies each cut as soon as it is found, so attackers
	// later in the pass see already-truncated victims.
	CutSequential CutPolicy = iota
	// CutSnapshot detects every cut against the trails as they were when the
	// pass started and applies them afterwards.
	CutSnapshot
)

func (p CutPolicy) String() string {
	if p == CutSnapshot {
		return "snapshot"
	}
	return "sequential"
}

// ParseCutPolicy maps a config string to a CutPolicy.
func ParseCutPolicy(s string) (CutPolicy, error) {
	switch s {
	case "", "sequential":
		return CutSequential, nil
	case "snapshot":
		return CutSnapshot, nil
	}
	return CutSequential, fmt.Errorf("unknown cut policy %q", s)
}

// Config holds the simulation tuning for one session.
type Config struct {
	TickInterval      time.Duration
	ClockDivider      int           // ticks per clock step
	TimeBudget        time.Duration // zero disables the countdown
	MinSampleDistance float64       // meters
	MaxTrailPoints    int
	MinTrailForLoop   int
	MinLoopSize       int
	ClosureThreshold  float64 // meters
	CaloriesPerMeter  float64
	CutPolicy         CutPolicy

	BotCount       int
	BotTurnJitter  float64 // degrees per tick, symmetric
	BotMinSpeed    float64 // meters per tick
	BotMaxSpeed    float64
	SpawnRadiusDeg float64
	BotColors      []string
	PlayerColor    string
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:      200 * time.Millisecond,
		ClockDivider:      5,
		TimeBudget:        time.Hour,
		MinSampleDistance: 2.0,
		MaxTrailPoints:    500,
		MinTrailForLoop:   10,
		MinLoopSize:       10,
		ClosureThreshold:  20.0,
		CaloriesPerMeter:  0.06,
		CutPolicy:         CutSequential,

		BotCount:       4,
		BotTurnJitter:  15,
		BotMinSpeed:    1.5,
		BotMaxSpeed:    3.5,
		SpawnRadiusDeg: 0.009,
		BotColors:      []string{"#00FFFF", "#FF0000", "#FF00FF", "#FFFF00"},
		PlayerColor:    "#00FF00",
	}
}

var errInvalidConfig = errors.New("invalid game config")

// Validate reports the first setting that would break a simulation invariant.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"min sample distance", c.MinSampleDistance},
		{"closure threshold", c.ClosureThreshold},
		{"calories per meter", c.CaloriesPerMeter},
		{"bot turn jitter", c.BotTurnJitter},
		{"bot min speed", c.BotMinSpeed},
		{"bot max speed", c.BotMaxSpeed},
		{"spawn radius", c.SpawnRadiusDeg},
	} {
		if !isFinite(f.v) {
			return fmt.Errorf("%w: %s must be finite", errInvalidConfig, f.name)
		}
	}
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", errInvalidConfig)
	case c.ClockDivider <= 0:
		return fmt.Errorf("%w: clock divider must be positive", errInvalidConfig)
	case c.TimeBudget < 0:
		return fmt.Errorf("%w: time budget must not be negative", errInvalidConfig)
	case c.MaxTrailPoints < 2:
		return fmt.Errorf("%w: max trail points must be at least 2", errInvalidConfig)
	case c.MinSampleDistance < 0:
		return fmt.Errorf("%w: min sample distance must not be negative", errInvalidConfig)
	case c.MinLoopSize < 1 || c.MinTrailForLoop < 1:
		return fmt.Errorf("%w: loop sizes must be positive", errInvalidConfig)
	case c.ClosureThreshold <= 0:
		return fmt.Errorf("%w: closure threshold must be positive", errInvalidConfig)
	case c.BotCount < 0:
		return fmt.Errorf("%w: bot count must not be negative", errInvalidConfig)
	case c.BotCount > 0 && (c.BotMinSpeed < 0 || c.BotMaxSpeed < c.BotMinSpeed):
		return fmt.Errorf("%w: bot speed range is empty", errInvalidConfig)
	case c.BotCount > 0 && len(c.BotColors) == 0:
		return fmt.Errorf("%w: bots need at least one color", errInvalidConfig)
	}
	return nil
}
