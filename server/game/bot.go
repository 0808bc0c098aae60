package game

import (
	"math"
	"math/rand/v2"
	"time"
)

// bot drives one synthetic opponent. Its raw position keeps moving every tick;
// the trail only sees positions that clear the sample gate.
type bot struct {
	agent   *Agent
	tracker *tracker
	pos     RoutePoint
}

// spawnBot places a bot at a random offset within radius degrees of center,
// facing a random heading.
func spawnBot(id, color string, center RoutePoint, cfg *Config, rng *rand.Rand) *bot {
	a := &Agent{
		ID:      id,
		Bot:     true,
		Color:   color,
		Status:  StatusActive,
		Heading: NormalizeHeading(rng.Float64() * 360),
	}
	start := RoutePoint{
		Lat:     center.Lat + (rng.Float64()*2-1)*cfg.SpawnRadiusDeg,
		Lng:     center.Lng + (rng.Float64()*2-1)*cfg.SpawnRadiusDeg,
		Time:    center.Time,
		Session: center.Session,
	}
	b := &bot{agent: a, tracker: newTracker(a, cfg), pos: start}
	b.tracker.Move(start)
	return b
}

// steer perturbs the heading by up to ±jitter degrees, wrapped into [0, 360).
func (b *bot) steer(jitter float64, rng *rand.Rand) {
	b.agent.Heading = NormalizeHeading(b.agent.Heading + (rng.Float64()*2-1)*jitter)
}

// step advances the bot one tick and reports whether its trail grew.
// Heading is a map bearing: 0 is north, 90 is east.
func (b *bot) step(now time.Time, cfg *Config, rng *rand.Rand) bool {
	b.steer(cfg.BotTurnJitter, rng)
	speed := cfg.BotMinSpeed + rng.Float64()*(cfg.BotMaxSpeed-cfg.BotMinSpeed)
	rad := b.agent.Heading * math.Pi / 180
	lat, lng := offsetMeters(b.pos, math.Cos(rad)*speed, math.Sin(rad)*speed)

	next := RoutePoint{Lat: lat, Lng: lng, Time: now, Session: b.pos.Session}
	appended, err := b.tracker.Move(next)
	if err != nil {
		return false
	}
	b.pos = next
	return appended
}
