package game

import "math"

// bounds is an axis-aligned lat/lng box used to skip trails a head segment
// cannot reach.
type bounds struct {
	minLat, minLng, maxLat, maxLng float64
}

func emptyBounds() bounds {
	return bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}

func (b *bounds) add(p RoutePoint) {
	b.minLat = math.Min(b.minLat, p.Lat)
	b.minLng = math.Min(b.minLng, p.Lng)
	b.maxLat = math.Max(b.maxLat, p.Lat)
	b.maxLng = math.Max(b.maxLng, p.Lng)
}

func (b bounds) overlaps(o bounds) bool {
	return b.minLat <= o.maxLat && o.minLat <= b.maxLat &&
		b.minLng <= o.maxLng && o.minLng <= b.maxLng
}

func trailBounds(trail []RoutePoint) bounds {
	b := emptyBounds()
	for _, p := range trail {
		b.add(p)
	}
	return b
}

// crossesTrail reports whether segment h1-h2 crosses any consecutive segment of trail.
func crossesTrail(h1, h2 RoutePoint, trail []RoutePoint) bool {
	if len(trail) < 2 {
		return false
	}
	hb := emptyBounds()
	hb.add(h1)
	hb.add(h2)
	if !hb.overlaps(trailBounds(trail)) {
		return false
	}
	for k := 0; k+1 < len(trail); k++ {
		if SegmentsIntersect(h1, h2, trail[k], trail[k+1]) {
			return true
		}
	}
	return false
}

// CutTrails runs one cutting pass over agents in the given order and returns
// the cuts it applied. Every victim ends the pass with a single-point trail
// and StatusCut. An agent never cuts itself.
func CutTrails(agents []*Agent, policy CutPolicy, tick uint64) []Cut {
	if policy == CutSnapshot {
		return cutSnapshot(agents, tick)
	}
	return cutSequential(agents, tick)
}

func cutSequential(agents []*Agent, tick uint64) []Cut {
	var cuts []Cut
	for i, attacker := range agents {
		// An attacker cut earlier in the pass has a single point and no head.
		h1, h2, ok := attacker.Head()
		if !ok {
			continue
		}
		for j, victim := range agents {
			if i == j || attacker.ID == victim.ID {
				continue
			}
			if len(victim.Trail) < 2 {
				continue
			}
			if crossesTrail(h1, h2, victim.Trail) {
				last, _ := victim.Last()
				victim.resetTo(last)
				cuts = append(cuts, Cut{AttackerID: attacker.ID, VictimID: victim.ID, At: h2, Tick: tick})
			}
		}
	}
	return cuts
}

func cutSnapshot(agents []*Agent, tick uint64) []Cut {
	trails := make([][]RoutePoint, len(agents))
	for i, a := range agents {
		trails[i] = append([]RoutePoint(nil), a.Trail...)
	}

	hit := make([]int, len(agents)) // attacker index + 1 per victim
	for i, attacker := range agents {
		if len(trails[i]) < 2 {
			continue
		}
		heads := trails[i][len(trails[i])-2:]
		for j, victim := range agents {
			if i == j || attacker.ID == victim.ID || hit[j] != 0 {
				continue
			}
			if crossesTrail(heads[0], heads[1], trails[j]) {
				hit[j] = i + 1
			}
		}
	}

	var cuts []Cut
	for j, by := range hit {
		if by == 0 {
			continue
		}
		victim := agents[j]
		last := trails[j][len(trails[j])-1]
		victim.resetTo(last)
		at := trails[by-1][len(trails[by-1])-1]
		cuts = append(cuts, Cut{AttackerID: agents[by-1].ID, VictimID: victim.ID, At: at, Tick: tick})
	}
	return cuts
}
