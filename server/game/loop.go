package game

// DetectLoop looks for the newest trail point returning near an earlier point.
// It scans backward from len-MinLoopSize-1, skipping the agent's own recent
// tail, and returns the first index within ClosureThreshold of the newest
// point. Trails of MinTrailForLoop points or fewer never report a loop.
func DetectLoop(trail []RoutePoint, cfg Config) (int, bool) {
	n := len(trail)
	if n <= cfg.MinTrailForLoop {
		return 0, false
	}
	newest := trail[n-1]
	for i := n - cfg.MinLoopSize - 1; i >= 0; i-- {
		if Distance(trail[i], newest) < cfg.ClosureThreshold {
			return i, true
		}
	}
	return 0, false
}

// distinctPoints counts points with distinct coordinates, stopping at limit.
func distinctPoints(ring []RoutePoint, limit int) int {
	type key struct{ lat, lng float64 }
	seen := make(map[key]struct{}, limit)
	for _, p := range ring {
		seen[key{p.Lat, p.Lng}] = struct{}{}
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

// claimLoop builds a ClaimedArea from the agent's trail when it closes a loop.
// The polygon is copied so later trail appends and evictions never reach it.
func claimLoop(a *Agent, cfg Config) (ClaimedArea, bool) {
	start, ok := DetectLoop(a.Trail, cfg)
	if !ok {
		return ClaimedArea{}, false
	}
	ring := make([]RoutePoint, len(a.Trail)-start)
	copy(ring, a.Trail[start:])
	if distinctPoints(ring, 3) < 3 {
		return ClaimedArea{}, false
	}
	return ClaimedArea{
		OwnerID: a.ID,
		Polygon: ring,
		Color:   a.Color,
		AreaM2:  PolygonArea(ring),
	}, true
}
