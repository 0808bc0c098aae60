package main

import (
	"testing"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerAccounts(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateRunner("ana", "hash")
	require.NoError(t, err)
	assert.Positive(t, id)

	r, err := db.GetRunnerByUsername("ana")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "hash", r.PassHash)

	missing, err := db.GetRunnerByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := db.UsernameExists("ana")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = db.CreateRunner("ana", "other")
	assert.Error(t, err, "usernames are unique")

	stats, err := db.GetStats(id)
	require.NoError(t, err)
	assert.Equal(t, StatsRow{RunnerID: id}, *stats)
}

func square(side float64) game.ClaimedArea {
	d := side * degPerMeter
	return game.ClaimedArea{
		Polygon: []game.RoutePoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: d}, {Lat: d, Lng: d}, {Lat: d, Lng: 0}},
		Color:   "#00FF00",
		AreaM2:  side * side,
	}
}

func TestRecordClaimCreditsRunnerOnly(t *testing.T) {
	db := openTestDB(t)
	rid, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)
	require.NoError(t, db.RecordSessionStart("s1", "Loop", rid, base))

	mine := square(50)
	mine.ID, mine.OwnerID, mine.ClaimedAt = "c1", runnerAgentID, base
	require.NoError(t, db.RecordClaim("s1", rid, mine))

	bots := square(20)
	bots.ID, bots.OwnerID, bots.ClaimedAt = "c2", "bot-1", base.Add(time.Second)
	require.NoError(t, db.RecordClaim("s1", 0, bots))

	stats, err := db.GetStats(rid)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claims)
	assert.Equal(t, 2500.0, stats.TerritoryM2)

	claims, err := db.ClaimsByRunner(rid, 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	c := claims[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "s1", c.SessionID)
	assert.Equal(t, runnerAgentID, c.AgentID)
	assert.Equal(t, latLngs(mine.Polygon), c.Polygon)
	assert.True(t, c.ClaimedAt.Equal(base))
}

func TestRecordCutCreditsBothSides(t *testing.T) {
	db := openTestDB(t)
	ana, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)
	ben, err := db.CreateRunner("ben", "x")
	require.NoError(t, err)

	cut := game.Cut{AttackerID: runnerAgentID, VictimID: "bot-1", At: game.RoutePoint{Lat: 1, Lng: 2}, Tick: 9}
	require.NoError(t, db.RecordCut("s1", cut, ana, 0))
	require.NoError(t, db.RecordCut("s2", game.Cut{AttackerID: "bot-2", VictimID: runnerAgentID}, 0, ben))

	s, err := db.GetStats(ana)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CutsDealt)
	assert.Zero(t, s.CutsTaken)

	s, err = db.GetStats(ben)
	require.NoError(t, err)
	assert.Zero(t, s.CutsDealt)
	assert.Equal(t, 1, s.CutsTaken)
}

func TestCutHistory(t *testing.T) {
	db := openTestDB(t)
	ana, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)
	ben, err := db.CreateRunner("ben", "x")
	require.NoError(t, err)

	at := func(minute int, lat float64) game.RoutePoint {
		return game.RoutePoint{Lat: lat, Lng: 2, Time: base.Add(time.Duration(minute) * time.Minute)}
	}
	require.NoError(t, db.RecordCut("s1", game.Cut{AttackerID: runnerAgentID, VictimID: "bot-1", At: at(1, 1), Tick: 5}, ana, 0))
	require.NoError(t, db.RecordCut("s2", game.Cut{AttackerID: "bot-2", VictimID: runnerAgentID, At: at(2, 2), Tick: 8}, 0, ana))
	require.NoError(t, db.RecordCut("s3", game.Cut{AttackerID: "bot-1", VictimID: "bot-3", At: at(3, 3), Tick: 2}, 0, 0))
	require.NoError(t, db.RecordCut("s4", game.Cut{AttackerID: runnerAgentID, VictimID: "bot-4", At: at(4, 4), Tick: 1}, ben, 0))

	mine, err := db.CutsByRunner(ana, 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "s2", mine[0].SessionID, "newest first")
	assert.False(t, mine[0].Dealt)
	assert.Equal(t, "s1", mine[1].SessionID)
	assert.True(t, mine[1].Dealt)
	assert.Equal(t, uint64(5), mine[1].Tick)
	assert.Equal(t, 1.0, mine[1].Lat)
	assert.True(t, mine[1].CutAt.Equal(base.Add(time.Minute)))

	recent, err := db.RecentCuts(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"s4", "s3", "s2"}, []string{recent[0].SessionID, recent[1].SessionID, recent[2].SessionID})
	for _, c := range recent {
		assert.False(t, c.Dealt)
	}

	none, err := db.CutsByRunner(999, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionsByRunner(t *testing.T) {
	db := openTestDB(t)
	ana, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)

	require.NoError(t, db.RecordSessionStart("s1", "Morning", ana, base))
	require.NoError(t, db.RecordSessionEnd("s1", game.EndStopped, 30*time.Minute, base.Add(30*time.Minute)))
	require.NoError(t, db.RecordSessionStart("s2", "Evening", ana, base.Add(time.Hour)))
	require.NoError(t, db.RecordSessionStart("s3", "Guest", 0, base.Add(2*time.Hour)))

	rows, err := db.SessionsByRunner(ana, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "s2", rows[0].ID)
	assert.Nil(t, rows[0].EndedAt, "still running")
	assert.Empty(t, rows[0].EndReason)

	assert.Equal(t, "Morning", rows[1].Name)
	assert.True(t, rows[1].StartedAt.Equal(base))
	require.NotNil(t, rows[1].EndedAt)
	assert.True(t, rows[1].EndedAt.Equal(base.Add(30*time.Minute)))
	assert.Equal(t, "stopped", rows[1].EndReason)
	assert.Equal(t, 1800.0, rows[1].ElapsedS)
}

func TestSessionScore(t *testing.T) {
	tests := []struct {
		name string
		r    game.Result
		want int
	}{
		{"nothing", game.Result{}, 0},
		{"area only", game.Result{TerritoryM2: 2549}, 25},
		{"rounds half up", game.Result{TerritoryM2: 250}, 3},
		{"claims", game.Result{TerritoryM2: 2500, Claims: 1}, 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionScore(tt.r))
		})
	}
}

func TestBankResultAccumulates(t *testing.T) {
	db := openTestDB(t)
	rid, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)

	r := game.Result{AgentID: runnerAgentID, DistanceM: 1200, Calories: 72, TerritoryM2: 2500, Claims: 1}
	score, err := db.BankResult(rid, r)
	require.NoError(t, err)
	assert.Equal(t, 35, score)
	_, err = db.BankResult(rid, r)
	require.NoError(t, err)

	s, err := db.GetStats(rid)
	require.NoError(t, err)
	assert.Equal(t, 2400.0, s.DistanceM)
	assert.Equal(t, 144.0, s.Calories)
	assert.Equal(t, 2, s.Sessions)
	assert.Equal(t, 70, s.Score)
	assert.Zero(t, s.Claims, "claims are credited when they happen, not when banked")
}

func TestSessionLifecycleRows(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RecordSessionStart("s1", "Loop", 0, base))
	require.NoError(t, db.RecordSessionEnd("s1", game.EndTimeout, time.Hour, base.Add(time.Hour)))

	var reason string
	var elapsed float64
	require.NoError(t, db.conn.QueryRow("SELECT end_reason, elapsed_s FROM sessions WHERE id = ?", "s1").Scan(&reason, &elapsed))
	assert.Equal(t, "timeout", reason)
	assert.Equal(t, 3600.0, elapsed)

	// Restarting the same session reopens the row.
	require.NoError(t, db.RecordSessionStart("s1", "Loop", 0, base.Add(2*time.Hour)))
	require.NoError(t, db.conn.QueryRow("SELECT end_reason FROM sessions WHERE id = ?", "s1").Scan(&reason))
	assert.Empty(t, reason)
}

func TestLeaderboardOrdering(t *testing.T) {
	db := openTestDB(t)
	ana, err := db.CreateRunner("ana", "x")
	require.NoError(t, err)
	ben, err := db.CreateRunner("ben", "x")
	require.NoError(t, err)

	_, err = db.BankResult(ana, game.Result{DistanceM: 5000, TerritoryM2: 100})
	require.NoError(t, err)
	_, err = db.BankResult(ben, game.Result{DistanceM: 1000, TerritoryM2: 9000, Claims: 2})
	require.NoError(t, err)

	byDistance, err := db.GetLeaderboard("distance", 10)
	require.NoError(t, err)
	require.Len(t, byDistance, 2)
	assert.Equal(t, "ana", byDistance[0].Username)
	assert.Equal(t, 1, byDistance[0].Rank)
	assert.Equal(t, 5.0, byDistance[0].DistanceKm)

	byScore, err := db.GetLeaderboard("nonsense", 1)
	require.NoError(t, err)
	require.Len(t, byScore, 1)
	assert.Equal(t, "ben", byScore[0].Username)
	assert.Equal(t, 110, byScore[0].Score)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	assert.Empty(t, db.GetSetting("k"))
	require.NoError(t, db.SetSetting("k", "v1"))
	require.NoError(t, db.SetSetting("k", "v2"))
	assert.Equal(t, "v2", db.GetSetting("k"))
}
