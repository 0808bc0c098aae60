package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// RunnerRow represents a runner account
type RunnerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents lifetime runner stats
type StatsRow struct {
	RunnerID    int64
	DistanceM   float64
	Calories    float64
	TerritoryM2 float64
	Claims      int
	CutsDealt   int
	CutsTaken   int
	Sessions    int
	Score       int
}

// ClaimRow is one persisted territory claim
type ClaimRow struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	AgentID   string       `json:"agent_id"`
	Color     string       `json:"color"`
	AreaM2    float64      `json:"area_m2"`
	Polygon   [][2]float64 `json:"polygon"`
	ClaimedAt time.Time    `json:"claimed_at"`
}

// CutRow is one persisted trail cut
type CutRow struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	AttackerID string    `json:"attacker"`
	VictimID   string    `json:"victim"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Tick       uint64    `json:"tick"`
	CutAt      time.Time `json:"cut_at"`
	// Dealt is set when listing a runner's cuts: true when the runner was the attacker.
	Dealt bool `json:"dealt,omitempty"`
}

// SessionRow is one recorded session
type SessionRow struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	ElapsedS  float64    `json:"elapsed_s"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL lets the analytics writer and request handlers overlap
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		runner_id INTEGER PRIMARY KEY REFERENCES runners(id),
		distance_m REAL NOT NULL DEFAULT 0,
		calories REAL NOT NULL DEFAULT 0,
		territory_m2 REAL NOT NULL DEFAULT 0,
		claims INTEGER NOT NULL DEFAULT 0,
		cuts_dealt INTEGER NOT NULL DEFAULT 0,
		cuts_taken INTEGER NOT NULL DEFAULT 0,
		sessions INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		owner_id INTEGER,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		end_reason TEXT NOT NULL DEFAULT '',
		elapsed_s REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		runner_id INTEGER,
		agent_id TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		area_m2 REAL NOT NULL DEFAULT 0,
		polygon TEXT NOT NULL,
		claimed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cuts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		attacker_id TEXT NOT NULL,
		victim_id TEXT NOT NULL,
		attacker_runner INTEGER,
		victim_runner INTEGER,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		tick INTEGER NOT NULL,
		cut_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		runner_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_runner ON claims(runner_id);
	CREATE INDEX IF NOT EXISTS idx_cuts_session ON cuts(session_id);
	CREATE INDEX IF NOT EXISTS idx_cuts_attacker ON cuts(attacker_runner);
	CREATE INDEX IF NOT EXISTS idx_cuts_victim ON cuts(victim_runner);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRunner creates a runner account (returns runner ID)
func (db *DB) CreateRunner(username, passHash string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO runners (username, pass_hash) VALUES (?, ?)", username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (runner_id) VALUES (?)", id)
	return id, err
}

// GetRunnerByUsername returns a runner by username, or nil
func (db *DB) GetRunnerByUsername(username string) (*RunnerRow, error) {
	row := db.conn.QueryRow("SELECT id, username, pass_hash, created_at FROM runners WHERE username = ?", username)
	r := &RunnerRow{}
	err := row.Scan(&r.ID, &r.Username, &r.PassHash, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM runners WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns runner stats, or nil
func (db *DB) GetStats(runnerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(`SELECT runner_id, distance_m, calories, territory_m2, claims, cuts_dealt, cuts_taken, sessions, score
		FROM stats WHERE runner_id = ?`, runnerID)
	s := &StatsRow{}
	err := row.Scan(&s.RunnerID, &s.DistanceM, &s.Calories, &s.TerritoryM2, &s.Claims, &s.CutsDealt, &s.CutsTaken, &s.Sessions, &s.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// RecordSessionStart inserts the session row
func (db *DB) RecordSessionStart(id, name string, ownerID int64, startedAt time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO sessions (id, name, owner_id, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, ended_at = NULL, end_reason = ''`,
		id, name, nullID(ownerID), startedAt.UTC(),
	)
	return err
}

// RecordSessionEnd stamps the end of a session
func (db *DB) RecordSessionEnd(id string, reason game.EndReason, elapsed time.Duration, endedAt time.Time) error {
	_, err := db.conn.Exec("UPDATE sessions SET ended_at = ?, end_reason = ?, elapsed_s = ? WHERE id = ?",
		endedAt.UTC(), string(reason), elapsed.Seconds(), id)
	return err
}

// RecordClaim stores a claim and credits the owning runner, if any
func (db *DB) RecordClaim(sessionID string, runnerID int64, c game.ClaimedArea) error {
	poly, err := json.Marshal(latLngs(c.Polygon))
	if err != nil {
		return err
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO claims (id, session_id, runner_id, agent_id, color, area_m2, polygon, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, sessionID, nullID(runnerID), c.OwnerID, c.Color, c.AreaM2, string(poly), c.ClaimedAt.UTC(),
	); err != nil {
		return err
	}
	if runnerID > 0 {
		if _, err := tx.Exec("UPDATE stats SET claims = claims + 1, territory_m2 = territory_m2 + ? WHERE runner_id = ?",
			c.AreaM2, runnerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordCut stores a cut. attackerRunner/victimRunner are the accounts behind
// the agents, zero for bots and guests.
func (db *DB) RecordCut(sessionID string, c game.Cut, attackerRunner, victimRunner int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO cuts (session_id, attacker_id, victim_id, attacker_runner, victim_runner, lat, lng, tick, cut_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.AttackerID, c.VictimID, nullID(attackerRunner), nullID(victimRunner),
		c.At.Lat, c.At.Lng, c.Tick, c.At.Time.UTC(),
	); err != nil {
		return err
	}
	if attackerRunner > 0 {
		if _, err := tx.Exec("UPDATE stats SET cuts_dealt = cuts_dealt + 1 WHERE runner_id = ?", attackerRunner); err != nil {
			return err
		}
	}
	if victimRunner > 0 {
		if _, err := tx.Exec("UPDATE stats SET cuts_taken = cuts_taken + 1 WHERE runner_id = ?", victimRunner); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SessionScore is the banked score for one session result.
func SessionScore(r game.Result) int {
	return int(math.Round(r.TerritoryM2/100)) + r.Claims*10
}

// BankResult adds a finished session's distance, calories and score to the
// runner's lifetime stats. Claims and cuts were credited as they happened.
func (db *DB) BankResult(runnerID int64, r game.Result) (int, error) {
	score := SessionScore(r)
	_, err := db.conn.Exec(`
		UPDATE stats SET
			distance_m = distance_m + ?,
			calories = calories + ?,
			sessions = sessions + 1,
			score = score + ?
		WHERE runner_id = ?`,
		r.DistanceM, r.Calories, score, runnerID,
	)
	return score, err
}

// ClaimsByRunner returns the runner's most recent claims
func (db *DB) ClaimsByRunner(runnerID int64, limit int) ([]ClaimRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, agent_id, color, area_m2, polygon, claimed_at
		FROM claims WHERE runner_id = ?
		ORDER BY claimed_at DESC LIMIT ?`, runnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []ClaimRow{}
	for rows.Next() {
		var c ClaimRow
		var poly string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.AgentID, &c.Color, &c.AreaM2, &poly, &c.ClaimedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(poly), &c.Polygon); err != nil {
			return nil, fmt.Errorf("claim %s polygon: %w", c.ID, err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const cutColumns = "id, session_id, attacker_id, victim_id, lat, lng, tick, cut_at"

func scanCuts(rows *sql.Rows, runnerID int64) ([]CutRow, error) {
	defer rows.Close()
	result := []CutRow{}
	for rows.Next() {
		var c CutRow
		var attacker sql.NullInt64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.AttackerID, &c.VictimID, &c.Lat, &c.Lng, &c.Tick, &c.CutAt, &attacker); err != nil {
			return nil, err
		}
		c.Dealt = runnerID > 0 && attacker.Valid && attacker.Int64 == runnerID
		result = append(result, c)
	}
	return result, rows.Err()
}

// CutsByRunner returns the most recent cuts the runner dealt or took
func (db *DB) CutsByRunner(runnerID int64, limit int) ([]CutRow, error) {
	rows, err := db.conn.Query(`
		SELECT `+cutColumns+`, attacker_runner FROM cuts
		WHERE attacker_runner = ? OR victim_runner = ?
		ORDER BY cut_at DESC, id DESC LIMIT ?`, runnerID, runnerID, limit)
	if err != nil {
		return nil, err
	}
	return scanCuts(rows, runnerID)
}

// RecentCuts returns the latest cuts across all sessions
func (db *DB) RecentCuts(limit int) ([]CutRow, error) {
	rows, err := db.conn.Query(`
		SELECT `+cutColumns+`, attacker_runner FROM cuts
		ORDER BY cut_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanCuts(rows, 0)
}

// SessionsByRunner returns the sessions the runner owned, newest first
func (db *DB) SessionsByRunner(runnerID int64, limit int) ([]SessionRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, started_at, ended_at, end_reason, elapsed_s
		FROM sessions WHERE owner_id = ?
		ORDER BY started_at DESC LIMIT ?`, runnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []SessionRow{}
	for rows.Next() {
		var s SessionRow
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.StartedAt, &ended, &s.EndReason, &s.ElapsedS); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	Username    string  `json:"username"`
	Score       int     `json:"score"`
	TerritoryM2 float64 `json:"territory_m2"`
	DistanceKm  float64 `json:"distance_km"`
	Claims      int     `json:"claims"`
	CutsDealt   int     `json:"cuts_dealt"`
}

// GetLeaderboard returns top runners sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	validCols := map[string]string{
		"score": "s.score", "territory": "s.territory_m2", "distance": "s.distance_m",
		"claims": "s.claims", "cuts": "s.cuts_dealt",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "s.score"
	}

	query := `SELECT r.username, s.score, s.territory_m2, s.distance_m, s.claims, s.cuts_dealt
		FROM stats s JOIN runners r ON r.id = s.runner_id
		ORDER BY ` + col + ` DESC, r.username ASC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		var meters float64
		if err := rows.Scan(&e.Username, &e.Score, &e.TerritoryM2, &meters, &e.Claims, &e.CutsDealt); err != nil {
			return nil, err
		}
		e.DistanceKm = meters / 1000
		e.Rank = len(result) + 1
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetSetting returns a stored setting, or "" when unset
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
