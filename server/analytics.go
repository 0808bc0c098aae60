package main

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
	EvtRunnerJoin   = "runner_join"
	EvtViewerJoin   = "viewer_join"
	EvtClaim        = "claim"
	EvtCut          = "cut"
	EvtLogin        = "login"
)

const (
	analyticsBuffer     = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	RunnerID  int64
	SessionID string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	log    *slog.Logger
	events chan AnalyticsEvent

	mu             sync.RWMutex
	connectedPeers int
	activeSessions int
}

// NewAnalytics creates the tracker. Run starts the writer.
func NewAnalytics(db *DB, log *slog.Logger) *Analytics {
	return &Analytics{
		db:     db,
		log:    log,
		events: make(chan AnalyticsEvent, analyticsBuffer),
	}
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, runnerID int64, sessionID string, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		RunnerID:  runnerID,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// full: drop rather than stall a tick
	}
}

// SetConnectedPeers updates the live connection count
func (a *Analytics) SetConnectedPeers(n int) {
	a.mu.Lock()
	a.connectedPeers = n
	a.mu.Unlock()
}

// SetActiveSessions updates the live session count
func (a *Analytics) SetActiveSessions(n int) {
	a.mu.Lock()
	a.activeSessions = n
	a.mu.Unlock()
}

// LiveMetrics returns (connected peers, active sessions)
func (a *Analytics) LiveMetrics() (int, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connectedPeers, a.activeSessions
}

// Run batches events into the database until ctx is done, then drains
// whatever is still queued.
func (a *Analytics) Run(ctx context.Context) error {
	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return nil
				}
			}
		}
	}
}

func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		a.log.Error("analytics: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, runner_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		a.log.Error("analytics: prepare", "err", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, nullID(evt.RunnerID), sid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			a.log.Error("analytics: insert", "type", evt.Type, "err", err)
		}
	}
	if err := tx.Commit(); err != nil {
		a.log.Error("analytics: commit", "err", err)
	}
}

// DailyRunners returns the number of distinct runners active since midnight UTC
func (a *Analytics) DailyRunners() (int, error) {
	if a.db == nil {
		return 0, nil
	}
	var count int
	err := a.db.conn.QueryRow(`
		SELECT COUNT(DISTINCT runner_id) FROM analytics_events
		WHERE runner_id IS NOT NULL AND created_at >= date('now')
	`).Scan(&count)
	return count, err
}

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	result := make(map[string]int)
	if a.db == nil {
		return result, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
