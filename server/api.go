package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodyBytes       = 1 << 20
	defaultListLimit   = 20
	maxListLimit       = 100
	qrSize             = 256
	metricsHistoryDays = 7
)

// API serves the REST surface next to the websocket endpoint
type API struct {
	hub       *Hub
	validator *Validator
	recorder  *Recorder
	publicURL string
	log       *slog.Logger
}

// NewAPI builds the REST handlers.
func NewAPI(hub *Hub, recorder *Recorder, publicURL string, log *slog.Logger) (*API, error) {
	v, err := NewValidator(positionBatchSchema)
	if err != nil {
		return nil, err
	}
	return &API{
		hub:       hub,
		validator: v,
		recorder:  recorder,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		log:       log,
	}, nil
}

// Register mounts the API routes on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/healthz", a.health).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", a.listSessions).Methods("GET")
	api.HandleFunc("/sessions/mine", a.mySessions).Methods("GET")
	api.HandleFunc("/sessions/{id}/state", a.sessionState).Methods("GET")
	api.HandleFunc("/sessions/{id}/positions", a.submitPositions).Methods("POST")
	api.HandleFunc("/sessions/{id}/qr", a.sessionQR).Methods("GET")
	api.HandleFunc("/claims/mine", a.myClaims).Methods("GET")
	api.HandleFunc("/cuts/mine", a.myCuts).Methods("GET")
	api.HandleFunc("/cuts/recent", a.recentCuts).Methods("GET")
	api.HandleFunc("/leaderboard", a.leaderboard).Methods("GET")
	api.HandleFunc("/metrics", a.metrics).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) *Session {
	sess := a.hub.sessions.GetSession(mux.Vars(r)["id"])
	if sess == nil {
		writeError(w, http.StatusNotFound, ErrSessionNotFound.Error())
	}
	return sess
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": a.hub.sessions.Count(),
		"peers":    a.hub.ClientCount(),
	})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.hub.sessions.ListSessions())
}

func (a *API) sessionState(w http.ResponseWriter, r *http.Request) {
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	st := sess.Snapshot()
	if st == nil {
		writeError(w, http.StatusConflict, game.ErrNotRunning.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// positionsResult reports how a batch upload was applied. Buffered fixes
// share one pending slot, so only the newest of them reaches the next tick;
// Applied names that fix.
type positionsResult struct {
	Buffered int      `json:"buffered"`
	Applied  *PosMsg  `json:"applied,omitempty"`
	Stale    int      `json:"stale"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// submitPositions offers a batch of fixes in order. The simulation keeps
// only the newest pending fix per tick.
func (a *API) submitPositions(w http.ResponseWriter, r *http.Request) {
	rid, _, err := a.hub.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	if sess.OwnerID == 0 || sess.OwnerID != rid {
		writeError(w, http.StatusForbidden, ErrNotOwner.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if err := a.validator.ValidateBytes(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var batch PositionBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var res positionsResult
	for _, p := range batch.Positions {
		err := sess.SubmitPosition(p.Lat, p.Lng, p.Time())
		switch {
		case err == nil:
			res.Buffered++
			res.Applied = &p
		case errors.Is(err, game.ErrNotRunning):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, game.ErrStaleFix):
			res.Stale++
		default:
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// sessionQR renders the session join link as a PNG for the phone.
func (a *API) sessionQR(w http.ResponseWriter, r *http.Request) {
	sess := a.session(w, r)
	if sess == nil {
		return
	}
	base := a.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	png, err := qrcode.Encode(base+"/"+sess.ID, qrcode.Medium, qrSize)
	if err != nil {
		a.log.Error("qr encode", "session", sess.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "qr encode failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

func (a *API) myClaims(w http.ResponseWriter, r *http.Request) {
	rid, _, err := a.hub.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if a.hub.db == nil {
		writeJSON(w, http.StatusOK, []ClaimRow{})
		return
	}
	claims, err := a.hub.db.ClaimsByRunner(rid, queryLimit(r))
	if err != nil {
		a.log.Error("load claims", "runner", rid, "err", err)
		writeError(w, http.StatusInternalServerError, "load claims")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (a *API) mySessions(w http.ResponseWriter, r *http.Request) {
	rid, _, err := a.hub.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if a.hub.db == nil {
		writeJSON(w, http.StatusOK, []SessionRow{})
		return
	}
	sessions, err := a.hub.db.SessionsByRunner(rid, queryLimit(r))
	if err != nil {
		a.log.Error("load sessions", "runner", rid, "err", err)
		writeError(w, http.StatusInternalServerError, "load sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) myCuts(w http.ResponseWriter, r *http.Request) {
	rid, _, err := a.hub.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if a.hub.db == nil {
		writeJSON(w, http.StatusOK, []CutRow{})
		return
	}
	cuts, err := a.hub.db.CutsByRunner(rid, queryLimit(r))
	if err != nil {
		a.log.Error("load cuts", "runner", rid, "err", err)
		writeError(w, http.StatusInternalServerError, "load cuts")
		return
	}
	writeJSON(w, http.StatusOK, cuts)
}

func (a *API) recentCuts(w http.ResponseWriter, r *http.Request) {
	if a.hub.db == nil {
		writeJSON(w, http.StatusOK, []CutRow{})
		return
	}
	cuts, err := a.hub.db.RecentCuts(queryLimit(r))
	if err != nil {
		a.log.Error("load recent cuts", "err", err)
		writeError(w, http.StatusInternalServerError, "load cuts")
		return
	}
	writeJSON(w, http.StatusOK, cuts)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	if a.hub.db == nil {
		writeJSON(w, http.StatusOK, []LeaderboardEntry{})
		return
	}
	entries, err := a.hub.db.GetLeaderboard(r.URL.Query().Get("by"), queryLimit(r))
	if err != nil {
		a.log.Error("load leaderboard", "err", err)
		writeError(w, http.StatusInternalServerError, "load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) metrics(w http.ResponseWriter, r *http.Request) {
	peers, sessions := a.hub.analytics.LiveMetrics()
	daily, err := a.hub.analytics.DailyRunners()
	if err != nil {
		a.log.Warn("daily runners", "err", err)
	}
	counts, err := a.hub.analytics.EventCounts(metricsHistoryDays)
	if err != nil {
		a.log.Warn("event counts", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected_peers": peers,
		"active_sessions": sessions,
		"daily_runners":   daily,
		"events_7d":       counts,
		"recorder_queue":  a.recorder.Pending(),
	})
}
