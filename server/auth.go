package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrRateLimited    = errors.New("too many login attempts, try again later")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrNoToken        = errors.New("missing bearer token")
)

// Auth handles runner accounts and tokens
type Auth struct {
	db        *DB
	jwtSecret []byte
	log       *slog.Logger

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB, log *slog.Logger) *Auth {
	return &Auth{
		db:        db,
		jwtSecret: loadOrCreateSecret(db, log),
		log:       log,
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB, log *slog.Logger) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Warn("could not persist JWT secret", "err", err)
		}
	}
	return secret
}

// Register creates a new account
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, "", fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if a.db == nil {
		return 0, "", errors.New("accounts are disabled")
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		return 0, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := a.db.CreateRunner(username, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("create runner: %w", err)
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", err
	}
	return id, token, nil
}

// Login authenticates a runner and returns a JWT
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrRateLimited
	}
	if a.db == nil {
		return 0, "", ErrBadCredentials
	}

	runner, err := a.db.GetRunnerByUsername(username)
	if err != nil {
		return 0, "", fmt.Errorf("load runner: %w", err)
	}
	if runner == nil || runner.PassHash == "" {
		return 0, "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(runner.PassHash), []byte(password)); err != nil {
		return 0, "", ErrBadCredentials
	}

	token, err := a.generateToken(runner.ID, runner.Username)
	if err != nil {
		return 0, "", err
	}
	return runner.ID, token, nil
}

// ValidateToken validates a JWT and returns (runnerID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	rid, ok := claims["rid"].(float64)
	if !ok {
		return 0, "", errors.New("invalid token claims")
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return 0, "", errors.New("invalid token claims")
	}
	return int64(rid), username, nil
}

// Authenticate validates the request's bearer token.
func (a *Auth) Authenticate(r *http.Request) (int64, string, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return 0, "", ErrNoToken
	}
	return a.ValidateToken(token)
}

func (a *Auth) generateToken(runnerID int64, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"rid": runnerID,
		"usr": username,
		"exp": now.Add(jwtExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
