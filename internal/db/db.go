// Package db records simulation sessions and their readouts in sqlite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

// ErrNoSession is returned by RecordReadout before StartSession is called.
var ErrNoSession = errors.New("no active session")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

type DB struct {
	*sql.DB

	mu      sync.Mutex
	session string
}

var _ sim.Sink = (*DB)(nil)

// OpenDB opens the database and applies connection pragmas without touching
// the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Session describes one recorded simulation run.
type Session struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	Algorithm    string    `json:"algorithm"`
	Emitter      string    `json:"emitter"`
	Seed         int64     `json:"seed"`
	SampleRateHz float64   `json:"sample_rate_hz"`
}

// StartSession inserts a session row and makes it the target of subsequent
// RecordReadout calls. It returns the generated session id.
func (db *DB) StartSession(cfg sim.Config, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at, algorithm, emitter, seed, sample_rate_hz)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, unixSeconds(startedAt), cfg.Algorithm.String(), cfg.Emitter.String(), cfg.Seed, cfg.SampleRate,
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	db.mu.Lock()
	db.session = id
	db.mu.Unlock()
	return id, nil
}

// ActiveSession returns the session readouts are recorded under.
func (db *DB) ActiveSession() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.session
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, started_at, algorithm, emitter, seed, sample_rate_hz
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started float64
		if err := rows.Scan(&s.SessionID, &started, &s.Algorithm, &s.Emitter, &s.Seed, &s.SampleRateHz); err != nil {
			return nil, err
		}
		s.StartedAt = fromUnixSeconds(started)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
