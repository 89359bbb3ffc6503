// Package store keeps an append-only log of tracking sessions in SQLite.
// The log is an audit record; nothing in the pipeline reads it back.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/DaniruKun/steady-tracker/tracker"
)

var ErrUnknownSession = errors.New("unknown session")

// Session is one run of the pipeline over a source.
type Session struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	StartedAt int64  `json:"started_at_ns"`
	EndedAt   *int64 `json:"ended_at_ns,omitempty"`
	Totals    Totals `json:"totals"`
}

// Totals are the counters recorded when a session ends.
type Totals struct {
	Frames    int64 `json:"frames"`
	Degraded  int64 `json:"degraded"`
	Created   int   `json:"created"`
	Confirmed int   `json:"confirmed"`
	Lost      int   `json:"lost"`
	Dropped   int   `json:"dropped"`
}

// TotalsFrom builds Totals from tracker counters.
func TotalsFrom(frames, degraded int64, stats tracker.Stats) Totals {
	return Totals{
		Frames:    frames,
		Degraded:  degraded,
		Created:   stats.Created,
		Confirmed: stats.Confirmed,
		Lost:      stats.Lost,
		Dropped:   stats.Dropped,
	}
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at_ns INTEGER NOT NULL,
		ended_at_ns INTEGER,
		frames INTEGER DEFAULT 0,
		degraded INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		confirmed INTEGER DEFAULT 0,
		lost INTEGER DEFAULT 0,
		dropped INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS frames (
		session_id TEXT NOT NULL,
		frame INTEGER NOT NULL,
		observations INTEGER NOT NULL,
		live_tracks INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		PRIMARY KEY (session_id, frame),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS track_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		frame INTEGER NOT NULL,
		track_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_track_events_session ON track_events(session_id, frame);
	CREATE INDEX IF NOT EXISTS idx_track_events_track ON track_events(session_id, track_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// BeginSession registers a new session for source.
func (s *Store) BeginSession(source string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := Session{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now().UnixNano(),
	}
	_, err := s.db.Exec(`INSERT INTO sessions (session_id, source, started_at_ns) VALUES (?, ?, ?)`,
		session.ID, session.Source, session.StartedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// RecordSnapshot stores the frame row and lifecycle events of one snapshot
// in a single transaction.
func (s *Store) RecordSnapshot(sessionID string, snap tracker.Snapshot) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`INSERT INTO frames (session_id, frame, observations, live_tracks, degraded) VALUES (?, ?, ?, ?, ?)`,
		sessionID, snap.Frame, snap.Observations, len(snap.Tracks), snap.Degraded)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", snap.Frame, err)
	}

	if len(snap.Events) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO track_events (session_id, frame, track_id, kind, x, y) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range snap.Events {
			if _, err := stmt.Exec(sessionID, e.Frame, e.TrackID, string(e.Kind), e.Center.X, e.Center.Y); err != nil {
				return fmt.Errorf("insert event for track %d: %w", e.TrackID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit frame %d: %w", snap.Frame, err)
	}
	return nil
}

// EndSession stamps the end time and totals of a session.
func (s *Store) EndSession(sessionID string, totals Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE sessions
		SET ended_at_ns = ?, frames = ?, degraded = ?, created = ?, confirmed = ?, lost = ?, dropped = ?
		WHERE session_id = ?`,
		time.Now().UnixNano(), totals.Frames, totals.Degraded,
		totals.Created, totals.Confirmed, totals.Lost, totals.Dropped, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return nil
}

// Session returns a stored session by id.
func (s *Store) Session(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		session Session
		ended   sql.NullInt64
	)
	row := s.db.QueryRow(`
		SELECT session_id, source, started_at_ns, ended_at_ns, frames, degraded, created, confirmed, lost, dropped
		FROM sessions WHERE session_id = ?`, sessionID)
	err := row.Scan(&session.ID, &session.Source, &session.StartedAt, &ended,
		&session.Totals.Frames, &session.Totals.Degraded, &session.Totals.Created,
		&session.Totals.Confirmed, &session.Totals.Lost, &session.Totals.Dropped)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	if ended.Valid {
		session.EndedAt = &ended.Int64
	}
	return session, nil
}

// Events returns the lifecycle events of a session in recording order.
func (s *Store) Events(sessionID string) ([]tracker.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT frame, track_id, kind, x, y FROM track_events
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []tracker.Event
	for rows.Next() {
		var (
			e    tracker.Event
			kind string
		)
		if err := rows.Scan(&e.Frame, &e.TrackID, &kind, &e.Center.X, &e.Center.Y); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = tracker.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
