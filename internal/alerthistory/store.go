// Package alerthistory persists alert lifecycle transitions to SQLite
// so stuck episodes can be reviewed after the fact.
package alerthistory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// Transition names for recorded alert events
const (
	TransitionCreated   = "created"
	TransitionEscalated = "escalated"
	TransitionResolved  = "resolved"
)

// Entry is one recorded alert transition
type Entry struct {
	ID                   int64
	AlertID              string
	RepositoryID         string
	RepositoryName       string
	SessionID            string
	Reason               domain.StuckReason
	Severity             domain.Severity
	Transition           string
	StuckDurationSeconds int
	Acknowledged         bool
	RecordedAt           time.Time
}

// Store provides SQLite-backed alert history persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one alert transition
func (s *Store) Record(transition string, alert *domain.StuckAlert) error {
	_, err := s.db.Exec(`
		INSERT INTO alert_events (alert_id, repository_id, repository_name, session_id, reason, severity, transition, stuck_duration_seconds, acknowledged, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		alert.ID,
		alert.RepositoryID,
		alert.RepositoryName,
		alert.SessionID,
		string(alert.Reason),
		string(alert.Severity),
		transition,
		alert.StuckDurationSeconds,
		alert.Acknowledged,
		time.Now().UTC(),
	)
	return err
}

// ListByRepository returns all recorded transitions for one repository,
// newest first
func (s *Store) ListByRepository(repoID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, alert_id, repository_id, repository_name, session_id, reason, severity, transition, stuck_duration_seconds, acknowledged, recorded_at
		FROM alert_events WHERE repository_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?
	`, repoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByAlert returns the full transition trail of one episode, oldest
// first
func (s *Store) ListByAlert(alertID string) ([]*Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, alert_id, repository_id, repository_name, session_id, reason, severity, transition, stuck_duration_seconds, acknowledged, recorded_at
		FROM alert_events WHERE alert_id = ?
		ORDER BY recorded_at ASC, id ASC
	`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Prune deletes entries recorded before the cutoff and reports how many
// were removed
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alert_events WHERE recorded_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var reason, severity string
		if err := rows.Scan(&e.ID, &e.AlertID, &e.RepositoryID, &e.RepositoryName, &e.SessionID,
			&reason, &severity, &e.Transition, &e.StuckDurationSeconds, &e.Acknowledged, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Reason = domain.StuckReason(reason)
		e.Severity = domain.Severity(severity)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
