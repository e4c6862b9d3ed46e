// Package archive keeps a durable transcript of every produced turn in
// SQLite. The snapshot file holds the live state machine; the archive
// is the append-only record that survives session deletion and powers
// replay.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/councild/councild/internal/council"
	"github.com/councild/councild/internal/session"
)

// Store is the transcript archive.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// New wraps an existing database handle, running migrations.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			phase INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_session
			ON transcript(session_id, seq);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one produced turn.
func (s *Store) Append(sessionID string, phase int, turn session.Turn) error {
	_, err := s.db.Exec(`
		INSERT INTO transcript (session_id, phase, role, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, phase, string(turn.Role), turn.Text, turn.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Replay returns the full transcript of a session in production order.
func (s *Store) Replay(sessionID string) ([]session.Turn, error) {
	rows, err := s.db.Query(`
		SELECT role, text, created_at
		FROM transcript
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []session.Turn
	for rows.Next() {
		var role, text, created string
		if err := rows.Scan(&role, &text, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", created, err)
		}
		out = append(out, session.Turn{Role: council.Role(role), Text: text, Timestamp: ts})
	}
	return out, rows.Err()
}

// Sessions returns the archived session ids, most recently active
// first.
func (s *Store) Sessions() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT session_id
		FROM transcript
		GROUP BY session_id
		ORDER BY MAX(seq) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TurnCount returns how many turns a session has archived.
func (s *Store) TurnCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transcript WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}
