package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	mode       TEXT NOT NULL,
	status     TEXT NOT NULL,
	messages   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// SQLiteStore persists sessions in a single SQLite database file. The
// full session document is stored as a JSON payload; listing columns
// are denormalized for cheap summaries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, sess *council.Session) error {
	if sess.ID == "" {
		return errors.NewValidationError("id", "session ID cannot be empty")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, topic, mode, status, messages, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic,
			mode = excluded.mode,
			status = excluded.status,
			messages = excluded.messages,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		sess.ID, sess.Topic, string(sess.Mode), string(sess.Status),
		len(sess.Transcript), sess.CreatedAt, sess.UpdatedAt, payload,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*council.Session, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NewSessionError("load", errors.ErrSessionNotFound).WithSessionID(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	var sess council.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("session %s corrupted: %w", id, err)
	}
	return &sess, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewSessionError("delete", errors.ErrSessionNotFound).WithSessionID(id)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, mode, status, messages, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum              Summary
			mode, status     string
			created, updated time.Time
		)
		if err := rows.Scan(&sum.ID, &sum.Topic, &mode, &status, &sum.Messages, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sum.Mode = council.Mode(mode)
		sum.Status = council.Status(status)
		sum.CreatedAt = created
		sum.UpdatedAt = updated
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
