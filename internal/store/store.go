// Package store persists sessions. Two implementations are provided:
// a file store writing one JSON document per session, and a SQLite
// store for deployments that want queryable history in a single file.
package store

import (
	"context"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
)

// Summary is the listing view of a stored session.
type Summary struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Mode      council.Mode   `json:"mode"`
	Status    council.Status `json:"status"`
	Messages  int            `json:"messages"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Store persists and retrieves sessions. Implementations must be safe
// for concurrent use; the orchestrator saves after every state change.
type Store interface {
	// Save writes the full session state, replacing any previous version.
	Save(ctx context.Context, s *council.Session) error
	// Load retrieves a session by ID. Missing sessions return
	// errors.ErrSessionNotFound.
	Load(ctx context.Context, id string) (*council.Session, error)
	// Delete removes a session. Missing sessions return
	// errors.ErrSessionNotFound.
	Delete(ctx context.Context, id string) error
	// List returns summaries of all sessions, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	// Close releases any underlying resources.
	Close() error
}

func summarize(s *council.Session) Summary {
	return Summary{
		ID:        s.ID,
		Topic:     s.Topic,
		Mode:      s.Mode,
		Status:    s.Status,
		Messages:  len(s.Transcript),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
