package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
)

// FileStore persists each session as one JSON document under a base
// directory. Writes are atomic: data is written to a temp file in the
// same directory and renamed into place.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save implements Store.
func (fs *FileStore) Save(ctx context.Context, s *council.Session) error {
	if s.ID == "" {
		return errors.NewValidationError("id", "session ID cannot be empty")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return atomicWriteFile(fs.path(s.ID), data, 0644)
}

// Load implements Store.
func (fs *FileStore) Load(ctx context.Context, id string) (*council.Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSessionError("load", errors.ErrSessionNotFound).WithSessionID(id)
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var s council.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session %s corrupted: %w", id, err)
	}
	return &s, nil
}

// Delete implements Store.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewSessionError("delete", errors.ErrSessionNotFound).WithSessionID(id)
		}
		return fmt.Errorf("deleting session file: %w", err)
	}
	return nil
}

// List implements Store. Unreadable or corrupted files are skipped
// rather than failing the whole listing.
func (fs *FileStore) List(ctx context.Context) ([]Summary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("listing store directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, entry.Name()))
		if err != nil {
			continue
		}
		var s council.Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, summarize(&s))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close implements Store. The file store holds no open resources.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

// atomicWriteFile writes data to a temp file in the target's directory
// and renames it into place, so readers never observe a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
