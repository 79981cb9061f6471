// Package cursor persists the position of the last fully handled event.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrRegression is returned when Save would move the cursor backwards.
var ErrRegression = errors.New("cursor: position is behind the stored cursor")

// Store is the durable resume point of the dispatch engine.
type Store interface {
	// Load returns the stored position; ok is false when nothing was saved yet.
	Load(ctx context.Context) (pos uint64, ok bool, err error)
	// Save must not return before pos is on stable storage.
	Save(ctx context.Context, pos uint64) error
}

// FileStore keeps the cursor as a decimal integer in a single file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (uint64, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, false, nil
	}
	pos, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", raw, err)
	}
	return pos, true, nil
}

// Save writes to a temp file, syncs it and renames it over the cursor file.
func (s *FileStore) Save(ctx context.Context, pos uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok, err := s.load(); err != nil {
		return err
	} else if ok && pos < cur {
		return fmt.Errorf("%w: %d < %d", ErrRegression, pos, cur)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strconv.FormatUint(pos, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open cursor dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync cursor dir: %w", err)
	}
	return nil
}
