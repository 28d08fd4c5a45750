package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

// FileStore keeps one JSON array of turns per conversation in dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Load(_ context.Context, id string) ([]apptype.Turn, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *FileStore) read(id string) ([]apptype.Turn, error) {
	b, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return []apptype.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s: %w", id, err)
	}
	turns := []apptype.Turn{}
	if err := json.Unmarshal(b, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", id, err)
	}
	return turns, nil
}

// Append rewrites the conversation file atomically via a temp file.
func (s *FileStore) Append(_ context.Context, id string, turn apptype.Turn) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turns, err := s.read(id)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(append(turns, turn), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write history %s: %w", id, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history %s: %w", id, err)
	}
	return nil
}
