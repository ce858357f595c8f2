package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixivcrawl/pkg/logger"
)

// JSONStore keeps one <author>.json file per author
type JSONStore struct {
	dir    string
	logger logger.Logger
}

// NewJSONStore creates the directory if needed
func NewJSONStore(dir string, log logger.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &JSONStore{dir: dir, logger: log}, nil
}

// Path returns the state file of author
func (s *JSONStore) Path(authorID string) string {
	return filepath.Join(s.dir, authorID+".json")
}

// Load loads an existing state
func (s *JSONStore) Load(authorID string) (*State, error) {
	file, err := os.Open(s.Path(authorID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}
	defer file.Close()

	var state State
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", file.Name(), err)
	}
	state.normalize()

	s.logger.DebugWithFields("state loaded", map[string]interface{}{
		"author":    state.AuthorID,
		"completed": len(state.Completed),
		"path":      file.Name(),
	})

	return &state, nil
}

// Save writes the state atomically: encode to a temp file, fsync, rename
func (s *JSONStore) Save(state *State) error {
	state.UpdatedAt = time.Now()
	path := s.Path(state.AuthorID)

	file, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// Delete moves the state file aside to <author>.json.bak
func (s *JSONStore) Delete(authorID string) error {
	path := s.Path(authorID)
	if err := os.Rename(path, path+".bak"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	s.logger.InfoWithFields("state deleted", map[string]interface{}{
		"author": authorID,
		"backup": path + ".bak",
	})
	return nil
}

// List returns the authors with a state file
func (s *JSONStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	authors := make([]string, 0, len(matches))
	for _, m := range matches {
		authors = append(authors, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return authors, nil
}

// Close is a no-op
func (s *JSONStore) Close() error { return nil }
