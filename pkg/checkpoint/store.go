package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pixivcrawl/pkg/logger"
)

// Store persists crawl state, one record per author
type Store interface {
	// Load returns the saved state of author, or nil if there is none
	Load(authorID string) (*State, error)
	Save(state *State) error
	// Delete forgets the state of author
	Delete(authorID string) error
	// List returns the authors that have saved state
	List() ([]string, error)
	Close() error
}

// Backend names accepted by Open
const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// Open returns the store for backend rooted at dir. An empty dir resolves
// to the per-user data directory.
func Open(backend, dir string, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir == "" {
		dataDir, err := DataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "state")
	}

	switch strings.ToLower(backend) {
	case BackendJSON, "":
		return NewJSONStore(dir, log)
	case BackendBolt:
		return NewBoltStore(dir, log)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// DataDirectory returns the per-user data directory for the current OS
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "pixivcrawl")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "pixivcrawl")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "pixivcrawl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "pixivcrawl")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
