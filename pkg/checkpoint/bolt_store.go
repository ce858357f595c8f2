package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"pixivcrawl/pkg/logger"
)

var bucketStates = []byte("states")

// BoltStore keeps all authors in one state.db, keyed by author ID
type BoltStore struct {
	db     *bolt.DB
	logger logger.Logger
}

// NewBoltStore opens (or creates) dir/state.db. Opening fails after one
// second if another process holds the database.
func NewBoltStore(dir string, log logger.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "state.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketStates)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, logger: log}, nil
}

// Load returns the saved state of author, or nil
func (s *BoltStore) Load(authorID string) (*State, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketStates).Get([]byte(authorID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state of author %s: %w", authorID, err)
	}
	state.normalize()
	return &state, nil
}

// Save stores the state in a single transaction
func (s *BoltStore) Save(state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).Put([]byte(state.AuthorID), data)
	})
}

// Delete removes the state of author
func (s *BoltStore) Delete(authorID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).Delete([]byte(authorID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	s.logger.InfoWithFields("state deleted", map[string]interface{}{"author": authorID})
	return nil
}

// List returns the authors with saved state
func (s *BoltStore) List() ([]string, error) {
	var authors []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).ForEach(func(k, _ []byte) error {
			authors = append(authors, string(k))
			return nil
		})
	})
	return authors, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
