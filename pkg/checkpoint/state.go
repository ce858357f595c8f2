package checkpoint

import (
	"sort"
	"time"
)

const stateVersion = 1

// Completion records an artwork whose pages are all on disk
type Completion struct {
	Pages          int       `json:"pages"`
	Downloaded     int       `json:"downloaded"`
	AlreadyPresent int       `json:"already_present"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Failure records the last error of an artwork that could not be finished
type Failure struct {
	Kind      string    `json:"kind"`
	ErrorType string    `json:"error_type"`
	Error     string    `json:"error"`
	Page      int       `json:"page"`
	FailedAt  time.Time `json:"failed_at"`
}

// Skip records an artwork that no longer exists or is not accessible
type Skip struct {
	Reason    string    `json:"reason"`
	SkippedAt time.Time `json:"skipped_at"`
}

// State is the persisted progress of crawling one author. It is not safe
// for concurrent use; a crawl gives it a single owner.
type State struct {
	AuthorID    string                `json:"author_id"`
	RunID       string                `json:"run_id"`
	Completed   map[string]Completion `json:"completed"`
	Failed      map[string]Failure    `json:"failed"`
	Skipped     map[string]Skip       `json:"skipped"`
	LastPage    int                   `json:"last_page"`
	Interrupted bool                  `json:"interrupted"`
	FatalError  string                `json:"fatal_error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Version     int                   `json:"version"`
}

// NewState returns an empty state for author
func NewState(authorID string) *State {
	now := time.Now()
	return &State{
		AuthorID:  authorID,
		Completed: make(map[string]Completion),
		Failed:    make(map[string]Failure),
		Skipped:   make(map[string]Skip),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   stateVersion,
	}
}

// normalize fills maps left nil by an older or hand-edited file
func (s *State) normalize() {
	if s.Completed == nil {
		s.Completed = make(map[string]Completion)
	}
	if s.Failed == nil {
		s.Failed = make(map[string]Failure)
	}
	if s.Skipped == nil {
		s.Skipped = make(map[string]Skip)
	}
	if s.Version == 0 {
		s.Version = stateVersion
	}
}

// IsComplete reports whether id finished in this or an earlier run
func (s *State) IsComplete(id string) bool {
	_, ok := s.Completed[id]
	return ok
}

// MarkComplete moves id to Completed
func (s *State) MarkComplete(id string, c Completion) {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}
	delete(s.Failed, id)
	delete(s.Skipped, id)
	s.Completed[id] = c
}

// MarkFailed moves id to Failed. A completed artwork stays complete.
func (s *State) MarkFailed(id string, f Failure) {
	if s.IsComplete(id) {
		return
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now()
	}
	delete(s.Skipped, id)
	s.Failed[id] = f
}

// MarkSkipped moves id to Skipped
func (s *State) MarkSkipped(id, reason string) {
	if s.IsComplete(id) {
		return
	}
	delete(s.Failed, id)
	s.Skipped[id] = Skip{Reason: reason, SkippedAt: time.Now()}
}

// Counts returns the number of complete, failed and skipped artworks
func (s *State) Counts() (complete, failed, skipped int) {
	return len(s.Completed), len(s.Failed), len(s.Skipped)
}

// FailedIDs returns the failed artwork IDs in ascending numeric order
func (s *State) FailedIDs() []string {
	return sortedKeys(s.Failed)
}

// SkippedIDs returns the skipped artwork IDs in ascending numeric order
func (s *State) SkippedIDs() []string {
	return sortedKeys(s.Skipped)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
