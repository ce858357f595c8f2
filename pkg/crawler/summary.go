package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the final state of one artwork in a run
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// Summary is the result of one crawl run
type Summary struct {
	RunID    string
	AuthorID string

	// Discovered counts unique artwork IDs seen in the listing
	Discovered int
	// Duplicates counts IDs dropped because an earlier page listed them
	Duplicates int

	Complete        int
	AlreadyComplete int
	Failed          int
	Skipped         int
	// Unfinished counts artworks left pending by an interrupt or abort
	Unfinished int

	PagesDownloaded int
	PagesExisting   int
	PagesFailed     int
	Bytes           int64

	FailedIDs  []string
	SkippedIDs []string

	MetadataOnly bool
	Interrupted  bool
	Fatal        error
	Duration     time.Duration
}

// Line is the one-line result printed at the end of every run. complete
// includes artworks finished by earlier runs.
func (s *Summary) Line() string {
	return fmt.Sprintf("complete=%d failed=%d skipped=%d", s.Complete+s.AlreadyComplete, s.Failed, s.Skipped)
}

// FailedLine lists failed IDs, or "" when nothing failed
func (s *Summary) FailedLine() string {
	if len(s.FailedIDs) == 0 {
		return ""
	}
	return "failed: " + strings.Join(s.FailedIDs, " ")
}

// Success reports whether the run ended without a Fatal error or interrupt.
// Per-artwork failures do not make a run unsuccessful.
func (s *Summary) Success() bool {
	return s.Fatal == nil && !s.Interrupted
}
