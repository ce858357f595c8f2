package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryLine(t *testing.T) {
	s := &Summary{Complete: 2, AlreadyComplete: 3, Failed: 1, Skipped: 4, FailedIDs: []string{"12", "105"}}

	assert.Equal(t, "complete=5 failed=1 skipped=4", s.Line())
	assert.Equal(t, "failed: 12 105", s.FailedLine())
	assert.True(t, s.Success())

	assert.Empty(t, (&Summary{}).FailedLine())
	assert.False(t, (&Summary{Interrupted: true}).Success())
	assert.False(t, (&Summary{Fatal: errors.New("boom")}).Success())
}

func TestSortIDs(t *testing.T) {
	assert.Equal(t, []string{"9", "10", "100", "101"}, sortIDs([]string{"101", "9", "100", "10"}))
}
