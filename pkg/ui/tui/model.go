package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"

	"pixivcrawl/pkg/crawler"
)

const (
	levelInfo    = "INFO"
	levelSuccess = "SUCCESS"
	levelWarn    = "WARN"
	levelError   = "ERROR"
)

// ArtworkState is where an artwork is in the current run
type ArtworkState int

const (
	ArtworkActive ArtworkState = iota
	ArtworkComplete
	ArtworkFailed
	ArtworkSkipped
)

// ArtworkItem tracks one queued artwork
type ArtworkItem struct {
	ID        string
	Pages     int
	PagesDone int
	State     ArtworkState
	Err       error
}

// LogMessage is one entry of the activity log
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model of a crawl. It is only touched from the
// program's event loop, so it needs no locking.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	author     string
	runID      string
	workers    int
	discovered int

	artworks map[string]*ArtworkItem
	order    []string

	complete  int
	failed    int
	skipped   int
	pages     int
	bytes     int64
	started   time.Time
	summary   *crawler.Summary
	interrupt func()
	stopping  bool

	logMessages    []LogMessage
	maxLogMessages int
	maxActive      int

	width    int
	height   int
	showHelp bool
}

// NewModel creates a model for a crawl using the given number of workers.
// interrupt is called when the user asks to stop; it may be nil.
func NewModel(workers int, interrupt func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle

	return Model{
		spinner:        s,
		progress:       progress.New(progress.WithDefaultGradient()),
		workers:        workers,
		artworks:       make(map[string]*ArtworkItem),
		started:        time.Now(),
		interrupt:      interrupt,
		maxLogMessages: 8,
		maxActive:      8,
	}
}

// AddLogMessage appends to the activity log, dropping the oldest entries
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Settled is the number of artworks with a final outcome in this run
func (m *Model) Settled() int {
	return m.complete + m.failed + m.skipped
}

// Percent is the share of discovered artworks that are settled
func (m *Model) Percent() float64 {
	if m.discovered == 0 {
		return 0
	}
	p := float64(m.Settled()) / float64(m.discovered)
	if p > 1 {
		p = 1
	}
	return p
}

// Active returns the queued artworks still downloading, oldest first
func (m *Model) Active() []*ArtworkItem {
	var active []*ArtworkItem
	for _, id := range m.order {
		if item := m.artworks[id]; item.State == ArtworkActive {
			active = append(active, item)
		}
	}
	return active
}

// Summary is the run summary once the crawl has finished
func (m *Model) Summary() *crawler.Summary {
	return m.summary
}
