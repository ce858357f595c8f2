package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/crawler"
)

// StartedMsg is sent when the crawl has loaded its state
type StartedMsg struct {
	Author string
	RunID  string
}

// DiscoveredMsg carries the number of unique artworks listed so far
type DiscoveredMsg struct {
	Unique int
}

// QueuedMsg is sent when an artwork's pages are handed to the workers
type QueuedMsg struct {
	ID    string
	Pages int
}

// PageMsg is sent for every settled page
type PageMsg struct {
	Result downloader.Result
}

// ArtworkMsg is sent when an artwork reaches its final outcome
type ArtworkMsg struct {
	ID      string
	Outcome crawler.Outcome
	Err     error
}

// FinishedMsg ends the program
type FinishedMsg struct {
	Summary *crawler.Summary
}

// TickMsg refreshes the elapsed time
type TickMsg time.Time

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width / 2
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case StartedMsg:
		m.author = msg.Author
		m.runID = msg.RunID
		m.AddLogMessage(levelInfo, "Crawling author "+msg.Author)
		return m, nil

	case DiscoveredMsg:
		m.discovered = msg.Unique
		return m, nil

	case QueuedMsg:
		if _, ok := m.artworks[msg.ID]; !ok {
			m.order = append(m.order, msg.ID)
		}
		m.artworks[msg.ID] = &ArtworkItem{ID: msg.ID, Pages: msg.Pages}
		return m, nil

	case PageMsg:
		m.handlePage(msg.Result)
		return m, nil

	case ArtworkMsg:
		m.handleArtwork(msg)
		return m, nil

	case FinishedMsg:
		m.summary = msg.Summary
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) handlePage(result downloader.Result) {
	item, ok := m.artworks[result.Task.ArtworkID]
	switch result.Status {
	case downloader.StatusDownloaded, downloader.StatusExists:
		m.pages++
		m.bytes += result.Bytes
		if ok {
			item.PagesDone++
		}
	case downloader.StatusFailed:
		m.AddLogMessage(levelError, fmt.Sprintf("%s page %d: %v", result.Task.ArtworkID, result.Task.PageIndex, result.Err))
	}
}

func (m *Model) handleArtwork(msg ArtworkMsg) {
	item := m.artworks[msg.ID]
	switch msg.Outcome {
	case crawler.OutcomeComplete:
		m.complete++
		if item != nil {
			item.State = ArtworkComplete
			m.AddLogMessage(levelSuccess, fmt.Sprintf("%s (%d pages)", msg.ID, item.Pages))
		}
	case crawler.OutcomeFailed:
		m.failed++
		if item != nil {
			item.State = ArtworkFailed
			item.Err = msg.Err
		}
		m.AddLogMessage(levelError, fmt.Sprintf("%s failed: %v", msg.ID, msg.Err))
	case crawler.OutcomeSkipped:
		m.skipped++
		if item != nil {
			item.State = ArtworkSkipped
		}
		m.AddLogMessage(levelWarn, msg.ID+" skipped")
	}
}

// handleKeyPress handles keyboard input. The first q asks the crawl to stop
// queueing; a second one aborts in-flight transfers.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.stopping {
			m.AddLogMessage(levelWarn, "Aborting transfers")
		} else {
			m.stopping = true
			m.AddLogMessage(levelWarn, "Stopping after in-flight pages, press q again to abort")
		}
		if m.interrupt != nil {
			m.interrupt()
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
