package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/crawler"
)

// TUI runs the interactive display of a crawl. It implements
// crawler.Reporter by forwarding every event to the bubbletea program.
type TUI struct {
	program *tea.Program
	model   *Model
	done    chan struct{}
	err     error
}

var _ crawler.Reporter = (*TUI)(nil)

// New creates a TUI for a crawl with the given number of workers.
// interrupt is called each time the user presses q.
func New(workers int, interrupt func(), opts ...tea.ProgramOption) *TUI {
	model := NewModel(workers, interrupt)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)

	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background
func (t *TUI) Start() {
	go func() {
		defer close(t.done)
		_, t.err = t.program.Run()
	}()
}

// Wait blocks until the program has exited
func (t *TUI) Wait() error {
	<-t.done
	return t.err
}

// Stop quits the program without waiting for a summary
func (t *TUI) Stop() {
	t.program.Quit()
}

func (t *TUI) Started(author, runID string) {
	t.program.Send(StartedMsg{Author: author, RunID: runID})
}

func (t *TUI) Discovered(unique int) {
	t.program.Send(DiscoveredMsg{Unique: unique})
}

func (t *TUI) ArtworkQueued(id string, pages int) {
	t.program.Send(QueuedMsg{ID: id, Pages: pages})
}

func (t *TUI) PageFinished(result downloader.Result) {
	t.program.Send(PageMsg{Result: result})
}

func (t *TUI) ArtworkFinished(id string, outcome crawler.Outcome, err error) {
	t.program.Send(ArtworkMsg{ID: id, Outcome: outcome, Err: err})
}

func (t *TUI) Finished(summary *crawler.Summary) {
	t.program.Send(FinishedMsg{Summary: summary})
}
