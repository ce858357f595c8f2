package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/crawler"
)

// ProgressDisplay renders crawl progress as a single refreshing line, or
// one line per event in verbose mode. It implements crawler.Reporter.
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	now     func() time.Time

	author     string
	discovered int
	queued     int
	finished   int
	failed     int
	skipped    int
	pages      int
	bytes      int64
	current    string
	startTime  time.Time
	lastRender time.Time
}

var _ crawler.Reporter = (*ProgressDisplay)(nil)

// NewProgressDisplay creates a display writing to out
func NewProgressDisplay(out io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:     out,
		verbose: verbose,
		now:     time.Now,
	}
}

func (p *ProgressDisplay) Started(author, runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.author = author
	p.startTime = p.now()
	fmt.Fprintf(p.out, "%s author %s %s\n", Magenta("→"), Cyan(author), Dim("run "+runID))
}

func (p *ProgressDisplay) Discovered(unique int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.discovered = unique
	if p.verbose {
		fmt.Fprintf(p.out, "%s %d artworks listed\n", Magenta("→"), unique)
		return
	}
	p.render(false)
}

func (p *ProgressDisplay) ArtworkQueued(id string, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queued++
	p.current = id
	if p.verbose {
		fmt.Fprintf(p.out, "  %s %s (%d pages)\n", Dim("queued"), id, pages)
		return
	}
	p.render(false)
}

func (p *ProgressDisplay) PageFinished(result downloader.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result.OK() {
		p.pages++
		p.bytes += result.Bytes
	}
	if p.verbose {
		switch result.Status {
		case downloader.StatusDownloaded:
			fmt.Fprintf(p.out, "  %s %s_%d %s\n", Green("✓"), result.Task.ArtworkID, result.Task.PageIndex, Dim(FormatBytes(result.Bytes)))
		case downloader.StatusExists:
			fmt.Fprintf(p.out, "  %s %s_%d %s\n", Dim("="), result.Task.ArtworkID, result.Task.PageIndex, Dim("on disk"))
		case downloader.StatusFailed:
			fmt.Fprintf(p.out, "  %s %s_%d %v\n", Red("✗"), result.Task.ArtworkID, result.Task.PageIndex, result.Err)
		}
		return
	}
	p.render(false)
}

func (p *ProgressDisplay) ArtworkFinished(id string, outcome crawler.Outcome, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch outcome {
	case crawler.OutcomeComplete:
		p.finished++
	case crawler.OutcomeFailed:
		p.failed++
	case crawler.OutcomeSkipped:
		p.skipped++
	}

	if p.verbose {
		if err != nil {
			fmt.Fprintf(p.out, "%s %s %s: %v\n", Yellow("!"), id, outcome, err)
		}
		return
	}
	p.render(outcome != crawler.OutcomeComplete)
}

// Finished ends the progress line; the summary itself is written by the
// caller with WriteSummary
func (p *ProgressDisplay) Finished(summary *crawler.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		p.render(true)
		fmt.Fprintln(p.out)
	}
}

// render redraws the status line at most ten times a second unless force
func (p *ProgressDisplay) render(force bool) {
	now := p.now()
	if !force && now.Sub(p.lastRender) < 100*time.Millisecond {
		return
	}
	p.lastRender = now

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), p.statusLine(now))
}

func (p *ProgressDisplay) statusLine(now time.Time) string {
	const width = 20
	done := p.finished + p.failed + p.skipped
	filled := 0
	if p.discovered > 0 {
		filled = done * width / p.discovered
		if filled > width {
			filled = width
		}
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", width-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %d pages • %s • %s",
		Cyan(p.author), bar, done, p.discovered, p.pages,
		FormatBytes(p.bytes), FormatDuration(now.Sub(p.startTime)))

	if p.current != "" {
		line += " • " + p.current
	}
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}
	if p.skipped > 0 {
		line += " • " + Yellow(fmt.Sprintf("%d skipped", p.skipped))
	}
	return line
}
