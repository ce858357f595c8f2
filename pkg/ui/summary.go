package ui

import (
	"fmt"
	"io"

	"pixivcrawl/pkg/crawler"
)

// WriteSummary writes the result of a run. The summary line and the
// failed IDs are always written; verbose adds page and byte totals.
func WriteSummary(w io.Writer, s *crawler.Summary, verbose bool) {
	fmt.Fprintln(w, s.Line())
	if line := s.FailedLine(); line != "" {
		fmt.Fprintln(w, line)
	}
	if !verbose {
		return
	}

	fmt.Fprintf(w, "  %s %d new, %d already complete, %d unfinished\n",
		Dim("artworks:"), s.Complete, s.AlreadyComplete, s.Unfinished)
	fmt.Fprintf(w, "  %s %d downloaded, %d on disk, %d failed\n",
		Dim("pages:"), s.PagesDownloaded, s.PagesExisting, s.PagesFailed)
	fmt.Fprintf(w, "  %s %s in %s\n",
		Dim("transferred:"), FormatBytes(s.Bytes), FormatDuration(s.Duration))
	if s.Duplicates > 0 {
		fmt.Fprintf(w, "  %s %d duplicate IDs dropped from the listing\n", Dim("listing:"), s.Duplicates)
	}
	if len(s.SkippedIDs) > 0 {
		fmt.Fprintf(w, "  %s %v\n", Dim("skipped:"), s.SkippedIDs)
	}

	switch {
	case s.Fatal != nil:
		fmt.Fprintf(w, "%s %v\n", Red("aborted:"), s.Fatal)
	case s.Interrupted:
		fmt.Fprintln(w, Yellow("interrupted: progress saved, run again to resume"))
	}
}
