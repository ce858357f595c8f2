package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"pixivcrawl/pkg/crawler"
	"pixivcrawl/pkg/ui"
)

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd crawls when given an author ID and shows help otherwise
var rootCmd = &cobra.Command{
	Use:   "pixivcrawl [authorID]",
	Short: "Download every artwork of a pixiv author",
	Long: `pixivcrawl downloads all illustrations and manga of one pixiv author.

Features:
  - Pages are fetched by a bounded pool of workers
  - Reruns skip artworks that are already on disk
  - Interrupted runs resume from saved state
  - Transient failures are retried with backoff
  - Optional JSONL metadata, Prometheus metrics and an interactive UI`,
	Example: `  pixivcrawl 11
  pixivcrawl crawl 11 --output ./art --concurrent 8`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runCrawl(cmd, args[0])
	},
}

// exitCodeError carries a process exit code through cobra
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var coded *exitCodeError
	if errors.As(err, &coded) {
		if coded.code != exitInterrupted {
			fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		}
		return coded.code
	}
	if errors.Is(err, crawler.ErrInterrupted) {
		return exitInterrupted
	}

	fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
	return exitError
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ~/.config/pixivcrawl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, off)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print the summary and errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logs and one line per page")

	addCrawlFlags(rootCmd)

	rootCmd.SetVersionTemplate(`pixivcrawl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
