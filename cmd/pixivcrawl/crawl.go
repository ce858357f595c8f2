package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pixivcrawl/internal/downloader"
	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/checkpoint"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/crawler"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/metrics"
	"pixivcrawl/pkg/pixiv"
	"pixivcrawl/pkg/ratelimit"
	"pixivcrawl/pkg/retry"
	"pixivcrawl/pkg/storage"
	"pixivcrawl/pkg/ui"
	"pixivcrawl/pkg/ui/tui"
)

// crawlFlags holds the flags shared by the root and crawl commands
var crawlFlags struct {
	output       string
	concurrent   int
	pageSize     int
	proxy        string
	maxRetries   int
	timeout      time.Duration
	runTimeout   time.Duration
	rateLimit    int
	fresh        bool
	metadataOnly bool
	useTUI       bool
	notify       bool
	account      string
	metricsAddr  string
	stateBackend string
	logFile      string
}

var crawlCmd = &cobra.Command{
	Use:   "crawl <authorID>",
	Short: "Download every artwork of a pixiv author",
	Long: `Download all illustrations and manga of a pixiv author into
<output>/<authorID>/<artworkID>_<page>.<ext>.

Artworks finished by an earlier run are skipped, and so are pages already on
disk. An interrupted run saves its progress; run the same command again to
resume, or pass --fresh to forget it.

The cookie is taken from, in order: the configuration (PIXIVCRAWL_COOKIE or
pixiv.cookie), the account named by --account, the stored default account.

Exit status is 0 when the crawl ran to the end, even if some artworks failed,
1 on a fatal error and 130 when interrupted.`,
	Example: `  # Download into ./downloads/11
  pixivcrawl crawl 11

  # More workers, through a local proxy
  pixivcrawl crawl 11 --concurrent 8 --proxy 127.0.0.1:7890

  # Only record artwork metadata
  pixivcrawl crawl 11 --metadata-only

  # Start over, ignoring saved progress
  pixivcrawl crawl 11 --fresh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	addCrawlFlags(crawlCmd)
}

func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&crawlFlags.output, "output", "o", "", "output directory (default ./downloads)")
	f.IntVar(&crawlFlags.concurrent, "concurrent", 0, "number of concurrent page downloads")
	f.IntVar(&crawlFlags.pageSize, "page-size", 0, "artwork IDs per listing page")
	f.StringVar(&crawlFlags.proxy, "proxy", "", "proxy host[:port] or URL (default port 7890)")
	f.IntVar(&crawlFlags.maxRetries, "max-retries", 0, "attempts per request for transient failures")
	f.DurationVar(&crawlFlags.timeout, "timeout", 0, "timeout of a single HTTP request")
	f.DurationVar(&crawlFlags.runTimeout, "run-timeout", 0, "stop queueing new work after this long (0 = unlimited)")
	f.IntVar(&crawlFlags.rateLimit, "rate-limit", 0, "API requests per minute (0 = unlimited)")
	f.BoolVar(&crawlFlags.fresh, "fresh", false, "discard saved progress for this author")
	f.BoolVar(&crawlFlags.metadataOnly, "metadata-only", false, "resolve artworks and record metadata without downloading images")
	f.BoolVar(&crawlFlags.useTUI, "tui", false, "interactive terminal UI")
	f.BoolVar(&crawlFlags.notify, "notify", false, "desktop notification when the crawl ends")
	f.StringVarP(&crawlFlags.account, "account", "a", "", "use a stored account")
	f.StringVar(&crawlFlags.metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	f.StringVar(&crawlFlags.stateBackend, "state-backend", "", "crawl state backend (json or bolt)")
	f.StringVar(&crawlFlags.logFile, "log-file", "", "also write logs to this file")
}

// flagOverrides returns the flags set on the command line in the form
// config.MergeCommandLineFlags expects
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	changed := cmd.Flags().Changed
	flags := make(map[string]interface{})

	if changed("output") {
		flags["output"] = crawlFlags.output
	}
	if changed("concurrent") {
		flags["concurrent"] = crawlFlags.concurrent
	}
	if changed("page-size") {
		flags["page-size"] = crawlFlags.pageSize
	}
	if changed("proxy") {
		flags["proxy"] = crawlFlags.proxy
	}
	if changed("max-retries") {
		flags["max-retries"] = crawlFlags.maxRetries
	}
	if changed("timeout") {
		flags["timeout"] = crawlFlags.timeout
	}
	if changed("run-timeout") {
		flags["run-timeout"] = crawlFlags.runTimeout
	}
	if changed("rate-limit") {
		flags["rate-limit"] = crawlFlags.rateLimit
	}
	if changed("metadata-only") {
		flags["metadata-only"] = crawlFlags.metadataOnly
	}
	if changed("metrics-addr") {
		flags["metrics-addr"] = crawlFlags.metricsAddr
	}
	if changed("state-backend") {
		flags["state-backend"] = crawlFlags.stateBackend
	}
	if changed("log-file") {
		flags["log-file"] = crawlFlags.logFile
	}

	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case verbose:
		flags["log-level"] = "debug"
	case quiet:
		flags["log-level"] = "error"
	}
	return flags
}

func runCrawl(cmd *cobra.Command, authorArg string) error {
	author := strings.TrimSpace(authorArg)

	flags := flagOverrides(cmd)
	flags["author"] = author

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return withExitCode(exitError, err)
	}

	// The TUI owns the terminal; logs go to the file only, if any.
	if crawlFlags.useTUI {
		if cfg.Logging.File != "" {
			cfg.Logging.Console = false
		} else {
			cfg.Logging.Level = "off"
		}
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return withExitCode(exitError, err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("pixivcrawl starting")

	if err := resolveCookie(cfg, crawlFlags.account, log); err != nil {
		return withExitCode(exitError, err)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return withExitCode(exitError, err)
	}

	var m *metrics.Metrics
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(runCtx, cfg.Metrics.Address, log); err != nil {
				log.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}

	client, err := pixiv.NewClient(pixiv.Options{
		Cookie:    cfg.Pixiv.Cookie,
		UserAgent: cfg.Pixiv.UserAgent,
		Referer:   cfg.Pixiv.Referer,
		BaseURL:   cfg.Pixiv.BaseURL,
		Timeout:   cfg.Network.Timeout,
		Proxy:     cfg.Network.Proxy,
		Limiter:   ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize),
		Logger:    log,
	})
	if err != nil {
		return withExitCode(exitError, err)
	}

	store, err := checkpoint.Open(cfg.State.Backend, cfg.State.Directory, log)
	if err != nil {
		return withExitCode(exitError, err)
	}
	defer store.Close()

	if crawlFlags.fresh {
		if err := store.Delete(author); err != nil {
			return withExitCode(exitError, fmt.Errorf("failed to discard saved progress: %w", err))
		}
		log.WithField("author", author).Info("Discarded saved progress")
	}

	layout, err := storage.NewManager(cfg.Output.BaseDirectory, cfg.Output.CreateAuthorFolders)
	if err != nil {
		return withExitCode(exitError, err)
	}

	// First interrupt stops dispatch and lets in-flight pages finish; the
	// second aborts the transfers too.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	abortCtx, cancelAbort := context.WithCancel(context.Background())
	defer cancelAbort()

	var interrupts atomic.Int32
	interrupt := func() {
		if interrupts.Add(1) == 1 {
			log.Warn("Interrupted, finishing in-flight pages (interrupt again to abort)")
			cancelDispatch()
			return
		}
		log.Warn("Interrupted again, aborting transfers")
		cancelAbort()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				interrupt()
			case <-runCtx.Done():
				return
			}
		}
	}()

	retryCfg := retry.FromConfig(cfg.Retry, log)

	var reporter crawler.Reporter = crawler.NopReporter{}
	var display *tui.TUI
	switch {
	case crawlFlags.useTUI:
		display = tui.New(cfg.Download.ConcurrentDownloads, interrupt)
		display.Start()
		reporter = display
	case !quiet:
		reporter = ui.NewProgressDisplay(cmd.ErrOrStderr(), verbose)
	}

	c := crawler.New(client, downloader.NewManager(client, retryCfg, log, m), store, layout, crawler.Options{
		PageSize:      cfg.Download.PageSize,
		Workers:       cfg.Download.ConcurrentDownloads,
		QueueSize:     cfg.Download.QueueSize,
		MetadataOnly:  cfg.Download.MetadataOnly,
		WriteMetadata: cfg.Output.WriteMetadata,
		RunTimeout:    cfg.Download.RunTimeout,
		Retry:         retryCfg,
		Logger:        log,
		Metrics:       m,
		Reporter:      reporter,
		Abort:         abortCtx,
	})

	summary, runErr := c.Run(dispatchCtx, pixiv.AuthorID(author))

	if display != nil {
		if summary == nil {
			display.Stop()
		}
		if err := display.Wait(); err != nil {
			log.WithError(err).Warn("Terminal UI failed")
		}
	}

	if summary == nil {
		summary = &crawler.Summary{AuthorID: author, Fatal: runErr}
	}
	ui.WriteSummary(cmd.OutOrStdout(), summary, verbose)

	if crawlFlags.notify {
		if err := ui.NewNotifier().NotifySummary(summary); err != nil {
			log.WithError(err).Debug("Desktop notification failed")
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.DeadlineExceeded):
		return withExitCode(exitError, fmt.Errorf("run timeout reached, progress saved: %w", runErr))
	case errors.Is(runErr, crawler.ErrInterrupted):
		return withExitCode(exitInterrupted, runErr)
	default:
		return withExitCode(exitError, runErr)
	}
}

// resolveCookie fills cfg.Pixiv.Cookie from the credential store unless
// the configuration already carries one and no account was named
func resolveCookie(cfg *config.Config, account string, log logger.Logger) error {
	if account == "" && cfg.Pixiv.Cookie != "" {
		log.Debug("Using cookie from configuration")
		return nil
	}

	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	var acc *auth.Account
	if account != "" {
		acc, err = manager.Retrieve(account)
	} else {
		acc, err = manager.RetrieveDefault()
	}
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		if account != "" {
			return fmt.Errorf("account %q not found, see 'pixivcrawl auth list'", account)
		}
		return errors.New("no pixiv cookie configured, run 'pixivcrawl auth login' or set PIXIVCRAWL_COOKIE")
	}
	if err != nil {
		return err
	}

	cfg.Pixiv.Cookie = acc.Cookie
	if acc.UserAgent != "" {
		cfg.Pixiv.UserAgent = acc.UserAgent
	}
	log.WithField("account", acc.Name).Info("Using stored credentials")
	if !acc.HasSession() {
		log.Warn("Cookie has no PHPSESSID, restricted works will be missing")
	}
	return nil
}
