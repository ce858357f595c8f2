// Package logger provides the structured logging interface used across the
// crawler.
//
// It wraps zerolog with a small interface so components can take a Logger,
// tests can swap in NewTestLogger or NewNopLogger, and the CLI can decide
// where output goes:
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("author_id", authorID)
//	log.InfoWithFields("Listing fetched", map[string]interface{}{
//	    "artworks": n,
//	})
//
// Console output is written to stderr. When logging.file is set the file is
// rotated by lumberjack according to max_size (MB), max_backups, max_age
// (days) and compress.
package logger
