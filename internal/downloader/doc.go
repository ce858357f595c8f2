// Package downloader saves artwork pages to disk.
//
// Manager handles one Task: it skips pages already on disk, streams the
// rest through storage.AtomicWrite and retries Transient failures with
// backoff. WorkerPool fans tasks out to a fixed number of workers over a
// bounded queue and reports one Result per task.
package downloader
