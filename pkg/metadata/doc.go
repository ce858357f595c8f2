// Package metadata appends a JSON Lines record of each resolved artwork and
// each page result to <author dir>/metadata.jsonl. Records carry the run ID
// so several runs can share one file.
package metadata
