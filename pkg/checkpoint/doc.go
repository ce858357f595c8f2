// Package checkpoint persists crawl state so an interrupted crawl resumes
// where it stopped.
//
// A State records, per author, which artworks are complete, which failed
// (with the last error) and which were skipped because they are gone. Two
// stores are available:
//
//	json   <data dir>/state/<authorID>.json, rewritten atomically
//	bolt   <data dir>/state/state.db, one key per author
//
// The data directory follows the platform convention:
//   - Linux: $XDG_DATA_HOME/pixivcrawl or ~/.local/share/pixivcrawl
//   - macOS: ~/Library/Application Support/pixivcrawl
//   - Windows: %APPDATA%/pixivcrawl
package checkpoint
