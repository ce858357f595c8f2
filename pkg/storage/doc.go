// Package storage decides where downloaded pages live and writes them safely.
//
// Files are laid out as <output>/<authorID>/<artworkID>_<page><ext>. Writes
// go through AtomicWrite, which streams into a ".part" temp file in the same
// directory, fsyncs it and renames it over the destination, so a final name
// never holds a partial file. Exists treats zero-byte files as absent.
package storage
