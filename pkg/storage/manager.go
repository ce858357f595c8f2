package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const tempSuffix = ".part"

// Manager owns the output layout: where an author's files live and how
// pages are named.
type Manager struct {
	baseDir       string
	authorFolders bool
}

// NewManager creates a new storage manager rooted at baseDir
func NewManager(baseDir string, authorFolders bool) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		baseDir:       baseDir,
		authorFolders: authorFolders,
	}, nil
}

// BaseDir returns the output root
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// AuthorDir returns the directory holding one author's files
func (m *Manager) AuthorDir(authorID string) string {
	if !m.authorFolders {
		return m.baseDir
	}
	return filepath.Join(m.baseDir, authorID)
}

// EnsureAuthorDir creates the author directory if needed
func (m *Manager) EnsureAuthorDir(authorID string) (string, error) {
	dir := m.AuthorDir(authorID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create author directory: %w", err)
	}
	return dir, nil
}

// PagePath returns the destination for one page of an artwork:
// <author dir>/<artworkID>_<page><ext>. The name depends only on its inputs,
// so reruns target the same files.
func (m *Manager) PagePath(authorID, artworkID string, page int, sourceURL string) string {
	name := artworkID + "_" + strconv.Itoa(page) + ExtFromURL(sourceURL)
	return filepath.Join(m.AuthorDir(authorID), name)
}

// ExtFromURL returns the file extension of the URL path, ".jpg" if none
func ExtFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 6 {
		return ".jpg"
	}
	return ext
}

// Exists reports whether path is a regular file with non-zero size.
// A zero-byte file does not count as present.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// AtomicWrite streams content into a temp file next to dst and renames it
// into place. dst either keeps its previous state or holds the complete
// content; the temp file is removed on any failure.
func AtomicWrite(dst string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err = os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// CleanTemp removes leftover temp files from an author directory, such as
// those left by a killed process.
func (m *Manager) CleanTemp(authorID string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.AuthorDir(authorID), "*"+tempSuffix))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range matches {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", f, err)
		}
		removed++
	}
	return removed, nil
}
