package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pixivcrawl/pkg/pixiv"
)

// FileName is the JSONL file written into each author directory
const FileName = "metadata.jsonl"

// Record kinds
const (
	KindArtwork = "artwork"
	KindImage   = "image"
)

// Image statuses
const (
	StatusDownloaded = "downloaded"
	StatusExists     = "exists"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// ArtworkRecord is written once per resolved artwork
type ArtworkRecord struct {
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	PageCount  int       `json:"page_count"`
	IllustType int       `json:"illust_type"`
	CreateDate time.Time `json:"create_date"`
	Tags       []string  `json:"tags,omitempty"`
	ImageURLs  []string  `json:"image_urls"`
	PageURL    string    `json:"page_url"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ImageRecord is written once per page result
type ImageRecord struct {
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id"`
	ArtworkID string    `json:"artwork_id"`
	Page      int       `json:"page"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Status    string    `json:"status"`
	Bytes     int64     `json:"bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// FromArtwork converts resolved artwork metadata into a record
func FromArtwork(runID string, art *pixiv.Artwork) *ArtworkRecord {
	return &ArtworkRecord{
		Kind:       KindArtwork,
		RunID:      runID,
		ID:         string(art.ID),
		Title:      art.Title,
		AuthorID:   string(art.AuthorID),
		AuthorName: art.AuthorName,
		PageCount:  art.PageCount,
		IllustType: art.IllustType,
		CreateDate: art.CreateDate,
		Tags:       art.Tags,
		ImageURLs:  art.ImageURLs,
		PageURL:    pixiv.ArtworkPageURL(art.ID),
		ResolvedAt: time.Now(),
	}
}

// Recorder appends records to a JSONL file. A nil *Recorder discards
// everything, so callers need no branch when metadata is disabled.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// Open opens dir/metadata.jsonl for appending
func Open(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}

	return &Recorder{file: f, enc: json.NewEncoder(f)}, nil
}

// RecordArtwork appends an artwork record
func (r *Recorder) RecordArtwork(rec *ArtworkRecord) error {
	return r.write(rec)
}

// RecordImage appends an image record
func (r *Recorder) RecordImage(rec *ImageRecord) error {
	rec.Kind = KindImage
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	return r.write(rec)
}

func (r *Recorder) write(v interface{}) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ReadArtworks returns the artwork records of a metadata file, last record
// per ID winning.
func ReadArtworks(path string) (map[string]*ArtworkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	artworks := make(map[string]*ArtworkRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &probe); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if probe.Kind != KindArtwork {
			continue
		}
		var rec ArtworkRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		artworks[rec.ID] = &rec
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return artworks, nil
}
