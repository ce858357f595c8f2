package pixiv

import "time"

// AuthorID identifies a pixiv user whose works are crawled
type AuthorID string

// ArtworkID identifies one illustration or manga work
type ArtworkID string

// Artwork is the resolved metadata of one work. ImageURLs holds one URL per
// page, in page order.
type Artwork struct {
	ID         ArtworkID `json:"id"`
	Title      string    `json:"title"`
	AuthorID   AuthorID  `json:"author_id"`
	AuthorName string    `json:"author_name"`
	PageCount  int       `json:"page_count"`
	ImageURLs  []string  `json:"image_urls"`
	IllustType int       `json:"illust_type"`
	CreateDate time.Time `json:"create_date"`
	Tags       []string  `json:"tags,omitempty"`
}

// Illust types as reported by the ajax API
const (
	IllustTypeIllust = 0
	IllustTypeManga  = 1
	IllustTypeUgoira = 2
)
