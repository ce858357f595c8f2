package pixiv

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the pixiv web origin serving the ajax API
	BaseURL = "https://www.pixiv.net"

	// DefaultReferer must accompany requests to the i.pximg.net image CDN
	DefaultReferer = "https://www.pixiv.net/"

	profileAllPath  = "/ajax/user/%s/profile/all"
	illustPath      = "/ajax/illust/%s"
	illustPagesPath = "/ajax/illust/%s/pages"
)

func (c *Client) profileURL(author AuthorID) string {
	return c.baseURL + fmt.Sprintf(profileAllPath, url.PathEscape(string(author)))
}

func (c *Client) illustURL(id ArtworkID) string {
	return c.baseURL + fmt.Sprintf(illustPath, url.PathEscape(string(id)))
}

func (c *Client) illustPagesURL(id ArtworkID) string {
	return c.baseURL + fmt.Sprintf(illustPagesPath, url.PathEscape(string(id)))
}

// ArtworkPageURL returns the public page of an artwork
func ArtworkPageURL(id ArtworkID) string {
	return BaseURL + "/artworks/" + string(id)
}

func normalizeBaseURL(raw string) string {
	if raw == "" {
		return BaseURL
	}
	return strings.TrimRight(raw, "/")
}
