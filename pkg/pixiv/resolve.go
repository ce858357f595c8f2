package pixiv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	errs "pixivcrawl/pkg/errors"
)

// Resolve fetches the metadata of one artwork and the URL of every page.
// Deleted or private works and works with no accessible image come back as
// not_found errors.
func (c *Client) Resolve(ctx context.Context, id ArtworkID) (*Artwork, error) {
	res, err := c.GetJSON(ctx, c.illustURL(id))
	if err != nil {
		return nil, err
	}

	body := res.Get("body")
	if !body.IsObject() {
		return nil, errs.New(errs.ErrorTypeParsing, 0, fmt.Sprintf("artwork %s: response has no body", id))
	}

	pageCount := int(body.Get("pageCount").Int())
	if pageCount < 1 {
		return nil, errs.New(errs.ErrorTypeParsing, 0,
			fmt.Sprintf("artwork %s: invalid page count %q", id, body.Get("pageCount").Raw))
	}

	art := &Artwork{
		ID:         id,
		Title:      body.Get("title").String(),
		AuthorID:   AuthorID(body.Get("userId").String()),
		AuthorName: body.Get("userName").String(),
		PageCount:  pageCount,
		IllustType: int(body.Get("illustType").Int()),
	}
	if created, err := time.Parse(time.RFC3339, body.Get("createDate").String()); err == nil {
		art.CreateDate = created
	}
	body.Get("tags.tags").ForEach(func(_, tag gjson.Result) bool {
		if name := tag.Get("tag").String(); name != "" {
			art.Tags = append(art.Tags, name)
		}
		return true
	})

	if pageCount == 1 {
		u := pickURL(body.Get("urls"), "original", "regular", "small", "thumb")
		if u == "" {
			return nil, errs.New(errs.ErrorTypeNotFound, 0, fmt.Sprintf("artwork %s: no accessible image URL", id))
		}
		art.ImageURLs = []string{u}
	} else {
		urls, err := c.pageURLs(ctx, id)
		if err != nil {
			return nil, err
		}
		art.ImageURLs = urls
	}

	if len(art.ImageURLs) != art.PageCount {
		return nil, errs.New(errs.ErrorTypeParsing, 0,
			fmt.Sprintf("artwork %s: %d image URLs for %d pages", id, len(art.ImageURLs), art.PageCount))
	}

	if art.ImageURLs[0] != body.Get("urls.original").String() {
		c.logger.WarnWithFields("using fallback image URL", map[string]interface{}{
			"artwork": string(id),
			"url":     art.ImageURLs[0],
		})
	}

	return art, nil
}

func (c *Client) pageURLs(ctx context.Context, id ArtworkID) ([]string, error) {
	res, err := c.GetJSON(ctx, c.illustPagesURL(id))
	if err != nil {
		return nil, err
	}

	pages := res.Get("body")
	if !pages.IsArray() {
		return nil, errs.New(errs.ErrorTypeParsing, 0, fmt.Sprintf("artwork %s: pages response has no body", id))
	}

	var (
		urls    []string
		missing int
	)
	pages.ForEach(func(_, page gjson.Result) bool {
		u := pickURL(page.Get("urls"), "original", "regular", "small", "thumb_mini")
		if u == "" {
			missing++
		}
		urls = append(urls, u)
		return true
	})
	if missing > 0 {
		return nil, errs.New(errs.ErrorTypeNotFound, 0,
			fmt.Sprintf("artwork %s: %d pages have no accessible image URL", id, missing))
	}

	return urls, nil
}

// pickURL returns the first non-empty URL among keys
func pickURL(urls gjson.Result, keys ...string) string {
	for _, key := range keys {
		if u := strings.TrimSpace(urls.Get(key).String()); u != "" {
			return u
		}
	}
	return ""
}
