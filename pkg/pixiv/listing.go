package pixiv

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	errs "pixivcrawl/pkg/errors"
)

// ListAll fetches every artwork ID the author has published, illustrations
// and manga merged, newest first.
func (c *Client) ListAll(ctx context.Context, author AuthorID) ([]ArtworkID, error) {
	res, err := c.GetJSON(ctx, c.profileURL(author))
	if err != nil {
		// A rejected author listing leaves nothing to crawl.
		if errs.IsNotFound(err) {
			return nil, errs.Wrap(errs.ErrorTypeAuth, 0,
				fmt.Sprintf("listing of author %s rejected (check the author ID and cookie)", author), err)
		}
		return nil, err
	}

	body := res.Get("body")
	if !body.IsObject() {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "profile response has no body")
	}

	var ids []ArtworkID
	for _, key := range []string{"illusts", "manga"} {
		ids = append(ids, collectIDs(body.Get(key))...)
	}
	sortNewestFirst(ids)

	c.logger.InfoWithFields("fetched author listing", map[string]interface{}{
		"author":   string(author),
		"artworks": len(ids),
	})

	return ids, nil
}

// ListPage returns ids[offset:offset+limit] of the author's listing. The
// listing is fetched at offset 0 and reused for later offsets, so one pass
// over the pages sees a single snapshot.
func (c *Client) ListPage(ctx context.Context, author AuthorID, offset, limit int) ([]ArtworkID, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid page limit %d", limit)
	}

	c.mu.Lock()
	ids, cached := c.listings[author]
	c.mu.Unlock()

	if offset == 0 || !cached {
		fresh, err := c.ListAll(ctx, author)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.listings[author] = fresh
		c.mu.Unlock()
		ids = fresh
	}

	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	page := make([]ArtworkID, end-offset)
	copy(page, ids[offset:end])
	return page, nil
}

// collectIDs reads the keys of an {"<id>": null, ...} map. pixiv sends an
// empty array instead of an empty object, which yields nothing.
func collectIDs(section gjson.Result) []ArtworkID {
	if !section.IsObject() {
		return nil
	}
	var ids []ArtworkID
	section.ForEach(func(key, _ gjson.Result) bool {
		if _, err := strconv.ParseUint(key.String(), 10, 64); err == nil {
			ids = append(ids, ArtworkID(key.String()))
		}
		return true
	})
	return ids
}

func sortNewestFirst(ids []ArtworkID) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(string(ids[i]), 10, 64)
		b, _ := strconv.ParseUint(string(ids[j]), 10, 64)
		return a > b
	})
}
