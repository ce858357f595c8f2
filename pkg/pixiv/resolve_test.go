package pixiv

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pixivcrawl/pkg/errors"
)

func illustHandler(t *testing.T, routes map[string]string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	})
}

func TestResolveSinglePage(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/500": `{"error":false,"body":{
			"illustId":"500","title":"Sunset","userId":"11","userName":"artist",
			"pageCount":1,"illustType":0,"createDate":"2024-03-01T10:00:00+09:00",
			"tags":{"tags":[{"tag":"landscape"},{"tag":"sky"}]},
			"urls":{"original":"https://i.pximg.net/img-original/img/500_p0.png","regular":"https://i.pximg.net/r/500_p0.jpg"}
		}}`,
	}))

	art, err := client.Resolve(context.Background(), "500")
	require.NoError(t, err)

	assert.Equal(t, ArtworkID("500"), art.ID)
	assert.Equal(t, "Sunset", art.Title)
	assert.Equal(t, AuthorID("11"), art.AuthorID)
	assert.Equal(t, "artist", art.AuthorName)
	assert.Equal(t, 1, art.PageCount)
	assert.Equal(t, []string{"https://i.pximg.net/img-original/img/500_p0.png"}, art.ImageURLs)
	assert.Equal(t, []string{"landscape", "sky"}, art.Tags)
	assert.Equal(t, 2024, art.CreateDate.Year())
	assert.Equal(t, time.March, art.CreateDate.Month())
}

func TestResolveFallbackURL(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/501": `{"error":false,"body":{"pageCount":1,
			"urls":{"original":null,"regular":"  ","small":"https://i.pximg.net/s/501_p0.jpg","thumb":"https://i.pximg.net/t/501.jpg"}}}`,
	}))

	art, err := client.Resolve(context.Background(), "501")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://i.pximg.net/s/501_p0.jpg"}, art.ImageURLs)
}

func TestResolveNoURLIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/502": `{"error":false,"body":{"pageCount":1,"urls":{"original":null,"regular":null}}}`,
	}))

	_, err := client.Resolve(context.Background(), "502")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestResolveMultiPage(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/600": `{"error":false,"body":{"pageCount":3,"userId":"11",
			"urls":{"original":"https://i.pximg.net/o/600_p0.jpg"}}}`,
		"/ajax/illust/600/pages": `{"error":false,"body":[
			{"urls":{"original":"https://i.pximg.net/o/600_p0.jpg"}},
			{"urls":{"original":"https://i.pximg.net/o/600_p1.png"}},
			{"urls":{"original":"","regular":"https://i.pximg.net/r/600_p2.jpg"}}
		]}`,
	}))

	art, err := client.Resolve(context.Background(), "600")
	require.NoError(t, err)
	require.Len(t, art.ImageURLs, art.PageCount)
	assert.Equal(t, []string{
		"https://i.pximg.net/o/600_p0.jpg",
		"https://i.pximg.net/o/600_p1.png",
		"https://i.pximg.net/r/600_p2.jpg",
	}, art.ImageURLs)
}

func TestResolvePageCountMismatch(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/601":       `{"error":false,"body":{"pageCount":3}}`,
		"/ajax/illust/601/pages": `{"error":false,"body":[{"urls":{"original":"https://i.pximg.net/o/601_p0.jpg"}}]}`,
	}))

	_, err := client.Resolve(context.Background(), "601")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestResolveErrors(t *testing.T) {
	client, _ := newTestClient(t, illustHandler(t, map[string]string{
		"/ajax/illust/700": `{"error":true,"message":"該当作品は削除されたか、存在しない作品IDです。","body":[]}`,
		"/ajax/illust/701": `{"error":false,"body":{"pageCount":0}}`,
	}))
	ctx := context.Background()

	_, err := client.Resolve(ctx, "700")
	assert.True(t, errs.IsNotFound(err))

	_, err = client.Resolve(ctx, "701")
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))

	_, err = client.Resolve(ctx, "702")
	assert.True(t, errs.IsNotFound(err), "HTTP 404")
}
