package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>每天60秒读懂世界</title>
    <link>https://example.com</link>
    <description>mirror</description>
    <item>
      <title>3月6日 读懂世界</title>
      <link>https://example.com/a6</link>
      <pubDate>Wed, 06 Mar 2024 07:00:00 +0800</pubDate>
    </item>
    <item>
      <title>3月5日 读懂世界</title>
      <link>https://example.com/a5</link>
      <pubDate>Tue, 05 Mar 2024 07:00:00 +0800</pubDate>
      <enclosure url="https://example.com/a5.png" length="1" type="image/png"/>
    </item>
    <item>
      <title>3月5日 其他内容</title>
      <link>https://example.com/other</link>
      <pubDate>Tue, 05 Mar 2024 09:00:00 +0800</pubDate>
    </item>
  </channel>
</rss>`

func createTestFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// TestFeedClient_FiltersByQuery verifies only items whose title contains every
// query term are returned.
func TestFeedClient_FiltersByQuery(t *testing.T) {
	server := createTestFeedServer(t, http.StatusOK, testRSS)
	client := NewFeedClient("", server.Client())

	result, err := client.FetchPosts(context.Background(), Query{
		Account: Account{Name: "mirror", Kind: KindFeed, FeedURL: server.URL},
		Text:    "3月5日 读懂世界",
		Count:   4,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Posts, 1)

	post := result.Posts[0]
	assert.Equal(t, "3月5日 读懂世界", post.Title)
	assert.Equal(t, "https://example.com/a5", post.Link)
	assert.Equal(t, "https://example.com/a5.png", post.Cover)

	want := time.Date(2024, 3, 5, 7, 0, 0, 0, time.FixedZone("", 8*3600)).Unix()
	assert.Equal(t, want, post.CreateTime)
	assert.Equal(t, want, post.UpdateTime, "Update time falls back to the publish time")
}

func TestFeedClient_Pagination(t *testing.T) {
	server := createTestFeedServer(t, http.StatusOK, testRSS)
	client := NewFeedClient("", server.Client())
	account := Account{Name: "mirror", Kind: KindFeed, FeedURL: server.URL}

	result, err := client.FetchPosts(context.Background(), Query{Account: account, Text: "读懂世界", Begin: 1, Count: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "https://example.com/a5", result.Posts[0].Link)

	result, err = client.FetchPosts(context.Background(), Query{Account: account, Text: "读懂世界", Begin: 5, Count: 4})
	require.NoError(t, err)
	assert.Empty(t, result.Posts)
}

func TestFeedClient_Unavailable(t *testing.T) {
	server := createTestFeedServer(t, http.StatusInternalServerError, "oops")
	client := NewFeedClient("", server.Client())

	_, err := client.FetchPosts(context.Background(), Query{
		Account: Account{Name: "mirror", Kind: KindFeed, FeedURL: server.URL},
		Text:    "3月5日 读懂世界",
	})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFeedItemToCandidate_UpdatedDate(t *testing.T) {
	published := time.Date(2024, 2, 28, 7, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)

	c := FeedItemToCandidate(&gofeed.Item{
		Title:           "  标题  ",
		Link:            "https://example.com/x",
		PublishedParsed: &published,
		UpdatedParsed:   &updated,
		Image:           &gofeed.Image{URL: "https://example.com/cover.jpg"},
	})

	assert.Equal(t, "标题", c.Title)
	assert.Equal(t, published.Unix(), c.CreateTime)
	assert.Equal(t, updated.Unix(), c.UpdateTime)
	assert.Equal(t, "https://example.com/cover.jpg", c.Cover)
}
