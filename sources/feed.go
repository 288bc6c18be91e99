package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/dailybrief/digest"
)

// FeedClient searches an RSS or Atom mirror of an account. The mirror has no
// search API, so every whitespace-separated term of the query must appear in
// an item's title for it to be returned.
type FeedClient struct {
	parser *gofeed.Parser
}

// NewFeedClient creates a feed client. A nil httpClient gets a 10 second
// timeout.
func NewFeedClient(userAgent string, httpClient *http.Client) *FeedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	fp := gofeed.NewParser()
	fp.Client = httpClient
	fp.UserAgent = userAgent

	return &FeedClient{parser: fp}
}

// FetchPosts fetches the account's feed and returns the matching items,
// paginated by q.Begin and q.Count. The gofeed library handles both RSS and
// Atom transparently.
func (c *FeedClient) FetchPosts(ctx context.Context, q Query) (*Result, error) {
	feed, err := c.parser.ParseURLWithContext(q.Account.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %v", ErrSourceUnavailable, err)
	}

	terms := strings.Fields(q.Text)
	posts := make([]digest.Candidate, 0)
	for _, item := range feed.Items {
		if !containsAll(item.Title, terms) {
			continue
		}
		posts = append(posts, FeedItemToCandidate(item))
	}

	total := len(posts)
	begin := min(max(q.Begin, 0), total)
	end := total
	if q.Count > 0 {
		end = min(begin+q.Count, total)
	}

	return &Result{
		Posts: posts[begin:end],
		OK:    true,
		Total: total,
	}, nil
}

// FeedItemToCandidate converts a feed item to a candidate article. The
// published date is used for both timestamps when the item has no separate
// update date.
func FeedItemToCandidate(item *gofeed.Item) digest.Candidate {
	var created, updated int64
	if item.PublishedParsed != nil {
		created = item.PublishedParsed.Unix()
	}
	if item.UpdatedParsed != nil {
		updated = item.UpdatedParsed.Unix()
	} else {
		updated = created
	}
	if created == 0 {
		created = updated
	}

	// Cover: the item image, or the first image enclosure
	var cover string
	if item.Image != nil {
		cover = item.Image.URL
	}
	if cover == "" {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				cover = enc.URL
				break
			}
		}
	}

	return digest.Candidate{
		Title:      strings.TrimSpace(item.Title),
		Link:       item.Link,
		Cover:      cover,
		CreateTime: created,
		UpdateTime: updated,
	}
}

func containsAll(s string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(s, term) {
			return false
		}
	}
	return true
}
