package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/doyensec/safeurl"
)

// DefaultUserAgent identifies article fetches as a regular browser.
const DefaultUserAgent = "Mozilla/5.0 AppleWebKit/537.36 Chrome/132.0.0.0 Safari/537.36"

// Main content selectors, in order of preference.
var mainSelectors = []string{"#page-content", "#js_content"}

// NewSafeClient returns an HTTP client that refuses to connect to private,
// loopback, link-local and metadata addresses, including after DNS
// resolution.
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// Fetcher downloads article pages.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a fetcher. A nil client gets a 10 second timeout and a
// non-positive maxBytes means no limit.
func NewFetcher(client *http.Client, userAgent string, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Document fetches link and parses it as HTML.
func (f *Fetcher) Document(ctx context.Context, link string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return doc, nil
}

// MainContent returns the article's main content region.
func MainContent(doc *goquery.Document) (*goquery.Selection, error) {
	for _, selector := range mainSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel, nil
		}
	}
	return nil, ErrNoMainContent
}
