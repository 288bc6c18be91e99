package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/pevans/dailybrief/digest"
)

// DefaultKeyword is the title keyword used when an account sets none.
const DefaultKeyword = "读懂世界"

// Kinds of upstream source.
const (
	KindWeChat = "wechat"
	KindFeed   = "feed"
)

// Custom errors for source operations
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrNoMatch           = errors.New("no matching article found")
	ErrUnknownKind       = errors.New("source kind must be wechat or feed")
)

// Account is a configured upstream publisher. Accounts are loaded once at
// startup and passed around by value.
type Account struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Keyword  string `mapstructure:"keyword" yaml:"keyword,omitempty"`
	SourceID string `mapstructure:"source_id" yaml:"source_id"`
	WeChatID string `mapstructure:"wechat_id" yaml:"wechat_id,omitempty"`
	Kind     string `mapstructure:"kind" yaml:"kind"` // "wechat" or "feed"
	FeedURL  string `mapstructure:"feed_url" yaml:"feed_url,omitempty"`
}

// SearchKeyword returns the account's keyword, or DefaultKeyword.
func (a Account) SearchKeyword() string {
	if a.Keyword == "" {
		return DefaultKeyword
	}
	return a.Keyword
}

// SourceKind returns the account's kind, defaulting to wechat.
func (a Account) SourceKind() string {
	if a.Kind == "" {
		return KindWeChat
	}
	return a.Kind
}

// Validate checks that the account can be queried.
func (a Account) Validate() error {
	switch a.SourceKind() {
	case KindWeChat:
		if a.SourceID == "" {
			return fmt.Errorf("account %q: source_id is required", a.Name)
		}
	case KindFeed:
		if a.FeedURL == "" {
			return fmt.Errorf("account %q: feed_url is required", a.Name)
		}
	default:
		return fmt.Errorf("account %q: %w", a.Name, ErrUnknownKind)
	}
	return nil
}

// Query is a single search against one account.
type Query struct {
	Account Account
	Text    string
	Begin   int
	Count   int
}

// Result is what a source returns for a query. OK is false when the
// upstream reported a failure in an otherwise well-formed response.
type Result struct {
	Posts []digest.Candidate
	OK    bool
	Total int
	Error string
}

// Fetcher queries one kind of upstream source.
type Fetcher interface {
	FetchPosts(ctx context.Context, q Query) (*Result, error)
}
