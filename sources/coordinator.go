package sources

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/logger"
)

// Query outcomes reported to a QueryRecorder.
const (
	OutcomeMatched     = "matched"
	OutcomeUnavailable = "unavailable"
	OutcomeEmpty       = "empty"
	OutcomeNoMatch     = "no_match"
)

// QueryRecorder receives one outcome per account queried.
type QueryRecorder interface {
	RecordQuery(account, outcome string)
}

// SearchConfig controls pagination and pacing of a search.
type SearchConfig struct {
	Begin     int
	Count     int
	MaxJitter time.Duration
}

// DefaultSearchConfig returns the default search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Begin:     0,
		Count:     4,
		MaxJitter: 5 * time.Second,
	}
}

// Match is the article selected for a target date.
type Match struct {
	Account   Account
	Candidate digest.Candidate
}

// Coordinator visits accounts strictly in order and returns the first
// article that matches the target date.
type Coordinator struct {
	accounts []Account
	fetchers map[string]Fetcher
	config   SearchConfig
	loc      *time.Location
	log      *logger.Logger
	recorder QueryRecorder

	// sleep waits between accounts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a coordinator over accounts. fetchers maps a source
// kind to the client that serves it.
func NewCoordinator(
	accounts []Account,
	fetchers map[string]Fetcher,
	config SearchConfig,
	loc *time.Location,
	log *logger.Logger,
) *Coordinator {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Coordinator{
		accounts: append([]Account(nil), accounts...),
		fetchers: fetchers,
		config:   config,
		loc:      loc,
		log:      log,
		sleep:    sleepContext,
	}
}

// SetRecorder attaches a recorder for query outcomes.
func (c *Coordinator) SetRecorder(r QueryRecorder) {
	c.recorder = r
}

// DatePhrase returns the "<month>月<day>日" phrase for target.
func DatePhrase(target time.Time) string {
	return fmt.Sprintf("%d月%d日", int(target.Month()), target.Day())
}

// QueryText returns the search string sent to a source for target.
func QueryText(target time.Time, keyword string) string {
	return DatePhrase(target) + " " + keyword
}

// Search looks for the target date's article. Sources that fail or return
// nothing usable are skipped; the first account with a match wins and no
// later account is queried. ErrNoMatch is returned when every account is
// exhausted.
func (c *Coordinator) Search(ctx context.Context, target time.Time) (*Match, error) {
	for _, account := range c.accounts {
		if err := c.sleep(ctx, c.jitter()); err != nil {
			return nil, err
		}

		log := c.log.With("account", account.Name)
		keyword := account.SearchKeyword()
		query := Query{
			Account: account,
			Text:    QueryText(target, keyword),
			Begin:   c.config.Begin,
			Count:   c.config.Count,
		}
		log.Debug("querying source", "query", query.Text, "kind", account.SourceKind())

		fetcher, ok := c.fetchers[account.SourceKind()]
		if !ok {
			log.Warn("no client for source kind, skipping", "kind", account.SourceKind())
			c.record(account, OutcomeUnavailable)
			continue
		}

		result, err := fetcher.FetchPosts(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("failed to fetch posts", "error", err)
			c.record(account, OutcomeUnavailable)
			continue
		}
		if !result.OK {
			log.Warn("source reported failure", "error", result.Error)
			c.record(account, OutcomeUnavailable)
			continue
		}
		if len(result.Posts) == 0 {
			log.Warn("no posts found")
			c.record(account, OutcomeEmpty)
			continue
		}

		candidate, found := Select(result.Posts, target, keyword, c.loc)
		if !found {
			log.Warn("expected article not found", "posts", len(result.Posts))
			c.record(account, OutcomeNoMatch)
			continue
		}

		log.Info("article matched", "title", logger.Preview(candidate.Title, 60))
		c.record(account, OutcomeMatched)
		return &Match{Account: account, Candidate: candidate}, nil
	}

	return nil, fmt.Errorf("%w for %s", ErrNoMatch, target.Format(digest.DateLayout))
}

// Select returns the first post whose title contains both the date phrase and
// keyword, and whose update time falls in the target's year and month.
func Select(posts []digest.Candidate, target time.Time, keyword string, loc *time.Location) (digest.Candidate, bool) {
	phrase := DatePhrase(target)
	for _, post := range posts {
		if !strings.Contains(post.Title, phrase) || !strings.Contains(post.Title, keyword) {
			continue
		}

		updated := time.Unix(post.UpdateTime, 0).In(loc)
		if updated.Year() == target.Year() && updated.Month() == target.Month() {
			return post, true
		}
	}
	return digest.Candidate{}, false
}

func (c *Coordinator) jitter() time.Duration {
	if c.config.MaxJitter <= 0 {
		return 0
	}
	return rand.N(c.config.MaxJitter)
}

func (c *Coordinator) record(account Account, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordQuery(account.Name, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
