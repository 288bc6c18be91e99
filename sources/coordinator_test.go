package sources

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pevans/dailybrief/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher returns canned results per account and records every query.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*Result
	errs    map[string]error
	queries []Query
}

func (f *fakeFetcher) FetchPosts(ctx context.Context, q Query) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if err := f.errs[q.Account.Name]; err != nil {
		return nil, err
	}
	if r, ok := f.results[q.Account.Name]; ok {
		return r, nil
	}
	return &Result{OK: true, Posts: []digest.Candidate{}}, nil
}

func (f *fakeFetcher) queried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.queries))
	for _, q := range f.queries {
		names = append(names, q.Account.Name)
	}
	return names
}

type fakeRecorder struct {
	outcomes map[string]string
}

func (r *fakeRecorder) RecordQuery(account, outcome string) {
	r.outcomes[account] = outcome
}

var shanghai = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
	return loc
}()

func targetDate(t *testing.T) time.Time {
	t.Helper()
	d, err := digest.ParseDate("2024-03-05", shanghai)
	require.NoError(t, err)
	return d
}

func post(title string, update time.Time) digest.Candidate {
	return digest.Candidate{
		Title:      title,
		Link:       "https://mp.weixin.qq.com/s?x=" + title,
		CreateTime: update.Unix(),
		UpdateTime: update.Unix(),
	}
}

func createTestCoordinator(accounts []Account, fetcher Fetcher) *Coordinator {
	c := NewCoordinator(accounts, map[string]Fetcher{
		KindWeChat: fetcher,
		KindFeed:   fetcher,
	}, SearchConfig{Count: 4}, shanghai, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestQueryText(t *testing.T) {
	target := targetDate(t)
	assert.Equal(t, "3月5日", DatePhrase(target))
	assert.Equal(t, "3月5日 读懂世界", QueryText(target, "读懂世界"))
}

// TestSearch_FirstMatchWins verifies B is never queried once A matches.
func TestSearch_FirstMatchWins(t *testing.T) {
	march := time.Date(2024, 3, 5, 7, 0, 0, 0, shanghai)
	fetcher := &fakeFetcher{results: map[string]*Result{
		"A": {OK: true, Posts: []digest.Candidate{post("3月5日 读懂世界 A", march)}},
		"B": {OK: true, Posts: []digest.Candidate{post("3月5日 读懂世界 B", march)}},
	}}
	c := createTestCoordinator([]Account{{Name: "A", SourceID: "a"}, {Name: "B", SourceID: "b"}}, fetcher)

	match, err := c.Search(context.Background(), targetDate(t))
	require.NoError(t, err)
	assert.Equal(t, "A", match.Account.Name)
	assert.Equal(t, "3月5日 读懂世界 A", match.Candidate.Title)
	assert.Equal(t, []string{"A"}, fetcher.queried())
}

// TestSearch_SkipsFailures verifies unavailable, failing, empty and
// non-matching sources are skipped in order.
func TestSearch_SkipsFailures(t *testing.T) {
	march := time.Date(2024, 3, 5, 7, 0, 0, 0, shanghai)
	fetcher := &fakeFetcher{
		results: map[string]*Result{
			"upstream-failure": {OK: false, Error: "invalid session"},
			"empty":            {OK: true, Posts: []digest.Candidate{}},
			"wrong":            {OK: true, Posts: []digest.Candidate{post("3月5日 其他", march)}},
			"good":             {OK: true, Posts: []digest.Candidate{post("3月5日 读懂世界", march)}},
		},
		errs: map[string]error{"broken": ErrSourceUnavailable},
	}
	recorder := &fakeRecorder{outcomes: map[string]string{}}
	accounts := []Account{
		{Name: "broken"}, {Name: "upstream-failure"}, {Name: "empty"}, {Name: "wrong"}, {Name: "good"},
	}
	c := createTestCoordinator(accounts, fetcher)
	c.SetRecorder(recorder)

	match, err := c.Search(context.Background(), targetDate(t))
	require.NoError(t, err)
	assert.Equal(t, "good", match.Account.Name)
	assert.Equal(t, []string{"broken", "upstream-failure", "empty", "wrong", "good"}, fetcher.queried())
	assert.Equal(t, map[string]string{
		"broken":           OutcomeUnavailable,
		"upstream-failure": OutcomeUnavailable,
		"empty":            OutcomeEmpty,
		"wrong":            OutcomeNoMatch,
		"good":             OutcomeMatched,
	}, recorder.outcomes)
}

func TestSearch_NoMatch(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := createTestCoordinator([]Account{{Name: "A"}, {Name: "B"}}, fetcher)

	match, err := c.Search(context.Background(), targetDate(t))
	assert.Nil(t, match)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Contains(t, err.Error(), "2024-03-05")
	assert.Equal(t, []string{"A", "B"}, fetcher.queried())
}

// TestSearch_QueryUsesAccountKeyword verifies the per-account keyword and
// the default keyword both reach the source.
func TestSearch_QueryUsesAccountKeyword(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := createTestCoordinator([]Account{{Name: "A", Keyword: "知天下"}, {Name: "B"}}, fetcher)

	_, err := c.Search(context.Background(), targetDate(t))
	require.ErrorIs(t, err, ErrNoMatch)

	require.Len(t, fetcher.queries, 2)
	assert.Equal(t, "3月5日 知天下", fetcher.queries[0].Text)
	assert.Equal(t, "3月5日 读懂世界", fetcher.queries[1].Text)
	assert.Equal(t, 4, fetcher.queries[0].Count)
}

func TestSearch_UnknownKindSkipped(t *testing.T) {
	march := time.Date(2024, 3, 5, 7, 0, 0, 0, shanghai)
	fetcher := &fakeFetcher{results: map[string]*Result{
		"B": {OK: true, Posts: []digest.Candidate{post("3月5日 读懂世界", march)}},
	}}
	c := NewCoordinator([]Account{{Name: "A", Kind: "carrier-pigeon"}, {Name: "B"}},
		map[string]Fetcher{KindWeChat: fetcher}, SearchConfig{}, shanghai, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	match, err := c.Search(context.Background(), targetDate(t))
	require.NoError(t, err)
	assert.Equal(t, "B", match.Account.Name)
}

// TestSearch_JitterBeforeEachAccount verifies a bounded delay precedes every
// query.
func TestSearch_JitterBeforeEachAccount(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := createTestCoordinator([]Account{{Name: "A"}, {Name: "B"}, {Name: "C"}}, fetcher)
	c.config.MaxJitter = 50 * time.Millisecond

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := c.Search(context.Background(), targetDate(t))
	require.ErrorIs(t, err, ErrNoMatch)

	require.Len(t, delays, 3)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}
}

func TestSearch_ContextCancelled(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := createTestCoordinator([]Account{{Name: "A"}}, fetcher)
	c.sleep = sleepContext
	c.config.MaxJitter = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, targetDate(t))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, fetcher.queried())
}

// TestSelect verifies the title and month rules.
func TestSelect(t *testing.T) {
	target := targetDate(t)
	march := time.Date(2024, 3, 5, 7, 0, 0, 0, shanghai)
	february := time.Date(2024, 2, 28, 7, 0, 0, 0, shanghai)
	lastYear := time.Date(2023, 3, 5, 7, 0, 0, 0, shanghai)

	tests := []struct {
		name  string
		posts []digest.Candidate
		want  string
		found bool
	}{
		{"match", []digest.Candidate{post("3月5日 读懂世界", march)}, "3月5日 读懂世界", true},
		{"missing keyword", []digest.Candidate{post("3月5日 早报", march)}, "", false},
		{"missing date", []digest.Candidate{post("3月6日 读懂世界", march)}, "", false},
		{"wrong month", []digest.Candidate{post("3月5日 读懂世界", february)}, "", false},
		{"wrong year", []digest.Candidate{post("3月5日 读懂世界", lastYear)}, "", false},
		{
			"first valid wins",
			[]digest.Candidate{
				post("3月5日 读懂世界 旧", february),
				post("3月5日 读懂世界 一", march),
				post("3月5日 读懂世界 二", march),
			},
			"3月5日 读懂世界 一",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Select(tt.posts, target, "读懂世界", shanghai)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got.Title)
		})
	}
}

// TestSelect_MonthBoundaryUsesLocation verifies the update time is compared in
// the configured timezone.
func TestSelect_MonthBoundaryUsesLocation(t *testing.T) {
	target, err := digest.ParseDate("2024-03-01", shanghai)
	require.NoError(t, err)

	// 2024-02-29 17:00 UTC is 2024-03-01 01:00 in Shanghai
	updated := time.Date(2024, 2, 29, 17, 0, 0, 0, time.UTC)
	_, found := Select([]digest.Candidate{post("3月1日 读懂世界", updated)}, target, "读懂世界", shanghai)
	assert.True(t, found)
}

func TestAccount_Validate(t *testing.T) {
	assert.NoError(t, Account{Name: "a", SourceID: "x"}.Validate())
	assert.NoError(t, Account{Name: "a", Kind: KindFeed, FeedURL: "https://x"}.Validate())
	assert.Error(t, Account{Name: "a"}.Validate())
	assert.Error(t, Account{Name: "a", Kind: KindFeed}.Validate())
	assert.ErrorIs(t, Account{Name: "a", Kind: "smoke", SourceID: "x"}.Validate(), ErrUnknownKind)
}
