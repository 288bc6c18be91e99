// Package extract turns an article page into a digest.Article. Two strategies
// exist, an AI-assisted one and a rule-based one, and a Chain tries them in
// order until one produces news.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/logger"
)

// Strategy names
const (
	StrategyAI    = "ai"
	StrategyRules = "rules"
)

// Extraction outcomes reported to an ExtractionRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeEmpty   = "empty"
)

// Custom errors for extraction
var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrEmptyExtraction  = errors.New("extraction produced no news")
	ErrNoMainContent    = errors.New("no main content found in article")
	ErrMissingAPIKey    = errors.New("no API key configured")
	ErrInvalidResponse  = errors.New("invalid extraction response")
)

// Extractor is one way of turning an article link into content.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, link string) (*digest.Article, error)
}

// ExtractionRecorder receives one outcome per strategy attempt.
type ExtractionRecorder interface {
	RecordExtraction(strategy, outcome string)
}

// Chain tries each extractor in order. The first one to return at least one
// news item wins.
type Chain struct {
	extractors []Extractor
	log        *logger.Logger
	recorder   ExtractionRecorder
}

// NewChain creates a chain over extractors, tried in the given order.
func NewChain(log *logger.Logger, extractors ...Extractor) *Chain {
	if log == nil {
		log = logger.Discard()
	}
	return &Chain{
		extractors: extractors,
		log:        log,
	}
}

// SetRecorder attaches a recorder for strategy outcomes.
func (c *Chain) SetRecorder(r ExtractionRecorder) {
	c.recorder = r
}

// Extract returns the first non-empty article along with the name of the
// strategy that produced it. When every strategy fails the error wraps
// ErrExtractionFailed; when the last strategy ran cleanly but found no news
// it wraps ErrEmptyExtraction.
func (c *Chain) Extract(ctx context.Context, link string) (*digest.Article, string, error) {
	var errs []error
	emptyLast := false

	for _, ex := range c.extractors {
		log := c.log.With("strategy", ex.Name())

		article, err := ex.Extract(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			log.Warn("extraction strategy failed", "error", err)
			c.record(ex.Name(), OutcomeFailure)
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			emptyLast = false
			continue
		}

		if article == nil || len(article.News) == 0 {
			log.Warn("extraction strategy found no news")
			c.record(ex.Name(), OutcomeEmpty)
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), ErrEmptyExtraction))
			emptyLast = true
			continue
		}

		log.Info("extracted article", "news", len(article.News))
		c.record(ex.Name(), OutcomeSuccess)
		return article, ex.Name(), nil
	}

	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no strategies configured", ErrExtractionFailed)
	}
	if emptyLast {
		return nil, "", fmt.Errorf("%w: %w", ErrEmptyExtraction, errors.Join(errs...))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrExtractionFailed, errors.Join(errs...))
}

func (c *Chain) record(strategy, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordExtraction(strategy, outcome)
	}
}

// cleanList trims every item and drops empty ones.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
