package extract

import (
	"context"
	"strings"

	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/normalize"
	"golang.org/x/net/html"
)

// blockElements end the current line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "br": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "hr": true, "tr": true,
}

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// token is either a line of text or an image reference, in document order.
type token struct {
	text  string
	image string
}

// RuleExtractor pulls news items out of the article's text nodes using fixed
// patterns: numbered lines are news, a 【微语】-style line is the tip, the
// first image before the news is the cover and the first image after a
// "图片版" heading is the image version.
type RuleExtractor struct {
	fetcher *Fetcher
}

// NewRuleExtractor creates the rule-based strategy.
func NewRuleExtractor(fetcher *Fetcher) *RuleExtractor {
	return &RuleExtractor{fetcher: fetcher}
}

// Name implements Extractor.
func (r *RuleExtractor) Name() string {
	return StrategyRules
}

// Extract fetches the article and applies the extraction rules to its main
// content. Every item is normalized.
func (r *RuleExtractor) Extract(ctx context.Context, link string) (*digest.Article, error) {
	doc, err := r.fetcher.Document(ctx, link)
	if err != nil {
		return nil, err
	}

	main, err := MainContent(doc)
	if err != nil {
		return nil, err
	}

	var tokens []token
	for _, n := range main.Nodes {
		tokens = append(tokens, tokenize(n)...)
	}

	return parseTokens(tokens), nil
}

// parseTokens applies the extraction rules to a token stream.
func parseTokens(tokens []token) *digest.Article {
	article := &digest.Article{News: []string{}}

	var news []string
	wantTip := false
	wantImage := false
	for _, tok := range tokens {
		if tok.image != "" {
			switch {
			case wantImage && article.Image == "":
				article.Image = tok.image
				wantImage = false
			case len(news) == 0 && article.Cover == "":
				article.Cover = tok.image
			}
			continue
		}

		line := tok.text
		switch {
		case wantTip:
			article.Tip = line
			wantTip = false
		case normalize.IsNumbered(line):
			news = append(news, line)
		case strings.Contains(line, "图片版"):
			wantImage = true
		default:
			if tip, ok := normalize.Tip(line); ok {
				if tip == "" {
					wantTip = true
				} else {
					article.Tip = tip
				}
			}
		}
	}

	article.News = normalize.Items(news)
	article.Tip = normalize.Text(article.Tip)
	return article
}

// tokenize walks n and splits its text into lines at block boundaries.
// Images become their own tokens.
func tokenize(n *html.Node) []token {
	var tokens []token
	var line strings.Builder

	flush := func() {
		if text := strings.TrimSpace(line.String()); text != "" {
			tokens = append(tokens, token{text: text})
		}
		line.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			line.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
			if n.Data == "img" {
				if src := imageSource(n); src != "" {
					flush()
					tokens = append(tokens, token{image: src})
				}
				return
			}
		}

		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}

	walk(n)
	flush()
	return tokens
}

// imageSource prefers the lazy-load source over src.
func imageSource(n *html.Node) string {
	var src string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "data-src":
			if v := strings.TrimSpace(attr.Val); v != "" {
				return v
			}
		case "src":
			src = strings.TrimSpace(attr.Val)
		}
	}
	if strings.HasPrefix(src, "data:") {
		return ""
	}
	return src
}
