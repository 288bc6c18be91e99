package extract

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips article markup down to text structure and images before
// it is sent for AI extraction. Scripts, styles, inline event handlers and
// presentational attributes are removed, which keeps requests small.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the markup policy.
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "section", "div", "span", "strong", "em", "b", "i",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote",
	)

	// Article images are lazy-loaded, so data-src usually holds the real URL
	p.AllowAttrs("src", "data-src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)

	return &Sanitizer{policy: p}
}

// Sanitize returns the cleaned markup.
func (s *Sanitizer) Sanitize(markup string) string {
	return s.policy.Sanitize(markup)
}
