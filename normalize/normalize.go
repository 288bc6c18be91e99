// Package normalize cleans up news items and pull-quotes extracted from a
// digest article. Every function here is pure and idempotent.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// numbering matches one or more leading ordinal markers such as "3、".
	numbering = regexp.MustCompile(`^(?:\d+、\s*)+`)

	// promotion matches the account's promotional suffix, e.g.
	// "；公众号：每天100秒读懂世界".
	promotion = regexp.MustCompile(`[;；]?(?:公众号)?\s*[:：]?\s*[^；;]+?\s*100\s*秒(?:读懂世界|知天下)\s*[;；]?\s*$`)

	// trailing matches sentence-final punctuation at the end of an item.
	trailing = regexp.MustCompile(`(?:[；！～。，]\s*)+$`)

	// tipPrefix matches the marker that introduces the pull-quote.
	tipPrefix = regexp.MustCompile(`^【(?:[今每]日)?(?:微语|金句)】`)
)

// Text applies every normalization rule to s: leading numbering, the
// promotional suffix and trailing punctuation are stripped, then spacing is
// inserted between CJK and Latin text.
func Text(s string) string {
	s = strings.TrimSpace(s)

	// Stripping one rule can expose another, so repeat until nothing changes.
	for {
		prev := s
		s = numbering.ReplaceAllString(s, "")
		s = promotion.ReplaceAllString(s, "")
		s = trailing.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == prev {
			break
		}
	}

	return Spacing(s)
}

// Items normalizes each item and drops the ones that end up empty.
func Items(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if n := Text(item); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// IsNumbered reports whether s starts with an ordinal marker like "12、".
func IsNumbered(s string) bool {
	return numbering.MatchString(strings.TrimSpace(s))
}

// Tip returns the text following a pull-quote marker such as "【微语】". The
// second result is false when s does not start with such a marker.
func Tip(s string) (string, bool) {
	s = strings.TrimSpace(s)
	loc := tipPrefix.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(s[loc[1]:]), true
}

// Spacing inserts a single space at each boundary between a CJK character and
// an ASCII letter or digit. "%" and "℃" count as Latin on their left-hand
// side, so "22%的" becomes "22% 的" while "22%" and "12℃" stay intact.
func Spacing(s string) string {
	runes := []rune(s)
	if len(runes) < 2 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	b.WriteRune(runes[0])
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		if (isCJK(prev) && isLatin(cur)) || (isLatinOrUnit(prev) && isCJK(cur)) {
			b.WriteByte(' ')
		}
		b.WriteRune(cur)
	}
	return b.String()
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Bopomofo)
}

func isLatin(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isLatinOrUnit(r rune) bool {
	return isLatin(r) || r == '%' || r == '℃'
}
