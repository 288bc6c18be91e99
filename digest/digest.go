package digest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the layout of a record's date key.
const DateLayout = "2006-01-02"

// TimeLayout is the layout of the human-readable created/updated fields.
const TimeLayout = "2006/01/02 15:04:05"

// ErrInvalidDate is returned when a date key is not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date format, expect: YYYY-MM-DD")

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Candidate is a search result that may correspond to a target date's
// digest. Timestamps are epoch seconds, as reported by the upstream source.
type Candidate struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	Cover      string `json:"cover"`
	CreateTime int64  `json:"create_time"`
	UpdateTime int64  `json:"update_time"`
}

// Article is the content extracted from a candidate's page. News order is
// significant and duplicates are kept.
type Article struct {
	News  []string `json:"news"`
	Cover string   `json:"cover"`
	Image string   `json:"image"`
	Tip   string   `json:"tip"`
}

// Audio holds optional audio references attached to a record.
type Audio struct {
	Music string `json:"music"`
	News  string `json:"news"`
}

// Record is the persisted digest for a single date. The field order here is
// the field order of the stored JSON document.
type Record struct {
	Date      string   `json:"date"`
	News      []string `json:"news"`
	Cover     string   `json:"cover"`
	Tip       string   `json:"tip"`
	Image     string   `json:"image"`
	Link      string   `json:"link"`
	Audio     *Audio   `json:"audio,omitempty"`
	Created   string   `json:"created"`
	CreatedAt int64    `json:"created_at"`
	Updated   string   `json:"updated"`
	UpdatedAt int64    `json:"updated_at"`
}

// ValidateDate reports whether s is a well-formed date key.
func ValidateDate(s string) error {
	if !dateFormat.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return nil
}

// ParseDate validates s and returns the calendar date it names, at midnight
// in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if err := ValidateDate(s); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// Today returns the current date key in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// FormatTime renders an epoch-seconds timestamp as YYYY/MM/DD HH:mm:ss in loc.
func FormatTime(epochSeconds int64, loc *time.Location) string {
	return time.Unix(epochSeconds, 0).In(loc).Format(TimeLayout)
}

// SanitizeLink drops the tracking suffix that starts at "&chksm=".
func SanitizeLink(link string) string {
	before, _, _ := strings.Cut(link, "&chksm=")
	return before
}
