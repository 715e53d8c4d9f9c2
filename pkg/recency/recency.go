// Package recency pulls publication years out of unstructured text and
// decides whether text talks about recent events.
package recency

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinYear is the oldest year the extractor will report.
const MinYear = 2000

// yearPatterns are tried in order. The first pattern with an in-range match
// wins, even if a later pattern would find a newer year.
var yearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)published\s+in\s+(\d{4})\b`),
	regexp.MustCompile(`(?i)published:\s*(\d{4})\b`),
	regexp.MustCompile(`©\s*(\d{4})\b`),
	regexp.MustCompile(`\((\d{4})\)`),
	regexp.MustCompile(`\b(\d{4})\b`),
}

// Extractor finds years relative to a clock.
type Extractor struct {
	Now func() time.Time
}

// New returns an Extractor using the wall clock.
func New() *Extractor {
	return &Extractor{Now: time.Now}
}

// CurrentYear is the upper bound for extracted years.
func (e *Extractor) CurrentYear() int {
	if e == nil || e.Now == nil {
		return time.Now().Year()
	}
	return e.Now().Year()
}

// ExtractYear returns the most specific plausible publication year in text.
// Years outside [MinYear, current year] are ignored.
func (e *Extractor) ExtractYear(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	maxYear := e.CurrentYear()
	for _, re := range yearPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			y, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if y >= MinYear && y <= maxYear {
				return m[1], true
			}
		}
	}
	return "", false
}

// HasRecencyKeyword reports whether text mentions "recent", "latest", "new",
// the current year or the previous year. Matching is case-insensitive
// substring matching, so "news" and "renewal" count too.
func (e *Extractor) HasRecencyKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range e.Keywords() {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Keywords returns the terms HasRecencyKeyword looks for.
func (e *Extractor) Keywords() []string {
	y := e.CurrentYear()
	return []string{"recent", "latest", "new", strconv.Itoa(y), strconv.Itoa(y - 1)}
}

var std = New()

// ExtractYear calls ExtractYear on an Extractor using the wall clock.
func ExtractYear(text string) (string, bool) { return std.ExtractYear(text) }

// HasRecencyKeyword calls HasRecencyKeyword on an Extractor using the wall
// clock.
func HasRecencyKeyword(text string) bool { return std.HasRecencyKeyword(text) }
