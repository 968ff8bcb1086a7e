// Package dates extracts scholarship deadlines from free text with a strict
// "nil on any ambiguity" contract. Partial or malformed matches are never
// accepted.
package dates

import (
	"regexp"
	"time"
)

// MinLead is the minimum useful lead time for a deadline. Anything closer
// than now+MinLead is not actionable for an applicant.
const MinLead = 24 * time.Hour

var (
	isoRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthRe = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Parse parses an exact deadline string in YYYY-MM-DD or "Month DD, YYYY"
// form. Returns false for anything else, including real dates in other
// layouts: ambiguity is a failure, not a guess.
func Parse(s string) (time.Time, bool) {
	if m := isoRe.FindStringSubmatch(s); m != nil && m[0] == s {
		return parseISO(m)
	}
	if m := monthRe.FindStringSubmatch(s); m != nil && m[0] == s {
		return parseMonthDay(m)
	}
	return time.Time{}, false
}

// Extract scans free text (a search snippet, a model answer) for the first
// recognizable deadline. ISO dates win over prose dates when both appear.
// Returns nil when nothing parses cleanly.
func Extract(text string) *time.Time {
	if m := isoRe.FindStringSubmatch(text); m != nil {
		if t, ok := parseISO(m); ok {
			return &t
		}
	}
	if m := monthRe.FindStringSubmatch(text); m != nil {
		if t, ok := parseMonthDay(m); ok {
			return &t
		}
	}
	return nil
}

// TooSoon reports whether a deadline is within MinLead of now (or already
// past) and should therefore be dropped before it reaches the review queue.
func TooSoon(deadline, now time.Time) bool {
	return deadline.Before(now.Add(MinLead))
}

func parseISO(m []string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", m[0])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseMonthDay(m []string) (time.Time, bool) {
	month, ok := monthNames[lower(m[1])]
	if !ok {
		return time.Time{}, false
	}
	day := atoiSmall(m[2])
	year := atoiSmall(m[3])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func atoiSmall(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
