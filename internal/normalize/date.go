// Package normalize holds the shared primitives every extractor relies on:
// date-format resolution, amount cleaning, and column keyword matching.
package normalize

import (
	"strings"
	"time"
)

// dateFormats is the priority list of formats seen in Indian bank
// statements. Day-first formats come before month-first on purpose: an
// ambiguous 03/04/2024 is read as 3 April.
var dateFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2006-01-02",
	"1/2/2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 Jan 06",
	"2-Jan-06",
	"2Jan2006",
	"2Jan06",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
}

// ParseDate tries each known format in priority order and returns the
// parsed date truncated to midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Two-digit-year layouts park dates in the right century already;
		// reject anything implausible like year 0 from partial matches.
		if t.Year() < 1990 || t.Year() > 2100 {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
