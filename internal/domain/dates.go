package domain

import (
	"strings"
	"time"
)

// DefaultDateLayouts are tried in order when parsing panel dates.
// ISO forms come first; slash dates are read day-first.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// ParseDate parses raw with the first matching layout. The result carries the
// wall clock of raw in UTC, so an offset never moves the calendar date.
// ok is false for empty or unparseable input.
func ParseDate(raw string, layouts []string) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), parsed.Nanosecond(), time.UTC), true
		}
	}
	return time.Time{}, false
}
