package scanning

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
	"2006-1-2 15:04:05",
}

// ParseDate parses a receipt timestamp such as "07.02.2026 11:32".
// Any run of whitespace may separate the date from the time.
// Receipts carry no zone, so the wall-clock value is returned in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
