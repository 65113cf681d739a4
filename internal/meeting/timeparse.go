package meeting

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// minYear is the earliest year ParseTime accepts. dateparse fills a missing year with
// zero, so fragments like "10:" would otherwise parse.
const minYear = 1900

// ParseTime parses an ISO-8601 timestamp, falling back to dateparse for the looser
// formats some sources emit. Zone-less values are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, t.Year() >= minYear
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.Year() < minYear {
		return time.Time{}, false
	}
	return t, true
}
