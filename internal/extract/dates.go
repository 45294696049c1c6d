package extract

import (
	"strings"
	"time"
)

const (
	sortableLayout = "2006-01-02 15:04:05"
	dottedLayout   = "2006.01.02. 3:04"
)

var (
	pmMarkers = []string{"오후", "PM", "pm"}
	amMarkers = []string{"오전", "AM", "am"}
)

// DateNormalizer parses the publish-time strings found on article pages.
// Parse never fails: unreadable input yields the current time.
type DateNormalizer struct {
	loc *time.Location
	now func() time.Time
}

// NewDateNormalizer builds a normalizer that interprets wall-clock strings in
// loc. A nil now falls back to time.Now.
func NewDateNormalizer(loc *time.Location, now func() time.Time) *DateNormalizer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DateNormalizer{loc: loc, now: now}
}

// Parse handles "2006-01-02 15:04:05..." and "2006.01.02. 오후 3:04" shapes.
func (d *DateNormalizer) Parse(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return d.now()
	}
	if strings.Contains(s, "-") && strings.Contains(s, ":") && len(s) >= len(sortableLayout) {
		t, err := time.ParseInLocation(sortableLayout, s[:len(sortableLayout)], d.loc)
		if err != nil {
			return d.now()
		}
		return t
	}
	return d.parseDotted(s)
}

func (d *DateNormalizer) parseDotted(s string) time.Time {
	pm := containsAny(s, pmMarkers)
	am := !pm && containsAny(s, amMarkers)
	for _, m := range pmMarkers {
		s = strings.ReplaceAll(s, m, " ")
	}
	for _, m := range amMarkers {
		s = strings.ReplaceAll(s, m, " ")
	}
	s = strings.Join(strings.Fields(s), " ")

	t, err := time.ParseInLocation(dottedLayout, s, d.loc)
	if err != nil {
		return d.now()
	}
	switch {
	case pm && t.Hour() != 12:
		t = t.Add(12 * time.Hour)
	case am && t.Hour() == 12:
		t = t.Add(-12 * time.Hour)
	}
	return t
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
