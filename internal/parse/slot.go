package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	capacityRe = regexp.MustCompile(`(\d+)`)
	fullRe     = regexp.MustCompile(`(?i)\b(?:fully\s+booked|no\s+(?:slots?|appointments?)|unavailable|none)\b`)
	ordinalRe  = regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)\b`)
)

// Canonical layouts stored on appointment slots.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, 2 Jan 2006",
}

var timeLayouts = []string{
	TimeLayout,
	"15:04:05",
	"3:04 PM",
	"03:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// clean collapses whitespace and drops ordinal suffixes ("15th" -> "15").
func clean(raw string) string {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	return ordinalRe.ReplaceAllString(s, "$1")
}

// SlotDate converts a portal date string into YYYY-MM-DD.
// Day-first is assumed for numeric dates, which is what the portal renders.
func SlotDate(raw string) (string, error) {
	s := clean(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unable to parse appointment date: %q", raw)
}

// SlotTime converts a portal time string into 24h HH:MM.
func SlotTime(raw string) (string, error) {
	s := strings.ToUpper(clean(raw))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("unable to parse appointment time: %q", raw)
}

// Capacity extracts the number of open places from an availability label
// such as "3 slots available". Explicit "fully booked" style labels yield 0.
func Capacity(raw string) (int, error) {
	s := clean(raw)
	if fullRe.MatchString(s) {
		return 0, nil
	}
	m := capacityRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unable to parse capacity: %q", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("unable to parse capacity: %q: %w", raw, err)
	}
	return n, nil
}
