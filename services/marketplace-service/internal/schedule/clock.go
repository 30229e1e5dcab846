package schedule

import (
	"fmt"
	"strings"
	"time"
)

// ParseClock parses a strict "HH:MM" wall-clock string into minutes from
// midnight. Malformed input is an error; availability configuration is
// validated at write time rather than silently coerced at read time.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	hour, ok := twoDigits(parts[0])
	if !ok || hour > 23 {
		return 0, fmt.Errorf("invalid hour in clock time %q", s)
	}
	minute, ok := twoDigits(parts[1])
	if !ok || minute > 59 {
		return 0, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return hour*60 + minute, nil
}

// twoDigits reads exactly two ASCII digits; signs and spaces are malformed.
func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// DayBounds returns the half-open [00:00, next midnight) interval of the
// calendar day containing t in the given location. Using AddDate instead of
// a fixed 24h keeps the bound correct across DST transitions.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// MinuteOfDay converts a minutes-from-midnight offset on the calendar day of
// day (interpreted in loc) to an absolute instant.
func MinuteOfDay(day time.Time, minute int, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), minute/60, minute%60, 0, 0, loc)
}
