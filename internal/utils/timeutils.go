package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var windowPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseWindow converts strings such as "30s", "5m", "24h" or "30d" into a duration.
func ParseWindow(value string) (time.Duration, error) {
	match := windowPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, NewAppError("parse window", fmt.Sprintf("%q must match <digits><s|m|h|d>", value), ErrInvalidWindow)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, NewAppError("parse window", fmt.Sprintf("%q is out of range", value), ErrInvalidWindow)
	}
	if n == 0 {
		return 0, NewAppError("parse window", fmt.Sprintf("%q must be positive", value), ErrInvalidWindow)
	}

	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64(1<<62)/int64(unit) {
		return 0, NewAppError("parse window", fmt.Sprintf("%q is out of range", value), ErrInvalidWindow)
	}
	return time.Duration(n) * unit, nil
}

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// WindowRange returns [end-window, end) with end truncated to align.
func WindowRange(end time.Time, window, align time.Duration) (time.Time, time.Time) {
	if align > 0 {
		end = end.Truncate(align)
	}
	return end.Add(-window), end
}
