package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	mdRegex  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	relRegex = regexp.MustCompile(`^([dwmy])-(\d+)$`)
)

// timestampLayouts are the shapes upstream APIs use for creation/close times.
// The issue tracker emits offsets without a colon (+0300).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	APIDatetimeFmt,
	APIDateFmt,
}

// ParseDate parses a YYYY-MM-DD string into a time.Time (date only, at midnight UTC).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(APIDateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseTimestamp parses an upstream timestamp in any of the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp '%s'", s)
}

// ParseDateSpec returns a concrete date for flexible spec strings relative to now.
// Supports:
// 1. Exact YYYY-MM-DD
// 2. M/D or MM/DD (most recent past occurrence)
// 3. Relative forms like d-7 (days), w-2 (weeks), m-3 (months), y-1 (years)
// 4. today, yesterday
func ParseDateSpec(spec string, now time.Time) (time.Time, error) {
	today := DateOnly(now)

	switch strings.ToLower(spec) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	// 1. YYYY-MM-DD
	if t, err := time.Parse(APIDateFmt, spec); err == nil {
		return t, nil
	}

	// 2. M/D or MM/DD
	if matches := mdRegex.FindStringSubmatch(spec); matches != nil {
		month, _ := strconv.Atoi(matches[1])
		day, _ := strconv.Atoi(matches[2])
		target := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if target.After(today) {
			target = time.Date(now.Year()-1, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
		return target, nil
	}

	// 3. Relative d/w/m/y-N
	if matches := relRegex.FindStringSubmatch(strings.ToLower(spec)); matches != nil {
		num, _ := strconv.Atoi(matches[2])

		switch matches[1] {
		case "d":
			return today.AddDate(0, 0, -num), nil
		case "w":
			return today.AddDate(0, 0, -num*7), nil
		case "m":
			return today.AddDate(0, -num, 0), nil
		case "y":
			return today.AddDate(-num, 0, 0), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date specification: '%s'", spec)
}

// GetTimeRange returns the (start, end) dates of a named period relative to now.
// Supported periods: this-week, last-week, this-month, last-month, this-quarter,
// last-quarter, this-year, last-year.
func GetTimeRange(period string, now time.Time) (time.Time, time.Time, error) {
	today := DateOnly(now)

	weekStart := func() time.Time {
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return today.AddDate(0, 0, -(weekday - 1))
	}

	switch period {
	case "this-week":
		start := weekStart()
		return start, start.AddDate(0, 0, 6), nil

	case "last-week":
		start := weekStart().AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6), nil

	case "this-month":
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, -1), nil

	case "last-month":
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, -1), nil

	case "this-quarter":
		q := (int(today.Month()) - 1) / 3
		first := time.Date(today.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 3, -1), nil

	case "last-quarter":
		q := (int(today.Month()) - 1) / 3
		var first time.Time
		if q == 0 {
			first = time.Date(today.Year()-1, time.October, 1, 0, 0, 0, 0, time.UTC)
		} else {
			first = time.Date(today.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		}
		return first, first.AddDate(0, 3, -1), nil

	case "this-year":
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(1, 0, -1), nil

	case "last-year":
		first := time.Date(today.Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(1, 0, -1), nil
	}

	return time.Time{}, time.Time{}, fmt.Errorf("unknown period: %s", period)
}

// DateOnly returns a time.Time with only the date portion (midnight UTC).
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(APIDateFmt)
}

// MonthOf returns the YYYY-MM bucket of t in UTC.
func MonthOf(t time.Time) string {
	return t.UTC().Format(MonthFmt)
}
