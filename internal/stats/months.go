// Package stats turns normalized connector records into per-month statistics.
//
// Everything here is pure: no I/O, no clock reads (callers pass now). Months are
// "YYYY-MM" strings in UTC. Averages with nothing to average are nil, never zero.
package stats

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/colthorp/teampulse-go/internal/core"
)

const day = 24 * time.Hour

// Bucket groups items by the month of the timestamp at returns.
func Bucket[T any](items []T, at func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, it := range items {
		m := core.MonthOf(at(it))
		out[m] = append(out[m], it)
	}
	return out
}

// MonthKeys returns the keys of a month-keyed map in ascending order.
func MonthKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortMonths(keys)
	return keys
}

// SortMonths sorts "YYYY-MM" strings by numeric year then numeric month.
// Unparseable values sort last, in their original relative order.
func SortMonths(months []string) {
	sort.SliceStable(months, func(i, j int) bool {
		yi, mi, oki := splitMonth(months[i])
		yj, mj, okj := splitMonth(months[j])
		switch {
		case !oki || !okj:
			return oki && !okj
		case yi != yj:
			return yi < yj
		default:
			return mi < mj
		}
	})
}

func splitMonth(s string) (year, month int, ok bool) {
	y, m, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, 0, false
	}
	month, err = strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, month, true
}

// MonthsBetween lists every month from start's month to end's month inclusive.
func MonthsBetween(start, end time.Time) []string {
	start, end = start.UTC(), end.UTC()
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []string
	for !cur.After(last) {
		months = append(months, cur.Format(core.MonthFmt))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// SpanMonths returns MonthsBetween the earliest and latest timestamps, or nil when empty.
func SpanMonths(times []time.Time) []string {
	if len(times) == 0 {
		return nil
	}
	lo, hi := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	return MonthsBetween(lo, hi)
}

// CeilDays is the number of days between from and to, rounded up.
func CeilDays(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(float64(d) / float64(day)))
}

// Days is the fractional number of days between from and to, rounded to two places.
func Days(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		d = -d
	}
	return math.Round(float64(d)/float64(day)*100) / 100
}
