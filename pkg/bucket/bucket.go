package bucket

import "time"

// Key layouts. Zero-padded components keep keys lexicographically ordered
// by time, so range and prefix operations over buckets work on plain
// string comparison.
const (
	dayLayout    = "2006-01-02"
	hourLayout   = "2006-01-02-15"
	minuteLayout = "2006-01-02-15-04"
)

// Day returns the day bucket key for t, e.g. "2025-03-14".
func Day(t time.Time) string {
	return t.Format(dayLayout)
}

// Hour returns the hour bucket key for t, e.g. "2025-03-14-09".
func Hour(t time.Time) string {
	return t.Format(hourLayout)
}

// Minute returns the minute bucket key for t, e.g. "2025-03-14-09-05".
func Minute(t time.Time) string {
	return t.Format(minuteLayout)
}

// WeekStart returns the day bucket key of the Monday starting the week
// containing t. Sunday belongs to the week that started six days earlier.
func WeekStart(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(dayLayout)
}

// DayOffset returns the day bucket key for t shifted by days (negative
// values go back in time). Used by retention sweeps.
func DayOffset(t time.Time, days int) string {
	return t.AddDate(0, 0, days).Format(dayLayout)
}

// TrailingMinutes returns the minute bucket keys for t and the n-1
// preceding minutes, most recent first. The online-now estimate reads
// these as point lookups instead of scanning a distinct set.
func TrailingMinutes(t time.Time, n int) []string {
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, t.Add(-time.Duration(i)*time.Minute).Format(minuteLayout))
	}
	return keys
}
