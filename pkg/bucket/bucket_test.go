package bucket

import (
	"sort"
	"testing"
	"time"
)

func TestKeyFormats(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 9, 5, 42, 0, time.UTC)

	if got := Day(ts); got != "2025-03-07" {
		t.Errorf("Day = %q, want 2025-03-07", got)
	}
	if got := Hour(ts); got != "2025-03-07-09" {
		t.Errorf("Hour = %q, want 2025-03-07-09", got)
	}
	if got := Minute(ts); got != "2025-03-07-09-05" {
		t.Errorf("Minute = %q, want 2025-03-07-09-05", got)
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"monday maps to itself", time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC), "2025-03-03"},
		{"friday maps to monday", time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC), "2025-03-03"},
		{"sunday belongs to prior monday", time.Date(2025, time.March, 9, 23, 59, 0, 0, time.UTC), "2025-03-03"},
		{"crosses month boundary", time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), "2025-03-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekStart(tt.t); got != tt.want {
				t.Errorf("WeekStart(%v) = %q, want %q", tt.t, got, tt.want)
			}
		})
	}
}

func TestDayOffset(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC)

	if got := DayOffset(ts, -8); got != "2025-02-27" {
		t.Errorf("DayOffset(-8) = %q, want 2025-02-27", got)
	}
	if got := DayOffset(ts, 0); got != "2025-03-07" {
		t.Errorf("DayOffset(0) = %q, want 2025-03-07", got)
	}
}

func TestTrailingMinutes(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 0, 2, 30, 0, time.UTC)

	keys := TrailingMinutes(ts, 5)
	if len(keys) != 5 {
		t.Fatalf("got %d keys, want 5", len(keys))
	}

	want := []string{
		"2025-03-07-00-02",
		"2025-03-07-00-01",
		"2025-03-07-00-00",
		"2025-03-06-23-59",
		"2025-03-06-23-58",
	}
	for i, k := range keys {
		if k != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, k, want[i])
		}
	}
}

func TestKeysSortInTimeOrder(t *testing.T) {
	// Lexicographic order must match chronological order across the
	// padding-sensitive boundaries (hour 9 vs 10, day 9 vs 10).
	times := []time.Time{
		time.Date(2025, time.March, 9, 9, 59, 0, 0, time.UTC),
		time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
	}

	var keys []string
	for _, ts := range times {
		keys = append(keys, Minute(ts))
	}

	if !sort.StringsAreSorted(keys) {
		t.Errorf("minute keys not sorted lexicographically: %v", keys)
	}
}
