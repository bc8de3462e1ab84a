package scheduler

import (
	"testing"
	"time"
)

func TestMonthlyRecurrenceKeepsAnchorDay(t *testing.T) {
	cfg := map[string]any{"frequency": "monthly"}
	from := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

	next, err := nextOccurrence(from, from, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("february should clamp to the 29th in a leap year, got %v", next)
	}

	// The original day-of-month is remembered, so March returns to 31.
	next, err = nextOccurrence(next, next, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("march should restore the anchor day, got %v", next)
	}

	next, err = nextOccurrence(next, next, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("april should clamp to the 30th, got %v", next)
	}
}

func TestMonthlyRecurrenceNonLeapFebruary(t *testing.T) {
	cfg := map[string]any{"frequency": "monthly", "day_of_month": 31}
	from := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	next, err := nextOccurrence(from, from, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("non-leap february should clamp to the 28th, got %v", next)
	}
}

func TestMonthlyRecurrenceYearRollover(t *testing.T) {
	cfg := map[string]any{"frequency": "monthly"}
	from := time.Date(2026, 12, 15, 8, 0, 0, 0, time.UTC)

	next, err := nextOccurrence(from, from, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2027, 1, 15, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("december should roll into january, got %v", next)
	}
}

func TestDailyRecurrenceCatchesUp(t *testing.T) {
	cfg := map[string]any{"frequency": "daily"}
	from := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	next, err := nextOccurrence(from, now, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2026, 1, 11, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("stale daily schedule should skip to the next future slot, got %v", next)
	}
}

func TestWeeklyRecurrenceInterval(t *testing.T) {
	cfg := map[string]any{"frequency": "weekly", "interval": 2}
	from := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // Monday

	next, err := nextOccurrence(from, from, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("biweekly should advance 14 days, got %v", next)
	}
	if next.Weekday() != time.Monday {
		t.Fatalf("weekday should be preserved, got %v", next.Weekday())
	}
}

func TestCronRecurrence(t *testing.T) {
	cfg := map[string]any{"frequency": "cron", "expression": "30 9 * * 1"}
	from := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC) // Monday 09:30

	next, err := nextOccurrence(from, from, cfg)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Equal(time.Date(2026, 1, 12, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("cron should land on next monday 09:30, got %v", next)
	}
}

func TestRecurrenceErrors(t *testing.T) {
	from := time.Now()
	cases := []struct {
		name string
		cfg  map[string]any
	}{
		{"unknown frequency", map[string]any{"frequency": "fortnightly"}},
		{"missing frequency", map[string]any{}},
		{"cron without expression", map[string]any{"frequency": "cron"}},
		{"cron bad expression", map[string]any{"frequency": "cron", "expression": "not cron"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := nextOccurrence(from, from, tc.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	if daysInMonth(2024, 2) != 29 {
		t.Fatal("2024 is a leap year")
	}
	if daysInMonth(2100, 2) != 28 {
		t.Fatal("2100 is not a leap year")
	}
	if daysInMonth(2000, 2) != 29 {
		t.Fatal("2000 is a leap year")
	}
	if daysInMonth(2026, 11) != 30 || daysInMonth(2026, 12) != 31 {
		t.Fatal("fixed month lengths wrong")
	}
}
