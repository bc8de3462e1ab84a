package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"taskflow/internal/storage"
)

// Event is a time-keyed record that, when due, is converted into an
// engine event. Identity is stable across recurrences: when a recurring
// event fires, the record for its id is replaced with the next
// occurrence, not retired.
type Event struct {
	ID               string
	EventType        string
	ScheduledTime    time.Time
	Data             map[string]any
	Recurring        bool
	RecurrenceConfig map[string]any
}

func (e *Event) clone() *Event {
	cp := *e
	return &cp
}

// Record converts the event into its persisted snapshot.
func (e *Event) Record() storage.EventRecord {
	return storage.EventRecord{
		ID:               e.ID,
		EventType:        e.EventType,
		ScheduledTime:    e.ScheduledTime.Format(storage.TimeLayout),
		Data:             e.Data,
		Recurring:        e.Recurring,
		RecurrenceConfig: e.RecurrenceConfig,
	}
}

func eventFromRecord(rec storage.EventRecord) (*Event, error) {
	at, err := time.Parse(storage.TimeLayout, rec.ScheduledTime)
	if err != nil {
		return nil, fmt.Errorf("scheduled_time: %w", err)
	}
	return &Event{
		ID:               rec.ID,
		EventType:        rec.EventType,
		ScheduledTime:    at,
		Data:             rec.Data,
		Recurring:        rec.Recurring,
		RecurrenceConfig: rec.RecurrenceConfig,
	}, nil
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// nextOccurrence computes the next fire time strictly following from,
// advanced until it is >= now so a stale past occurrence never fires.
//
// Monthly recurrence anchors the intended day-of-month: the first
// advance records the original day in the config, and every later
// occurrence re-clamps from that anchor. Scheduling Jan 31 therefore
// yields Feb 29 (leap year) or Feb 28, then Mar 31 again.
func nextOccurrence(from, now time.Time, cfg map[string]any) (time.Time, error) {
	freq, _ := cfg["frequency"].(string)
	interval := intOr(cfg["interval"], 1)
	if interval < 1 {
		interval = 1
	}

	switch freq {
	case "daily":
		next := from.AddDate(0, 0, interval)
		for next.Before(now) {
			next = next.AddDate(0, 0, interval)
		}
		return next, nil

	case "weekly":
		next := from.AddDate(0, 0, 7*interval)
		for next.Before(now) {
			next = next.AddDate(0, 0, 7*interval)
		}
		return next, nil

	case "monthly":
		anchor := intOr(cfg["day_of_month"], 0)
		if anchor == 0 {
			anchor = from.Day()
			cfg["day_of_month"] = anchor
		}
		next := addMonthsClamped(from, interval, anchor)
		for next.Before(now) {
			next = addMonthsClamped(next, interval, anchor)
		}
		return next, nil

	case "cron":
		expr, _ := cfg["expression"].(string)
		if expr == "" {
			return time.Time{}, errors.New("cron recurrence requires expression")
		}
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron expression: %w", err)
		}
		next := sched.Next(from)
		for next.Before(now) {
			next = sched.Next(next)
		}
		if next.IsZero() {
			return time.Time{}, errors.New("cron expression yields no next occurrence")
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("unknown recurrence frequency %q", freq)
	}
}

// addMonthsClamped adds months by carrying the month field directly,
// then clamps the anchor day to the target month's true last day.
// time.AddDate is unsuitable here: it normalizes Jan 31 + 1 month into
// Mar 2 or 3 instead of clamping to February.
func addMonthsClamped(t time.Time, months, anchorDay int) time.Time {
	year := t.Year()
	month := int(t.Month()) + months
	for month > 12 {
		month -= 12
		year++
	}
	day := anchorDay
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, time.Month(month), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 30
	}
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
