// Package schedule holds the pure temporal logic of the engine: resolving a
// task's due instant, bucketing it against "now", and advancing recurring
// due dates. Every function takes its reference time explicitly so callers
// stay deterministic under an injected clock.
package schedule

import (
	"fmt"
	"time"

	"taskpulse/internal/domain"
)

const (
	// DateLayout is the calendar-date wire format for due dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the time-of-day wire format for due times.
	TimeLayout = "15:04"
)

// Bucket is the classification of a due instant relative to now.
type Bucket int

const (
	NoDueDate Bucket = iota
	Overdue
	DueToday
	DueTomorrow
	DueInDays
	DueThisYear
	DueFutureYear
)

// Classification is a derived, cache-free projection. It is never stored.
type Classification struct {
	Bucket Bucket
	// Days is the day distance: days overdue for Overdue, days ahead for
	// DueInDays. Zero otherwise.
	Days  int
	Due   time.Time
	Label string
}

// ParseDate parses a calendar date in the canonical zone. Malformed input
// fails closed: callers treat !ok as "no due date".
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// DueInstant resolves the single due instant of a task: due date combined
// with due time when present, else end-of-day of the due date.
func DueInstant(t domain.Task, loc *time.Location) (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	day, ok := ParseDate(*t.DueDate, loc)
	if !ok {
		return time.Time{}, false
	}
	if t.DueTime != nil {
		tod, err := time.Parse(TimeLayout, *t.DueTime)
		if err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), true
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999_000_000, loc), true
}

// Classify buckets a task's due instant against now. Completed tasks are
// never Overdue; a task due exactly at now is DueToday.
func Classify(t domain.Task, now time.Time) Classification {
	loc := now.Location()
	due, ok := DueInstant(t, loc)
	if !ok {
		return Classification{Bucket: NoDueDate}
	}
	today := startOfDay(now)
	dueDay := startOfDay(due)
	dayDiff := daysBetween(today, dueDay)

	if due.Before(now) && t.Status != domain.StatusCompleted {
		overdueDays := -dayDiff
		return Classification{
			Bucket: Overdue,
			Days:   overdueDays,
			Due:    due,
			Label:  overdueLabel(overdueDays),
		}
	}

	switch {
	case dayDiff == 0:
		return Classification{Bucket: DueToday, Due: due, Label: "Today"}
	case dayDiff == 1:
		return Classification{Bucket: DueTomorrow, Due: due, Label: "Tomorrow"}
	case dayDiff > 1 && dayDiff < 7:
		return Classification{Bucket: DueInDays, Days: dayDiff, Due: due, Label: due.Weekday().String()}
	case due.Year() == now.Year():
		return Classification{Bucket: DueThisYear, Due: due, Label: due.Format("Jan 2")}
	default:
		return Classification{Bucket: DueFutureYear, Due: due, Label: due.Format("Jan 2, 2006")}
	}
}

func overdueLabel(days int) string {
	switch {
	case days <= 0:
		return "Overdue"
	case days == 1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", days)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b. Rounding absorbs DST
// transitions where a "day" is 23 or 25 hours long.
func daysBetween(a, b time.Time) int {
	h := b.Sub(a).Hours()
	if h < 0 {
		return -int((-h + 12) / 24)
	}
	return int((h + 12) / 24)
}
