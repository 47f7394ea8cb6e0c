package schedule

import (
	"testing"
	"time"

	"taskpulse/internal/domain"
)

func strptr(s string) *string { return &s }

func taskDue(date, tod string) domain.Task {
	t := domain.Task{Status: domain.StatusPending, DueDate: strptr(date)}
	if tod != "" {
		t.DueTime = strptr(tod)
	}
	return t
}

func TestClassifyBuckets(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		task   domain.Task
		bucket Bucket
		days   int
		label  string
	}{
		{"no due date", domain.Task{Status: domain.StatusPending}, NoDueDate, 0, ""},
		{"malformed date fails closed", taskDue("not-a-date", ""), NoDueDate, 0, ""},
		{"due later today", taskDue("2024-01-10", ""), DueToday, 0, "Today"},
		{"due earlier today is overdue", taskDue("2024-01-10", "09:00"), Overdue, 0, "Overdue"},
		{"due yesterday", taskDue("2024-01-09", ""), Overdue, 1, "1 day overdue"},
		{"due three days ago", taskDue("2024-01-07", ""), Overdue, 3, "3 days overdue"},
		{"due tomorrow", taskDue("2024-01-11", ""), DueTomorrow, 0, "Tomorrow"},
		{"due in five days shows weekday", taskDue("2024-01-15", ""), DueInDays, 5, "Monday"},
		{"due this year beyond a week", taskDue("2024-03-02", ""), DueThisYear, 0, "Mar 2"},
		{"due next year", taskDue("2025-03-02", ""), DueFutureYear, 0, "Mar 2, 2025"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(tc.task, now)
			if c.Bucket != tc.bucket {
				t.Fatalf("bucket = %v, want %v", c.Bucket, tc.bucket)
			}
			if c.Days != tc.days {
				t.Fatalf("days = %d, want %d", c.Days, tc.days)
			}
			if c.Label != tc.label {
				t.Fatalf("label = %q, want %q", c.Label, tc.label)
			}
		})
	}
}

func TestClassifyCompletedNeverOverdue(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	task := taskDue("2024-01-09", "")
	task.Status = domain.StatusCompleted
	c := Classify(task, now)
	if c.Bucket == Overdue {
		t.Fatalf("completed task classified overdue")
	}
}

func TestClassifyDueExactlyNowIsToday(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	c := Classify(taskDue("2024-01-10", "15:00"), now)
	if c.Bucket != DueToday {
		t.Fatalf("bucket = %v, want DueToday", c.Bucket)
	}
}

func TestDueInstantDefaultsToEndOfDay(t *testing.T) {
	due, ok := DueInstant(taskDue("2024-01-10", ""), time.UTC)
	if !ok {
		t.Fatal("expected instant")
	}
	want := time.Date(2024, 1, 10, 23, 59, 59, 999_000_000, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("instant = %v, want %v", due, want)
	}
}

func TestDueInstantCombinesDateAndTime(t *testing.T) {
	due, ok := DueInstant(taskDue("2024-01-10", "15:00"), time.UTC)
	if !ok {
		t.Fatal("expected instant")
	}
	want := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("instant = %v, want %v", due, want)
	}
}
