package schedule

import (
	"testing"
	"time"

	"taskpulse/internal/domain"
)

func recurringTask(due, pattern string, interval int, end *string) domain.Task {
	return domain.Task{
		Status:  domain.StatusCompleted,
		DueDate: strptr(due),
		Recurring: &domain.RecurrenceRule{
			Pattern:  pattern,
			Interval: interval,
			EndDate:  end,
		},
	}
}

func TestNextDueDateAdvance(t *testing.T) {
	cases := []struct {
		name     string
		due      string
		pattern  string
		interval int
		want     string
	}{
		{"daily", "2024-01-10", domain.PatternDaily, 1, "2024-01-11"},
		{"every third day", "2024-01-10", domain.PatternDaily, 3, "2024-01-13"},
		{"weekly", "2024-01-10", domain.PatternWeekly, 1, "2024-01-17"},
		{"biweekly", "2024-01-10", domain.PatternWeekly, 2, "2024-01-24"},
		{"monthly", "2024-01-10", domain.PatternMonthly, 1, "2024-02-10"},
		{"monthly with calendar overflow", "2024-01-31", domain.PatternMonthly, 1, "2024-03-02"},
		{"yearly", "2024-02-29", domain.PatternYearly, 1, "2025-03-01"},
		{"zero interval treated as one", "2024-01-10", domain.PatternDaily, 0, "2024-01-11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextDueDate(recurringTask(tc.due, tc.pattern, tc.interval, nil), time.UTC)
			if !ok {
				t.Fatal("expected a next due date")
			}
			if got != tc.want {
				t.Fatalf("next = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNextDueDateTerminalCases(t *testing.T) {
	cases := []struct {
		name string
		task domain.Task
	}{
		{"no due date", domain.Task{Recurring: &domain.RecurrenceRule{Pattern: domain.PatternDaily, Interval: 1}}},
		{"no rule", domain.Task{DueDate: strptr("2024-01-10")}},
		{"malformed due date", recurringTask("January 10th", domain.PatternDaily, 1, nil)},
		{"unknown pattern", recurringTask("2024-01-10", "fortnightly", 1, nil)},
		{"end date reached", recurringTask("2024-01-10", domain.PatternDaily, 1, strptr("2024-01-10"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := NextDueDate(tc.task, time.UTC); ok {
				t.Fatal("expected terminal no-op")
			}
		})
	}
}

func TestNextDueDateEndDateInclusive(t *testing.T) {
	// Advancing onto the end date itself still generates.
	got, ok := NextDueDate(recurringTask("2024-01-09", domain.PatternDaily, 1, strptr("2024-01-10")), time.UTC)
	if !ok || got != "2024-01-10" {
		t.Fatalf("next = %s ok=%v, want 2024-01-10 true", got, ok)
	}
}

func TestNextInstance(t *testing.T) {
	minutes := 15
	src := recurringTask("2024-01-10", domain.PatternDaily, 1, nil)
	src.ID = "task-1"
	src.Title = "Water plants"
	src.Priority = domain.PriorityHigh
	src.AssignedTo = "ana@example.com"
	src.CompletedDate = strptr("2024-01-10T09:00:00Z")
	src.Subtasks = []domain.Subtask{{ID: "s1", Text: "front room", Completed: true}}
	src.Reminders = []domain.Reminder{
		{ID: "r1", Type: domain.ReminderRelative, Minutes: &minutes, Sent: true},
		{ID: "r2", Type: domain.ReminderAbsolute, Datetime: strptr("2024-01-10T08:00:00Z")},
	}

	next, ok := NextInstance(src, time.UTC)
	if !ok {
		t.Fatal("expected next instance")
	}
	if next.ID != "" {
		t.Fatalf("instance must not carry an id, got %q", next.ID)
	}
	if next.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", next.Status)
	}
	if next.CompletedDate != nil {
		t.Fatal("completed_date must be cleared")
	}
	if next.DueDate == nil || *next.DueDate != "2024-01-11" {
		t.Fatalf("due = %v, want 2024-01-11", next.DueDate)
	}
	if next.RecurringParent == nil || *next.RecurringParent != "task-1" {
		t.Fatalf("recurring_parent = %v, want task-1", next.RecurringParent)
	}
	if next.TaskType != domain.TypeRecurringInstance {
		t.Fatalf("task_type = %s", next.TaskType)
	}
	if next.Recurring == nil {
		t.Fatal("instance must keep the rule to propagate the chain")
	}
	if next.Title != "Water plants" || next.Priority != domain.PriorityHigh || next.AssignedTo != "ana@example.com" {
		t.Fatal("content fields must copy over")
	}
	if len(next.Subtasks) != 1 || next.Subtasks[0].Completed {
		t.Fatalf("subtasks must reset, got %+v", next.Subtasks)
	}
	if len(next.Reminders) != 1 || next.Reminders[0].ID != "r1" || next.Reminders[0].Sent {
		t.Fatalf("only unsent relative reminders carry forward, got %+v", next.Reminders)
	}
}
