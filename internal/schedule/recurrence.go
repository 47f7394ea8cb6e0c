package schedule

import (
	"time"

	"taskpulse/internal/domain"
)

// NextDueDate advances a due date by one recurrence step. It returns ok=false
// when the task cannot recur: no due date, no rule, malformed dates, or the
// advanced date falling past the rule's end date. All of those are terminal
// no-ops for the caller, never errors.
func NextDueDate(t domain.Task, loc *time.Location) (string, bool) {
	if t.DueDate == nil || t.Recurring == nil {
		return "", false
	}
	due, ok := ParseDate(*t.DueDate, loc)
	if !ok {
		return "", false
	}
	interval := t.Recurring.Interval
	if interval < 1 {
		interval = 1
	}
	var next time.Time
	switch t.Recurring.Pattern {
	case domain.PatternDaily:
		next = due.AddDate(0, 0, interval)
	case domain.PatternWeekly:
		next = due.AddDate(0, 0, interval*7)
	case domain.PatternMonthly:
		next = due.AddDate(0, interval, 0)
	case domain.PatternYearly:
		next = due.AddDate(interval, 0, 0)
	default:
		return "", false
	}
	if t.Recurring.EndDate != nil {
		end, ok := ParseDate(*t.Recurring.EndDate, loc)
		if ok && next.After(end) {
			return "", false
		}
	}
	return next.Format(DateLayout), true
}

// NextInstance materializes the follow-up task for a just-completed
// recurring task: content fields copied, status reset, due date advanced,
// linked back to the source. The returned task has no ID; the engine
// assigns one when it persists the instance. Returns ok=false when the
// chain is terminal.
func NextInstance(src domain.Task, loc *time.Location) (domain.Task, bool) {
	nextDue, ok := NextDueDate(src, loc)
	if !ok {
		return domain.Task{}, false
	}
	next := src
	next.ID = ""
	next.Status = domain.StatusPending
	next.CompletedDate = nil
	next.DueDate = &nextDue
	next.RecurringParent = &src.ID
	next.TaskType = domain.TypeRecurringInstance
	// The rule rides along so each successive completion keeps propagating,
	// but subtask/reminder progress resets.
	next.Subtasks = resetSubtasks(src.Subtasks)
	next.Reminders = resetReminders(src.Reminders)
	next.Comments = nil
	return next, true
}

func resetSubtasks(in []domain.Subtask) []domain.Subtask {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Subtask, len(in))
	for i, s := range in {
		s.Completed = false
		out[i] = s
	}
	return out
}

func resetReminders(in []domain.Reminder) []domain.Reminder {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Reminder, 0, len(in))
	for _, r := range in {
		// Absolute reminders are anchored to the old occurrence; only
		// relative ones are meaningful for the next instance.
		if r.Type != domain.ReminderRelative {
			continue
		}
		r.Sent = false
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
