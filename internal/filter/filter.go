// Package filter evaluates declarative criteria against tasks. The same
// Criteria value backs saved smart filters, config-declared presets, and
// ad-hoc API queries. Evaluation is pure: no side effects, safe to run
// per-render across the whole task set.
package filter

import (
	"fmt"
	"time"

	"taskpulse/internal/domain"
	"taskpulse/internal/schedule"
)

// Criteria is a conjunction of optional predicates: a present field must
// pass, an absent field is ignored. An empty Criteria matches everything.
type Criteria struct {
	Priorities       []string `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Labels           []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Categories       []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	DueWithinDays    *int     `json:"due_within_days,omitempty" yaml:"due_within_days,omitempty"`
	EstimatedTimeMax *int     `json:"estimated_time_max,omitempty" yaml:"estimated_time_max,omitempty"`
	HasSubtasks      *bool    `json:"has_subtasks,omitempty" yaml:"has_subtasks,omitempty"`
	HasReminders     *bool    `json:"has_reminders,omitempty" yaml:"has_reminders,omitempty"`
	IsRecurring      *bool    `json:"is_recurring,omitempty" yaml:"is_recurring,omitempty"`
}

// Empty reports whether no predicate is active.
func (c *Criteria) Empty() bool {
	if c == nil {
		return true
	}
	return len(c.Priorities) == 0 && len(c.Labels) == 0 && len(c.Categories) == 0 &&
		c.DueWithinDays == nil && c.EstimatedTimeMax == nil &&
		c.HasSubtasks == nil && c.HasReminders == nil && c.IsRecurring == nil
}

// Validate rejects criteria that could never match sensibly.
func (c *Criteria) Validate() error {
	if c == nil {
		return nil
	}
	for _, p := range c.Priorities {
		if !domain.ValidPriority(p) {
			return fmt.Errorf("unknown priority token %q", p)
		}
	}
	if c.DueWithinDays != nil && *c.DueWithinDays < 0 {
		return fmt.Errorf("due_within_days must be >= 0")
	}
	if c.EstimatedTimeMax != nil && *c.EstimatedTimeMax < 0 {
		return fmt.Errorf("estimated_time_max must be >= 0")
	}
	return nil
}

// Matches evaluates every active predicate against the task; all must pass.
func (c *Criteria) Matches(t domain.Task, now time.Time) bool {
	if c.Empty() {
		return true
	}
	if len(c.Priorities) > 0 && !matchPriority(c.Priorities, t.Priority) {
		return false
	}
	if len(c.Labels) > 0 && !intersects(c.Labels, t.Labels) {
		return false
	}
	if len(c.Categories) > 0 && !matchCategory(c.Categories, t) {
		return false
	}
	if c.DueWithinDays != nil && !dueWithin(t, now, *c.DueWithinDays) {
		return false
	}
	if c.EstimatedTimeMax != nil {
		if t.EstimatedTime == nil || *t.EstimatedTime > *c.EstimatedTimeMax {
			return false
		}
	}
	if c.HasSubtasks != nil && (len(t.Subtasks) > 0) != *c.HasSubtasks {
		return false
	}
	if c.HasReminders != nil && (len(t.Reminders) > 0) != *c.HasReminders {
		return false
	}
	if c.IsRecurring != nil && (t.Recurring != nil) != *c.IsRecurring {
		return false
	}
	return true
}

// Apply filters a task slice, preserving order.
func (c *Criteria) Apply(tasks []domain.Task, now time.Time) []domain.Task {
	if c.Empty() {
		return tasks
	}
	var out []domain.Task
	for _, t := range tasks {
		if c.Matches(t, now) {
			out = append(out, t)
		}
	}
	return out
}

func matchPriority(accepted []string, priority string) bool {
	canonical := domain.NormalizePriority(priority)
	for _, a := range accepted {
		if domain.NormalizePriority(a) == canonical && canonical != "" {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func matchCategory(accepted []string, t domain.Task) bool {
	if t.Project == nil {
		return false
	}
	for _, a := range accepted {
		if a == *t.Project {
			return true
		}
	}
	return false
}

// dueWithin requires a due date falling in [today, today+n], calendar-day
// inclusive on both ends.
func dueWithin(t domain.Task, now time.Time, n int) bool {
	if t.DueDate == nil {
		return false
	}
	due, ok := schedule.ParseDate(*t.DueDate, now.Location())
	if !ok {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if due.Before(today) {
		return false
	}
	return !due.After(today.AddDate(0, 0, n))
}
