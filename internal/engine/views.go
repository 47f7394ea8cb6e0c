package engine

import (
	"context"
	"fmt"
	"time"

	"taskpulse/internal/analytics"
	"taskpulse/internal/domain"
	"taskpulse/internal/filter"
	"taskpulse/internal/repo"
	"taskpulse/internal/schedule"
)

// completedVisibleFor is how long a completed task keeps showing in the
// dashboard view before it auto-hides.
const completedVisibleFor = 24 * time.Hour

// TaskView pairs a task with its derived temporal classification.
type TaskView struct {
	Task    domain.Task            `json:"task"`
	Bucket  schedule.Bucket        `json:"-"`
	DueInfo string                 `json:"due_info,omitempty"`
	Class   schedule.Classification `json:"-"`
}

// ViewBuckets is the dashboard projection of one user's tasks.
type ViewBuckets struct {
	Overdue   []TaskView `json:"overdue"`
	Today     []TaskView `json:"today"`
	Upcoming  []TaskView `json:"upcoming"`
	NoDate    []TaskView `json:"no_date"`
	Completed []TaskView `json:"completed"`
}

// ListView classifies every task of a user into dashboard buckets.
// Completed tasks appear only while inside the auto-hide window and while
// not archived by that user; the two conditions are independent.
func (e Engine) ListView(ctx context.Context, userEmail string) (ViewBuckets, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{AssignedTo: userEmail})
	if err != nil {
		return ViewBuckets{}, err
	}
	archived, err := e.Repo.ArchivedRefs(ctx, userEmail)
	if err != nil {
		return ViewBuckets{}, err
	}
	now := e.now()
	var v ViewBuckets
	for _, t := range tasks {
		c := schedule.Classify(t, now)
		tv := TaskView{Task: t, Bucket: c.Bucket, DueInfo: c.Label, Class: c}
		if t.Status == domain.StatusCompleted {
			if archived[t.ID] || !completedVisible(t, now) {
				continue
			}
			v.Completed = append(v.Completed, tv)
			continue
		}
		switch c.Bucket {
		case schedule.Overdue:
			v.Overdue = append(v.Overdue, tv)
		case schedule.DueToday:
			v.Today = append(v.Today, tv)
		case schedule.NoDueDate:
			v.NoDate = append(v.NoDate, tv)
		default:
			v.Upcoming = append(v.Upcoming, tv)
		}
	}
	return v, nil
}

func completedVisible(t domain.Task, now time.Time) bool {
	if t.CompletedDate == nil {
		return false
	}
	done, err := time.Parse(time.RFC3339, *t.CompletedDate)
	if err != nil {
		return false
	}
	return now.Sub(done) < completedVisibleFor
}

// Stats recomputes the full productivity bundle for a user from their raw
// task history. Nothing is cached.
func (e Engine) Stats(ctx context.Context, userEmail string) (analytics.Stats, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{AssignedTo: userEmail})
	if err != nil {
		return analytics.Stats{}, err
	}
	return analytics.Compute(tasks, e.now()), nil
}

// FilterTasks applies multi-criteria matching over a user's open tasks.
func (e Engine) FilterTasks(ctx context.Context, userEmail string, c filter.Criteria) ([]domain.Task, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{AssignedTo: userEmail})
	if err != nil {
		return nil, err
	}
	open := tasks[:0]
	for _, t := range tasks {
		if t.Status != domain.StatusCompleted {
			open = append(open, t)
		}
	}
	return c.Apply(open, e.now()), nil
}

// FilterPreset resolves a named preset from config and applies it.
func (e Engine) FilterPreset(ctx context.Context, userEmail, name string) ([]domain.Task, error) {
	c, ok := e.preset(name)
	if !ok {
		return nil, fmt.Errorf("unknown filter preset %q", name)
	}
	return e.FilterTasks(ctx, userEmail, c)
}

// PresetNames lists configured presets, for CLI/API discovery.
func (e Engine) PresetNames() []string {
	if e.Config == nil {
		return nil
	}
	names := make([]string, 0, len(e.Config.Filters))
	for name := range e.Config.Filters {
		names = append(names, name)
	}
	return names
}

func (e Engine) preset(name string) (filter.Criteria, bool) {
	if e.Config == nil {
		return filter.Criteria{}, false
	}
	c, ok := e.Config.Filters[name]
	return c, ok
}

// GetTask and ListTasks are thin read passthroughs for the API and CLI.
func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) Notifications(ctx context.Context, userEmail string, limit int) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, userEmail, limit)
}
