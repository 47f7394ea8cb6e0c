package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/config"
	"taskpulse/internal/domain"
	"taskpulse/internal/events"
	"taskpulse/internal/repo"
	"taskpulse/internal/schedule"
)

// ErrConflict marks a one-shot transition attempted on an already-terminal
// record (double accept/decline).
var ErrConflict = errors.New("request already resolved")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.In(e.Location())
}

// Location is the single canonical zone the whole engine runs in.
func (e Engine) Location() *time.Location {
	if e.Config != nil {
		return e.Config.Location()
	}
	return time.UTC
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title         string
	Description   string
	Priority      string
	DueDate       string
	DueTime       string
	EstimatedTime int
	AssignedTo    string
	AssignedBy    string
	Labels        []string
	Project       string
	Section       string
	Recurring     *domain.RecurrenceRule
	ActorID       string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.AssignedTo == "" {
		return domain.Task{}, errors.New("assigned_to is required")
	}
	priority := domain.PriorityMedium
	if opts.Priority != "" {
		priority = domain.NormalizePriority(opts.Priority)
		if priority == "" {
			return domain.Task{}, fmt.Errorf("invalid priority %q", opts.Priority)
		}
	}
	if err := validateSchedulingFields(opts.DueDate, opts.DueTime, e.Location()); err != nil {
		return domain.Task{}, err
	}
	if err := validateRecurrence(opts.Recurring, opts.DueDate, e.Location()); err != nil {
		return domain.Task{}, err
	}
	now := e.nowString()
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    priority,
		Status:      domain.StatusPending,
		DueDate:     optionalString(opts.DueDate),
		DueTime:     optionalString(opts.DueTime),
		AssignedTo:  opts.AssignedTo,
		AssignedBy:  optionalString(opts.AssignedBy),
		Labels:      opts.Labels,
		Project:     optionalString(opts.Project),
		Section:     optionalString(opts.Section),
		Recurring:   opts.Recurring,
		TaskType:    domain.TypeUserCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.EstimatedTime > 0 {
		t.EstimatedTime = &opts.EstimatedTime
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.AssignedTo, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed partial updates. Pointer fields
// with an empty value clear the underlying field.
type TaskUpdateOptions struct {
	ID             string
	Title          *string
	Description    *string
	Priority       *string
	Status         *string
	DueDate        *string
	DueTime        *string
	EstimatedTime  *int
	Assign         *string
	Project        *string
	Section        *string
	Order          *float64
	AddLabels      []string
	RemoveLabels   []string
	Recurring      *domain.RecurrenceRule
	ClearRecurring bool
	ActorID        string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t

	if opts.Title != nil {
		if *opts.Title == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		p := domain.NormalizePriority(*opts.Priority)
		if p == "" {
			return t, fmt.Errorf("invalid priority %q", *opts.Priority)
		}
		t.Priority = p
	}
	if opts.Status != nil {
		switch *opts.Status {
		case domain.StatusPending, domain.StatusInProgress:
			t.Status = *opts.Status
			// invariant: completed_date exists iff completed
			t.CompletedDate = nil
		case domain.StatusCompleted:
			return t, errors.New("invalid status: complete tasks via the completion operation")
		default:
			return t, fmt.Errorf("invalid status %q", *opts.Status)
		}
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
			t.DueTime = nil
		} else {
			if _, ok := schedule.ParseDate(*opts.DueDate, e.Location()); !ok {
				return t, fmt.Errorf("invalid due_date %q", *opts.DueDate)
			}
			t.DueDate = opts.DueDate
		}
	}
	if opts.DueTime != nil {
		if *opts.DueTime == "" {
			t.DueTime = nil
		} else {
			if t.DueDate == nil {
				return t, errors.New("due_time requires due_date")
			}
			if _, err := time.Parse(schedule.TimeLayout, *opts.DueTime); err != nil {
				return t, fmt.Errorf("invalid due_time %q", *opts.DueTime)
			}
			t.DueTime = opts.DueTime
		}
	}
	if opts.EstimatedTime != nil {
		if *opts.EstimatedTime <= 0 {
			t.EstimatedTime = nil
		} else {
			t.EstimatedTime = opts.EstimatedTime
		}
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			return t, errors.New("assigned_to is required")
		}
		t.AssignedTo = *opts.Assign
	}
	if opts.Project != nil {
		t.Project = optionalString(*opts.Project)
	}
	if opts.Section != nil {
		t.Section = optionalString(*opts.Section)
	}
	if opts.Order != nil {
		t.Order = opts.Order
	}
	if len(opts.AddLabels) > 0 || len(opts.RemoveLabels) > 0 {
		t.Labels = patchLabels(t.Labels, opts.AddLabels, opts.RemoveLabels)
	}
	if opts.ClearRecurring {
		t.Recurring = nil
	} else if opts.Recurring != nil {
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		if err := validateRecurrence(opts.Recurring, due, e.Location()); err != nil {
			return t, err
		}
		t.Recurring = opts.Recurring
	}
	t.UpdatedAt = e.nowString()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.AssignedTo, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// CompleteTask is the single status-transition event that drives recurrence.
// It sets completed_date, and when the task carries an active recurrence
// rule it materializes the next instance inside the same transaction.
// Completing an already-completed task is an idempotent no-op: no second
// instance is ever spawned.
func (e Engine) CompleteTask(ctx context.Context, taskID, actorID string) (domain.Task, *domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, nil, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, nil, err
	}
	now := e.nowString()
	transitioned, err := e.Repo.MarkCompleted(ctx, tx, taskID, now, now)
	if err != nil {
		return t, nil, err
	}
	if !transitioned {
		return t, nil, nil
	}
	t.Status = domain.StatusCompleted
	t.CompletedDate = &now
	t.UpdatedAt = now

	var next *domain.Task
	if instance, ok := schedule.NextInstance(t, e.Location()); ok {
		instance.ID = uuid.New().String()
		instance.CreatedAt = now
		instance.UpdatedAt = now
		if err := e.Repo.InsertTask(ctx, tx, instance); err != nil {
			return t, nil, err
		}
		if err := e.Events.Append(ctx, tx, "task.recurred", instance.AssignedTo, "task", instance.ID, actorID, events.EventPayload{
			"parent":   t.ID,
			"due_date": *instance.DueDate,
		}); err != nil {
			return t, nil, err
		}
		next = &instance
	}
	if err := e.Events.Append(ctx, tx, "task.completed", t.AssignedTo, "task", t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return t, nil, err
	}
	if err := tx.Commit(); err != nil {
		return t, nil, err
	}
	return t, next, nil
}

// ReopenTask moves a completed task back to pending and clears
// completed_date, keeping the status/timestamp invariant.
func (e Engine) ReopenTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if t.Status != domain.StatusCompleted {
		return t, errors.New("invalid state: task is not completed")
	}
	t.Status = domain.StatusPending
	t.CompletedDate = nil
	t.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.reopened", t.AssignedTo, "task", t.ID, actorID, events.EventPayload{}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.AssignedTo, "task", t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func validateSchedulingFields(dueDate, dueTime string, loc *time.Location) error {
	if dueDate != "" {
		if _, ok := schedule.ParseDate(dueDate, loc); !ok {
			return fmt.Errorf("invalid due_date %q", dueDate)
		}
	}
	if dueTime != "" {
		if dueDate == "" {
			return errors.New("due_time requires due_date")
		}
		if _, err := time.Parse(schedule.TimeLayout, dueTime); err != nil {
			return fmt.Errorf("invalid due_time %q", dueTime)
		}
	}
	return nil
}

func validateRecurrence(rule *domain.RecurrenceRule, dueDate string, loc *time.Location) error {
	if rule == nil {
		return nil
	}
	switch rule.Pattern {
	case domain.PatternDaily, domain.PatternWeekly, domain.PatternMonthly, domain.PatternYearly:
	default:
		return fmt.Errorf("invalid recurrence pattern %q", rule.Pattern)
	}
	if rule.Interval < 1 {
		return errors.New("recurrence interval must be >= 1")
	}
	if dueDate == "" {
		return errors.New("recurrence requires due_date")
	}
	if rule.EndDate != nil {
		if _, ok := schedule.ParseDate(*rule.EndDate, loc); !ok {
			return fmt.Errorf("invalid recurrence end_date %q", *rule.EndDate)
		}
	}
	return nil
}

func patchLabels(current, add, remove []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range current {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range add {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	if len(remove) > 0 {
		drop := map[string]bool{}
		for _, l := range remove {
			drop[l] = true
		}
		filtered := out[:0]
		for _, l := range out {
			if !drop[l] {
				filtered = append(filtered, l)
			}
		}
		out = filtered
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
