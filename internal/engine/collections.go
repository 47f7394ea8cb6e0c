package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
	"taskpulse/internal/events"
	"taskpulse/internal/repo"
)

// Composite collections (subtasks, comments, reminders) are patched with
// explicit append/remove operations; each one is a single read-modify-write
// transaction so concurrent edits never lose items to a stale whole-array
// save.

func (e Engine) AddSubtask(ctx context.Context, taskID, text, actorID string) (domain.Task, error) {
	if text == "" {
		return domain.Task{}, errors.New("subtask text is required")
	}
	return e.patchTask(ctx, taskID, actorID, "task.subtask.added", func(t *domain.Task) error {
		t.Subtasks = append(t.Subtasks, domain.Subtask{ID: uuid.New().String(), Text: text})
		return nil
	})
}

func (e Engine) ToggleSubtask(ctx context.Context, taskID, subtaskID, actorID string) (domain.Task, error) {
	return e.patchTask(ctx, taskID, actorID, "task.subtask.toggled", func(t *domain.Task) error {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == subtaskID {
				t.Subtasks[i].Completed = !t.Subtasks[i].Completed
				return nil
			}
		}
		return fmt.Errorf("subtask %s: %w", subtaskID, repo.ErrNotFound)
	})
}

func (e Engine) RemoveSubtask(ctx context.Context, taskID, subtaskID, actorID string) (domain.Task, error) {
	return e.patchTask(ctx, taskID, actorID, "task.subtask.removed", func(t *domain.Task) error {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == subtaskID {
				t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
				if len(t.Subtasks) == 0 {
					t.Subtasks = nil
				}
				return nil
			}
		}
		return fmt.Errorf("subtask %s: %w", subtaskID, repo.ErrNotFound)
	})
}

func (e Engine) AddComment(ctx context.Context, taskID, author, text string, attachments []string, actorID string) (domain.Task, error) {
	if text == "" {
		return domain.Task{}, errors.New("comment text is required")
	}
	if author == "" {
		return domain.Task{}, errors.New("comment author is required")
	}
	return e.patchTask(ctx, taskID, actorID, "task.comment.added", func(t *domain.Task) error {
		t.Comments = append(t.Comments, domain.Comment{
			ID:          uuid.New().String(),
			Author:      author,
			Text:        text,
			Timestamp:   e.nowString(),
			Attachments: attachments,
		})
		return nil
	})
}

// ReminderOptions describes one reminder to attach.
type ReminderOptions struct {
	Type     string
	Minutes  int
	Datetime string
	Label    string
}

func (e Engine) AddReminder(ctx context.Context, taskID string, opts ReminderOptions, actorID string) (domain.Task, error) {
	rem := domain.Reminder{ID: uuid.New().String(), Type: opts.Type, Label: opts.Label}
	switch opts.Type {
	case domain.ReminderRelative:
		if opts.Minutes <= 0 {
			return domain.Task{}, errors.New("relative reminder requires minutes > 0")
		}
		m := opts.Minutes
		rem.Minutes = &m
	case domain.ReminderAbsolute:
		if _, err := time.Parse(time.RFC3339, opts.Datetime); err != nil {
			return domain.Task{}, fmt.Errorf("invalid reminder datetime %q", opts.Datetime)
		}
		dt := opts.Datetime
		rem.Datetime = &dt
	default:
		return domain.Task{}, fmt.Errorf("invalid reminder type %q", opts.Type)
	}
	return e.patchTask(ctx, taskID, actorID, "task.reminder.added", func(t *domain.Task) error {
		if rem.Type == domain.ReminderRelative && t.DueDate == nil {
			return errors.New("relative reminder requires a due_date")
		}
		t.Reminders = append(t.Reminders, rem)
		return nil
	})
}

func (e Engine) RemoveReminder(ctx context.Context, taskID, reminderID, actorID string) (domain.Task, error) {
	return e.patchTask(ctx, taskID, actorID, "task.reminder.removed", func(t *domain.Task) error {
		for i := range t.Reminders {
			if t.Reminders[i].ID == reminderID {
				t.Reminders = append(t.Reminders[:i], t.Reminders[i+1:]...)
				if len(t.Reminders) == 0 {
					t.Reminders = nil
				}
				return nil
			}
		}
		return fmt.Errorf("reminder %s: %w", reminderID, repo.ErrNotFound)
	})
}

// ReorderTask assigns a new sort position. Order is scoped to one
// assignee's view and has no cross-assignee meaning.
func (e Engine) ReorderTask(ctx context.Context, taskID string, order float64, actorID string) (domain.Task, error) {
	return e.patchTask(ctx, taskID, actorID, "task.reordered", func(t *domain.Task) error {
		t.Order = &order
		return nil
	})
}

func (e Engine) patchTask(ctx context.Context, taskID, actorID, eventType string, mutate func(*domain.Task) error) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if err := mutate(&t); err != nil {
		return t, err
	}
	t.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, eventType, t.AssignedTo, "task", t.ID, actorID, events.EventPayload{}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}
