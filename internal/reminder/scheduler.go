// Package reminder runs the background loop that turns due reminders into
// notifications. Firing is at-most-once: the sent flag flips in the same
// transaction that records the notification, and external delivery happens
// only after commit.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"taskpulse/internal/domain"
	"taskpulse/internal/events"
	"taskpulse/internal/notify"
	"taskpulse/internal/repo"
	"taskpulse/internal/schedule"
)

const (
	defaultInterval = time.Minute
	defaultWindow   = 2 * time.Minute
)

type Scheduler struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Sinks  []notify.Sink
	// Interval is the check cadence; Window is how long past its nominal
	// fire time a reminder remains eligible before it is considered missed.
	Interval time.Duration
	Window   time.Duration
	Now      func() time.Time
	Location *time.Location
}

func New(db *sql.DB, sinks []notify.Sink) *Scheduler {
	return &Scheduler{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Sinks:    sinks,
		Interval: defaultInterval,
		Window:   defaultWindow,
		Now:      time.Now,
		Location: time.UTC,
	}
}

func (s *Scheduler) now() time.Time {
	t := time.Now()
	if s.Now != nil {
		t = s.Now()
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return defaultInterval
}

func (s *Scheduler) window() time.Duration {
	if s.Window > 0 {
		return s.Window
	}
	return defaultWindow
}

// Run checks immediately, then on every tick until the context ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.CheckOnce(ctx); err != nil {
		log.Printf("reminder check: %v", err)
	}
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.CheckOnce(ctx); err != nil {
				log.Printf("reminder check: %v", err)
			}
		}
	}
}

// CheckOnce scans open tasks with reminders and fires the due ones. A
// failure on one task is logged and never blocks the rest of the sweep.
func (s *Scheduler) CheckOnce(ctx context.Context) error {
	tasks, err := s.Repo.ListOpenWithReminders(ctx)
	if err != nil {
		return fmt.Errorf("list reminder tasks: %w", err)
	}
	now := s.now()
	for _, t := range tasks {
		fired, err := s.fireDue(ctx, t.ID, now)
		if err != nil {
			log.Printf("task %s reminders: %v", t.ID, err)
			continue
		}
		for _, n := range fired {
			notify.Dispatch(ctx, s.Sinks, n)
		}
	}
	return nil
}

// fireDue re-reads the task inside a transaction, flips the sent flag on
// every reminder inside the fire window, and records the notifications.
// The re-read guards against a completion or edit racing the sweep.
func (s *Scheduler) fireDue(ctx context.Context, taskID string, now time.Time) ([]domain.Notification, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := s.Repo.GetTaskTx(ctx, tx, taskID)
	if err == repo.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Status == domain.StatusCompleted {
		return nil, nil
	}

	var fired []domain.Notification
	changed := false
	for i := range t.Reminders {
		rem := &t.Reminders[i]
		if rem.Sent {
			continue
		}
		fireAt, ok := s.fireTime(t, *rem, now.Location())
		if !ok {
			continue
		}
		if now.Before(fireAt) || !now.Before(fireAt.Add(s.window())) {
			continue
		}
		rem.Sent = true
		changed = true
		n := domain.Notification{
			UserEmail: t.AssignedTo,
			Title:     "Reminder: " + t.Title,
			Message:   reminderMessage(t, *rem, now),
			Link:      "/tasks/" + t.ID,
			TaskID:    &t.ID,
			CreatedAt: now.UTC().Format(time.RFC3339),
		}
		id, err := s.Repo.InsertNotification(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		n.ID = id
		if err := s.Events.Append(ctx, tx, "reminder.fired", t.AssignedTo, "task", t.ID, "scheduler", events.EventPayload{
			"reminder_id": rem.ID,
		}); err != nil {
			return nil, err
		}
		fired = append(fired, n)
	}
	if !changed {
		return nil, nil
	}
	t.UpdatedAt = now.UTC().Format(time.RFC3339)
	if err := s.Repo.UpdateTask(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fired, nil
}

// fireTime resolves a reminder's nominal fire instant: due minus offset for
// relative reminders, the fixed timestamp for absolute ones.
func (s *Scheduler) fireTime(t domain.Task, rem domain.Reminder, loc *time.Location) (time.Time, bool) {
	switch rem.Type {
	case domain.ReminderRelative:
		if rem.Minutes == nil {
			return time.Time{}, false
		}
		due, ok := schedule.DueInstant(t, loc)
		if !ok {
			return time.Time{}, false
		}
		return due.Add(-time.Duration(*rem.Minutes) * time.Minute), true
	case domain.ReminderAbsolute:
		if rem.Datetime == nil {
			return time.Time{}, false
		}
		at, err := time.Parse(time.RFC3339, *rem.Datetime)
		if err != nil {
			return time.Time{}, false
		}
		return at.In(loc), true
	default:
		return time.Time{}, false
	}
}

func reminderMessage(t domain.Task, rem domain.Reminder, now time.Time) string {
	if rem.Label != "" {
		return rem.Label
	}
	due, ok := schedule.DueInstant(t, now.Location())
	if !ok {
		return fmt.Sprintf("%q needs your attention", t.Title)
	}
	return fmt.Sprintf("%q is %s", t.Title, dueIn(due.Sub(now)))
}

func dueIn(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "due now"
	case d < time.Hour:
		return fmt.Sprintf("due in %d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("due in %d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("due in %d days", int(d.Hours()/24))
	}
}
