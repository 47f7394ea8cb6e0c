package reminder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskpulse/internal/config"
	"taskpulse/internal/db"
	"taskpulse/internal/domain"
	"taskpulse/internal/engine"
	"taskpulse/internal/migrate"
	"taskpulse/internal/notify"
	"taskpulse/internal/reminder"
)

type captureSink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (c *captureSink) Emit(_ context.Context, n domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type testEnv struct {
	Engine    engine.Engine
	Scheduler *reminder.Scheduler
	Sink      *captureSink
	Ctx       context.Context
	Now       *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return now }
	sink := &captureSink{}
	sched := reminder.New(conn, []notify.Sink{sink})
	sched.Now = func() time.Time { return now }
	return testEnv{Engine: eng, Scheduler: sched, Sink: sink, Ctx: context.Background(), Now: &now}
}

func (env testEnv) taskWithRelativeReminder(t *testing.T, due, at string, minutes int) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "prep meeting", AssignedTo: "ada@example.com", DueDate: due, DueTime: at,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task, err = env.Engine.AddReminder(env.Ctx, task.ID, engine.ReminderOptions{
		Type: domain.ReminderRelative, Minutes: minutes,
	}, "ada@example.com")
	if err != nil {
		t.Fatalf("add reminder: %v", err)
	}
	return task
}

func TestRelativeReminderFiresOnce(t *testing.T) {
	env := newTestEnv(t)
	// due 11:00, 30min offset: nominal fire time is 10:30
	task := env.taskWithRelativeReminder(t, "2024-03-15", "11:00", 30)

	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatalf("check: %v", err)
	}
	if env.Sink.count() != 0 {
		t.Fatalf("reminder fired before its time")
	}

	*env.Now = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatalf("check: %v", err)
	}
	if env.Sink.count() != 1 {
		t.Fatalf("got %d notifications, want 1", env.Sink.count())
	}
	n := env.Sink.sent[0]
	if n.UserEmail != "ada@example.com" || n.Message != `"prep meeting" is due in 30 minutes` {
		t.Fatalf("notification: %+v", n)
	}

	// sweep again inside the window: the sent flag must hold
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if env.Sink.count() != 1 {
		t.Fatalf("reminder fired twice")
	}

	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Reminders) != 1 || !got.Reminders[0].Sent {
		t.Fatalf("sent flag not persisted: %+v", got.Reminders)
	}
}

func TestReminderWindowClosed(t *testing.T) {
	env := newTestEnv(t)
	env.taskWithRelativeReminder(t, "2024-03-15", "11:00", 30)

	// well past the fire window: stays unsent rather than firing stale
	*env.Now = time.Date(2024, 3, 15, 10, 45, 0, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.Sink.count() != 0 {
		t.Fatalf("stale reminder fired outside the window")
	}
}

func TestReminderWindowUpperBoundExclusive(t *testing.T) {
	// fire time 10:30, default 2 minute window: last firing instant is
	// 10:31:59; 10:32:00 exactly is already outside.
	env := newTestEnv(t)
	env.taskWithRelativeReminder(t, "2024-03-15", "11:00", 30)
	*env.Now = time.Date(2024, 3, 15, 10, 32, 0, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.Sink.count() != 0 {
		t.Fatalf("reminder fired at the window's upper bound")
	}

	env = newTestEnv(t)
	env.taskWithRelativeReminder(t, "2024-03-15", "11:00", 30)
	*env.Now = time.Date(2024, 3, 15, 10, 31, 59, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.Sink.count() != 1 {
		t.Fatalf("reminder did not fire just inside the window")
	}
}

func TestAbsoluteReminder(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "call vendor", AssignedTo: "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddReminder(env.Ctx, task.ID, engine.ReminderOptions{
		Type:     domain.ReminderAbsolute,
		Datetime: "2024-03-15T14:00:00Z",
		Label:    "vendor call in 5",
	}, "ada@example.com"); err != nil {
		t.Fatalf("add reminder: %v", err)
	}

	*env.Now = time.Date(2024, 3, 15, 14, 1, 0, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.Sink.count() != 1 {
		t.Fatalf("got %d notifications, want 1", env.Sink.count())
	}
	if env.Sink.sent[0].Message != "vendor call in 5" {
		t.Fatalf("label not used as message: %q", env.Sink.sent[0].Message)
	}
}

func TestCompletedTaskNeverReminds(t *testing.T) {
	env := newTestEnv(t)
	task := env.taskWithRelativeReminder(t, "2024-03-15", "11:00", 30)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com"); err != nil {
		t.Fatal(err)
	}

	*env.Now = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if err := env.Scheduler.CheckOnce(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.Sink.count() != 0 {
		t.Fatalf("completed task fired a reminder")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.Scheduler.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(env.Ctx)
	done := make(chan error, 1)
	go func() { done <- env.Scheduler.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}
