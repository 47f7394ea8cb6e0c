package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpulse/internal/config"
	"taskpulse/internal/db"
	"taskpulse/internal/domain"
	"taskpulse/internal/engine"
	"taskpulse/internal/migrate"
	"taskpulse/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Now    *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return now }
	return testEnv{Engine: eng, Ctx: context.Background(), Now: &now}
}

func TestCompletedDateTracksStatus(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "write report", AssignedTo: "ada@example.com", ActorID: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.CompletedDate != nil {
		t.Fatalf("new task has completed_date")
	}

	done, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedDate == nil {
		t.Fatalf("completed task missing completed_date: %+v", done)
	}

	reopened, err := env.Engine.ReopenTask(env.Ctx, task.ID, "ada@example.com")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.StatusPending || reopened.CompletedDate != nil {
		t.Fatalf("reopened task kept completed_date: %+v", reopened)
	}
}

func TestUpdateCannotSetCompleted(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "t", AssignedTo: "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	status := domain.StatusCompleted
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: &status}); err == nil {
		t.Fatalf("expected completion via update to be rejected")
	}
}

func TestDoubleCompleteSpawnsOneInstance(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "standup notes",
		AssignedTo: "ada@example.com",
		DueDate:    "2024-03-15",
		Recurring:  &domain.RecurrenceRule{Pattern: domain.PatternDaily, Interval: 1},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, next, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if next == nil {
		t.Fatalf("expected a next instance")
	}
	if next.DueDate == nil || *next.DueDate != "2024-03-16" {
		t.Fatalf("next due = %v, want 2024-03-16", next.DueDate)
	}
	if next.TaskType != domain.TypeRecurringInstance || next.RecurringParent == nil || *next.RecurringParent != task.ID {
		t.Fatalf("next instance not linked to parent: %+v", next)
	}

	// second completion is an idempotent no-op
	again, dup, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if dup != nil {
		t.Fatalf("second complete spawned another instance")
	}
	if again.Status != domain.StatusCompleted {
		t.Fatalf("second complete lost completed status")
	}

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{AssignedTo: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
}

func TestRecurrenceStopsAtEndDate(t *testing.T) {
	env := newTestEnv(t)
	end := "2024-03-15"
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "sprint review",
		AssignedTo: "ada@example.com",
		DueDate:    "2024-03-15",
		Recurring:  &domain.RecurrenceRule{Pattern: domain.PatternWeekly, Interval: 1, EndDate: &end},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, next, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if next != nil {
		t.Fatalf("instance spawned past end_date: %+v", next)
	}
}

func TestRecurrenceRequiresDueDate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "no anchor",
		AssignedTo: "ada@example.com",
		Recurring:  &domain.RecurrenceRule{Pattern: domain.PatternDaily, Interval: 1},
	})
	if err == nil {
		t.Fatalf("expected recurrence without due_date to be rejected")
	}
}

func TestAcceptRequestOnce(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		FromUser: "ada@example.com",
		ToUser:   "bob@example.com",
		Title:    "review PR",
		Priority: "p1",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	accepted, task, err := env.Engine.AcceptRequest(env.Ctx, req.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.RequestAccepted || accepted.TaskID == nil {
		t.Fatalf("request not resolved: %+v", accepted)
	}
	if task.AssignedTo != "bob@example.com" || task.AssignedBy == nil || *task.AssignedBy != "ada@example.com" {
		t.Fatalf("delegated task mis-assigned: %+v", task)
	}
	if task.TaskType != domain.TypeDelegated || task.Priority != domain.PriorityUrgent {
		t.Fatalf("delegated task fields: type=%s priority=%s", task.TaskType, task.Priority)
	}

	if _, _, err := env.Engine.AcceptRequest(env.Ctx, req.ID, "bob@example.com"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("second accept = %v, want ErrConflict", err)
	}
	if _, err := env.Engine.DeclineRequest(env.Ctx, req.ID, "busy", "bob@example.com"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("decline after accept = %v, want ErrConflict", err)
	}

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{AssignedTo: "bob@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d delegated tasks, want exactly 1", len(tasks))
	}
}

func TestDeclineRequestKeepsReason(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		FromUser: "ada@example.com", ToUser: "bob@example.com", Title: "triage bugs",
	})
	if err != nil {
		t.Fatal(err)
	}
	declined, err := env.Engine.DeclineRequest(env.Ctx, req.ID, "on leave", "bob@example.com")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != domain.RequestDeclined || declined.DeclineReason == nil || *declined.DeclineReason != "on leave" {
		t.Fatalf("declined request: %+v", declined)
	}

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{AssignedTo: "bob@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("decline created a task")
	}
}

func TestSelfDelegationRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		FromUser: "ada@example.com", ToUser: "ada@example.com", Title: "x",
	})
	if err == nil {
		t.Fatalf("expected self-delegation to be rejected")
	}
}

func TestArchiveIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		FromUser: "ada@example.com", ToUser: "bob@example.com", Title: "handoff",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.ArchiveRequest(env.Ctx, "bob@example.com", req.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	inbox, err := env.Engine.Inbox(env.Ctx, "bob@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 0 {
		t.Fatalf("archived request still in bob's inbox")
	}
	inboxAll, err := env.Engine.Inbox(env.Ctx, "bob@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(inboxAll) != 1 {
		t.Fatalf("includeArchived did not surface the request")
	}

	// the sender's view is independent of the recipient's flag
	outbox, err := env.Engine.Outbox(env.Ctx, "ada@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(outbox) != 1 {
		t.Fatalf("recipient's archive leaked into sender's outbox")
	}

	if err := env.Engine.UnarchiveRequest(env.Ctx, "bob@example.com", req.ID); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	inbox, err = env.Engine.Inbox(env.Ctx, "bob@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 1 {
		t.Fatalf("unarchive did not restore the request")
	}
}

func TestCompletedAutoHide(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "ship it", AssignedTo: "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com"); err != nil {
		t.Fatal(err)
	}

	view, err := env.Engine.ListView(env.Ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Completed) != 1 {
		t.Fatalf("fresh completion not visible")
	}

	// still visible just inside the window
	*env.Now = env.Now.Add(23 * time.Hour)
	view, err = env.Engine.ListView(env.Ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Completed) != 1 {
		t.Fatalf("completion hidden before 24h")
	}

	*env.Now = env.Now.Add(2 * time.Hour)
	view, err = env.Engine.ListView(env.Ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Completed) != 0 {
		t.Fatalf("completion still visible after 24h")
	}
}

func TestArchiveHidesCompletedInsideWindow(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "done and hidden", AssignedTo: "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.ArchiveRequest(env.Ctx, "ada@example.com", task.ID); err != nil {
		t.Fatal(err)
	}
	view, err := env.Engine.ListView(env.Ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Completed) != 0 {
		t.Fatalf("archived completion still visible inside the 24h window")
	}
}

func TestListViewBuckets(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, due string) {
		t.Helper()
		opts := engine.TaskCreateOptions{Title: title, AssignedTo: "ada@example.com", DueDate: due}
		if _, err := env.Engine.CreateTask(env.Ctx, opts); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("late", "2024-03-14")
	mk("today", "2024-03-15")
	mk("soon", "2024-03-18")
	mk("floating", "")

	view, err := env.Engine.ListView(env.Ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Overdue) != 1 || view.Overdue[0].Task.Title != "late" {
		t.Fatalf("overdue bucket: %+v", view.Overdue)
	}
	if len(view.Today) != 1 || len(view.Upcoming) != 1 || len(view.NoDate) != 1 {
		t.Fatalf("buckets: today=%d upcoming=%d nodate=%d", len(view.Today), len(view.Upcoming), len(view.NoDate))
	}
	if view.Upcoming[0].DueInfo != "Monday" {
		t.Fatalf("upcoming label = %q, want Monday", view.Upcoming[0].DueInfo)
	}
}

func TestFilterPreset(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, priority string, est int) {
		t.Helper()
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			Title: title, AssignedTo: "ada@example.com", Priority: priority, EstimatedTime: est,
		}); err != nil {
			t.Fatal(err)
		}
	}
	mk("urgent thing", "urgent", 120)
	mk("small thing", "low", 15)

	urgent, err := env.Engine.FilterPreset(env.Ctx, "ada@example.com", "priority")
	if err != nil {
		t.Fatalf("preset priority: %v", err)
	}
	if len(urgent) != 1 || urgent[0].Title != "urgent thing" {
		t.Fatalf("priority preset: %+v", urgent)
	}

	quick, err := env.Engine.FilterPreset(env.Ctx, "ada@example.com", "quick-wins")
	if err != nil {
		t.Fatalf("preset quick-wins: %v", err)
	}
	if len(quick) != 1 || quick[0].Title != "small thing" {
		t.Fatalf("quick-wins preset: %+v", quick)
	}

	if _, err := env.Engine.FilterPreset(env.Ctx, "ada@example.com", "nope"); err == nil {
		t.Fatalf("unknown preset accepted")
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "parent", AssignedTo: "ada@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.AddSubtask(env.Ctx, task.ID, "step one", "ada@example.com")
	if err != nil {
		t.Fatalf("add subtask: %v", err)
	}
	if len(task.Subtasks) != 1 || task.Subtasks[0].Completed {
		t.Fatalf("subtasks: %+v", task.Subtasks)
	}
	task, err = env.Engine.ToggleSubtask(env.Ctx, task.ID, task.Subtasks[0].ID, "ada@example.com")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !task.Subtasks[0].Completed {
		t.Fatalf("toggle did not complete subtask")
	}
	task, err = env.Engine.RemoveSubtask(env.Ctx, task.ID, task.Subtasks[0].ID, "ada@example.com")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(task.Subtasks) != 0 {
		t.Fatalf("subtask not removed")
	}
}

func TestLabelPatchSemantics(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "labelled", AssignedTo: "ada@example.com", Labels: []string{"work"},
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:           task.ID,
		AddLabels:    []string{"urgent", "work"},
		RemoveLabels: []string{"missing"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(task.Labels) != 2 {
		t.Fatalf("labels = %v, want [work urgent]", task.Labels)
	}
}

func TestOrderlessListBreaksTiesByPriority(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"medium", "low", "urgent", "high"} {
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			Title: p + " task", AssignedTo: "ada@example.com", Priority: p,
		}); err != nil {
			t.Fatalf("create %s: %v", p, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{AssignedTo: "ada@example.com"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.Priority
	}
	want := []string{"urgent", "high", "medium", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priorities = %v, want %v", got, want)
		}
	}

	// An explicit sort position still beats any priority.
	pinned, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "pinned", AssignedTo: "ada@example.com", Priority: "low",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ReorderTask(env.Ctx, pinned.ID, 1, "ada@example.com"); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	tasks, err = env.Engine.ListTasks(env.Ctx, repo.TaskFilters{AssignedTo: "ada@example.com"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks[0].ID != pinned.ID {
		t.Fatalf("first task = %q, want the explicitly ordered one", tasks[0].Title)
	}
}
