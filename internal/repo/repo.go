package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskpulse/internal/config"
	"taskpulse/internal/domain"
)

// Repo is the task store: plain database/sql over SQLite. Composite task
// fields (labels, subtasks, comments, attachments, reminders, recurrence)
// live in JSON columns and are written whole-document, so a transaction is
// the only mutation boundary.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,description,priority,status,due_date,due_time,estimated_time,assigned_to,assigned_by,labels_json,subtasks_json,comments_json,attachments_json,project,section,sort_order,recurring_json,recurring_parent,reminders_json,task_type,created_at,updated_at,completed_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, dueTime, assignedBy sql.NullString
	var labels, subtasks, comments, attachments sql.NullString
	var project, section, recurring, recurringParent, reminders, completedDate sql.NullString
	var estimated sql.NullInt64
	var order sql.NullFloat64
	err := row.Scan(&t.ID, &t.Title, &description, &t.Priority, &t.Status, &dueDate, &dueTime, &estimated,
		&t.AssignedTo, &assignedBy, &labels, &subtasks, &comments, &attachments, &project, &section,
		&order, &recurring, &recurringParent, &reminders, &t.TaskType, &t.CreatedAt, &t.UpdatedAt, &completedDate)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	t.DueDate = optional(dueDate)
	t.DueTime = optional(dueTime)
	t.AssignedBy = optional(assignedBy)
	t.Project = optional(project)
	t.Section = optional(section)
	t.RecurringParent = optional(recurringParent)
	t.CompletedDate = optional(completedDate)
	if estimated.Valid {
		v := int(estimated.Int64)
		t.EstimatedTime = &v
	}
	if order.Valid {
		v := order.Float64
		t.Order = &v
	}
	if err := decodeColumn(labels, &t.Labels); err != nil {
		return t, fmt.Errorf("task %s labels: %w", t.ID, err)
	}
	if err := decodeColumn(subtasks, &t.Subtasks); err != nil {
		return t, fmt.Errorf("task %s subtasks: %w", t.ID, err)
	}
	if err := decodeColumn(comments, &t.Comments); err != nil {
		return t, fmt.Errorf("task %s comments: %w", t.ID, err)
	}
	if err := decodeColumn(attachments, &t.Attachments); err != nil {
		return t, fmt.Errorf("task %s attachments: %w", t.ID, err)
	}
	if err := decodeColumn(reminders, &t.Reminders); err != nil {
		return t, fmt.Errorf("task %s reminders: %w", t.ID, err)
	}
	if recurring.Valid && recurring.String != "" {
		var rule domain.RecurrenceRule
		if err := json.Unmarshal([]byte(recurring.String), &rule); err != nil {
			return t, fmt.Errorf("task %s recurrence: %w", t.ID, err)
		}
		t.Recurring = &rule
	}
	return t, nil
}

func taskArgs(t domain.Task) ([]any, error) {
	labels, err := encodeColumn(t.Labels)
	if err != nil {
		return nil, err
	}
	subtasks, err := encodeColumn(t.Subtasks)
	if err != nil {
		return nil, err
	}
	comments, err := encodeColumn(t.Comments)
	if err != nil {
		return nil, err
	}
	attachments, err := encodeColumn(t.Attachments)
	if err != nil {
		return nil, err
	}
	reminders, err := encodeColumn(t.Reminders)
	if err != nil {
		return nil, err
	}
	var recurring any
	if t.Recurring != nil {
		b, err := json.Marshal(t.Recurring)
		if err != nil {
			return nil, err
		}
		recurring = string(b)
	}
	return []any{
		t.ID, t.Title, nullable(t.Description), t.Priority, t.Status,
		nullableStringPtr(t.DueDate), nullableStringPtr(t.DueTime), nullableIntPtr(t.EstimatedTime),
		t.AssignedTo, nullableStringPtr(t.AssignedBy),
		labels, subtasks, comments, attachments,
		nullableStringPtr(t.Project), nullableStringPtr(t.Section), nullableFloatPtr(t.Order),
		recurring, nullableStringPtr(t.RecurringParent), reminders,
		t.TaskType, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedDate),
	}, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (`+placeholders+`)`, args...)
	return err
}

// UpdateTask writes the whole task row. Callers read-modify-write inside
// one transaction.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	cols := strings.Split(taskColumns, ",")
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+"=?")
	}
	// shift id to the WHERE clause
	args = append(args[1:], t.ID)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted transitions a task to completed only if it is not already
// completed, making recurrence spawn idempotent under double-invocation.
// The returned bool reports whether this call performed the transition.
func (r Repo) MarkCompleted(ctx context.Context, tx *sql.Tx, id, completedAt, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, completed_date=?, updated_at=? WHERE id=? AND status<>?`,
		domain.StatusCompleted, completedAt, updatedAt, id, domain.StatusCompleted)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type TaskFilters struct {
	AssignedTo string
	Status     string
	Project    string
	TaskType   string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Project != "" {
		clauses = append(clauses, "project=?")
		args = append(args, f.Project)
	}
	if f.TaskType != "" {
		clauses = append(clauses, "task_type=?")
		args = append(args, f.TaskType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where +
		` ORDER BY CASE WHEN sort_order IS NULL THEN 1 ELSE 0 END, sort_order ASC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	tasks, err := r.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sortOrderlessByPriority(tasks)
	return tasks, nil
}

// Tasks without an explicit sort_order come back as a contiguous suffix
// ordered by created_at. Within that suffix, higher priority wins; equal
// priorities keep the created_at order.
func sortOrderlessByPriority(tasks []domain.Task) {
	i := 0
	for i < len(tasks) && tasks[i].Order != nil {
		i++
	}
	tail := tasks[i:]
	sort.SliceStable(tail, func(a, b int) bool {
		return domain.PriorityRank(tail[a].Priority) > domain.PriorityRank(tail[b].Priority)
	})
}

// ListOpenWithReminders returns non-completed tasks that carry at least one
// reminder; sent/due filtering stays with the scheduler.
func (r Repo) ListOpenWithReminders(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status<>? AND reminders_json IS NOT NULL`
	return r.queryTasks(ctx, query, domain.StatusCompleted)
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- task requests ---

const requestColumns = `id,from_user,to_user,title,description,priority,due_date,status,task_id,decline_reason,created_at,updated_at`

func scanRequest(row scanner) (domain.TaskRequest, error) {
	var req domain.TaskRequest
	var description, priority, dueDate, taskID, reason sql.NullString
	err := row.Scan(&req.ID, &req.FromUser, &req.ToUser, &req.Title, &description, &priority,
		&dueDate, &req.Status, &taskID, &reason, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	if description.Valid {
		req.Description = description.String
	}
	if priority.Valid {
		req.Priority = priority.String
	}
	req.DueDate = optional(dueDate)
	req.TaskID = optional(taskID)
	req.DeclineReason = optional(reason)
	return req, nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.TaskRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.FromUser, req.ToUser, req.Title, nullable(req.Description), nullable(req.Priority),
		nullableStringPtr(req.DueDate), req.Status, nullableStringPtr(req.TaskID),
		nullableStringPtr(req.DeclineReason), req.CreatedAt, req.UpdatedAt)
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.TaskRequest, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM task_requests WHERE id=?`, id))
}

// TransitionRequest performs the one-shot pending -> accepted/declined
// transition as a conditional write. False means the request was already
// terminal (or missing); the caller maps that to a conflict.
func (r Repo) TransitionRequest(ctx context.Context, tx *sql.Tx, id, toStatus string, taskID, declineReason *string, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE task_requests SET status=?, task_id=?, decline_reason=?, updated_at=? WHERE id=? AND status=?`,
		toStatus, nullableStringPtr(taskID), nullableStringPtr(declineReason), updatedAt, id, domain.RequestPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ListInbox(ctx context.Context, toUser string) ([]domain.TaskRequest, error) {
	return r.queryRequests(ctx, `SELECT `+requestColumns+` FROM task_requests WHERE to_user=? ORDER BY created_at DESC, id DESC`, toUser)
}

func (r Repo) ListOutbox(ctx context.Context, fromUser string) ([]domain.TaskRequest, error) {
	return r.queryRequests(ctx, `SELECT `+requestColumns+` FROM task_requests WHERE from_user=? ORDER BY created_at DESC, id DESC`, fromUser)
}

func (r Repo) queryRequests(ctx context.Context, query string, args ...any) ([]domain.TaskRequest, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// --- per-viewer archive flags ---

// Archive records a hide-for-me flag for one viewer. Re-archiving is a
// no-op, never an error.
func (r Repo) Archive(ctx context.Context, userEmail, refID, now string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO request_archives(user_email,ref_id,created_at) VALUES (?,?,?)
ON CONFLICT(user_email,ref_id) DO NOTHING`, userEmail, refID, now)
	return err
}

func (r Repo) Unarchive(ctx context.Context, userEmail, refID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM request_archives WHERE user_email=? AND ref_id=?`, userEmail, refID)
	return err
}

func (r Repo) ArchivedRefs(ctx context.Context, userEmail string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ref_id FROM request_archives WHERE user_email=?`, userEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refs := map[string]bool{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs[ref] = true
	}
	return refs, rows.Err()
}

// --- notifications ---

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO notifications(user_email,title,message,link,task_id,created_at) VALUES (?,?,?,?,?,?)`,
		n.UserEmail, n.Title, n.Message, nullable(n.Link), nullableStringPtr(n.TaskID), n.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListNotifications(ctx context.Context, userEmail string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_email,title,message,COALESCE(link,''),task_id,created_at FROM notifications WHERE user_email=? ORDER BY id DESC`
	args := []any{userEmail}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryNotifications(ctx, query, args...)
}

// NotificationsAfter returns notifications with IDs greater than the cursor
// in ascending order, for webhook delivery.
func (r Repo) NotificationsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryNotifications(ctx,
		`SELECT id,user_email,title,message,COALESCE(link,''),task_id,created_at FROM notifications WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
}

func (r Repo) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var taskID sql.NullString
		if err := rows.Scan(&n.ID, &n.UserEmail, &n.Title, &n.Message, &n.Link, &taskID, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.TaskID = optional(taskID)
		res = append(res, n)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, userEmail, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if userEmail != "" {
		clauses = append(clauses, "user_email=?")
		args = append(args, userEmail)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,COALESCE(user_email,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserEmail, &e.EntityKind, &e.EntityID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- workspace config ---

func (r Repo) GetWorkspaceConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_config WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO workspace_config(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

// --- helpers ---

func optional(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func encodeColumn(v any) (any, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.Subtask:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.Comment:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.Reminder:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeColumn(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
