package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
	"taskpulse/internal/events"
	"taskpulse/internal/schedule"
)

// RequestCreateOptions are parameters for delegating a task to another user.
type RequestCreateOptions struct {
	FromUser    string
	ToUser      string
	Title       string
	Description string
	Priority    string
	DueDate     string
}

func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.TaskRequest, error) {
	if opts.FromUser == "" || opts.ToUser == "" {
		return domain.TaskRequest{}, errors.New("from_user and to_user are required")
	}
	if opts.FromUser == opts.ToUser {
		return domain.TaskRequest{}, errors.New("invalid recipient: cannot delegate a task to yourself")
	}
	if opts.Title == "" {
		return domain.TaskRequest{}, errors.New("title is required")
	}
	priority := ""
	if opts.Priority != "" {
		priority = domain.NormalizePriority(opts.Priority)
		if priority == "" {
			return domain.TaskRequest{}, fmt.Errorf("invalid priority %q", opts.Priority)
		}
	}
	if opts.DueDate != "" {
		if _, ok := schedule.ParseDate(opts.DueDate, e.Location()); !ok {
			return domain.TaskRequest{}, fmt.Errorf("invalid due_date %q", opts.DueDate)
		}
	}
	now := e.nowString()
	req := domain.TaskRequest{
		ID:          uuid.New().String(),
		FromUser:    opts.FromUser,
		ToUser:      opts.ToUser,
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    priority,
		DueDate:     optionalString(opts.DueDate),
		Status:      domain.RequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return req, err
	}
	if _, err := e.Repo.InsertNotification(ctx, tx, domain.Notification{
		UserEmail: req.ToUser,
		Title:     "New task request",
		Message:   fmt.Sprintf("%s wants to delegate: %s", req.FromUser, req.Title),
		Link:      "/requests/" + req.ID,
		CreatedAt: now,
	}); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "request.created", req.ToUser, "request", req.ID, req.FromUser, events.EventPayload{"title": req.Title}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	return req, nil
}

// AcceptRequest transitions pending -> accepted and creates the delegated
// task in the recipient's space, all in one transaction. The transition is
// a conditional write: losing the race surfaces ErrConflict and never
// creates a second task.
func (e Engine) AcceptRequest(ctx context.Context, requestID, actorID string) (domain.TaskRequest, domain.Task, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return req, domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    defaultPriority(req.Priority),
		Status:      domain.StatusPending,
		DueDate:     req.DueDate,
		AssignedTo:  req.ToUser,
		AssignedBy:  &req.FromUser,
		TaskType:    domain.TypeDelegated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	transitioned, err := e.Repo.TransitionRequest(ctx, tx, requestID, domain.RequestAccepted, &t.ID, nil, now)
	if err != nil {
		return req, domain.Task{}, err
	}
	if !transitioned {
		return req, domain.Task{}, fmt.Errorf("accept request %s: %w", requestID, ErrConflict)
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return req, domain.Task{}, err
	}
	if _, err := e.Repo.InsertNotification(ctx, tx, domain.Notification{
		UserEmail: req.FromUser,
		Title:     "Task request accepted",
		Message:   fmt.Sprintf("%s accepted: %s", req.ToUser, req.Title),
		Link:      "/tasks/" + t.ID,
		TaskID:    &t.ID,
		CreatedAt: now,
	}); err != nil {
		return req, domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.accepted", req.FromUser, "request", req.ID, actorID, events.EventPayload{"task_id": t.ID}); err != nil {
		return req, domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return req, domain.Task{}, err
	}
	req.Status = domain.RequestAccepted
	req.TaskID = &t.ID
	req.UpdatedAt = now
	return req, t, nil
}

// DeclineRequest transitions pending -> declined with an optional reason.
// No task is created; a second resolution attempt surfaces ErrConflict.
func (e Engine) DeclineRequest(ctx context.Context, requestID, reason, actorID string) (domain.TaskRequest, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return req, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()

	now := e.nowString()
	transitioned, err := e.Repo.TransitionRequest(ctx, tx, requestID, domain.RequestDeclined, nil, optionalString(reason), now)
	if err != nil {
		return req, err
	}
	if !transitioned {
		return req, fmt.Errorf("decline request %s: %w", requestID, ErrConflict)
	}
	if _, err := e.Repo.InsertNotification(ctx, tx, domain.Notification{
		UserEmail: req.FromUser,
		Title:     "Task request declined",
		Message:   declineMessage(req, reason),
		Link:      "/requests/" + req.ID,
		CreatedAt: now,
	}); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "request.declined", req.FromUser, "request", req.ID, actorID, events.EventPayload{"reason": reason}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	req.Status = domain.RequestDeclined
	req.DeclineReason = optionalString(reason)
	req.UpdatedAt = now
	return req, nil
}

// ArchiveRequest hides a request (or linked task) from one viewer only.
// The flag never touches the request's status, so the other party's view
// is unaffected.
func (e Engine) ArchiveRequest(ctx context.Context, userEmail, refID string) error {
	if userEmail == "" || refID == "" {
		return errors.New("user and ref are required")
	}
	return e.Repo.Archive(ctx, userEmail, refID, e.nowString())
}

func (e Engine) UnarchiveRequest(ctx context.Context, userEmail, refID string) error {
	if userEmail == "" || refID == "" {
		return errors.New("user and ref are required")
	}
	return e.Repo.Unarchive(ctx, userEmail, refID)
}

// Inbox lists requests addressed to a user, dropping the ones that user
// archived unless includeArchived is set.
func (e Engine) Inbox(ctx context.Context, userEmail string, includeArchived bool) ([]domain.TaskRequest, error) {
	reqs, err := e.Repo.ListInbox(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return e.filterArchived(ctx, userEmail, reqs, includeArchived)
}

// Outbox lists requests a user sent.
func (e Engine) Outbox(ctx context.Context, userEmail string, includeArchived bool) ([]domain.TaskRequest, error) {
	reqs, err := e.Repo.ListOutbox(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return e.filterArchived(ctx, userEmail, reqs, includeArchived)
}

func (e Engine) filterArchived(ctx context.Context, userEmail string, reqs []domain.TaskRequest, includeArchived bool) ([]domain.TaskRequest, error) {
	if includeArchived {
		return reqs, nil
	}
	archived, err := e.Repo.ArchivedRefs(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	var out []domain.TaskRequest
	for _, req := range reqs {
		if archived[req.ID] {
			continue
		}
		if req.TaskID != nil && archived[*req.TaskID] {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func defaultPriority(p string) string {
	if p == "" {
		return domain.PriorityMedium
	}
	return p
}

func declineMessage(req domain.TaskRequest, reason string) string {
	if reason == "" {
		return fmt.Sprintf("%s declined: %s", req.ToUser, req.Title)
	}
	return fmt.Sprintf("%s declined: %s (%s)", req.ToUser, req.Title, reason)
}
