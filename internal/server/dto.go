package server

import (
	"taskpulse/internal/domain"
	"taskpulse/internal/engine"
	"taskpulse/internal/filter"
)

// Request payloads

type CreateTaskRequest struct {
	Title         string                 `json:"title"`
	Description   *string                `json:"description,omitempty"`
	Priority      *string                `json:"priority,omitempty"`
	DueDate       *string                `json:"due_date,omitempty"`
	DueTime       *string                `json:"due_time,omitempty"`
	EstimatedTime *int                   `json:"estimated_time,omitempty"`
	AssignedTo    string                 `json:"assigned_to"`
	Labels        []string               `json:"labels,omitempty"`
	Project       *string                `json:"project,omitempty"`
	Section       *string                `json:"section,omitempty"`
	Recurring     *domain.RecurrenceRule `json:"recurring,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string                `json:"title,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Priority       *string                `json:"priority,omitempty"`
	Status         *string                `json:"status,omitempty" enum:"pending,in_progress"`
	DueDate        *string                `json:"due_date,omitempty"`
	DueTime        *string                `json:"due_time,omitempty"`
	EstimatedTime  *int                   `json:"estimated_time,omitempty"`
	AssignedTo     *string                `json:"assigned_to,omitempty"`
	Project        *string                `json:"project,omitempty"`
	Section        *string                `json:"section,omitempty"`
	Order          *float64               `json:"order,omitempty"`
	AddLabels      []string               `json:"add_labels,omitempty"`
	RemoveLabels   []string               `json:"remove_labels,omitempty"`
	Recurring      *domain.RecurrenceRule `json:"recurring,omitempty"`
	ClearRecurring bool                   `json:"clear_recurring,omitempty"`
}

type AddSubtaskRequest struct {
	Text string `json:"text"`
}

type AddCommentRequest struct {
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

type AddReminderRequest struct {
	Type     string `json:"type" enum:"relative,absolute"`
	Minutes  int    `json:"minutes,omitempty"`
	Datetime string `json:"datetime,omitempty" format:"date-time"`
	Label    string `json:"label,omitempty"`
}

type ReorderRequest struct {
	Order float64 `json:"order"`
}

type CreateRequestRequest struct {
	FromUser    string  `json:"from_user"`
	ToUser      string  `json:"to_user"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type DeclineRequestRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ArchiveRequest struct {
	User string `json:"user"`
}

type FilterRequest struct {
	User     string          `json:"user"`
	Criteria filter.Criteria `json:"criteria"`
}

// Response payloads

type CompleteTaskResponse struct {
	Task domain.Task  `json:"task"`
	Next *domain.Task `json:"next_instance,omitempty"`
}

type TaskViewResponse struct {
	Task    domain.Task `json:"task"`
	DueInfo string      `json:"due_info,omitempty"`
}

type ViewResponse struct {
	Overdue   []TaskViewResponse `json:"overdue"`
	Today     []TaskViewResponse `json:"today"`
	Upcoming  []TaskViewResponse `json:"upcoming"`
	NoDate    []TaskViewResponse `json:"no_date"`
	Completed []TaskViewResponse `json:"completed"`
}

func viewResponse(v engine.ViewBuckets) ViewResponse {
	return ViewResponse{
		Overdue:   mapViews(v.Overdue),
		Today:     mapViews(v.Today),
		Upcoming:  mapViews(v.Upcoming),
		NoDate:    mapViews(v.NoDate),
		Completed: mapViews(v.Completed),
	}
}

func mapViews(in []engine.TaskView) []TaskViewResponse {
	out := make([]TaskViewResponse, 0, len(in))
	for _, tv := range in {
		out = append(out, TaskViewResponse{Task: tv.Task, DueInfo: tv.DueInfo})
	}
	return out
}

func nonNilTasks(in []domain.Task) []domain.Task {
	if in == nil {
		return []domain.Task{}
	}
	return in
}

func nonNilRequests(in []domain.TaskRequest) []domain.TaskRequest {
	if in == nil {
		return []domain.TaskRequest{}
	}
	return in
}

func stringOrEmpty(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
