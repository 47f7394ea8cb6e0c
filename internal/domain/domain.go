package domain

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task types.
const (
	TypeUserCreated       = "user_created"
	TypeDelegated         = "delegated"
	TypeRecurringInstance = "recurring_instance"
)

// Recurrence patterns.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternYearly  = "yearly"
)

// Reminder types.
const (
	ReminderRelative = "relative"
	ReminderAbsolute = "absolute"
)

// TaskRequest statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

type Task struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Priority        string          `json:"priority" enum:"low,medium,high,urgent"`
	Status          string          `json:"status" enum:"pending,in_progress,completed"`
	DueDate         *string         `json:"due_date,omitempty"`
	DueTime         *string         `json:"due_time,omitempty"`
	EstimatedTime   *int            `json:"estimated_time,omitempty"`
	AssignedTo      string          `json:"assigned_to"`
	AssignedBy      *string         `json:"assigned_by,omitempty"`
	Labels          []string        `json:"labels,omitempty"`
	Subtasks        []Subtask       `json:"subtasks,omitempty"`
	Comments        []Comment       `json:"comments,omitempty"`
	Attachments     []string        `json:"attachments,omitempty"`
	Project         *string         `json:"project,omitempty"`
	Section         *string         `json:"section,omitempty"`
	Order           *float64        `json:"order,omitempty"`
	Recurring       *RecurrenceRule `json:"recurring,omitempty"`
	RecurringParent *string         `json:"recurring_parent,omitempty"`
	Reminders       []Reminder      `json:"reminders,omitempty"`
	TaskType        string          `json:"task_type" enum:"user_created,delegated,recurring_instance"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
	CompletedDate   *string         `json:"completed_date,omitempty" format:"date-time"`
}

// RecurrenceRule describes how a task repeats after completion. EndDate,
// when set, is the last due date an instance may carry (inclusive).
type RecurrenceRule struct {
	Pattern  string  `json:"pattern" enum:"daily,weekly,monthly,yearly"`
	Interval int     `json:"interval"`
	EndDate  *string `json:"end_date,omitempty"`
}

type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type Comment struct {
	ID          string   `json:"id"`
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	Timestamp   string   `json:"timestamp" format:"date-time"`
	Attachments []string `json:"attachments,omitempty"`
}

// Reminder fires either a fixed number of minutes before the task's due
// instant (relative) or at an absolute datetime. Sent flips exactly once.
type Reminder struct {
	ID       string  `json:"id"`
	Type     string  `json:"type" enum:"relative,absolute"`
	Minutes  *int    `json:"minutes,omitempty"`
	Datetime *string `json:"datetime,omitempty" format:"date-time"`
	Label    string  `json:"label,omitempty"`
	Sent     bool    `json:"sent"`
}

// TaskRequest is a delegation offer between two users. TaskID is set iff
// the request was accepted; a request is terminal once accepted or declined.
type TaskRequest struct {
	ID            string  `json:"id"`
	FromUser      string  `json:"from_user"`
	ToUser        string  `json:"to_user"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Priority      string  `json:"priority,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
	Status        string  `json:"status" enum:"pending,accepted,declined"`
	TaskID        *string `json:"task_id,omitempty"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Notification struct {
	ID        int64   `json:"id"`
	UserEmail string  `json:"user_email"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Link      string  `json:"link,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserEmail  string `json:"user_email,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
