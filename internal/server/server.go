package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskpulse/internal/analytics"
	"taskpulse/internal/domain"
	"taskpulse/internal/engine"
	"taskpulse/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"request already resolved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the TaskPulse API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("TaskPulse API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerTaskCollections(group, cfg.Engine)
	registerFilters(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>TaskPulse API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Actor string            `header:"X-Actor"`
		Body  CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		opts := engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Priority:    stringOrEmpty(input.Body.Priority),
			DueDate:     stringOrEmpty(input.Body.DueDate),
			DueTime:     stringOrEmpty(input.Body.DueTime),
			AssignedTo:  input.Body.AssignedTo,
			Labels:      input.Body.Labels,
			Project:     stringOrEmpty(input.Body.Project),
			Section:     stringOrEmpty(input.Body.Section),
			Recurring:   input.Body.Recurring,
			ActorID:     actorOrAssignee(input.Actor, input.Body.AssignedTo),
		}
		if input.Body.EstimatedTime != nil {
			opts.EstimatedTime = *input.Body.EstimatedTime
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssignedTo string `query:"assigned_to"`
		Status     string `query:"status"`
		Project    string `query:"project"`
		TaskType   string `query:"task_type"`
		Limit      int    `query:"limit" default:"100"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		tasks, err := e.ListTasks(ctx, repo.TaskFilters{
			AssignedTo: input.AssignedTo,
			Status:     input.Status,
			Project:    input.Project,
			TaskType:   input.TaskType,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string            `path:"id"`
		Actor string            `header:"X-Actor"`
		Body  UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:             input.ID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			Priority:       input.Body.Priority,
			Status:         input.Body.Status,
			DueDate:        input.Body.DueDate,
			DueTime:        input.Body.DueTime,
			EstimatedTime:  input.Body.EstimatedTime,
			Assign:         input.Body.AssignedTo,
			Project:        input.Body.Project,
			Section:        input.Body.Section,
			Order:          input.Body.Order,
			AddLabels:      input.Body.AddLabels,
			RemoveLabels:   input.Body.RemoveLabels,
			Recurring:      input.Body.Recurring,
			ClearRecurring: input.Body.ClearRecurring,
			ActorID:        input.Actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Actor string `header:"X-Actor"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID, input.Actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Actor string `header:"X-Actor"`
	}) (*struct {
		Body CompleteTaskResponse `json:"body"`
	}, error) {
		t, next, err := e.CompleteTask(ctx, input.ID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompleteTaskResponse `json:"body"`
		}{Body: CompleteTaskResponse{Task: t, Next: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/reopen",
		Summary:     "Reopen completed task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Actor string `header:"X-Actor"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ReopenTask(ctx, input.ID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerTaskCollections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/subtasks",
		Summary:       "Add subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string            `path:"id"`
		Actor string            `header:"X-Actor"`
		Body  AddSubtaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.AddSubtask(ctx, input.ID, input.Body.Text, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-subtask",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/subtasks/{subtask_id}",
		Summary:     "Toggle subtask completion",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		SubtaskID string `path:"subtask_id"`
		Actor     string `header:"X-Actor"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ToggleSubtask(ctx, input.ID, input.SubtaskID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-subtask",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/subtasks/{subtask_id}",
		Summary:     "Remove subtask",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		SubtaskID string `path:"subtask_id"`
		Actor     string `header:"X-Actor"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.RemoveSubtask(ctx, input.ID, input.SubtaskID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/comments",
		Summary:       "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string            `path:"id"`
		Actor string            `header:"X-Actor"`
		Body  AddCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.AddComment(ctx, input.ID, input.Body.Author, input.Body.Text, input.Body.Attachments, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-reminder",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/reminders",
		Summary:       "Add reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string             `path:"id"`
		Actor string             `header:"X-Actor"`
		Body  AddReminderRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.AddReminder(ctx, input.ID, engine.ReminderOptions{
			Type:     input.Body.Type,
			Minutes:  input.Body.Minutes,
			Datetime: input.Body.Datetime,
			Label:    input.Body.Label,
		}, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-reminder",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/reminders/{reminder_id}",
		Summary:     "Remove reminder",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		ReminderID string `path:"reminder_id"`
		Actor      string `header:"X-Actor"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.RemoveReminder(ctx, input.ID, input.ReminderID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/reorder",
		Summary:     "Reorder task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string         `path:"id"`
		Actor string         `header:"X-Actor"`
		Body  ReorderRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ReorderTask(ctx, input.ID, input.Body.Order, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerFilters(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "filter-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/filter",
		Summary:     "Filter tasks by criteria",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body FilterRequest `json:"body"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if input.Body.User == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user is required", nil)
		}
		tasks, err := e.FilterTasks(ctx, input.Body.User, input.Body.Criteria)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "filter-preset",
		Method:      http.MethodGet,
		Path:        "/tasks/presets/{name}",
		Summary:     "Apply a named filter preset",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		User string `query:"user"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if input.User == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user is required", nil)
		}
		tasks, err := e.FilterPreset(ctx, input.User, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilTasks(tasks)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "user-views",
		Method:      http.MethodGet,
		Path:        "/users/{email}/views",
		Summary:     "Dashboard view buckets",
	}, func(ctx context.Context, input *struct {
		Email string `path:"email"`
	}) (*struct {
		Body ViewResponse `json:"body"`
	}, error) {
		v, err := e.ListView(ctx, input.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ViewResponse `json:"body"`
		}{Body: viewResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-stats",
		Method:      http.MethodGet,
		Path:        "/users/{email}/stats",
		Summary:     "Productivity stats",
	}, func(ctx context.Context, input *struct {
		Email string `path:"email"`
	}) (*struct {
		Body analytics.Stats `json:"body"`
	}, error) {
		stats, err := e.Stats(ctx, input.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.Stats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-notifications",
		Method:      http.MethodGet,
		Path:        "/users/{email}/notifications",
		Summary:     "Recent notifications",
	}, func(ctx context.Context, input *struct {
		Email string `path:"email"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		items, err := e.Notifications(ctx, input.Email, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Delegate a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*struct {
		Body domain.TaskRequest `json:"body"`
	}, error) {
		req, err := e.CreateRequest(ctx, engine.RequestCreateOptions{
			FromUser:    input.Body.FromUser,
			ToUser:      input.Body.ToUser,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Priority:    stringOrEmpty(input.Body.Priority),
			DueDate:     stringOrEmpty(input.Body.DueDate),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-inbox",
		Method:      http.MethodGet,
		Path:        "/requests/inbox",
		Summary:     "Requests addressed to a user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		User            string `query:"user"`
		IncludeArchived bool   `query:"include_archived"`
	}) (*struct {
		Body []domain.TaskRequest `json:"body"`
	}, error) {
		if input.User == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user is required", nil)
		}
		reqs, err := e.Inbox(ctx, input.User, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskRequest `json:"body"`
		}{Body: nonNilRequests(reqs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-outbox",
		Method:      http.MethodGet,
		Path:        "/requests/outbox",
		Summary:     "Requests a user sent",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		User            string `query:"user"`
		IncludeArchived bool   `query:"include_archived"`
	}) (*struct {
		Body []domain.TaskRequest `json:"body"`
	}, error) {
		if input.User == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user is required", nil)
		}
		reqs, err := e.Outbox(ctx, input.User, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskRequest `json:"body"`
		}{Body: nonNilRequests(reqs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/accept",
		Summary:     "Accept a delegation request",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Actor string `header:"X-Actor"`
	}) (*struct {
		Body struct {
			Request domain.TaskRequest `json:"request"`
			Task    domain.Task        `json:"task"`
		} `json:"body"`
	}, error) {
		req, task, err := e.AcceptRequest(ctx, input.ID, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Request domain.TaskRequest `json:"request"`
				Task    domain.Task        `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Request = req
		out.Body.Task = task
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/decline",
		Summary:     "Decline a delegation request",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID    string                `path:"id"`
		Actor string                `header:"X-Actor"`
		Body  DeclineRequestRequest `json:"body"`
	}) (*struct {
		Body domain.TaskRequest `json:"body"`
	}, error) {
		req, err := e.DeclineRequest(ctx, input.ID, input.Body.Reason, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/archive",
		Summary:     "Hide a request for one user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ArchiveRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.ArchiveRequest(ctx, input.Body.User, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unarchive-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/unarchive",
		Summary:     "Unhide a request for one user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ArchiveRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.UnarchiveRequest(ctx, input.Body.User, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest engine events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		User       string `query:"user"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.User, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func actorOrAssignee(actor, assignee string) string {
	if actor != "" {
		return actor
	}
	return assignee
}
