package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskpulse/internal/app"
	"taskpulse/internal/db"
	"taskpulse/internal/domain"
	"taskpulse/internal/engine"
	"taskpulse/internal/filter"
	"taskpulse/internal/migrate"
	"taskpulse/internal/notify"
	"taskpulse/internal/reminder"
	"taskpulse/internal/repo"
	"taskpulse/internal/schedule"
	"taskpulse/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "TaskPulse CLI",
	Long: `TaskPulse is a task lifecycle and scheduling engine for teams.
Core concepts:
- Workspace: the .taskpulse directory with only the database; config is stored in the DB and imported explicitly.
- Tasks: work items with due dates, labels, subtasks, comments, and reminders; statuses go pending -> in_progress -> completed.
- Recurrence: completing a recurring task materializes its next instance atomically.
- Delegation: requests move pending -> accepted/declined exactly once; accepting creates the task in the recipient's space.
- Reminders: a background scheduler fires each reminder at most once within a configurable window.
- Stats: streak, karma, and level are recomputed from raw history, never cached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "acting user email")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subtaskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(reminderCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(filterCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(remindCmd())
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskAddCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskDoneCmd())
	t.AddCommand(taskReopenCmd())
	t.AddCommand(taskDeleteCmd())
	t.AddCommand(taskReorderCmd())
	return t
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var recurPattern, recurEnd string
	var recurInterval int
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			if opts.AssignedTo == "" {
				opts.AssignedTo = viper.GetString("user")
			}
			opts.ActorID = actorID()
			if recurPattern != "" {
				rule := &domain.RecurrenceRule{Pattern: recurPattern, Interval: recurInterval}
				if recurEnd != "" {
					rule.EndDate = &recurEnd
				}
				opts.Recurring = rule
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (p1..p4 or low..urgent)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.DueTime, "at", "", "due time (HH:MM)")
	cmd.Flags().IntVar(&opts.EstimatedTime, "estimate", 0, "estimated minutes")
	cmd.Flags().StringVar(&opts.AssignedTo, "assign", "", "assignee email")
	cmd.Flags().StringArrayVar(&opts.Labels, "label", []string{}, "label (repeatable)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project name")
	cmd.Flags().StringVar(&opts.Section, "section", "", "section name")
	cmd.Flags().StringVar(&recurPattern, "every", "", "recurrence pattern (daily, weekly, monthly, yearly)")
	cmd.Flags().IntVar(&recurInterval, "interval", 1, "recurrence interval")
	cmd.Flags().StringVar(&recurEnd, "until", "", "recurrence end date")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.AssignedTo == "" {
					f.AssignedTo = viper.GetString("user")
				}
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(e, tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AssignedTo, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Project, "project", "", "project filter")
	cmd.Flags().StringVar(&f.TaskType, "type", "", "task type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, priority, status, due, at, assign, project, section string
	var estimate int
	var addLabels, removeLabels []string
	var clearRecurring bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:             args[0],
				ActorID:        actorID(),
				AddLabels:      addLabels,
				RemoveLabels:   removeLabels,
				ClearRecurring: clearRecurring,
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("at") {
				opts.DueTime = &at
			}
			if cmd.Flags().Changed("estimate") {
				opts.EstimatedTime = &estimate
			}
			if cmd.Flags().Changed("assign") {
				opts.Assign = &assign
			}
			if cmd.Flags().Changed("project") {
				opts.Project = &project
			}
			if cmd.Flags().Changed("section") {
				opts.Section = &section
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description (empty clears)")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, in_progress)")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty clears)")
	cmd.Flags().StringVar(&at, "at", "", "due time (empty clears)")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "estimated minutes (0 clears)")
	cmd.Flags().StringVar(&assign, "assign", "", "new assignee")
	cmd.Flags().StringVar(&project, "project", "", "project (empty clears)")
	cmd.Flags().StringVar(&section, "section", "", "section (empty clears)")
	cmd.Flags().StringArrayVar(&addLabels, "add-label", []string{}, "add label")
	cmd.Flags().StringArrayVar(&removeLabels, "remove-label", []string{}, "remove label")
	cmd.Flags().BoolVar(&clearRecurring, "clear-recurring", false, "drop the recurrence rule")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, next, err := e.CompleteTask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if next != nil && !viper.GetBool("json") {
					fmt.Printf("next instance %s due %s\n", next.ID, *next.DueDate)
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReopenTask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], actorID())
			})
		},
	}
	return cmd
}

func taskReorderCmd() *cobra.Command {
	var order float64
	cmd := &cobra.Command{
		Use:   "reorder <id>",
		Short: "Set task sort position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReorderTask(ctx, args[0], order, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Float64Var(&order, "order", 0, "sort position")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func subtaskCmd() *cobra.Command {
	s := &cobra.Command{Use: "subtask", Short: "Manage subtasks"}

	add := &cobra.Command{
		Use:   "add <task-id> <text>",
		Short: "Add subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddSubtask(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	toggle := &cobra.Command{
		Use:   "toggle <task-id> <subtask-id>",
		Short: "Toggle subtask completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleSubtask(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove <task-id> <subtask-id>",
		Short: "Remove subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveSubtask(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	s.AddCommand(add, toggle, remove)
	return s
}

func commentCmd() *cobra.Command {
	var attachments []string
	cmd := &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Add comment to task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddComment(ctx, args[0], actorID(), args[1], attachments, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringArrayVar(&attachments, "attachment", []string{}, "attachment reference")
	return cmd
}

func reminderCmd() *cobra.Command {
	r := &cobra.Command{Use: "reminder", Short: "Manage reminders"}

	var minutes int
	var at, label string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ReminderOptions{Label: label}
			switch {
			case minutes > 0 && at != "":
				return fmt.Errorf("--before and --at are mutually exclusive")
			case minutes > 0:
				opts.Type = domain.ReminderRelative
				opts.Minutes = minutes
			case at != "":
				opts.Type = domain.ReminderAbsolute
				opts.Datetime = at
			default:
				return fmt.Errorf("one of --before or --at is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddReminder(ctx, args[0], opts, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().IntVar(&minutes, "before", 0, "minutes before the due instant")
	add.Flags().StringVar(&at, "at", "", "absolute RFC3339 timestamp")
	add.Flags().StringVar(&label, "label", "", "custom message")

	remove := &cobra.Command{
		Use:   "remove <task-id> <reminder-id>",
		Short: "Remove reminder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveReminder(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	r.AddCommand(add, remove)
	return r
}

func requestCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "request",
		Short: "Delegate tasks between users",
		Long:  "Requests offer a task to another user. The recipient accepts (creating the task in their space) or declines; either way the request is resolved exactly once.",
	}
	r.AddCommand(requestSendCmd())
	r.AddCommand(requestInboxCmd())
	r.AddCommand(requestOutboxCmd())
	r.AddCommand(requestAcceptCmd())
	r.AddCommand(requestDeclineCmd())
	r.AddCommand(requestArchiveCmd())
	r.AddCommand(requestUnarchiveCmd())
	return r
}

func requestSendCmd() *cobra.Command {
	var opts engine.RequestCreateOptions
	cmd := &cobra.Command{
		Use:   "send <title>",
		Short: "Send a task request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			if opts.FromUser == "" {
				opts.FromUser = viper.GetString("user")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateRequest(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&opts.FromUser, "from", "", "sender email")
	cmd.Flags().StringVar(&opts.ToUser, "to", "", "recipient email")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func requestInboxCmd() *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Requests addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reqs, err := e.Inbox(ctx, user, includeArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reqs)
				}
				renderRequestTable(reqs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeArchived, "all", false, "include archived")
	return cmd
}

func requestOutboxCmd() *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Requests you sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reqs, err := e.Outbox(ctx, user, includeArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reqs)
				}
				renderRequestTable(reqs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeArchived, "all", false, "include archived")
	return cmd
}

func requestAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, task, err := e.AcceptRequest(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("accepted; task %s created\n", task.ID)
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestDeclineCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "decline <id>",
		Short: "Decline a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.DeclineRequest(ctx, args[0], reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	return cmd
}

func requestArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Hide a request from your views",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ArchiveRequest(ctx, user, args[0])
			})
		},
	}
	return cmd
}

func requestUnarchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unarchive <id>",
		Short: "Unhide a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.UnarchiveRequest(ctx, user, args[0])
			})
		},
	}
	return cmd
}

func viewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Dashboard view of your tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.ListView(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				renderViewSection("OVERDUE", v.Overdue)
				renderViewSection("TODAY", v.Today)
				renderViewSection("UPCOMING", v.Upcoming)
				renderViewSection("NO DATE", v.NoDate)
				renderViewSection("COMPLETED", v.Completed)
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Productivity stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Stats(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Completed", fmt.Sprintf("%d/%d", s.CompletedTasks, s.TotalTasks)})
				tw.AppendRow(table.Row{"Completion rate", fmt.Sprintf("%.0f%%", s.CompletionRate*100)})
				tw.AppendRow(table.Row{"Streak", s.Streak})
				tw.AppendRow(table.Row{"Karma", s.Karma})
				tw.AppendRow(table.Row{"Level", s.Level})
				if s.NextLevelAt > 0 {
					tw.AppendRow(table.Row{"Next level at", s.NextLevelAt})
				}
				if s.MostProductiveDay != "" {
					tw.AppendRow(table.Row{"Best day", s.MostProductiveDay})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func filterCmd() *cobra.Command {
	var c filter.Criteria
	var dueWithin, estimateMax int
	var hasSubtasks, hasReminders, isRecurring bool
	var preset string
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			if cmd.Flags().Changed("due-within") {
				c.DueWithinDays = &dueWithin
			}
			if cmd.Flags().Changed("estimate-max") {
				c.EstimatedTimeMax = &estimateMax
			}
			if cmd.Flags().Changed("has-subtasks") {
				c.HasSubtasks = &hasSubtasks
			}
			if cmd.Flags().Changed("has-reminders") {
				c.HasReminders = &hasReminders
			}
			if cmd.Flags().Changed("recurring") {
				c.IsRecurring = &isRecurring
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var tasks []domain.Task
				var err error
				if preset != "" {
					tasks, err = e.FilterPreset(ctx, user, preset)
				} else {
					tasks, err = e.FilterTasks(ctx, user, c)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(e, tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "named preset from config")
	cmd.Flags().StringArrayVar(&c.Priorities, "priority", []string{}, "priority filter")
	cmd.Flags().StringArrayVar(&c.Labels, "label", []string{}, "label filter")
	cmd.Flags().StringArrayVar(&c.Categories, "category", []string{}, "category filter")
	cmd.Flags().IntVar(&dueWithin, "due-within", 0, "due within N days")
	cmd.Flags().IntVar(&estimateMax, "estimate-max", 0, "max estimated minutes")
	cmd.Flags().BoolVar(&hasSubtasks, "has-subtasks", false, "require subtasks")
	cmd.Flags().BoolVar(&hasReminders, "has-reminders", false, "require reminders")
	cmd.Flags().BoolVar(&isRecurring, "recurring", false, "require recurrence")
	return cmd
}

func notifyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Recent notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := requireUser()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Notifications(ctx, user, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func logCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Tail the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, limit, viper.GetString("user"), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in the DB: timezone, reminder cadence, filter presets, and webhooks. Import from taskpulse.yml explicitly.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configExportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, r, data)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				fmt.Println("config imported")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "taskpulse.yml", "config file path")
	return cmd
}

func configExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(cmd.Context(), repo.Repo{DB: conn})
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}

			sched := reminder.New(conn, []notify.Sink{notify.LogSink{}})
			sched.Interval = cfg.ReminderInterval()
			sched.Window = cfg.ReminderWindow()
			sched.Location = cfg.Location()
			go sched.Run(cmd.Context())

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving TaskPulse API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func remindCmd() *cobra.Command {
	r := &cobra.Command{Use: "remind", Short: "Reminder scheduler"}

	check := &cobra.Command{
		Use:   "check",
		Short: "Run a single reminder sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), func(ctx context.Context, s *reminder.Scheduler) error {
				return s.CheckOnce(ctx)
			})
		},
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the reminder loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), func(ctx context.Context, s *reminder.Scheduler) error {
				err := s.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	r.AddCommand(check, run)
	return r
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, r)
		if err != nil {
			return err
		}
		return fn(ctx, engine.New(r.DB, cfg))
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func withScheduler(ctx context.Context, fn func(context.Context, *reminder.Scheduler) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, r)
		if err != nil {
			return err
		}
		sinks := []notify.Sink{notify.LogSink{}}
		for _, hook := range cfg.Webhooks {
			if hook.Enabled != nil && !*hook.Enabled {
				continue
			}
			sinks = append(sinks, notify.NewWebhookSink(hook.URL))
		}
		s := reminder.New(r.DB, sinks)
		s.Interval = cfg.ReminderInterval()
		s.Window = cfg.ReminderWindow()
		s.Location = cfg.Location()
		return fn(ctx, s)
	})
}

func actorID() string {
	if u := viper.GetString("user"); u != "" {
		return u
	}
	return "local-user"
}

func requireUser() string {
	u := viper.GetString("user")
	if u == "" {
		u = "local-user"
	}
	return u
}

func renderTaskTable(e engine.Engine, tasks []domain.Task) {
	now := time.Now().In(e.Location())
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Due", "Assignee"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{shortID(t.ID), t.Title, t.Priority, t.Status, dueLabel(t, now), t.AssignedTo})
	}
	tw.Render()
}

func renderRequestTable(reqs []domain.TaskRequest) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "From", "To", "Status"})
	for _, r := range reqs {
		tw.AppendRow(table.Row{shortID(r.ID), r.Title, r.FromUser, r.ToUser, r.Status})
	}
	tw.Render()
}

func renderViewSection(name string, items []engine.TaskView) {
	if len(items) == 0 {
		return
	}
	fmt.Println(name)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Due"})
	for _, tv := range items {
		tw.AppendRow(table.Row{shortID(tv.Task.ID), tv.Task.Title, tv.Task.Priority, tv.DueInfo})
	}
	tw.Render()
}

func dueLabel(t domain.Task, now time.Time) string {
	c := schedule.Classify(t, now)
	if c.Label == "" && t.DueDate != nil {
		return *t.DueDate
	}
	return c.Label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
