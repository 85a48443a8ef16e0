package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/taskview"
)

const dateLayout = "2006-01-02"

// Task commands
var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task", "t"},
	Short:   "List and change tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks for one of the filters: all, assigned, created or overdue.
Status, priority and ordering apply to the "all" filter only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFromFlags(cmd)
		if err != nil {
			return err
		}

		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		me, err := e.currentUser(ctx)
		if err != nil {
			return err
		}

		cache, err := e.openCache()
		if err != nil {
			return err
		}
		var opts []taskview.Option
		if cache != nil {
			opts = append(opts, taskview.WithCache(cache))
		}
		view := taskview.New(e.client, opts...)
		if err := view.Load(ctx, q); err != nil {
			return errors.New(api.Message(err))
		}

		now := time.Now()
		tasks := view.Tasks()
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		fmt.Println(renderTaskTable(tasks, now))

		st := view.Stats(now, me.ID)
		fmt.Printf("\n%d tasks, %d open for me, %d overdue\n", st.Total, st.AssignedOpen, st.Overdue)
		return nil
	},
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := inputFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		if err := model.ValidateTaskInput(in); err != nil {
			return err
		}

		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		t, err := e.client.CreateTask(ctx, in)
		if err != nil {
			return errors.New(api.Message(err))
		}
		fmt.Printf("✓ Created %q\n", t.Title)
		fmt.Printf("  ID: %s\n", t.ID)
		return nil
	},
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskStatus(cmd, args[0], model.StatusCompleted)
	},
}

var tasksStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Move a task to another workflow state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := model.ParseStatus(args[1])
		if err != nil {
			return err
		}
		return setTaskStatus(cmd, args[0], s)
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a task you created",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		if err := e.client.DeleteTask(ctx, args[0]); err != nil {
			return errors.New(api.Message(err))
		}
		fmt.Println("✓ Task deleted")
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users that tasks can be assigned to",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		users, err := e.client.ListUsers(ctx)
		if err != nil {
			return errors.New(api.Message(err))
		}
		if len(users) == 0 {
			fmt.Println("No users.")
			return nil
		}
		fmt.Println(renderUserTable(users))
		return nil
	},
}

func setTaskStatus(cmd *cobra.Command, id string, s model.Status) error {
	e, err := newEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	t, err := e.client.UpdateTask(ctx, id, model.TaskPatch{Status: model.StatusPtr(s)})
	if err != nil {
		return errors.New(api.Message(err))
	}
	fmt.Printf("✓ %q is now %s\n", t.Title, t.Status)
	return nil
}

// queryFromFlags builds the listing query from the list flags.
func queryFromFlags(cmd *cobra.Command) (taskview.Query, error) {
	filter, _ := cmd.Flags().GetString("filter")
	status, _ := cmd.Flags().GetString("status")
	priority, _ := cmd.Flags().GetString("priority")
	sortBy, _ := cmd.Flags().GetString("sort")
	order, _ := cmd.Flags().GetString("order")

	f, err := taskview.ParseFilter(filter)
	if err != nil {
		return taskview.Query{}, err
	}
	q := taskview.Query{Filter: f}
	if f != taskview.FilterAll {
		if status != "" || priority != "" || sortBy != "" {
			return q, fmt.Errorf("--status, --priority and --sort need --filter all")
		}
		return q, nil
	}

	if status != "" {
		if q.Status, err = model.ParseStatus(status); err != nil {
			return q, err
		}
	}
	if priority != "" {
		if q.Priority, err = model.ParsePriority(priority); err != nil {
			return q, err
		}
	}
	q.SortBy = sortBy
	if sortBy != "" {
		switch order {
		case api.SortAsc, api.SortDesc:
			q.SortOrder = order
		default:
			return q, fmt.Errorf("unknown order %q, use asc or desc", order)
		}
	}
	return q, nil
}

// inputFromFlags builds a create request from the create flags.
func inputFromFlags(cmd *cobra.Command, title string) (model.TaskInput, error) {
	description, _ := cmd.Flags().GetString("description")
	priority, _ := cmd.Flags().GetString("priority")
	due, _ := cmd.Flags().GetString("due")
	assignee, _ := cmd.Flags().GetString("assignee")

	in := model.TaskInput{
		Title:        title,
		Description:  description,
		AssignedToID: assignee,
	}
	if priority != "" {
		p, err := model.ParsePriority(priority)
		if err != nil {
			return in, err
		}
		in.Priority = p
	}
	if due != "" {
		d, err := time.ParseInLocation(dateLayout, due, time.Local)
		if err != nil {
			return in, fmt.Errorf("invalid --due %q, use YYYY-MM-DD", due)
		}
		in.DueDate = &d
	}
	return in.Normalize(), nil
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksDoneCmd)
	tasksCmd.AddCommand(tasksStatusCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)

	addListFlags(tasksListCmd)
	addCreateFlags(tasksCreateCmd)
}

func addListFlags(c *cobra.Command) {
	c.Flags().String("filter", "all", "Listing filter: all, assigned, created, overdue")
	c.Flags().String("status", "", "Only tasks in this status")
	c.Flags().String("priority", "", "Only tasks with this priority")
	c.Flags().String("sort", "", "Sort field: createdAt, dueDate, priority, status, title")
	c.Flags().String("order", api.SortAsc, "Sort order: asc or desc")
}

func addCreateFlags(c *cobra.Command) {
	c.Flags().String("description", "", "Task description")
	c.Flags().String("priority", "", "Priority (default Medium)")
	c.Flags().String("due", "", "Due date, YYYY-MM-DD")
	c.Flags().String("assignee", "", "Assignee user ID (see the users command)")
}
