package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"todochat/internal/chat"
	"todochat/internal/config"
	"todochat/internal/domain"
	"todochat/internal/intent"
	todosdk "todochat/sdk/go"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Work with tasks directly"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskSetCompletedCmd("done", "Mark a task completed", true))
	task.AddCommand(taskSetCompletedCmd("undo", "Mark a task pending", false))
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskClearCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var status, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				items, err := client.List(ctx, cfg.UserID)
				if err != nil {
					return err
				}
				all := chat.FromSDKList(items)
				tasks := domain.ParseFilter(status).Apply(domain.Search(all, search))
				if v.GetBool("json") {
					return printJSON(tasks)
				}
				empty := chat.EmptyNoMatch
				if len(all) == 0 {
					empty = chat.EmptyNoTasks
				}
				renderTaskList(os.Stdout, tasks, empty)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "all, pending or completed")
	cmd.Flags().StringVar(&search, "search", "", "only tasks whose title contains this text")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var desc, due string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if due != "" {
				normalized, ok := intent.NormalizeDate(due)
				if !ok {
					return fmt.Errorf("invalid --due %q; use YYYY-MM-DD or D/M/YYYY", due)
				}
				due = normalized
			}
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				t, err := client.Create(ctx, cfg.UserID, todosdk.CreateTaskInput{Title: title, Description: desc, DueDate: due})
				if err != nil {
					return err
				}
				return printTask(chat.FromSDK(t))
			})
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	return cmd
}

func taskSetCompletedCmd(use, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				t, err := client.SetCompleted(ctx, cfg.UserID, id, completed)
				if err != nil {
					return err
				}
				return printTask(chat.FromSDK(t))
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				if err := client.Delete(ctx, cfg.UserID, id); err != nil {
					return err
				}
				fmt.Printf("Deleted task (%d)\n", id)
				return nil
			})
		},
	}
}

func taskClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				view := chat.NewTaskView(chat.ViewConfig{UserID: cfg.UserID, Store: client})
				if err := view.Refresh(ctx); err != nil {
					return err
				}
				cleared, err := view.ClearCompleted(ctx)
				fmt.Println(clearedMessage(cleared))
				return err
			})
		},
	}
}

func clearedMessage(n int) string {
	switch n {
	case 0:
		return "No completed tasks to clear."
	case 1:
		return "Cleared 1 completed task."
	default:
		return fmt.Sprintf("Cleared %d completed tasks.", n)
	}
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	renderTaskList(w, tasks, "No tasks.")
}

// renderTaskList prints tasks as a table, or empty when there are none.
func renderTaskList(w io.Writer, tasks []domain.Task, empty string) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Done", "Title", "Due", "Description"})
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		tw.AppendRow(table.Row{t.ID, done, t.Title, t.DueDate, t.Description})
	}
	stats := domain.CountStats(tasks)
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d pending, %d completed", stats.Pending, stats.Completed), "", ""})
	tw.Render()
}

func printTask(t domain.Task) error {
	if v.GetBool("json") {
		return printJSON(t)
	}
	renderTasks(os.Stdout, []domain.Task{t})
	return nil
}

func printJSON(val any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}
