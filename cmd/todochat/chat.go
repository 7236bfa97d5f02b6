package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"todochat/internal/chat"
	"todochat/internal/config"
	"todochat/internal/domain"
	"todochat/internal/events"
	todosdk "todochat/sdk/go"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session against the task store.

Besides chat commands the prompt understands:
  /tasks                           show the task list panel
  /toggle <id>                     tick or untick a task from the panel
  /filter all|pending|completed    choose the panel tab
  /search [text]                   narrow the panel by title, blank to reset
  /clear                           delete every completed task
  /quit                            leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, cfg *config.Config, client *todosdk.Client) error {
				logger, err := newLogger(cfg)
				if err != nil {
					return err
				}
				defer logger.Sync()
				r := newREPL(cmd.InOrStdin(), cmd.OutOrStdout(), cfg, client, logger)
				return r.run(ctx)
			})
		},
	}
	cmd.Flags().Duration("debounce", 0, "coalescing window for task list refreshes")
	viperFlag(cmd, "chat.debounce", "debounce")
	return cmd
}

// repl wires one chat session and one task list panel to a shared bus.
type repl struct {
	in  io.Reader
	out io.Writer

	outMu   sync.Mutex
	session *chat.Session
	view    *chat.TaskView
	logger  *zap.Logger
	last    domain.Stats
}

func newREPL(in io.Reader, out io.Writer, cfg *config.Config, store chat.Store, logger *zap.Logger) *repl {
	bus := events.NewBus(nil)
	r := &repl{in: in, out: out, logger: logger}
	r.session = chat.New(chat.Config{
		UserID:    cfg.UserID,
		Store:     store,
		Bus:       bus,
		ListLimit: cfg.Chat.ListLimit,
		Logger:    logger.Named("chat"),
	})
	r.view = chat.NewTaskView(chat.ViewConfig{
		UserID:   cfg.UserID,
		Store:    store,
		Bus:      bus,
		Debounce: cfg.Chat.Debounce,
		Logger:   logger.Named("view"),
		OnChange: r.panelChanged,
	})
	return r
}

func (r *repl) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := r.view.Start(ctx); err != nil {
		r.logger.Warn("task list unavailable", zap.Error(err))
	}
	defer r.view.Close()
	detach := r.session.Attach(r.view)
	defer detach()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.printf("Hi! Type 'help' for commands, /quit to leave.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := r.handle(ctx, strings.TrimSpace(line)); done {
				return nil
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "exit" || line == "quit":
		return true
	case line == "/tasks":
		r.showPanel()
	case line == "/clear":
		cleared, err := r.view.ClearCompleted(ctx)
		if err != nil {
			r.printf("%s Some could not be deleted: %v\n", clearedMessage(cleared), err)
			return false
		}
		r.printf("%s\n", clearedMessage(cleared))
	case line == "/filter" || strings.HasPrefix(line, "/filter "):
		arg := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "/filter")))
		if arg != "all" && arg != "pending" && arg != "completed" {
			r.printf("Usage: /filter all|pending|completed\n")
			return false
		}
		r.view.SetFilter(domain.ParseFilter(arg))
		r.showPanel()
	case line == "/search" || strings.HasPrefix(line, "/search "):
		r.view.SetQuery(strings.TrimPrefix(line, "/search"))
		r.showPanel()
	case strings.HasPrefix(line, "/toggle"):
		id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/toggle")), 10, 64)
		if err != nil {
			r.printf("Usage: /toggle <id>\n")
			return false
		}
		if err := r.view.Toggle(ctx, id); err != nil {
			r.printf("Could not update task (%d): %v\n", id, err)
		}
	default:
		reply := r.session.SendCommand(ctx, line)
		r.printf("%s\n", reply.Text)
	}
	return false
}

func (r *repl) showPanel() {
	tasks := r.view.Visible()
	empty := r.view.EmptyMessage()
	r.outMu.Lock()
	defer r.outMu.Unlock()
	renderTaskList(r.out, tasks, empty)
}

// panelChanged reports the list only when its counts move.
func (r *repl) panelChanged(tasks []domain.Task) {
	stats := domain.CountStats(tasks)
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if stats == r.last {
		return
	}
	r.last = stats
	fmt.Fprintf(r.out, "[tasks] %d pending, %d completed\n", stats.Pending, stats.Completed)
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
