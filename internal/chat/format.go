package chat

import (
	"fmt"
	"strings"

	"todochat/internal/domain"
)

const UnknownReply = `Sorry, I didn't understand that. Type "help" to see what I can do.`

const HelpText = `Commands:
  add <title> [desc <text>] [due YYYY-MM-DD]   add a task
  list [all|pending|completed]                 show up to 10 newest tasks
  pending / completed                          shortcuts for filtered lists
  stats                                        count tasks
  complete <id or title>                       mark a task done
  uncomplete <id or title>                     mark a task pending again
  delete <id or title>                         remove a task
  help                                         show this help`

func formatAdded(t domain.Task) string {
	var b strings.Builder
	if t.ID != 0 {
		fmt.Fprintf(&b, "Added task (%d): %s", t.ID, t.Title)
	} else {
		fmt.Fprintf(&b, "Added task: %s", t.Title)
	}
	var extra []string
	if t.Description != "" {
		extra = append(extra, "description: "+t.Description)
	}
	if t.DueDate != "" {
		extra = append(extra, "due "+t.DueDate)
	}
	if len(extra) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(extra, ", "))
	}
	return b.String()
}

func formatTaskLine(t domain.Task) string {
	status := "[ ]"
	if t.Completed {
		status = "[x]"
	}
	line := fmt.Sprintf("%s (%d) %s", status, t.ID, t.Title)
	if t.DueDate != "" {
		line += " (due " + t.DueDate + ")"
	}
	return line
}

// formatList renders the newest limit tasks passing filter. The empty message
// tells an empty collection apart from an empty filter result.
func formatList(tasks []domain.Task, filter domain.Filter, limit int) string {
	if len(tasks) == 0 {
		return "You have no tasks yet."
	}
	matched := domain.NewestFirst(filter.Apply(tasks))
	if len(matched) == 0 {
		return fmt.Sprintf("No %s tasks.", filter)
	}
	shown := matched
	if len(shown) > limit {
		shown = shown[:limit]
	}
	lines := make([]string, 0, len(shown)+1)
	for _, t := range shown {
		lines = append(lines, formatTaskLine(t))
	}
	if rest := len(matched) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", rest))
	}
	return strings.Join(lines, "\n")
}

func formatStats(s domain.Stats) string {
	return fmt.Sprintf("Total: %d, Pending: %d, Completed: %d", s.Total, s.Pending, s.Completed)
}

func formatCompleted(t domain.Task) string {
	state := "pending"
	if t.Completed {
		state = "completed"
	}
	return fmt.Sprintf("Marked task (%d) %q as %s.", t.ID, t.Title, state)
}

func formatGone(t domain.Task) string {
	return fmt.Sprintf("Task (%d) %q no longer exists; it may have been changed elsewhere.", t.ID, t.Title)
}
