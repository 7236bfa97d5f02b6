// Package resolve finds the task a user is talking about.
package resolve

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"todochat/internal/domain"
)

var ErrNotFound = errors.New("task not found")

// Resolve picks the task named by ref from a snapshot. A numeric ref is an id.
// Otherwise titles are compared case-insensitively with collapsed whitespace:
// an exact match wins over a substring match, and among equal matches the
// largest id (most recently created) wins.
func Resolve(ref string, tasks []domain.Task) (domain.Task, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, t := range tasks {
			if t.ID == id {
				return t, nil
			}
		}
		return domain.Task{}, ErrNotFound
	}

	needle := Normalize(ref)
	if needle == "" {
		return domain.Task{}, ErrNotFound
	}
	if t, ok := newest(tasks, func(title string) bool { return title == needle }); ok {
		return t, nil
	}
	if t, ok := newest(tasks, func(title string) bool { return strings.Contains(title, needle) }); ok {
		return t, nil
	}
	return domain.Task{}, ErrNotFound
}

func newest(tasks []domain.Task, match func(string) bool) (domain.Task, bool) {
	var (
		best  domain.Task
		found bool
	)
	for _, t := range tasks {
		if !match(Normalize(t.Title)) {
			continue
		}
		if !found || t.ID > best.ID {
			best, found = t, true
		}
	}
	return best, found
}

// Normalize lower-cases s and collapses whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Suggest returns the title closest to ref for a "did you mean" hint. It is
// only advisory and never used to pick a task to mutate.
func Suggest(ref string, tasks []domain.Task) (string, bool) {
	needle := Normalize(ref)
	if needle == "" || len(tasks) == 0 {
		return "", false
	}
	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = Normalize(t.Title)
	}
	matches := fuzzy.Find(needle, titles)
	if len(matches) == 0 {
		return "", false
	}
	return tasks[matches[0].Index].Title, true
}
