package domain

import (
	"sort"
	"strings"
	"time"
)

// Task is a todo item owned by a user. The store assigns IDs; larger IDs are newer.
type Task struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty" format:"date"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

// Filter narrows a task list by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps user input to a Filter; unknown values fall back to all.
func ParseFilter(s string) Filter {
	switch Filter(s) {
	case FilterPending, FilterCompleted:
		return Filter(s)
	default:
		return FilterAll
	}
}

// Match reports whether t passes the filter.
func (f Filter) Match(t Task) bool {
	switch f {
	case FilterPending:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Apply returns the tasks passing f, preserving input order.
func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Search returns the tasks whose title contains query, ignoring case and
// surrounding spaces. A blank query keeps every task.
func Search(tasks []Task, query string) []Task {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if q == "" || strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
		}
	}
	return out
}

// NewestFirst returns a copy of tasks ordered by descending ID.
func NewestFirst(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Stats counts tasks by completion state.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

func CountStats(tasks []Task) Stats {
	var s Stats
	for _, t := range tasks {
		s.Total++
		if t.Completed {
			s.Completed++
		} else {
			s.Pending++
		}
	}
	return s
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Entries are never mutated after append.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role" enum:"user,assistant"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
