package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"todochat/internal/domain"
	"todochat/internal/events"
)

// Repo persists tasks and records every mutation in task_events.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = errors.New("not found")

// ValidationError marks input the store refuses to persist.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewTask carries the fields accepted on create.
type NewTask struct {
	Title       string
	Description string
	DueDate     string
}

const taskColumns = `id,user_id,title,COALESCE(description,''),COALESCE(due_date,''),completed,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var completed int
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.DueDate, &completed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Completed = completed != 0
	return t, err
}

// ListTasks returns the user's tasks in ascending id order.
func (r Repo) ListTasks(ctx context.Context, userID string, filter domain.Filter) ([]domain.Task, error) {
	clauses := []string{"user_id=?"}
	args := []any{userID}
	switch filter {
	case domain.FilterPending:
		clauses = append(clauses, "completed=0")
	case domain.FilterCompleted:
		clauses = append(clauses, "completed=1")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id=? AND id=?`, userID, id))
}

// CreateTask validates and inserts a task, returning the stored record.
func (r Repo) CreateTask(ctx context.Context, userID string, in NewTask) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, &ValidationError{Field: "title", Message: "title is required"}
	}
	due := strings.TrimSpace(in.DueDate)
	if due != "" {
		if _, err := time.Parse(time.DateOnly, due); err != nil {
			return domain.Task{}, &ValidationError{Field: "due_date", Message: "due_date must be YYYY-MM-DD"}
		}
	}
	now := r.now()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(user_id,title,description,due_date,completed,created_at,updated_at) VALUES (?,?,?,?,0,?,?)`,
		userID, title, nullable(strings.TrimSpace(in.Description)), nullable(due), now, now)
	if err != nil {
		return domain.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.Events.Append(ctx, tx, events.TaskCreated, userID, id, events.EventPayload{"title": title}); err != nil {
		return domain.Task{}, err
	}
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return domain.Task{}, err
	}
	return t, tx.Commit()
}

// SetCompleted sets the completion flag. A nil completed toggles it.
func (r Repo) SetCompleted(ctx context.Context, userID string, id int64, completed *bool) (domain.Task, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	cur, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id=? AND id=?`, userID, id))
	if err != nil {
		return domain.Task{}, err
	}
	next := !cur.Completed
	if completed != nil {
		next = *completed
	}
	if next != cur.Completed {
		cur.Completed = next
		cur.UpdatedAt = r.now()
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET completed=?, updated_at=? WHERE id=?`, boolInt(next), cur.UpdatedAt, id); err != nil {
			return domain.Task{}, err
		}
		evt := events.TaskReopened
		if next {
			evt = events.TaskCompleted
		}
		if err := r.Events.Append(ctx, tx, evt, userID, id, nil); err != nil {
			return domain.Task{}, err
		}
	}
	return cur, tx.Commit()
}

func (r Repo) DeleteTask(ctx context.Context, userID string, id int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id=? AND id=?`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, events.TaskDeleted, userID, id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskEvent is one row of the mutation log.
type TaskEvent struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	TaskID  int64  `json:"task_id,omitempty"`
	Payload string `json:"payload"`
}

// ListEvents returns the user's mutation log, oldest first.
func (r Repo) ListEvents(ctx context.Context, userID string, limit int) ([]TaskEvent, error) {
	query := `SELECT id,ts,type,COALESCE(task_id,0),payload_json FROM task_events WHERE user_id=? ORDER BY id ASC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TaskEvent
	for rows.Next() {
		var e TaskEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TaskID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) now() string {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
