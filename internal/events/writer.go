package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Task event types recorded by the store.
const (
	TaskCreated   = "task.created"
	TaskCompleted = "task.completed"
	TaskReopened  = "task.reopened"
	TaskDeleted   = "task.deleted"
)

// Writer appends task mutations to the task_events log inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID string, taskID int64, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_events(ts,type,user_id,task_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, userID, nullableID(taskID), string(data))
	return err
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
