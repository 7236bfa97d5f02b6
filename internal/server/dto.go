package server

import (
	"todochat/internal/domain"
	"todochat/internal/repo"
)

type CreateTaskRequest struct {
	Title       string `json:"title" example:"buy milk"`
	Description string `json:"description,omitempty" example:"for health"`
	DueDate     string `json:"due_date,omitempty" example:"2026-02-04"`
}

// UpdateTaskRequest toggles the task when Completed is absent.
type UpdateTaskRequest struct {
	Completed *bool `json:"completed,omitempty"`
}

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type DeleteResponse struct {
	OK bool `json:"ok"`
}

type HistoryResponse struct {
	Events []repo.TaskEvent `json:"events"`
}

type ChatRequest struct {
	Message        string `json:"message" example:"add buy milk due 2026-02-04"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Mutated        bool   `json:"mutated"`
	Action         string `json:"action" example:"add"`
	Busy           bool   `json:"busy,omitempty"`
}

// TasksChangedEvent is streamed after any confirmed mutation of the user's tasks.
type TasksChangedEvent struct {
	UserID string `json:"user_id"`
	At     string `json:"at" format:"date-time"`
}
