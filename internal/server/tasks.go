package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"todochat/internal/domain"
	"todochat/internal/events"
	"todochat/internal/repo"
)

func registerHealth(api huma.API, mode string) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok", "mode": mode}}, nil
	})
}

func registerTasks(api huma.API, r repo.Repo, bus *events.Bus) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/{user_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Status string `query:"status" enum:"all,pending,completed" default:"all"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		tasks, err := r.ListTasks(ctx, input.UserID, domain.ParseFilter(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/{user_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Body   CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := r.CreateTask(ctx, input.UserID, repo.NewTask{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			DueDate:     input.Body.DueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		bus.Publish(events.UserTopic(input.UserID))
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/{user_id}/tasks/{task_id}",
		Summary:     "Set or toggle completion",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		TaskID int64             `path:"task_id"`
		Body   UpdateTaskRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := r.SetCompleted(ctx, input.UserID, input.TaskID, input.Body.Completed)
		if err != nil {
			return nil, handleError(err)
		}
		bus.Publish(events.UserTopic(input.UserID))
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/{user_id}/tasks/{task_id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		TaskID int64  `path:"task_id"`
	}) (*struct {
		Body DeleteResponse `json:"body"`
	}, error) {
		if err := r.DeleteTask(ctx, input.UserID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		bus.Publish(events.UserTopic(input.UserID))
		return &struct {
			Body DeleteResponse `json:"body"`
		}{Body: DeleteResponse{OK: true}}, nil
	})
}

func registerHistory(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/{user_id}/history",
		Summary:     "List recorded task mutations",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		items, err := r.ListEvents(ctx, input.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []repo.TaskEvent{}
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Events: items}}, nil
	})
}
