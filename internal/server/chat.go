package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/maypok86/otter"

	"todochat/internal/chat"
	"todochat/internal/domain"
	"todochat/internal/repo"
	todosdk "todochat/sdk/go"
)

func registerChat(api huma.API, sessions *sessionRegistry) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/{user_id}/chat",
		Summary:     "Run one chat command",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		UserID string      `path:"user_id"`
		Body   ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Message) == "" {
			return nil, newAPIError(http.StatusUnprocessableEntity, "message is required")
		}
		session := sessions.get(input.UserID, input.Body.ConversationID)
		reply := session.SendCommand(ctx, input.Body.Message)
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{
			Response:       reply.Text,
			ConversationID: session.ConversationID(),
			Mutated:        reply.Mutated,
			Action:         string(reply.Kind),
			Busy:           reply.Busy,
		}}, nil
	})
}

// sessionRegistry keeps one chat session per conversation. Idle
// conversations expire after the TTL.
type sessionRegistry struct {
	mu    sync.Mutex
	cache otter.Cache[string, *chat.Session]
	build func(userID string) *chat.Session
}

func newSessionRegistry(capacity int, ttl time.Duration, build func(userID string) *chat.Session) (*sessionRegistry, error) {
	cache, err := otter.MustBuilder[string, *chat.Session](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &sessionRegistry{cache: cache, build: build}, nil
}

// get returns the session for conversationID, or a new one under a fresh id
// when the id is empty, unknown, or belongs to another user.
func (r *sessionRegistry) get(userID, conversationID string) *chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversationID != "" {
		if s, ok := r.cache.Get(sessionKey(userID, conversationID)); ok {
			// refresh the TTL on use
			r.cache.Set(sessionKey(userID, conversationID), s)
			return s
		}
	}
	id := uuid.NewString()
	s := r.build(userID)
	s.SetConversationID(id)
	r.cache.Set(sessionKey(userID, id), s)
	return s
}

func (r *sessionRegistry) close() {
	r.cache.Close()
}

func sessionKey(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

// repoStore serves chat sessions straight from the local repository.
type repoStore struct {
	repo repo.Repo
}

func (s repoStore) List(ctx context.Context, userID string) ([]todosdk.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, userID, domain.FilterAll)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]todosdk.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toSDK(t))
	}
	return out, nil
}

func (s repoStore) Create(ctx context.Context, userID string, in todosdk.CreateTaskInput) (todosdk.Task, error) {
	t, err := s.repo.CreateTask(ctx, userID, repo.NewTask{Title: in.Title, Description: in.Description, DueDate: in.DueDate})
	if err != nil {
		return todosdk.Task{}, storeError(err)
	}
	return toSDK(t), nil
}

func (s repoStore) Delete(ctx context.Context, userID string, taskID int64) error {
	return storeError(s.repo.DeleteTask(ctx, userID, taskID))
}

func (s repoStore) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (todosdk.Task, error) {
	t, err := s.repo.SetCompleted(ctx, userID, taskID, &completed)
	if err != nil {
		return todosdk.Task{}, storeError(err)
	}
	return toSDK(t), nil
}

// storeError maps repository errors onto the API errors a remote store returns.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var verr *repo.ValidationError
	switch {
	case errors.As(err, &verr):
		return &todosdk.APIError{StatusCode: http.StatusUnprocessableEntity, Message: verr.Message}
	case errors.Is(err, repo.ErrNotFound):
		return &todosdk.APIError{StatusCode: http.StatusNotFound, Message: "Task not found"}
	default:
		return err
	}
}

func toSDK(t domain.Task) todosdk.Task {
	return todosdk.Task{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
