package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"todochat/internal/events"
)

func registerStream(api huma.API, bus *events.Bus) {
	sse.Register(api, huma.Operation{
		OperationID: "task-events",
		Method:      http.MethodGet,
		Path:        "/{user_id}/events",
		Summary:     "Stream task change notifications",
	}, map[string]any{
		events.TopicTasksChanged: TasksChangedEvent{},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}, send sse.Sender) {
		// one pending wakeup is enough; the client refetches the whole list
		wake := make(chan struct{}, 1)
		sub := bus.Subscribe(events.UserTopic(input.UserID), func(string) {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				evt := TasksChangedEvent{UserID: input.UserID, At: time.Now().UTC().Format(time.RFC3339)}
				if err := send.Data(evt); err != nil {
					return
				}
			}
		}
	})
}
