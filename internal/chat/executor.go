package chat

import (
	"context"
	"errors"
	"fmt"

	"todochat/internal/domain"
	"todochat/internal/intent"
	"todochat/internal/resolve"
	todosdk "todochat/sdk/go"
)

func (s *Session) execute(ctx context.Context, in intent.Intent) Reply {
	switch in.Kind {
	case intent.KindAdd:
		return s.add(ctx, in)
	case intent.KindList:
		return s.list(ctx, in.Filter)
	case intent.KindStats:
		return s.stats(ctx)
	case intent.KindDelete:
		return s.delete(ctx, in.Reference)
	case intent.KindComplete:
		return s.setCompleted(ctx, in.Reference, in.Desired)
	case intent.KindHelp:
		return Reply{Kind: intent.KindHelp, Text: HelpText}
	default:
		return Reply{Kind: intent.KindUnknown, Text: UnknownReply}
	}
}

func (s *Session) add(ctx context.Context, in intent.Intent) Reply {
	created, err := s.cfg.Store.Create(ctx, s.cfg.UserID, todosdk.CreateTaskInput{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
	})
	if err != nil {
		return failure(intent.KindAdd, "Could not add task", err)
	}
	t := FromSDK(created)
	// Stores that echo fewer fields than they were sent still get a full confirmation.
	if t.Title == "" {
		t.Title = in.Title
	}
	if t.Description == "" {
		t.Description = in.Description
	}
	if t.DueDate == "" {
		t.DueDate = in.DueDate
	}
	if t.ID != 0 {
		for _, v := range s.snapshotViews() {
			v.Upsert(t)
		}
	}
	return Reply{Kind: intent.KindAdd, Mutated: true, Text: formatAdded(t)}
}

func (s *Session) list(ctx context.Context, filter domain.Filter) Reply {
	tasks, err := s.snapshot(ctx)
	if err != nil {
		return failure(intent.KindList, "Could not load tasks", err)
	}
	return Reply{Kind: intent.KindList, Text: formatList(tasks, filter, s.cfg.ListLimit)}
}

func (s *Session) stats(ctx context.Context) Reply {
	tasks, err := s.snapshot(ctx)
	if err != nil {
		return failure(intent.KindStats, "Could not load tasks", err)
	}
	return Reply{Kind: intent.KindStats, Text: formatStats(domain.CountStats(tasks))}
}

func (s *Session) delete(ctx context.Context, ref string) Reply {
	tasks, err := s.snapshot(ctx)
	if err != nil {
		return failure(intent.KindDelete, "Could not load tasks", err)
	}
	t, err := resolve.Resolve(ref, tasks)
	if err != nil {
		return notFound(intent.KindDelete, ref, tasks)
	}
	if err := s.cfg.Store.Delete(ctx, s.cfg.UserID, t.ID); err != nil {
		if errors.Is(err, todosdk.ErrNotFound) {
			return Reply{Kind: intent.KindDelete, Err: err, Text: formatGone(t)}
		}
		return failure(intent.KindDelete, "Could not delete task", err)
	}
	for _, v := range s.snapshotViews() {
		v.Remove(t.ID)
	}
	return Reply{Kind: intent.KindDelete, Mutated: true, Text: fmt.Sprintf("Deleted task (%d): %s", t.ID, t.Title)}
}

func (s *Session) setCompleted(ctx context.Context, ref string, desired bool) Reply {
	tasks, err := s.snapshot(ctx)
	if err != nil {
		return failure(intent.KindComplete, "Could not load tasks", err)
	}
	t, err := resolve.Resolve(ref, tasks)
	if err != nil {
		return notFound(intent.KindComplete, ref, tasks)
	}

	views := s.snapshotViews()
	var undos []func()
	for _, v := range views {
		if undo, ok := v.ApplyCompleted(t.ID, desired); ok {
			undos = append(undos, undo)
		}
	}
	updated, err := s.cfg.Store.SetCompleted(ctx, s.cfg.UserID, t.ID, desired)
	if err != nil {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
		if errors.Is(err, todosdk.ErrNotFound) {
			return Reply{Kind: intent.KindComplete, Err: err, Text: formatGone(t)}
		}
		return failure(intent.KindComplete, "Could not update task", err)
	}

	confirmed := FromSDK(updated)
	if confirmed.ID == 0 {
		confirmed = t
		confirmed.Completed = desired
	}
	for _, v := range views {
		v.Upsert(confirmed)
	}
	return Reply{Kind: intent.KindComplete, Mutated: true, Text: formatCompleted(confirmed)}
}

// snapshot fetches the task collection fresh for one command.
func (s *Session) snapshot(ctx context.Context) ([]domain.Task, error) {
	items, err := s.cfg.Store.List(ctx, s.cfg.UserID)
	if err != nil {
		return nil, err
	}
	return FromSDKList(items), nil
}

func failure(kind intent.Kind, prefix string, err error) Reply {
	return Reply{Kind: kind, Err: err, Text: fmt.Sprintf("%s: %s", prefix, err.Error())}
}

func notFound(kind intent.Kind, ref string, tasks []domain.Task) Reply {
	text := fmt.Sprintf("No task matches %q.", ref)
	if title, ok := resolve.Suggest(ref, tasks); ok {
		text += fmt.Sprintf(" Did you mean %q?", title)
	}
	return Reply{Kind: kind, Err: resolve.ErrNotFound, Text: text}
}

func usageReply(err error) Reply {
	kind := intent.KindUnknown
	var ue *intent.UsageError
	if errors.As(err, &ue) {
		switch ue.Verb {
		case "add":
			kind = intent.KindAdd
		case "delete":
			kind = intent.KindDelete
		case "complete", "uncomplete":
			kind = intent.KindComplete
		}
	}
	return Reply{Kind: kind, Err: err, Text: "Usage: " + usageOf(err)}
}

func usageOf(err error) string {
	var ue *intent.UsageError
	if errors.As(err, &ue) {
		return ue.Usage
	}
	return err.Error()
}

// FromSDK converts a store task into the domain model.
func FromSDK(t todosdk.Task) domain.Task {
	return domain.Task{
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

func FromSDKList(items []todosdk.Task) []domain.Task {
	out := make([]domain.Task, len(items))
	for i, t := range items {
		out[i] = FromSDK(t)
	}
	return out
}
