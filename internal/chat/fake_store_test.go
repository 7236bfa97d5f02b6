package chat

import (
	"context"
	"sync"

	todosdk "todochat/sdk/go"
)

// fakeStore is an in-memory Store that records calls and can inject failures.
type fakeStore struct {
	mu     sync.Mutex
	tasks  []todosdk.Task
	nextID int64
	calls  []string

	listErr   error
	createErr error
	deleteErr error
	setErr    error

	// listGate, when set, makes List wait until it is closed; listEntered is
	// signalled as List starts waiting.
	listGate    chan struct{}
	listEntered chan struct{}
}

func newFakeStore(tasks ...todosdk.Task) *fakeStore {
	f := &fakeStore{}
	for _, t := range tasks {
		f.tasks = append(f.tasks, t)
		if t.ID >= f.nextID {
			f.nextID = t.ID
		}
	}
	return f
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) List(ctx context.Context, userID string) ([]todosdk.Task, error) {
	f.record("list")
	if f.listGate != nil {
		if f.listEntered != nil {
			f.listEntered <- struct{}{}
		}
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]todosdk.Task(nil), f.tasks...), nil
}

func (f *fakeStore) Create(ctx context.Context, userID string, in todosdk.CreateTaskInput) (todosdk.Task, error) {
	f.record("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return todosdk.Task{}, f.createErr
	}
	f.nextID++
	t := todosdk.Task{ID: f.nextID, UserID: userID, Title: in.Title, Description: in.Description, DueDate: in.DueDate}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) Delete(ctx context.Context, userID string, taskID int64) error {
	f.record("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &todosdk.APIError{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeStore) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (todosdk.Task, error) {
	f.record("set_completed")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return todosdk.Task{}, f.setErr
	}
	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks[i].Completed = completed
			return f.tasks[i], nil
		}
	}
	return todosdk.Task{}, &todosdk.APIError{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeStore) task(id int64) (todosdk.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return todosdk.Task{}, false
}
