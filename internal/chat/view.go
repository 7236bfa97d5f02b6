package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"todochat/internal/domain"
	"todochat/internal/events"
)

// TaskView is the task list surface. It owns its own snapshot, re-fetches it
// when the bus announces changes (debounced), and offers checkbox-style
// toggling with optimistic update and rollback.
type TaskView struct {
	userID   string
	store    Store
	bus      *events.Bus
	topic    string
	delay    time.Duration
	logger   *zap.Logger
	onChange func([]domain.Task)

	mu        sync.Mutex
	tasks     []domain.Task
	refreshes int
	filter    domain.Filter
	query     string

	lifeMu    sync.Mutex
	ctx       context.Context
	debouncer *events.Debouncer
	sub       *events.Subscription
}

type ViewConfig struct {
	UserID string
	Store  Store
	Bus    *events.Bus
	Topic  string
	// Debounce is the coalescing window for bus notifications.
	Debounce time.Duration
	Logger   *zap.Logger
	// OnChange, if set, is called with the new task list after every local change or refresh.
	OnChange func([]domain.Task)
}

var ErrUnknownTask = errors.New("task not in view")

func NewTaskView(cfg ViewConfig) *TaskView {
	if cfg.Topic == "" {
		cfg.Topic = events.TopicTasksChanged
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &TaskView{
		userID:   cfg.UserID,
		store:    cfg.Store,
		bus:      cfg.Bus,
		topic:    cfg.Topic,
		delay:    cfg.Debounce,
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
		filter:   domain.FilterAll,
	}
}

// Start loads the list and subscribes to change notifications. ctx bounds
// the refreshes triggered later by the bus.
func (v *TaskView) Start(ctx context.Context) error {
	v.lifeMu.Lock()
	if v.sub == nil && v.bus != nil {
		v.ctx = ctx
		v.debouncer = events.Debounce(v.delay, v.refreshFromBus)
		v.sub = v.bus.Subscribe(v.topic, v.debouncer.Handler())
	}
	v.lifeMu.Unlock()
	return v.Refresh(ctx)
}

// Close unsubscribes and cancels a pending refresh. Safe to call more than once.
func (v *TaskView) Close() {
	v.lifeMu.Lock()
	defer v.lifeMu.Unlock()
	if v.sub != nil {
		v.sub.Unsubscribe()
	}
	if v.debouncer != nil {
		v.debouncer.Stop()
	}
}

// Refresh replaces the snapshot with the store's current list.
func (v *TaskView) Refresh(ctx context.Context) error {
	items, err := v.store.List(ctx, v.userID)
	if err != nil {
		return err
	}
	tasks := domain.NewestFirst(FromSDKList(items))
	v.mu.Lock()
	v.tasks = tasks
	v.refreshes++
	v.mu.Unlock()
	v.changed()
	return nil
}

func (v *TaskView) refreshFromBus() {
	v.lifeMu.Lock()
	ctx := v.ctx
	v.lifeMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := v.Refresh(ctx); err != nil {
		v.logger.Warn("task list refresh failed", zap.String("user_id", v.userID), zap.Error(err))
	}
}

// Tasks returns the current list, newest first.
func (v *TaskView) Tasks() []domain.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Task, len(v.tasks))
	copy(out, v.tasks)
	return out
}

// SetFilter selects the tab Visible applies.
func (v *TaskView) SetFilter(f domain.Filter) {
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
}

// SetQuery sets the title search Visible applies. A blank query shows all.
func (v *TaskView) SetQuery(q string) {
	v.mu.Lock()
	v.query = strings.TrimSpace(q)
	v.mu.Unlock()
}

// Visible returns the tasks matching both the tab and the title search,
// newest first.
func (v *TaskView) Visible() []domain.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter.Apply(domain.Search(v.tasks, v.query))
}

const (
	EmptyNoTasks = "No tasks yet"
	EmptyNoMatch = "No tasks match your view"
)

// EmptyMessage is what to show when Visible is empty.
func (v *TaskView) EmptyMessage() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.tasks) == 0 {
		return EmptyNoTasks
	}
	return EmptyNoMatch
}

// Refreshes counts completed store fetches.
func (v *TaskView) Refreshes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refreshes
}

// Toggle flips a task's completed flag: the view changes immediately, the
// store is asked to confirm, and the old value comes back if it refuses.
func (v *TaskView) Toggle(ctx context.Context, id int64) error {
	v.mu.Lock()
	idx := v.indexOf(id)
	if idx < 0 {
		v.mu.Unlock()
		return ErrUnknownTask
	}
	desired := !v.tasks[idx].Completed
	v.mu.Unlock()

	undo, _ := v.ApplyCompleted(id, desired)
	updated, err := v.store.SetCompleted(ctx, v.userID, id, desired)
	if err != nil {
		undo()
		return err
	}
	if t := FromSDK(updated); t.ID != 0 {
		v.Upsert(t)
	}
	if v.bus != nil {
		v.bus.Publish(v.topic)
	}
	return nil
}

// ClearCompleted deletes every completed task the view holds. Each confirmed
// delete leaves the view and is announced on the bus; failed deletes keep
// their task and are returned together once all were tried.
func (v *TaskView) ClearCompleted(ctx context.Context) (int, error) {
	v.mu.Lock()
	var ids []int64
	for _, t := range v.tasks {
		if t.Completed {
			ids = append(ids, t.ID)
		}
	}
	v.mu.Unlock()

	var (
		cleared int
		errs    []error
	)
	for _, id := range ids {
		if err := v.store.Delete(ctx, v.userID, id); err != nil {
			errs = append(errs, fmt.Errorf("delete task %d: %w", id, err))
			continue
		}
		cleared++
		v.Remove(id)
		if v.bus != nil {
			v.bus.Publish(v.topic)
		}
	}
	if len(errs) > 0 {
		v.logger.Warn("clear completed incomplete",
			zap.String("user_id", v.userID), zap.Int("cleared", cleared), zap.Int("failed", len(errs)))
	}
	return cleared, errors.Join(errs...)
}

func (v *TaskView) ApplyCompleted(id int64, completed bool) (func(), bool) {
	v.mu.Lock()
	idx := v.indexOf(id)
	if idx < 0 {
		v.mu.Unlock()
		return func() {}, false
	}
	prev := v.tasks[idx].Completed
	v.tasks[idx].Completed = completed
	v.mu.Unlock()
	v.changed()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			if i := v.indexOf(id); i >= 0 {
				v.tasks[i].Completed = prev
			}
			v.mu.Unlock()
			v.changed()
		})
	}, true
}

func (v *TaskView) Upsert(t domain.Task) {
	v.mu.Lock()
	if idx := v.indexOf(t.ID); idx >= 0 {
		v.tasks[idx] = t
	} else {
		v.tasks = domain.NewestFirst(append(v.tasks, t))
	}
	v.mu.Unlock()
	v.changed()
}

func (v *TaskView) Remove(id int64) {
	v.mu.Lock()
	if idx := v.indexOf(id); idx >= 0 {
		v.tasks = append(v.tasks[:idx:idx], v.tasks[idx+1:]...)
	}
	v.mu.Unlock()
	v.changed()
}

func (v *TaskView) indexOf(id int64) int {
	for i, t := range v.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (v *TaskView) changed() {
	if v.onChange != nil {
		v.onChange(v.Tasks())
	}
}
