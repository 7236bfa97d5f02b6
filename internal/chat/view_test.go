package chat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todochat/internal/domain"
	"todochat/internal/events"
	todosdk "todochat/sdk/go"
)

func TestClearCompletedBurstRefreshesViewOnce(t *testing.T) {
	tasks := []todosdk.Task{{ID: 1, Title: "keep me"}}
	for i := 2; i <= 6; i++ {
		tasks = append(tasks, todosdk.Task{ID: int64(i), Title: fmt.Sprintf("done %d", i), Completed: true})
	}
	store := newFakeStore(tasks...)
	bus := events.NewBus(nil)
	var published atomic.Int32
	defer bus.Subscribe(events.TopicTasksChanged, func(string) { published.Add(1) }).Unsubscribe()
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store, Bus: bus, Debounce: 60 * time.Millisecond})
	require.NoError(t, view.Start(context.Background()))
	defer view.Close()
	require.Equal(t, 1, view.Refreshes())

	cleared, err := view.ClearCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, cleared)
	assert.Equal(t, int32(5), published.Load())
	require.Len(t, view.Tasks(), 1)

	require.Eventually(t, func() bool { return view.Refreshes() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, view.Refreshes())
	remaining := view.Tasks()
	require.Len(t, remaining, 1)
	assert.Equal(t, "keep me", remaining[0].Title)
}

func TestClearCompletedKeepsTasksThatFailToDelete(t *testing.T) {
	store := newFakeStore(
		todosdk.Task{ID: 1, Title: "milk", Completed: true},
		todosdk.Task{ID: 2, Title: "bread", Completed: true},
	)
	bus := events.NewBus(nil)
	var published int
	defer bus.Subscribe(events.TopicTasksChanged, func(string) { published++ }).Unsubscribe()
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store, Bus: bus})
	require.NoError(t, view.Refresh(context.Background()))

	store.deleteErr = errors.New("offline")
	cleared, err := view.ClearCompleted(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.Zero(t, cleared)
	assert.Len(t, view.Tasks(), 2)
	assert.Zero(t, published)
}

func TestClearCompletedWithNothingDoneMakesNoCalls(t *testing.T) {
	store := newFakeStore(todosdk.Task{ID: 1, Title: "milk"})
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store})
	require.NoError(t, view.Refresh(context.Background()))

	cleared, err := view.ClearCompleted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cleared)
	assert.Equal(t, []string{"list"}, store.Calls())
}

func TestVisibleCombinesTabAndSearch(t *testing.T) {
	store := newFakeStore(
		todosdk.Task{ID: 1, Title: "Buy milk"},
		todosdk.Task{ID: 2, Title: "milkshake", Completed: true},
		todosdk.Task{ID: 3, Title: "bread"},
	)
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store})
	assert.Equal(t, EmptyNoTasks, view.EmptyMessage())
	require.NoError(t, view.Refresh(context.Background()))

	assert.Len(t, view.Visible(), 3)

	view.SetQuery("  MILK ")
	got := view.Visible()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)

	view.SetFilter(domain.FilterPending)
	got = view.Visible()
	require.Len(t, got, 1)
	assert.Equal(t, "Buy milk", got[0].Title)

	view.SetQuery("eggs")
	assert.Empty(t, view.Visible())
	assert.Equal(t, EmptyNoMatch, view.EmptyMessage())

	view.SetQuery("")
	view.SetFilter(domain.FilterCompleted)
	got = view.Visible()
	require.Len(t, got, 1)
	assert.Equal(t, "milkshake", got[0].Title)
}

func TestCloseStopsRefreshes(t *testing.T) {
	store := newFakeStore(todosdk.Task{ID: 1, Title: "milk"})
	bus := events.NewBus(nil)
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store, Bus: bus, Debounce: 20 * time.Millisecond})
	require.NoError(t, view.Start(context.Background()))
	view.Close()
	view.Close()

	assert.Equal(t, 0, bus.Publish(events.TopicTasksChanged))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, view.Refreshes())
}

func TestToggleOptimisticThenConfirm(t *testing.T) {
	store := newFakeStore(todosdk.Task{ID: 1, Title: "milk"})
	bus := events.NewBus(nil)
	var published int
	defer bus.Subscribe(events.TopicTasksChanged, func(string) { published++ }).Unsubscribe()
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store, Bus: bus})
	require.NoError(t, view.Refresh(context.Background()))

	require.NoError(t, view.Toggle(context.Background(), 1))
	assert.True(t, view.Tasks()[0].Completed)
	got, _ := store.task(1)
	assert.True(t, got.Completed)
	assert.Equal(t, 1, published)
}

func TestToggleRollsBackOnFailure(t *testing.T) {
	store := newFakeStore(todosdk.Task{ID: 1, Title: "milk"})
	bus := events.NewBus(nil)
	var published int
	defer bus.Subscribe(events.TopicTasksChanged, func(string) { published++ }).Unsubscribe()
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store, Bus: bus})
	require.NoError(t, view.Refresh(context.Background()))

	store.setErr = errors.New("offline")
	err := view.Toggle(context.Background(), 1)
	require.EqualError(t, err, "offline")
	assert.False(t, view.Tasks()[0].Completed)
	assert.Equal(t, 0, published)

	assert.ErrorIs(t, view.Toggle(context.Background(), 42), ErrUnknownTask)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	store := newFakeStore(todosdk.Task{ID: 1, Title: "milk"})
	view := NewTaskView(ViewConfig{UserID: "u1", Store: store})
	require.NoError(t, view.Refresh(context.Background()))
	store.listErr = errors.New("boom")
	require.Error(t, view.Refresh(context.Background()))
	assert.Len(t, view.Tasks(), 1)
}
