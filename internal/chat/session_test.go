package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"todochat/internal/domain"
	"todochat/internal/events"
	"todochat/internal/intent"
	"todochat/internal/resolve"
	todosdk "todochat/sdk/go"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sessionEnv struct {
	store     *fakeStore
	session   *Session
	published *int
}

func newSessionEnv(t *testing.T, tasks ...todosdk.Task) sessionEnv {
	t.Helper()
	store := newFakeStore(tasks...)
	bus := events.NewBus(nil)
	published := new(int)
	sub := bus.Subscribe(events.TopicTasksChanged, func(string) { *published++ })
	t.Cleanup(sub.Unsubscribe)
	s := New(Config{UserID: "u1", Store: store, Bus: bus})
	return sessionEnv{store: store, session: s, published: published}
}

func TestAddConfirmsAndPublishes(t *testing.T) {
	env := newSessionEnv(t)
	reply := env.session.SendCommand(context.Background(), "add milk desc: for health due: 2026-02-04")
	require.NoError(t, reply.Err)
	assert.True(t, reply.Mutated)
	assert.Equal(t, intent.KindAdd, reply.Kind)
	assert.Equal(t, "Added task (1): milk (description: for health, due 2026-02-04)", reply.Text)
	assert.Equal(t, 1, *env.published)

	created, ok := env.store.task(1)
	require.True(t, ok)
	assert.Equal(t, "for health", created.Description)
	assert.Equal(t, "2026-02-04", created.DueDate)
}

func TestAddFailureReportsStoreErrorWithoutPublishing(t *testing.T) {
	env := newSessionEnv(t)
	env.store.createErr = &todosdk.APIError{StatusCode: 422, Message: "title is required"}
	reply := env.session.SendCommand(context.Background(), "add milk")
	require.Error(t, reply.Err)
	assert.False(t, reply.Mutated)
	assert.Equal(t, "Could not add task: title is required", reply.Text)
	assert.Equal(t, 0, *env.published)
}

func TestUsageErrorMakesNoStoreCall(t *testing.T) {
	env := newSessionEnv(t)
	for _, cmd := range []string{"add", "delete", "complete"} {
		reply := env.session.SendCommand(context.Background(), cmd)
		var ue *intent.UsageError
		require.True(t, errors.As(reply.Err, &ue), cmd)
		assert.True(t, strings.HasPrefix(reply.Text, "Usage: "), reply.Text)
	}
	assert.Empty(t, env.store.Calls())
	assert.Equal(t, 0, *env.published)
}

func TestUnknownAndHelpMakeNoStoreCall(t *testing.T) {
	env := newSessionEnv(t)
	reply := env.session.SendCommand(context.Background(), "make me a sandwich")
	assert.Equal(t, UnknownReply, reply.Text)
	assert.Equal(t, intent.KindUnknown, reply.Kind)
	reply = env.session.SendCommand(context.Background(), "help")
	assert.Equal(t, HelpText, reply.Text)
	assert.Empty(t, env.store.Calls())
	assert.Len(t, env.session.Transcript(), 4)
}

func TestListShowsTenNewestFirst(t *testing.T) {
	var tasks []todosdk.Task
	for i := 1; i <= 12; i++ {
		tasks = append(tasks, todosdk.Task{ID: int64(i), Title: fmt.Sprintf("task %d", i), Completed: i%2 == 0})
	}
	env := newSessionEnv(t, tasks...)

	reply := env.session.SendCommand(context.Background(), "list")
	lines := strings.Split(reply.Text, "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "[x] (12) task 12", lines[0])
	assert.Equal(t, "[ ] (3) task 3", lines[9])
	assert.Equal(t, "... and 2 more", lines[10])

	reply = env.session.SendCommand(context.Background(), "pending")
	lines = strings.Split(reply.Text, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "[ ] (11) task 11", lines[0])
	assert.Equal(t, 0, *env.published)
}

func TestListEmptyWordingDistinguishesFilter(t *testing.T) {
	env := newSessionEnv(t)
	assert.Equal(t, "You have no tasks yet.", env.session.SendCommand(context.Background(), "list").Text)
	assert.Equal(t, "You have no tasks yet.", env.session.SendCommand(context.Background(), "completed").Text)

	env = newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	assert.Equal(t, "No completed tasks.", env.session.SendCommand(context.Background(), "completed").Text)
	assert.Equal(t, "[ ] (1) milk", env.session.SendCommand(context.Background(), "list pending").Text)
}

func TestListShowsDueDate(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 4, Title: "rent", DueDate: "2026-03-01"})
	assert.Equal(t, "[ ] (4) rent (due 2026-03-01)", env.session.SendCommand(context.Background(), "list").Text)
}

func TestStats(t *testing.T) {
	env := newSessionEnv(t)
	assert.Equal(t, "Total: 0, Pending: 0, Completed: 0", env.session.SendCommand(context.Background(), "stats").Text)

	env = newSessionEnv(t,
		todosdk.Task{ID: 1, Title: "a"},
		todosdk.Task{ID: 2, Title: "b", Completed: true},
		todosdk.Task{ID: 3, Title: "c"},
	)
	assert.Equal(t, "Total: 3, Pending: 2, Completed: 1", env.session.SendCommand(context.Background(), "stats").Text)
}

func TestDeleteResolvesNewestSubstringMatch(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "Buy milk"}, todosdk.Task{ID: 2, Title: "milk run"})
	reply := env.session.SendCommand(context.Background(), "delete milk")
	require.NoError(t, reply.Err)
	assert.Equal(t, "Deleted task (2): milk run", reply.Text)
	_, still := env.store.task(2)
	assert.False(t, still)
	_, kept := env.store.task(1)
	assert.True(t, kept)
	assert.Equal(t, 1, *env.published)
}

func TestDeleteNotFoundSuggestsAndDoesNotMutate(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "Buy milk"})
	reply := env.session.SendCommand(context.Background(), "delete bmilk")
	assert.ErrorIs(t, reply.Err, resolve.ErrNotFound)
	assert.Equal(t, `No task matches "bmilk". Did you mean "Buy milk"?`, reply.Text)
	assert.Equal(t, []string{"list"}, env.store.Calls())
	assert.Equal(t, 0, *env.published)
}

func TestDeleteRaceReportsFailure(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	env.store.deleteErr = &todosdk.APIError{StatusCode: 404, Message: "Task not found"}
	reply := env.session.SendCommand(context.Background(), "delete 1")
	assert.ErrorIs(t, reply.Err, todosdk.ErrNotFound)
	assert.False(t, reply.Mutated)
	assert.Contains(t, reply.Text, "no longer exists")
	assert.Equal(t, 0, *env.published)
}

func TestDeleteFailureKeepsViewEntry(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	view := NewTaskView(ViewConfig{UserID: "u1", Store: env.store})
	require.NoError(t, view.Refresh(context.Background()))
	detach := env.session.Attach(view)
	defer detach()

	env.store.deleteErr = errors.New("connection reset")
	reply := env.session.SendCommand(context.Background(), "delete milk")
	assert.Equal(t, "Could not delete task: connection reset", reply.Text)
	assert.Len(t, view.Tasks(), 1)

	env.store.deleteErr = nil
	reply = env.session.SendCommand(context.Background(), "delete milk")
	require.NoError(t, reply.Err)
	assert.Empty(t, view.Tasks())
}

func TestCompleteAndUncomplete(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 3, Title: "milk"})
	reply := env.session.SendCommand(context.Background(), "complete Milk")
	require.NoError(t, reply.Err)
	assert.Equal(t, `Marked task (3) "milk" as completed.`, reply.Text)
	got, _ := env.store.task(3)
	assert.True(t, got.Completed)

	reply = env.session.SendCommand(context.Background(), "uncomplete 3")
	require.NoError(t, reply.Err)
	assert.Equal(t, `Marked task (3) "milk" as pending.`, reply.Text)
	assert.Equal(t, 2, *env.published)
}

func TestCompleteFailureRollsBackView(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"}, todosdk.Task{ID: 2, Title: "bread", Completed: true})
	var seen [][]domain.Task
	view := NewTaskView(ViewConfig{UserID: "u1", Store: env.store, OnChange: func(ts []domain.Task) { seen = append(seen, ts) }})
	require.NoError(t, view.Refresh(context.Background()))
	detach := env.session.Attach(view)
	defer detach()

	env.store.setErr = &todosdk.APIError{StatusCode: 500, Message: "database is locked"}
	reply := env.session.SendCommand(context.Background(), "complete milk")
	assert.Equal(t, "Could not update task: database is locked", reply.Text)
	assert.False(t, reply.Mutated)
	assert.Equal(t, 0, *env.published)

	// refresh, optimistic apply, rollback
	require.Len(t, seen, 3)
	assert.True(t, findTask(t, seen[1], 1).Completed)
	assert.False(t, findTask(t, seen[2], 1).Completed)
	assert.False(t, findTask(t, view.Tasks(), 1).Completed)
	assert.True(t, findTask(t, view.Tasks(), 2).Completed)
}

func TestCompleteSuccessUpdatesView(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	view := NewTaskView(ViewConfig{UserID: "u1", Store: env.store})
	require.NoError(t, view.Refresh(context.Background()))
	detach := env.session.Attach(view)

	env.session.SendCommand(context.Background(), "complete milk")
	assert.True(t, findTask(t, view.Tasks(), 1).Completed)

	detach()
	detach()
	env.session.SendCommand(context.Background(), "add bread")
	assert.Len(t, view.Tasks(), 1)
}

func TestAddUpsertsIntoAttachedView(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	view := NewTaskView(ViewConfig{UserID: "u1", Store: env.store})
	require.NoError(t, view.Refresh(context.Background()))
	defer env.session.Attach(view)()

	env.session.SendCommand(context.Background(), "add bread")
	tasks := view.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "bread", tasks[0].Title)
}

func TestSecondCommandWhileBusyIsRejected(t *testing.T) {
	env := newSessionEnv(t, todosdk.Task{ID: 1, Title: "milk"})
	env.store.listGate = make(chan struct{})
	env.store.listEntered = make(chan struct{}, 1)

	first := make(chan Reply, 1)
	go func() { first <- env.session.SendCommand(context.Background(), "stats") }()
	<-env.store.listEntered
	assert.True(t, env.session.Busy())

	second := env.session.SendCommand(context.Background(), "delete milk")
	assert.True(t, second.Busy)
	assert.Equal(t, BusyReply, second.Text)

	close(env.store.listGate)
	r := <-first
	assert.Equal(t, "Total: 1, Pending: 1, Completed: 0", r.Text)
	assert.False(t, env.session.Busy())
	assert.Equal(t, []string{"list"}, env.store.Calls())

	transcript := env.session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "stats", transcript[0].Text)
	assert.Equal(t, r.Text, transcript[1].Text)
}

func TestStoreTimeoutBecomesReply(t *testing.T) {
	env := newSessionEnv(t)
	env.store.listGate = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	reply := env.session.SendCommand(ctx, "list")
	assert.ErrorIs(t, reply.Err, context.DeadlineExceeded)
	assert.True(t, strings.HasPrefix(reply.Text, "Could not load tasks: "))
	assert.False(t, env.session.Busy())
}

func TestTranscriptIsOrdered(t *testing.T) {
	env := newSessionEnv(t)
	fixed := time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)
	env.session.cfg.Now = func() time.Time { return fixed }
	for _, cmd := range []string{"add a", "add b", "stats", "list"} {
		env.session.SendCommand(context.Background(), cmd)
	}
	transcript := env.session.Transcript()
	require.Len(t, transcript, 8)
	ids := make([]string, len(transcript))
	for i, m := range transcript {
		ids[i] = m.ID
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		assert.Equal(t, want, m.Role)
	}
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, dedupe(ids), len(ids))

	transcript[0].Text = "tampered"
	assert.Equal(t, "add a", env.session.Transcript()[0].Text)
}

func TestConversationID(t *testing.T) {
	s := New(Config{UserID: "u1", Store: newFakeStore()})
	assert.Empty(t, s.ConversationID())
	s.SetConversationID("c-1")
	assert.Equal(t, "c-1", s.ConversationID())
}

func TestCommandMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := New(Config{UserID: "u1", Store: newFakeStore(), Metrics: m})
	s.SendCommand(context.Background(), "stats")
	s.SendCommand(context.Background(), "delete nothing")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("stats", outcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("delete", outcomeFailed)))
}

func findTask(t *testing.T, tasks []domain.Task, id int64) domain.Task {
	t.Helper()
	for _, task := range tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %d not in %v", id, tasks)
	return domain.Task{}
}

func dedupe(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

type panickingStore struct {
	*fakeStore
}

func (p panickingStore) Create(context.Context, string, todosdk.CreateTaskInput) (todosdk.Task, error) {
	panic("store exploded")
}

func TestPanickingStoreLeavesSessionIdle(t *testing.T) {
	base := newFakeStore()
	bus := events.NewBus(nil)
	published := 0
	sub := bus.Subscribe(events.TopicTasksChanged, func(string) { published++ })
	defer sub.Unsubscribe()
	s := New(Config{UserID: "u1", Store: panickingStore{base}, Bus: bus})

	assert.Panics(t, func() { s.SendCommand(context.Background(), "add milk") })
	assert.False(t, s.Busy())
	assert.Zero(t, published)

	reply := s.SendCommand(context.Background(), "list")
	assert.False(t, reply.Busy)
	require.NoError(t, reply.Err)
	assert.Equal(t, intent.KindList, reply.Kind)
}
