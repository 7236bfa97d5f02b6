// Package chat runs chat commands against the task store on behalf of one user.
package chat

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"todochat/internal/domain"
	"todochat/internal/events"
	"todochat/internal/intent"
	todosdk "todochat/sdk/go"
)

// Store is the slice of the task store API a session needs.
type Store interface {
	List(ctx context.Context, userID string) ([]todosdk.Task, error)
	Create(ctx context.Context, userID string, in todosdk.CreateTaskInput) (todosdk.Task, error)
	Delete(ctx context.Context, userID string, taskID int64) error
	SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (todosdk.Task, error)
}

// View is a separately rendered task list the executor keeps in step with
// its own mutations.
type View interface {
	// ApplyCompleted sets the flag locally and returns a func restoring the
	// previous value. ok is false when the view does not hold the task.
	ApplyCompleted(id int64, completed bool) (undo func(), ok bool)
	Upsert(t domain.Task)
	Remove(id int64)
}

type Config struct {
	UserID string
	Store  Store
	// Bus receives a Topic notification after every confirmed mutation.
	// A private bus is created when nil.
	Bus       *events.Bus
	Topic     string
	ListLimit int
	Logger    *zap.Logger
	Metrics   *Metrics
	Now       func() time.Time
}

const DefaultListLimit = 10

// Reply is the outcome of one command.
type Reply struct {
	Text    string
	Kind    intent.Kind
	Mutated bool
	Busy    bool
	Err     error
}

// Session holds one user's conversation. It executes at most one command at
// a time; commands arriving while one is running are rejected.
type Session struct {
	cfg Config

	mu             sync.Mutex
	busy           bool
	transcript     []domain.ChatMessage
	conversationID string
	views          map[int]View
	nextView       int

	idMu    sync.Mutex
	entropy io.Reader
	lastMS  uint64
}

func New(cfg Config) *Session {
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(nil)
	}
	if cfg.Topic == "" {
		cfg.Topic = events.TopicTasksChanged
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:     cfg,
		views:   make(map[int]View),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Session) UserID() string { return s.cfg.UserID }

// Changes is the bus carrying this session's "tasks changed" notifications.
func (s *Session) Changes() *events.Bus { return s.cfg.Bus }

// Topic is the topic published on Changes.
func (s *Session) Topic() string { return s.cfg.Topic }

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID stores the opaque correlation token echoed back to the store.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Attach registers a view for optimistic updates. The returned func detaches it.
func (s *Session) Attach(v View) (detach func()) {
	s.mu.Lock()
	id := s.nextView
	s.nextView++
	s.views[id] = v
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.views, id)
			s.mu.Unlock()
		})
	}
}

// BusyReply is returned while another command is still running.
const BusyReply = "Still working on your previous command, please wait."

// SendCommand parses and executes text. Every failure becomes a reply; the
// session stays usable afterwards, even when the store panics.
func (s *Session) SendCommand(ctx context.Context, text string) (reply Reply) {
	if !s.begin() {
		s.cfg.Metrics.observe(intent.KindUnknown, outcomeBusy, 0)
		return Reply{Text: BusyReply, Busy: true}
	}
	// Deferred calls run in reverse: the session is idle again before the
	// notification goes out, so subscribers may send commands.
	defer func() {
		if reply.Mutated {
			s.cfg.Bus.Publish(s.cfg.Topic)
		}
	}()
	defer s.end()

	start := s.cfg.Now()
	s.append(domain.RoleUser, text)

	in, err := intent.Parse(text)
	if err != nil {
		reply = usageReply(err)
	} else {
		reply = s.execute(ctx, in)
	}
	s.append(domain.RoleAssistant, reply.Text)

	elapsed := s.cfg.Now().Sub(start)
	outcome := outcomeOK
	if reply.Err != nil {
		outcome = outcomeFailed
	}
	s.cfg.Metrics.observe(reply.Kind, outcome, elapsed)
	s.cfg.Logger.Debug("command executed",
		zap.String("user_id", s.cfg.UserID),
		zap.String("kind", string(reply.Kind)),
		zap.Bool("mutated", reply.Mutated),
		zap.Duration("elapsed", elapsed),
		zap.Error(reply.Err))
	return reply
}

func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) append(role domain.Role, text string) {
	now := s.cfg.Now()
	msg := domain.ChatMessage{
		ID:        s.newMessageID(now),
		Role:      role,
		Text:      text,
		Timestamp: now,
	}
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
}

// newMessageID returns ULIDs that sort in generation order even when the
// clock stalls or steps back.
func (s *Session) newMessageID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	ms := ulid.Timestamp(now)
	if ms < s.lastMS {
		ms = s.lastMS
	}
	id, err := ulid.New(ms, s.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		ms++
		id, err = ulid.New(ms, s.entropy)
	}
	if err != nil {
		id = ulid.MustNew(ms, rand.Reader)
	}
	s.lastMS = ms
	return id.String()
}

func (s *Session) snapshotViews() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]View, 0, len(s.views))
	for i := 0; i < s.nextView; i++ {
		if v, ok := s.views[i]; ok {
			out = append(out, v)
		}
	}
	return out
}
