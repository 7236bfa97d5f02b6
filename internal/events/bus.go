package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// TopicTasksChanged is published after any confirmed task mutation.
const TopicTasksChanged = "tasks.changed"

// UserTopic scopes TopicTasksChanged to one user for buses shared across users.
func UserTopic(userID string) string {
	return TopicTasksChanged + "/" + userID
}

// Handler receives the topic it was published on.
type Handler func(topic string)

// Bus is an in-process publish/subscribe channel. Publish runs every handler
// of the topic synchronously, in subscription order, on the caller's goroutine.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscriber
	metrics *busMetrics
}

type subscriber struct {
	id      uuid.UUID
	handler Handler
}

type Subscription struct {
	bus   *Bus
	topic string
	id    uuid.UUID
	once  sync.Once
}

// NewBus creates a bus. A nil registry disables metrics.
func NewBus(registry *prometheus.Registry) *Bus {
	return &Bus{
		subs:    make(map[string][]subscriber),
		metrics: newBusMetrics(registry),
	}
}

// Subscribe registers handler for topic. Call Unsubscribe on teardown.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	id := uuid.New()
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()
	return &Subscription{bus: b, topic: topic, id: id}
}

// Publish delivers topic to its current subscribers and returns how many ran.
func (b *Bus) Publish(topic string) int {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	b.metrics.incPublished(topic)
	for _, h := range handlers {
		h(topic)
		b.metrics.incDelivered(topic)
	}
	return len(handlers)
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[s.topic]
		for i, sub := range subs {
			if sub.id == s.id {
				b.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[s.topic]) == 0 {
			delete(b.subs, s.topic)
		}
	})
}

// DefaultDebounce is the coalescing window used by task list views.
const DefaultDebounce = 700 * time.Millisecond

// Debouncer collapses bursts of triggers into one call of fn, made once no
// trigger has arrived for the configured delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func Debounce(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn, pushing back any call already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Handler adapts the debouncer for Bus.Subscribe.
func (d *Debouncer) Handler() Handler {
	return func(string) { d.Trigger() }
}

// Stop cancels a pending call; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.fn()
}
