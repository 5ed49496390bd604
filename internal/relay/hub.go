// Package relay is the process-wide change notification hub.  Mutations
// publish an Event after they succeed; views subscribe to a table (and
// optionally an operation and a column=value filter) and re-fetch when
// notified.  Events say that something changed, not what it looks like now.
package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Op is the kind of row change.  OpAny in a Spec matches every kind.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	OpAny    Op = "*"
)

// Filter restricts a subscription to rows whose Column equals Value.
type Filter struct {
	Column string
	Value  string
}

// Spec selects which events a subscription receives.
type Spec struct {
	Table  string
	Op     Op
	Filter *Filter
}

// Event describes one committed row change.  Fields carries the filterable
// columns of the row (ids as strings).  Origin identifies the publishing
// process when events cross the Redis bridge.
type Event struct {
	Table  string            `json:"table"`
	Op     Op                `json:"event"`
	Fields map[string]string `json:"fields,omitempty"`
	At     time.Time         `json:"at"`
	Origin string            `json:"origin,omitempty"`
}

// Matches reports whether e satisfies s.
func (s Spec) Matches(e Event) bool {
	if s.Table != e.Table {
		return false
	}
	if s.Op != "" && s.Op != OpAny && s.Op != e.Op {
		return false
	}
	if s.Filter != nil && e.Fields[s.Filter.Column] != s.Filter.Value {
		return false
	}
	return true
}

// Publisher is what mutating code depends on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Forwarder receives every locally published event after local delivery.
// The Redis bridge installs one to fan events out to other instances.
type Forwarder func(ctx context.Context, e Event)

const defaultBuffer = 16

// Hub fans events out to subscriptions.  Each subscription owns a buffered
// queue and a goroutine that runs its callback, so a slow subscriber
// never blocks Publish.  When a queue is full the extra event is dropped;
// the one already pending forces the same re-fetch.
type Hub struct {
	log    *zap.Logger
	buffer int

	mu        sync.RWMutex
	nextID    uint64
	subs      map[uint64]*Subscription
	channels  map[string]map[uint64]*Subscription
	forwarder Forwarder
	closed    bool

	wg sync.WaitGroup
}

// Option customises a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub returns an empty hub.  A nil logger disables logging.
func NewHub(log *zap.Logger, opts ...Option) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:      log,
		buffer:   defaultBuffer,
		subs:     make(map[uint64]*Subscription),
		channels: make(map[string]map[uint64]*Subscription),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscription is a live registration.  Release it with Unsubscribe.
type Subscription struct {
	id      uint64
	channel string
	spec    Spec
	hub     *Hub
	queue   chan Event
	done    chan struct{}
	once    sync.Once
}

// Channel returns the channel name the subscription was registered under.
func (s *Subscription) Channel() string { return s.channel }

// Unsubscribe stops delivery.  It is safe to call more than once and from
// inside the callback.
func (s *Subscription) Unsubscribe() {
	if s.hub != nil {
		s.hub.remove(s)
	}
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers cb for events matching spec under the given channel
// name.  Several subscriptions may share a channel name; Hub.Unsubscribe
// releases them together.  Subscribing to a closed hub returns an inert
// subscription.
func (h *Hub) Subscribe(channel string, spec Spec, cb func(Event)) *Subscription {
	sub := &Subscription{
		channel: channel,
		spec:    spec,
		hub:     h,
		queue:   make(chan Event, h.buffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stop()
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[uint64]*Subscription)
	}
	h.channels[channel][sub.id] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	go h.run(sub, cb)
	return sub
}

func (h *Hub) run(sub *Subscription, cb func(Event)) {
	defer h.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case e := <-sub.queue:
			select {
			case <-sub.done:
				return
			default:
			}
			h.invoke(sub, cb, e)
		}
	}
}

func (h *Hub) invoke(sub *Subscription, cb func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("relay callback panicked", zap.String("channel", sub.channel), zap.Any("panic", r))
		}
	}()
	cb(e)
}

// Unsubscribe releases every subscription registered under channel.
func (h *Hub) Unsubscribe(channel string) {
	h.mu.Lock()
	subs := h.channels[channel]
	delete(h.channels, channel)
	for id := range subs {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
	if m := h.channels[s.channel]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(h.channels, s.channel)
		}
	}
}

// SetForwarder installs f to receive every locally published event.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Publish delivers e to every matching subscription and then hands it to
// the forwarder, if any.
func (h *Hub) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.Deliver(e)

	h.mu.RLock()
	f := h.forwarder
	closed := h.closed
	h.mu.RUnlock()
	if f != nil && !closed {
		f(ctx, e)
	}
}

// Deliver dispatches e to local subscriptions only.  The bridge uses it for
// events that arrived from other instances.
func (h *Hub) Deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		if !s.spec.Matches(e) {
			continue
		}
		select {
		case s.queue <- e:
		default:
			h.log.Debug("relay queue full, dropping event",
				zap.String("channel", s.channel), zap.String("table", e.Table))
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close releases every subscription and waits for their goroutines to
// exit.  Publishing after Close is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.wg.Wait()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.channels = make(map[string]map[uint64]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	h.wg.Wait()
}
