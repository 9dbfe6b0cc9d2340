package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Bus connects the nodes of one process. It plays the part of the ROS master plus transport:
// it knows every topic and service by resolved name.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*topic
	services map[string]ServiceHandler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics:   make(map[string]*topic),
		services: make(map[string]ServiceHandler),
	}
}

func (b *Bus) topic(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &topic{name: name, subscribers: make(map[uuid.UUID]*subscriber)}
		b.topics[name] = t
	}
	return t
}

func (b *Bus) advertise(name string, handler ServiceHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.services[name]; ok {
		return errors.Errorf("service %q already advertised", name)
	}
	b.services[name] = handler
	return nil
}

func (b *Bus) unadvertise(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, name)
}

func (b *Bus) call(ctx context.Context, name string, req interface{}) (interface{}, error) {
	b.mu.Lock()
	handler, ok := b.services[name]
	b.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrServiceNotFound, "%s", name)
	}
	return handler(ctx, req)
}

type topic struct {
	name string

	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscriber
	latched     interface{}
	hasLatched  bool
}

func (t *topic) publish(msg interface{}, latch bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if latch {
		t.latched = msg
		t.hasLatched = true
	}
	for _, sub := range t.subscribers {
		sub.enqueue(msg)
	}
}

func (t *topic) add(sub *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[sub.id] = sub
	if t.hasLatched {
		sub.enqueue(t.latched)
	}
}

func (t *topic) remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, id)
}

func (t *topic) numSubscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// subscriber buffers up to queueSize messages; when full the oldest is dropped.
type subscriber struct {
	id        uuid.UUID
	queueSize int
	cb        func(msg interface{})
	ready     chan struct{}

	mu      sync.Mutex
	queue   []interface{}
	dropped int
}

func newSubscriber(queueSize int, cb func(msg interface{})) *subscriber {
	if queueSize < 1 {
		queueSize = 1
	}
	return &subscriber{
		id:        uuid.New(),
		queueSize: queueSize,
		cb:        cb,
		ready:     make(chan struct{}, 1),
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *subscriber) enqueue(msg interface{}) {
	s.mu.Lock()
	if len(s.queue) >= s.queueSize {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.queue
	s.queue = nil
	return msgs
}

// dispatch delivers queued messages to the callback, one at a time in publish order, until ctx is
// done.
func (s *subscriber) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ready:
		}
		for _, msg := range s.drain() {
			if ctx.Err() != nil {
				return
			}
			s.cb(msg)
		}
	}
}
