package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/utils"
)

var _ Node = &LocalNode{}

// LocalNode is a Node attached to an in-process Bus. Every subscription callback runs on its own
// goroutine; callbacks of one subscription never run concurrently.
type LocalNode struct {
	bus       *Bus
	name      string
	namespace string
	logger    logging.Logger
	workers   utils.StoppableWorkers

	mu            sync.Mutex
	closed        bool
	publishers    map[*publisher]struct{}
	subscriptions map[uuid.UUID]*subscription
	services      []string
}

// NewLocalNode creates a node named `name` on `bus`. `namespace` may be absolute, relative to the
// root, or PrivateNamespace.
func NewLocalNode(bus *Bus, name, namespace string, logger logging.Logger) (*LocalNode, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "node name")
	}
	return &LocalNode{
		bus:           bus,
		name:          name,
		namespace:     resolveNamespace(name, namespace),
		logger:        logger,
		workers:       utils.NewStoppableWorkers(),
		publishers:    make(map[*publisher]struct{}),
		subscriptions: make(map[uuid.UUID]*subscription),
	}, nil
}

// Name returns the node's name.
func (n *LocalNode) Name() string {
	return n.name
}

// Namespace returns the absolute namespace relative names are resolved in.
func (n *LocalNode) Namespace() string {
	return n.namespace
}

// ResolveName returns the absolute form of a topic or service name.
func (n *LocalNode) ResolveName(name string) string {
	return resolveName(n.name, n.namespace, name)
}

// Logger returns the node's logger.
func (n *LocalNode) Logger() logging.Logger {
	return n.logger
}

// NewPublisher advertises `topic`. queueSize is accepted for parity with ROS publishers; local
// delivery never blocks the publisher so only subscriber queues bound memory.
func (n *LocalNode) NewPublisher(topic string, queueSize int, latch bool) (Publisher, error) {
	if err := ValidateName(topic); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	pub := &publisher{node: n, topic: n.bus.topic(n.ResolveName(topic)), latch: latch}
	n.publishers[pub] = struct{}{}
	n.logger.Debugw("advertised topic", "topic", pub.topic.name, "latch", latch, "queue_size", queueSize)
	return pub, nil
}

// Subscribe registers cb for `topic`. At most queueSize undelivered messages are kept; when the
// callback falls behind the oldest are dropped.
func (n *LocalNode) Subscribe(topic string, queueSize int, cb func(msg interface{})) (Subscription, error) {
	if err := ValidateName(topic); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, errors.Errorf("nil callback for topic %q", topic)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		node:       n,
		topic:      n.bus.topic(n.ResolveName(topic)),
		subscriber: newSubscriber(queueSize, cb),
	}
	n.subscriptions[sub.subscriber.id] = sub
	sub.workers = utils.NewStoppableWorkersWithContext(n.workers.Context(), sub.subscriber.dispatch)
	sub.topic.add(sub.subscriber)
	n.logger.Debugw("subscribed", "topic", sub.topic.name, "id", sub.subscriber.id, "queue_size", queueSize)
	return sub, nil
}

// AdvertiseService makes handler answer calls to `service`.
func (n *LocalNode) AdvertiseService(service string, handler ServiceHandler) error {
	if err := ValidateName(service); err != nil {
		return err
	}
	if handler == nil {
		return errors.Errorf("nil handler for service %q", service)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	resolved := n.ResolveName(service)
	if err := n.bus.advertise(resolved, handler); err != nil {
		return err
	}
	n.services = append(n.services, resolved)
	n.logger.Debugw("advertised service", "service", resolved)
	return nil
}

// UnadvertiseService withdraws a service this node advertised.
func (n *LocalNode) UnadvertiseService(service string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	resolved := n.ResolveName(service)
	for i, advertised := range n.services {
		if advertised == resolved {
			n.services = append(n.services[:i], n.services[i+1:]...)
			n.bus.unadvertise(resolved)
			return nil
		}
	}
	return errors.Wrapf(ErrServiceNotFound, "%s", resolved)
}

// CallService calls `service` synchronously on the calling goroutine.
func (n *LocalNode) CallService(ctx context.Context, service string, req interface{}) (interface{}, error) {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return n.bus.call(ctx, n.ResolveName(service), req)
}

// Close unadvertises the node's services, closes its publishers and subscriptions and waits for
// running callbacks to return. It must not be called from a subscription callback.
func (n *LocalNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	pubs := make([]*publisher, 0, len(n.publishers))
	for pub := range n.publishers {
		pubs = append(pubs, pub)
	}
	subs := make([]*subscription, 0, len(n.subscriptions))
	for _, sub := range n.subscriptions {
		subs = append(subs, sub)
	}
	services := n.services
	n.services = nil
	n.mu.Unlock()

	for _, service := range services {
		n.bus.unadvertise(service)
	}
	// cancels every subscription's dispatch at once; the closes below wait for each one.
	n.workers.Stop()
	var errs error
	for _, pub := range pubs {
		errs = multierr.Combine(errs, pub.Close())
	}
	for _, sub := range subs {
		errs = multierr.Combine(errs, sub.Close())
	}
	return errs
}

type publisher struct {
	node  *LocalNode
	topic *topic
	latch bool

	mu     sync.Mutex
	closed bool
}

func (p *publisher) Topic() string {
	return p.topic.name
}

func (p *publisher) Publish(msg interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.Wrapf(ErrClosed, "publisher on %s", p.topic.name)
	}
	p.topic.publish(msg, p.latch)
	return nil
}

func (p *publisher) NumSubscribers() int {
	return p.topic.numSubscribers()
}

func (p *publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.node.mu.Lock()
	delete(p.node.publishers, p)
	p.node.mu.Unlock()
	return nil
}

type subscription struct {
	node       *LocalNode
	topic      *topic
	subscriber *subscriber
	workers    utils.StoppableWorkers
}

func (s *subscription) ID() uuid.UUID {
	return s.subscriber.id
}

func (s *subscription) Topic() string {
	return s.topic.name
}

// Close stops delivery and waits for a callback that is already running to return, so nothing is
// delivered once Close returns. It must not be called from the subscription's own callback.
func (s *subscription) Close() error {
	s.topic.remove(s.subscriber.id)
	s.workers.Stop()

	s.node.mu.Lock()
	_, open := s.node.subscriptions[s.subscriber.id]
	delete(s.node.subscriptions, s.subscriber.id)
	s.node.mu.Unlock()

	if dropped := s.subscriber.Dropped(); open && dropped > 0 {
		s.node.logger.Debugw("subscription dropped messages", "topic", s.topic.name, "dropped", dropped)
	}
	return nil
}
