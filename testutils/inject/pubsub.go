package inject

import (
	"context"

	"go.viam.com/navbridge/pubsub"
)

// PubSubNode is an injected pubsub node.
type PubSubNode struct {
	pubsub.Node
	NewPublisherFunc     func(topic string, queueSize int, latch bool) (pubsub.Publisher, error)
	SubscribeFunc        func(topic string, queueSize int, cb func(msg interface{})) (pubsub.Subscription, error)
	AdvertiseServiceFunc func(service string, handler pubsub.ServiceHandler) error
	CallServiceFunc      func(ctx context.Context, service string, req interface{}) (interface{}, error)
}

// NewPublisher calls the injected NewPublisher or the real version.
func (n *PubSubNode) NewPublisher(topic string, queueSize int, latch bool) (pubsub.Publisher, error) {
	if n.NewPublisherFunc == nil {
		return n.Node.NewPublisher(topic, queueSize, latch)
	}
	return n.NewPublisherFunc(topic, queueSize, latch)
}

// Subscribe calls the injected Subscribe or the real version.
func (n *PubSubNode) Subscribe(topic string, queueSize int, cb func(msg interface{})) (pubsub.Subscription, error) {
	if n.SubscribeFunc == nil {
		return n.Node.Subscribe(topic, queueSize, cb)
	}
	return n.SubscribeFunc(topic, queueSize, cb)
}

// AdvertiseService calls the injected AdvertiseService or the real version.
func (n *PubSubNode) AdvertiseService(service string, handler pubsub.ServiceHandler) error {
	if n.AdvertiseServiceFunc == nil {
		return n.Node.AdvertiseService(service, handler)
	}
	return n.AdvertiseServiceFunc(service, handler)
}

// CallService calls the injected CallService or the real version.
func (n *PubSubNode) CallService(ctx context.Context, service string, req interface{}) (interface{}, error) {
	if n.CallServiceFunc == nil {
		return n.Node.CallService(ctx, service, req)
	}
	return n.CallServiceFunc(ctx, service, req)
}

// Publisher is an injected publisher.
type Publisher struct {
	pubsub.Publisher
	PublishFunc func(msg interface{}) error
	CloseFunc   func() error
}

// Publish calls the injected Publish or the real version.
func (p *Publisher) Publish(msg interface{}) error {
	if p.PublishFunc == nil {
		return p.Publisher.Publish(msg)
	}
	return p.PublishFunc(msg)
}

// Close calls the injected Close or the real version.
func (p *Publisher) Close() error {
	if p.CloseFunc == nil {
		return p.Publisher.Close()
	}
	return p.CloseFunc()
}
