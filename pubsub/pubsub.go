// Package pubsub provides ROS style topics and services between nodes of one process: named
// topics with optionally latched publishers and bounded subscriber queues, and named synchronous
// services.
package pubsub

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/navbridge/logging"
)

var (
	// ErrClosed is returned when using a publisher, subscription or node after it was closed.
	ErrClosed = errors.New("closed")
	// ErrServiceNotFound is returned when calling a service nobody advertises.
	ErrServiceNotFound = errors.New("service not found")
)

// Publisher sends messages on one topic.
type Publisher interface {
	Topic() string
	// Publish hands msg to every current subscriber. When the publisher is latched the message is
	// also kept and delivered to subscribers that join later.
	Publish(msg interface{}) error
	NumSubscribers() int
	Close() error
}

// Subscription is a registered interest in a topic.
type Subscription interface {
	ID() uuid.UUID
	Topic() string
	Close() error
}

// ServiceHandler answers one service call.
type ServiceHandler func(ctx context.Context, req interface{}) (interface{}, error)

// Node is a named participant. Relative names are resolved against the node's namespace and
// names starting with "~" against the node's private namespace.
type Node interface {
	Name() string
	Namespace() string
	ResolveName(name string) string
	Logger() logging.Logger

	NewPublisher(topic string, queueSize int, latch bool) (Publisher, error)
	Subscribe(topic string, queueSize int, cb func(msg interface{})) (Subscription, error)
	AdvertiseService(service string, handler ServiceHandler) error
	UnadvertiseService(service string) error
	CallService(ctx context.Context, service string, req interface{}) (interface{}, error)

	Close() error
}
