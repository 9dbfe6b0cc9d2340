package pubsub

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// SubscribeTyped is Subscribe for callers that expect a single message type on `topic`. Messages
// of any other type are logged and dropped.
func SubscribeTyped[T any](n Node, topic string, queueSize int, cb func(msg T)) (Subscription, error) {
	return n.Subscribe(topic, queueSize, func(msg interface{}) {
		typed, ok := msg.(T)
		if !ok {
			var want T
			n.Logger().Warnw("dropping message of unexpected type", "topic", n.ResolveName(topic),
				"got", typeName(msg), "want", typeName(want))
			return
		}
		cb(typed)
	})
}

// CallServiceTyped is CallService with the request and response types spelled out.
func CallServiceTyped[Req, Resp any](ctx context.Context, n Node, service string, req Req) (Resp, error) {
	var zero Resp
	resp, err := n.CallService(ctx, service, req)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(Resp)
	if !ok {
		return zero, errors.Errorf("service %s answered with %s, expected %s",
			n.ResolveName(service), typeName(resp), typeName(zero))
	}
	return typed, nil
}

// AdvertiseServiceTyped is AdvertiseService for handlers of one request type. Requests of any
// other type are rejected with an error.
func AdvertiseServiceTyped[Req, Resp any](
	n Node,
	service string,
	handler func(ctx context.Context, req Req) (Resp, error),
) error {
	return n.AdvertiseService(service, func(ctx context.Context, req interface{}) (interface{}, error) {
		typed, ok := req.(Req)
		if !ok {
			var want Req
			return nil, errors.Errorf("service %s expects %s, got %s",
				n.ResolveName(service), typeName(want), typeName(req))
		}
		return handler(ctx, typed)
	})
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
