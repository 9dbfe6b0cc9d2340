package server

import (
	"context"
	"iter"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/navbridge/protoutils"
	"go.viam.com/navbridge/ros"
)

// Client calls ServiceName over a connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient returns a client using conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) command(ctx context.Context, method string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnableMotors calls EnableMotors.
func (c *Client) EnableMotors(ctx context.Context) (*structpb.Struct, error) {
	return c.command(ctx, EnableMotorsMethod)
}

// DisableMotors calls DisableMotors.
func (c *Client) DisableMotors(ctx context.Context) (*structpb.Struct, error) {
	return c.command(ctx, DisableMotorsMethod)
}

// GlobalLocalization calls GlobalLocalization.
func (c *Client) GlobalLocalization(ctx context.Context) (*structpb.Struct, error) {
	return c.command(ctx, GlobalLocalizationMethod)
}

// SetInitialPose calls SetInitialPose.
func (c *Client) SetInitialPose(ctx context.Context, msg ros.PoseWithCovarianceStamped) error {
	in, err := protoutils.MessageToStruct(msg)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, FullMethod(SetInitialPoseMethod), in, new(emptypb.Empty))
}

// StreamPose yields pose estimates until ctx is done or the stream fails.
func (c *Client) StreamPose(ctx context.Context) (iter.Seq2[ros.PoseWithCovarianceStamped, error], error) {
	return openStream[ros.PoseWithCovarianceStamped](ctx, c.conn, StreamPoseMethod)
}

// StreamMotorsState yields motor state announcements until ctx is done or the stream fails.
func (c *Client) StreamMotorsState(ctx context.Context) (iter.Seq2[ros.Bool, error], error) {
	return openStream[ros.Bool](ctx, c.conn, StreamMotorsStateMethod)
}

func openStream[T any](ctx context.Context, conn grpc.ClientConnInterface, method string) (iter.Seq2[T, error], error) {
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, FullMethod(method))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return func(yield func(T, error) bool) {
		for {
			var zero T
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				yield(zero, err)
				return
			}
			msg, err := protoutils.StructToMessage[T](in)
			if !yield(msg, err) || err != nil {
				return
			}
		}
	}, nil
}
