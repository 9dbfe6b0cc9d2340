// Package server exposes a bridge node over gRPC: the motor and localization commands, pose
// corrections, and server streams of the published pose and motor state.
package server

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/navbridge/bridge"
	"go.viam.com/navbridge/logging"
	"go.viam.com/navbridge/protoutils"
	"go.viam.com/navbridge/pubsub"
	"go.viam.com/navbridge/ros"
)

// Bridge is the part of a bridge.Node the server drives.
type Bridge interface {
	EnableMotors(ctx context.Context) (bridge.CommandResult, error)
	DisableMotors(ctx context.Context) (bridge.CommandResult, error)
	GlobalLocalization(ctx context.Context) (bridge.CommandResult, error)
	SetInitialPose(msg ros.PoseWithCovarianceStamped) error
}

var _ NavBridgeServiceServer = &Server{}

// streamQueueSize bounds how many messages a slow stream client may fall behind by.
const streamQueueSize = 10

// Server implements NavBridgeServiceServer on top of a Bridge. Streams read the bridge's topics
// through ps, which must resolve the bridge's relative topic names the same way the bridge does.
type Server struct {
	b      Bridge
	ps     pubsub.Node
	logger logging.Logger

	cancelCtx context.Context
	cancel    func()
}

// New constructs a gRPC service server for a bridge.
func New(b Bridge, ps pubsub.Node, logger logging.Logger) *Server {
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		b:         b,
		ps:        ps,
		logger:    logger,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// ServerOptions returns the interceptors every navbridge gRPC server runs with.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor),
	}
}

// Register adds the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Close ends all open streams.
func (s *Server) Close() {
	s.cancel()
}

// EnableMotors enables the motors of the robot.
func (s *Server) EnableMotors(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return commandResponse(s.b.EnableMotors(ctx))
}

// DisableMotors disables the motors of the robot.
func (s *Server) DisableMotors(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return commandResponse(s.b.DisableMotors(ctx))
}

// GlobalLocalization relocalizes the robot at its home pose.
func (s *Server) GlobalLocalization(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return commandResponse(s.b.GlobalLocalization(ctx))
}

// SetInitialPose forces the localizer to a pose given in the shape of an initialpose message.
func (s *Server) SetInitialPose(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	msg, err := protoutils.StructToMessage[ros.PoseWithCovarianceStamped](req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.b.SetInitialPose(msg); err != nil {
		return nil, toStatus(err)
	}
	s.logger.CDebugw(ctx, "initial pose set over grpc", "pose", msg.Pose.Pose)
	return &emptypb.Empty{}, nil
}

// StreamPose sends every pose estimate the bridge publishes until the client goes away.
func (s *Server) StreamPose(_ *emptypb.Empty, stream grpc.ServerStream) error {
	return s.streamTopic(bridge.PoseTopic, stream)
}

// StreamMotorsState sends the bridge's motor state announcements, starting with the most recent
// one.
func (s *Server) StreamMotorsState(_ *emptypb.Empty, stream grpc.ServerStream) error {
	return s.streamTopic(bridge.MotorsStateTopic, stream)
}

func (s *Server) streamTopic(topic string, stream grpc.ServerStream) error {
	msgs := make(chan interface{}, streamQueueSize)
	sub, err := s.ps.Subscribe(topic, streamQueueSize, func(msg interface{}) {
		select {
		case msgs <- msg:
		default:
			s.logger.Debugw("stream client too slow, dropping message", "topic", topic)
		}
	})
	if err != nil {
		return toStatus(err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			s.logger.Warnw("failed to close stream subscription", "topic", topic, "error", err)
		}
	}()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cancelCtx.Done():
			return status.Error(codes.Unavailable, "server closing")
		case msg := <-msgs:
			resp, err := protoutils.MessageToStruct(msg)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(resp); err != nil {
				return err
			}
		}
	}
}

// CommandResultToStruct encodes a command result for the wire.
func CommandResultToStruct(res bridge.CommandResult) (*structpb.Struct, error) {
	reason := ""
	if res.Reason != nil {
		reason = res.Reason.Error()
	}
	return structpb.NewStruct(map[string]interface{}{
		"command":   string(res.Command),
		"issued":    res.Issued,
		"effective": res.Effective,
		"reason":    reason,
	})
}

func commandResponse(res bridge.CommandResult, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return CommandResultToStruct(res)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, bridge.ErrClosed), errors.Is(err, pubsub.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, bridge.ErrNonFinitePose):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
