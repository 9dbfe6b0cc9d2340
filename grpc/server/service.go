package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the bridge's gRPC service.
const ServiceName = "navbridge.v1.NavBridgeService"

// Method names of ServiceName.
const (
	EnableMotorsMethod       = "EnableMotors"
	DisableMotorsMethod      = "DisableMotors"
	GlobalLocalizationMethod = "GlobalLocalization"
	SetInitialPoseMethod     = "SetInitialPose"
	StreamPoseMethod         = "StreamPose"
	StreamMotorsStateMethod  = "StreamMotorsState"
)

// FullMethod returns the gRPC path of a method of ServiceName.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// NavBridgeServiceServer is the server API of ServiceName. Every payload is a protobuf
// well-known type, so no generated code is needed.
type NavBridgeServiceServer interface {
	EnableMotors(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DisableMotors(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GlobalLocalization(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetInitialPose(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	StreamPose(*emptypb.Empty, grpc.ServerStream) error
	StreamMotorsState(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes ServiceName for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NavBridgeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: EnableMotorsMethod,
			Handler:    unaryHandler(EnableMotorsMethod, NavBridgeServiceServer.EnableMotors),
		},
		{
			MethodName: DisableMotorsMethod,
			Handler:    unaryHandler(DisableMotorsMethod, NavBridgeServiceServer.DisableMotors),
		},
		{
			MethodName: GlobalLocalizationMethod,
			Handler:    unaryHandler(GlobalLocalizationMethod, NavBridgeServiceServer.GlobalLocalization),
		},
		{
			MethodName: SetInitialPoseMethod,
			Handler:    unaryHandler(SetInitialPoseMethod, NavBridgeServiceServer.SetInitialPose),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    StreamPoseMethod,
			Handler:       streamHandler(NavBridgeServiceServer.StreamPose),
			ServerStreams: true,
		},
		{
			StreamName:    StreamMotorsStateMethod,
			Handler:       streamHandler(NavBridgeServiceServer.StreamMotorsState),
			ServerStreams: true,
		},
	},
}

func unaryHandler[Req any, Resp any, ReqPtr interface{ *Req }](
	method string,
	call func(NavBridgeServiceServer, context.Context, ReqPtr) (Resp, error),
) grpc.MethodHandler {
	return func(
		srv interface{},
		ctx context.Context,
		dec func(interface{}) error,
		interceptor grpc.UnaryServerInterceptor,
	) (interface{}, error) {
		in := ReqPtr(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NavBridgeServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(NavBridgeServiceServer), ctx, req.(ReqPtr))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamHandler(call func(NavBridgeServiceServer, *emptypb.Empty, grpc.ServerStream) error) grpc.StreamHandler {
	return func(srv interface{}, stream grpc.ServerStream) error {
		in := new(emptypb.Empty)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return call(srv.(NavBridgeServiceServer), in, stream)
	}
}
