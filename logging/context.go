package logging

import (
	"context"

	"go.viam.com/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type debugLogKeyType int

const debugLogKeyID = debugLogKeyType(iota)

// EnableDebugMode returns a new context with debug logging state attached. An empty `debugLogKey`
// generates a random value.
func EnableDebugMode(ctx context.Context, debugLogKey string) context.Context {
	if debugLogKey == "" {
		debugLogKey = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugLogKeyID, debugLogKey)
}

// IsDebugMode returns whether the input context has debug logging enabled.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName returns the debug log key included when enabling the context for debug logging.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(debugLogKeyID).(string); ok {
		return val
	}
	return ""
}

const dtNameMetadataKey = "dtName"

// UnaryClientInterceptor adds debug directives from the current context (if any) to the
// outgoing request's metadata.
func UnaryClientInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if IsDebugMode(ctx) {
		ctx = metadata.AppendToOutgoingContext(ctx, dtNameMetadataKey, GetName(ctx))
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// UnaryServerInterceptor enables debug logging for the handler's context when the incoming RPC
// metadata carries a debug directive.
func UnaryServerInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	return handler(debugContextFromIncoming(ctx), req)
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func StreamServerInterceptor(
	srv interface{},
	stream grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	ctx := debugContextFromIncoming(stream.Context())
	if ctx == stream.Context() {
		return handler(srv, stream)
	}
	return handler(srv, &debugServerStream{ServerStream: stream, ctx: ctx})
}

func debugContextFromIncoming(ctx context.Context) context.Context {
	meta, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if values := meta.Get(dtNameMetadataKey); len(values) == 1 {
		return EnableDebugMode(ctx, values[0])
	}
	return ctx
}

type debugServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *debugServerStream) Context() context.Context {
	return s.ctx
}
