package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "frcline.v1.LineService"

// Requests and responses are JSON-shaped google.protobuf.Struct messages
// carrying the same fields as the HTTP API.

// LineServiceServer is the server API for LineService
type LineServiceServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PlaceBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLine(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LineHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamEvents(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryCall func(LineServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LineServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LineServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LineServiceServer).StreamEvents(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes LineService for grpc.Server registration
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LineServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Predict", LineServiceServer.Predict),
		unary("Simulate", LineServiceServer.Simulate),
		unary("PlaceBet", LineServiceServer.PlaceBet),
		unary("GetBet", LineServiceServer.GetBet),
		unary("ListBets", LineServiceServer.ListBets),
		unary("GetLine", LineServiceServer.GetLine),
		unary("LineHistory", LineServiceServer.LineHistory),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
}

// RegisterLineServiceServer registers srv with s
func RegisterLineServiceServer(s grpc.ServiceRegistrar, srv LineServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LineServiceClient is the client API for LineService
type LineServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLineServiceClient creates a client on cc
func NewLineServiceClient(cc grpc.ClientConnInterface) *LineServiceClient {
	return &LineServiceClient{cc: cc}
}

func (c *LineServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LineServiceClient) Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Predict", in, opts...)
}

func (c *LineServiceClient) Simulate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Simulate", in, opts...)
}

func (c *LineServiceClient) PlaceBet(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "PlaceBet", in, opts...)
}

func (c *LineServiceClient) GetBet(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetBet", in, opts...)
}

func (c *LineServiceClient) ListBets(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListBets", in, opts...)
}

func (c *LineServiceClient) GetLine(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetLine", in, opts...)
}

func (c *LineServiceClient) LineHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "LineHistory", in, opts...)
}

// StreamEvents subscribes to market events
func (c *LineServiceClient) StreamEvents(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/StreamEvents", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
