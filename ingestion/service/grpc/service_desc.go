package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service only exchanges well-known protobuf types, so the descriptor is
// maintained by hand instead of generated from a .proto file:
//
//	service LogServer {
//	  rpc SendLog(google.protobuf.Struct) returns (google.protobuf.StringValue);
//	  rpc StreamLogs(stream google.protobuf.Struct) returns (google.protobuf.Empty);
//	}
const (
	ServiceName          = "cdctrl.LogServer"
	SendLogFullMethod    = "/cdctrl.LogServer/SendLog"
	StreamLogsFullMethod = "/cdctrl.LogServer/StreamLogs"
)

// LogServer is the server API for the cdctrl.LogServer service.
type LogServer interface {
	SendLog(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	StreamLogs(LogServer_StreamLogsServer) error
}

// LogServer_StreamLogsServer is the server side of the StreamLogs stream.
type LogServer_StreamLogsServer interface {
	SendAndClose(*emptypb.Empty) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

// ServiceDesc describes cdctrl.LogServer for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendLog",
			Handler:    sendLogHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamLogs",
			Handler:       streamLogsHandler,
			ClientStreams: true,
		},
	},
	Metadata: "cdctrl/log_server.proto",
}

func sendLogHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogServer).SendLog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SendLogFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LogServer).SendLog(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamLogsHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(LogServer).StreamLogs(&streamLogsServer{stream})
}

type streamLogsServer struct {
	grpc.ServerStream
}

func (x *streamLogsServer) SendAndClose(m *emptypb.Empty) error {
	return x.ServerStream.SendMsg(m)
}

func (x *streamLogsServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Client is the client API for the cdctrl.LogServer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// SendLog submits one record and returns the identity the server assigned.
func (c *Client) SendLog(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, SendLogFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamLogs opens a client stream of records.
func (c *Client) StreamLogs(ctx context.Context, opts ...grpc.CallOption) (*StreamLogsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamLogsFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &StreamLogsClient{stream}, nil
}

// StreamLogsClient is the client side of the StreamLogs stream.
type StreamLogsClient struct {
	grpc.ClientStream
}

func (x *StreamLogsClient) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

// CloseAndRecv half-closes the stream and waits for the server's reply.
func (x *StreamLogsClient) CloseAndRecv() (*emptypb.Empty, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(emptypb.Empty)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
