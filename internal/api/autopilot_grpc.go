package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.autopilot.v1.Autopilot"

const (
	methodGetState      = "/" + ServiceName + "/GetState"
	methodListStates    = "/" + ServiceName + "/ListStates"
	methodListIncidents = "/" + ServiceName + "/ListIncidents"
	methodGetIncident   = "/" + ServiceName + "/GetIncident"
	methodListEvents    = "/" + ServiceName + "/ListEvents"
	methodRunTick       = "/" + ServiceName + "/RunTick"
)

// AutopilotServer is the read and trigger surface of the daemon. Messages are
// protobuf well-known types so clients need no generated stubs.
type AutopilotServer interface {
	// GetState takes a service name.
	GetState(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListStates(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListIncidents(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetIncident takes a ticket id.
	GetIncident(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListEvents takes {"service": string, "limit": number}.
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// RunTick takes a service name and runs one tick immediately.
	RunTick(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedAutopilotServer answers every method with codes.Unimplemented.
type UnimplementedAutopilotServer struct{}

func (UnimplementedAutopilotServer) GetState(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetState not implemented")
}
func (UnimplementedAutopilotServer) ListStates(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListStates not implemented")
}
func (UnimplementedAutopilotServer) ListIncidents(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListIncidents not implemented")
}
func (UnimplementedAutopilotServer) GetIncident(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetIncident not implemented")
}
func (UnimplementedAutopilotServer) ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListEvents not implemented")
}
func (UnimplementedAutopilotServer) RunTick(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RunTick not implemented")
}

// RegisterAutopilotServer attaches srv to s.
func RegisterAutopilotServer(s grpc.ServiceRegistrar, srv AutopilotServer) {
	s.RegisterService(&autopilotServiceDesc, srv)
}

// unary adapts a typed method into a grpc.MethodHandler.
func unary[Req any, PReq interface{ *Req }](method string, call func(AutopilotServer, context.Context, PReq) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AutopilotServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AutopilotServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var autopilotServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AutopilotServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: unary[wrapperspb.StringValue](methodGetState, AutopilotServer.GetState)},
		{MethodName: "ListStates", Handler: unary[emptypb.Empty](methodListStates, AutopilotServer.ListStates)},
		{MethodName: "ListIncidents", Handler: unary[emptypb.Empty](methodListIncidents, AutopilotServer.ListIncidents)},
		{MethodName: "GetIncident", Handler: unary[wrapperspb.StringValue](methodGetIncident, AutopilotServer.GetIncident)},
		{MethodName: "ListEvents", Handler: unary[structpb.Struct](methodListEvents, AutopilotServer.ListEvents)},
		{MethodName: "RunTick", Handler: unary[wrapperspb.StringValue](methodRunTick, AutopilotServer.RunTick)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/autopilot/v1/autopilot.proto",
}

// AutopilotClient calls an Autopilot server.
type AutopilotClient struct {
	cc grpc.ClientConnInterface
}

// NewAutopilotClient wraps an established connection.
func NewAutopilotClient(cc grpc.ClientConnInterface) *AutopilotClient {
	return &AutopilotClient{cc: cc}
}

func (c *AutopilotClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AutopilotClient) GetState(ctx context.Context, service string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetState, wrapperspb.String(service), opts)
}

func (c *AutopilotClient) ListStates(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListStates, &emptypb.Empty{}, opts)
}

func (c *AutopilotClient) ListIncidents(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListIncidents, &emptypb.Empty{}, opts)
}

func (c *AutopilotClient) GetIncident(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetIncident, wrapperspb.String(id), opts)
}

func (c *AutopilotClient) ListEvents(ctx context.Context, service string, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"service": structpb.NewStringValue(service),
		"limit":   structpb.NewNumberValue(float64(limit)),
	}}
	return c.invoke(ctx, methodListEvents, req, opts)
}

func (c *AutopilotClient) RunTick(ctx context.Context, service string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodRunTick, wrapperspb.String(service), opts)
}
