// Package api exposes the tenant runtime over gRPC. Requests and responses
// are google.protobuf.Struct messages, so no generated code is needed on
// either side.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wppgw.v1.GatewayService"

// Method names.
const (
	MethodConnect      = "Connect"
	MethodGetSession   = "GetSession"
	MethodListContacts = "ListContacts"
	MethodListMessages = "ListMessages"
	MethodSendMessage  = "SendMessage"
	MethodLogout       = "Logout"
	MethodStopTenant   = "StopTenant"
	MethodListTenants  = "ListTenants"
	StreamWatchSession = "WatchSession"
)

// GatewayServer is the server side of the gateway service.
type GatewayServer interface {
	Connect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListContacts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopTenant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTenants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchSession(*structpb.Struct, grpc.ServerStream) error
}

type unaryFunc func(GatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn unaryFunc) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(GatewayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(GatewayServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchSessionHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GatewayServer).WatchSession(in, stream)
}

// ServiceDesc describes the gateway service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodConnect, GatewayServer.Connect),
		unary(MethodGetSession, GatewayServer.GetSession),
		unary(MethodListContacts, GatewayServer.ListContacts),
		unary(MethodListMessages, GatewayServer.ListMessages),
		unary(MethodSendMessage, GatewayServer.SendMessage),
		unary(MethodLogout, GatewayServer.Logout),
		unary(MethodStopTenant, GatewayServer.StopTenant),
		unary(MethodListTenants, GatewayServer.ListTenants),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    StreamWatchSession,
			Handler:       watchSessionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "wppgw/v1/gateway.proto",
}

// Register registers srv on r.
func Register(r grpc.ServiceRegistrar, srv GatewayServer) {
	r.RegisterService(&ServiceDesc, srv)
}
