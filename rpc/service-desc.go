package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are google.protobuf.Struct so the service needs no generated code:
//
//	service MarketDataService {
//	  rpc GetOrderBook(Struct) returns (Struct);   // {market, max_depth}
//	  rpc GetCandles(Struct) returns (Struct);     // {market}
//	  rpc GetStatus(Struct) returns (Struct);      // {}
//	  rpc SelectMarket(Struct) returns (Struct);   // {market}
//	  rpc Watch(Struct) returns (stream Struct);   // {types: [...]}
//	}
const serviceName = "marketview.MarketDataService"

type MarketDataServiceServer interface {
	GetOrderBook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCandles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectMarket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, MarketDataService_WatchServer) error
}

type MarketDataService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type marketDataServiceWatchServer struct {
	grpc.ServerStream
}

func (x *marketDataServiceWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterMarketDataServiceServer(s grpc.ServiceRegistrar, srv MarketDataServiceServer) {
	s.RegisterService(&MarketDataService_ServiceDesc, srv)
}

type unaryMethod func(srv MarketDataServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MarketDataServiceServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(MarketDataServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MarketDataServiceServer).Watch(in, &marketDataServiceWatchServer{stream})
}

var MarketDataService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MarketDataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetOrderBook", MarketDataServiceServer.GetOrderBook),
		unaryHandler("GetCandles", MarketDataServiceServer.GetCandles),
		unaryHandler("GetStatus", MarketDataServiceServer.GetStatus),
		unaryHandler("SelectMarket", MarketDataServiceServer.SelectMarket),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "marketview.proto",
}

// MarketDataServiceClient is the client side of the same descriptor.
type MarketDataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketDataServiceClient(cc grpc.ClientConnInterface) *MarketDataServiceClient {
	return &MarketDataServiceClient{cc: cc}
}

func (c *MarketDataServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketDataServiceClient) GetOrderBook(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetOrderBook", in, opts...)
}

func (c *MarketDataServiceClient) GetCandles(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCandles", in, opts...)
}

func (c *MarketDataServiceClient) GetStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", in, opts...)
}

func (c *MarketDataServiceClient) SelectMarket(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SelectMarket", in, opts...)
}

type MarketDataService_WatchClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type marketDataServiceWatchClient struct {
	grpc.ClientStream
}

func (x *marketDataServiceWatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *MarketDataServiceClient) Watch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (MarketDataService_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &MarketDataService_ServiceDesc.Streams[0], "/"+serviceName+"/Watch", opts...)
	if err != nil {
		return nil, err
	}
	x := &marketDataServiceWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
