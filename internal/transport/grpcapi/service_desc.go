package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса.
const ServiceName = "procurement.v1.ProcurementService"

// Имена методов сервиса.
const (
	MethodGetActiveStatus  = "GetActiveStatus"
	MethodListValidTargets = "ListValidTargets"
	MethodTransitionStatus = "TransitionStatus"
	MethodRetireSupplier   = "RetireSupplier"
)

// ProcurementServer: серверная часть сервиса. Запросы и ответы передаются
// как google.protobuf.Struct.
type ProcurementServer interface {
	GetActiveStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListValidTargets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TransitionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RetireSupplier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv ProcurementServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProcurementServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ProcurementServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc описывает сервис для grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProcurementServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodGetActiveStatus, ProcurementServer.GetActiveStatus),
		unaryHandler(MethodListValidTargets, ProcurementServer.ListValidTargets),
		unaryHandler(MethodTransitionStatus, ProcurementServer.TransitionStatus),
		unaryHandler(MethodRetireSupplier, ProcurementServer.RetireSupplier),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/v1/procurement.proto",
}

// RegisterProcurementServer регистрирует реализацию на сервере.
func RegisterProcurementServer(s grpc.ServiceRegistrar, srv ProcurementServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod возвращает полное имя метода вида /procurement.v1.ProcurementService/Name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Client: клиент сервиса поверх произвольного соединения.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call вызывает метод name с запросом req.
func (c *Client) Call(ctx context.Context, name string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(name), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
