package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service is implemented by each role's control-plane handler. A method
// not applicable to a given role (e.g. ListExecutors on an executor)
// should return status.Error(codes.Unimplemented, ...); UnimplementedService
// below provides that default so each role only overrides what applies.
type Service interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	ListExecutors(context.Context, *ListExecutorsRequest) (*ListExecutorsResponse, error)
	ListModels(context.Context, *ListModelsRequest) (*ListModelsResponse, error)
	GetUsageQueueDepth(context.Context, *GetUsageQueueDepthRequest) (*GetUsageQueueDepthResponse, error)
	ForceAnnounce(context.Context, *ForceAnnounceRequest) (*ForceAnnounceResponse, error)
}

// UnimplementedService answers every method with codes.Unimplemented.
// Embed it in a role's handler and override only the methods that role
// supports, the same forward-compatible embedding the teacher's generated
// signerv1.UnimplementedSignerServiceServer provides — except here it's
// hand-written since there is no protoc step to generate it.
type UnimplementedService struct{}

func (UnimplementedService) GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "control: GetStatus not implemented")
}

func (UnimplementedService) ListExecutors(context.Context, *ListExecutorsRequest) (*ListExecutorsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "control: ListExecutors not implemented")
}

func (UnimplementedService) ListModels(context.Context, *ListModelsRequest) (*ListModelsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "control: ListModels not implemented")
}

func (UnimplementedService) GetUsageQueueDepth(context.Context, *GetUsageQueueDepthRequest) (*GetUsageQueueDepthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "control: GetUsageQueueDepth not implemented")
}

func (UnimplementedService) ForceAnnounce(context.Context, *ForceAnnounceRequest) (*ForceAnnounceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "control: ForceAnnounce not implemented")
}

const serviceName = "lloom.control.v1.ControlService"

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Service).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listExecutorsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListExecutorsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).ListExecutors(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListExecutors"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Service).ListExecutors(ctx, req.(*ListExecutorsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListModelsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).ListModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListModels"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Service).ListModels(ctx, req.(*ListModelsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getUsageQueueDepthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetUsageQueueDepthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).GetUsageQueueDepth(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetUsageQueueDepth"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Service).GetUsageQueueDepth(ctx, req.(*GetUsageQueueDepthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func forceAnnounceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ForceAnnounceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).ForceAnnounce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ForceAnnounce"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Service).ForceAnnounce(ctx, req.(*ForceAnnounceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would otherwise generate from a .proto file.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return getStatusHandler(srv, ctx, dec, i)
		}},
		{MethodName: "ListExecutors", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return listExecutorsHandler(srv, ctx, dec, i)
		}},
		{MethodName: "ListModels", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return listModelsHandler(srv, ctx, dec, i)
		}},
		{MethodName: "GetUsageQueueDepth", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return getUsageQueueDepthHandler(srv, ctx, dec, i)
		}},
		{MethodName: "ForceAnnounce", Handler: func(srv any, ctx context.Context, dec func(any) error, i grpc.UnaryServerInterceptor) (any, error) {
			return forceAnnounceHandler(srv, ctx, dec, i)
		}},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lloom/control.proto",
}

// RegisterService registers impl as the ControlService handler on s.
func RegisterService(s grpc.ServiceRegistrar, impl Service) {
	s.RegisterService(&serviceDesc, impl)
}
