// Package jobrpc carries generation jobs from the coordinator to an
// out-of-process worker over gRPC. The service has a single fire-and-forget
// method whose request is a google.protobuf.Struct holding the job event, so
// no generated code is needed.
package jobrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "diagramstudio.v1.JobRunner"
	// DispatchMethod is the full method name of Dispatch
	DispatchMethod = "/" + ServiceName + "/Dispatch"
)

// JobRunnerServer is the server API for the JobRunner service.
type JobRunnerServer interface {
	// Dispatch accepts a job event and returns once the job is scheduled.
	Dispatch(ctx context.Context, event *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc is the grpc.ServiceDesc for the JobRunner service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JobRunnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Dispatch",
			Handler:    dispatchHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diagramstudio/v1/job_runner.proto",
}

// RegisterJobRunnerServer registers srv on s.
func RegisterJobRunnerServer(s grpc.ServiceRegistrar, srv JobRunnerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func dispatchHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JobRunnerServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DispatchMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JobRunnerServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
