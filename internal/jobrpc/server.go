package jobrpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
)

// Server accepts jobs over gRPC and hands them to a local trigger, which
// runs them after the RPC has returned.
type Server struct {
	trigger orchestrator.Trigger
	logger  *slog.Logger
}

var _ JobRunnerServer = (*Server)(nil)

// NewServer creates a JobRunner server backed by trigger.
func NewServer(trigger orchestrator.Trigger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{trigger: trigger, logger: logger}
}

// Dispatch validates the event and schedules the job.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	ev, err := DecodeEvent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	job, err := ev.Job()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// The job outlives this RPC.
	if err := s.trigger.Trigger(context.WithoutCancel(ctx), job); err != nil {
		if errors.Is(err, orchestrator.ErrTriggerClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.logger.InfoContext(ctx, "job accepted",
		"session_id", job.SessionID, "kind", job.Kind, "attempt", job.Attempt)
	return &emptypb.Empty{}, nil
}

// NewGRPCServer builds a gRPC server with the JobRunner and health services
// registered. The returned health server can be flipped to NOT_SERVING on
// shutdown.
func NewGRPCServer(srv *Server) (*grpc.Server, *health.Server) {
	g := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(srv.logger)))
	RegisterJobRunnerServer(g, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	return g, hs
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.DebugContext(ctx, "rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
