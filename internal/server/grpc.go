package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// DependencyServiceServer is the contract behind taskdeps.v1.DependencyService.
// Every method exchanges google.protobuf.Struct messages holding the api types.
type DependencyServiceServer interface {
	AddDependency(context.Context, api.AddDependencyRequest) (*model.Dependency, error)
	RemoveDependency(context.Context, api.DependencyRequest) (*model.Dependency, error)
	GetDependency(context.Context, api.DependencyRequest) (*model.Dependency, error)
	ListDependencies(context.Context, api.ListDependenciesRequest) (*api.DependenciesResponse, error)
	IsolateTask(context.Context, api.TaskRequest) (*api.IsolateResponse, error)
	RestoreTask(context.Context, api.TaskRequest) (*model.Reactivation, error)
	Recompute(context.Context, api.ProjectRequest) (*model.ScheduleReport, error)
	GetSchedule(context.Context, api.ProjectRequest) (*model.ScheduleReport, error)
	MostBlocking(context.Context, api.RankRequest) (*api.RanksResponse, error)
	MostDependent(context.Context, api.RankRequest) (*api.RanksResponse, error)
	ExternalConstraints(context.Context, api.ExternalRequest) (*api.DependenciesResponse, error)
	Stats(context.Context, api.ProjectRequest) (*api.StatsResponse, error)
	CurrentlyBlocking(context.Context, api.ProjectRequest) (*api.DependenciesResponse, error)
	Summary(context.Context, api.ProjectRequest) (*model.Summary, error)
}

var _ DependencyServiceServer = (*Server)(nil)

// rpcCall decodes a request struct and invokes one service method.
type rpcCall func(srv DependencyServiceServer, ctx context.Context, in *structpb.Struct) (any, error)

// unary adapts a typed service method into an rpcCall.
func unary[Req, Resp any](fn func(DependencyServiceServer, context.Context, Req) (Resp, error)) rpcCall {
	return func(srv DependencyServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
		var req Req
		if err := api.FromStruct(in, &req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
		}
		return fn(srv, ctx, req)
	}
}

// DependencyServiceDesc describes taskdeps.v1.DependencyService for
// grpc.Server.RegisterService.
var DependencyServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*DependencyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(api.MethodAddDependency, unary(DependencyServiceServer.AddDependency)),
		method(api.MethodRemoveDependency, unary(DependencyServiceServer.RemoveDependency)),
		method(api.MethodGetDependency, unary(DependencyServiceServer.GetDependency)),
		method(api.MethodListDependencies, unary(DependencyServiceServer.ListDependencies)),
		method(api.MethodIsolateTask, unary(DependencyServiceServer.IsolateTask)),
		method(api.MethodRestoreTask, unary(DependencyServiceServer.RestoreTask)),
		method(api.MethodRecompute, unary(DependencyServiceServer.Recompute)),
		method(api.MethodGetSchedule, unary(DependencyServiceServer.GetSchedule)),
		method(api.MethodMostBlocking, unary(DependencyServiceServer.MostBlocking)),
		method(api.MethodMostDependent, unary(DependencyServiceServer.MostDependent)),
		method(api.MethodExternalConstraints, unary(DependencyServiceServer.ExternalConstraints)),
		method(api.MethodStats, unary(DependencyServiceServer.Stats)),
		method(api.MethodCurrentlyBlocking, unary(DependencyServiceServer.CurrentlyBlocking)),
		method(api.MethodSummary, unary(DependencyServiceServer.Summary)),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskdeps/v1/dependency.proto",
}

func method(name string, call rpcCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := call(srv.(DependencyServiceServer), ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, grpcError(err)
				}
				return api.ToStruct(out)
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// grpcCode maps engine errors to status codes.
func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, model.ErrCycleDetected):
		return codes.FailedPrecondition
	case errors.Is(err, model.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, model.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrDuplicateEdge):
		return codes.AlreadyExists
	case errors.Is(err, model.ErrRecomputeTimeout):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// grpcError converts err to a status carrying an api.ErrorResponse detail.
// Errors that already are statuses pass through.
func grpcError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	resp := api.NewErrorResponse(err)
	st := status.New(grpcCode(err), resp.Error)
	if detail, derr := api.ToStruct(resp); derr == nil {
		if withDetail, werr := st.WithDetails(detail); werr == nil {
			st = withDetail
		}
	}
	return st.Err()
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the DependencyService, health and reflection, and returns the
// server ready to serve.
func NewGRPCServer(s *Server, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.log),
			RequestIDInterceptor,
			LoggingInterceptor(s.log),
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&DependencyServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}
