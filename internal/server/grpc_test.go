package server

import (
	"context"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// startGRPC serves srv on an in-memory listener and returns a connection to it.
func startGRPC(t *testing.T, srv *Server, token string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(srv, token)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req, resp any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return err
	}
	return api.FromStruct(out, resp)
}

func TestGRPCScenario(t *testing.T) {
	conn := startGRPC(t, newTestServer(t), "")
	ctx := context.Background()

	var ab model.Dependency
	if err := invoke(ctx, conn, api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 2, PrerequisiteID: 1}, &ab); err != nil {
		t.Fatalf("add A->B: %v", err)
	}
	if ab.ID == 0 || ab.Type != model.FinishToStart {
		t.Errorf("created edge = %+v", ab)
	}
	var bc model.Dependency
	if err := invoke(ctx, conn, api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 3, PrerequisiteID: 2, LagHours: 1}, &bc); err != nil {
		t.Fatalf("add B->C: %v", err)
	}

	var rep model.ScheduleReport
	if err := invoke(ctx, conn, api.MethodRecompute, api.ProjectRequest{ProjectID: 1}, &rep); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if rep.MakespanHours != 7 || !cmp.Equal(rep.CriticalEdgeIDs, []int64{ab.ID, bc.ID}) {
		t.Errorf("report = %+v", rep)
	}

	err := invoke(ctx, conn, api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 1, PrerequisiteID: 3}, &model.Dependency{})
	st, _ := status.FromError(err)
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("cycle code = %v, want FailedPrecondition (%v)", st.Code(), err)
	}
	var detail api.ErrorResponse
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if err := api.FromStruct(s, &detail); err != nil {
				t.Fatal(err)
			}
		}
	}
	if !cmp.Equal(detail.CyclePath, []int64{1, 3, 2, 1}) {
		t.Errorf("cycle detail = %+v", detail)
	}

	var list api.DependenciesResponse
	if err := invoke(ctx, conn, api.MethodListDependencies, api.ListDependenciesRequest{ProjectID: 1}, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Dependencies) != 2 {
		t.Errorf("dependencies after rejected cycle = %d, want 2", len(list.Dependencies))
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	conn := startGRPC(t, newTestServer(t), "")
	ctx := context.Background()
	if err := invoke(ctx, conn, api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 2, PrerequisiteID: 1}, &model.Dependency{}); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name   string
		method string
		req    any
		want   codes.Code
	}{
		{"self", api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 2, PrerequisiteID: 2}, codes.InvalidArgument},
		{"duplicate", api.MethodAddDependency, api.AddDependencyRequest{ProjectID: 1, DependentID: 2, PrerequisiteID: 1}, codes.AlreadyExists},
		{"missing edge", api.MethodGetDependency, api.DependencyRequest{DependencyID: 404}, codes.NotFound},
		{"no schedule", api.MethodGetSchedule, api.ProjectRequest{ProjectID: 2}, codes.NotFound},
		{"bad field type", api.MethodGetDependency, map[string]any{"dependency_id": "seven"}, codes.InvalidArgument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := invoke(ctx, conn, tc.method, tc.req, &map[string]any{})
			if got := status.Code(err); got != tc.want {
				t.Errorf("code = %v, want %v (%v)", got, tc.want, err)
			}
		})
	}
}

func TestGRPCHealthAndAuth(t *testing.T) {
	conn := startGRPC(t, newTestServer(t), "secret")
	ctx := context.Background()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v", resp.GetStatus())
	}

	var stats api.StatsResponse
	err = invoke(ctx, conn, api.MethodStats, api.ProjectRequest{ProjectID: 1}, &stats)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("stats without token: %v", err)
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer secret")
	if err := invoke(authed, conn, api.MethodStats, api.ProjectRequest{ProjectID: 1}, &stats); err != nil {
		t.Fatalf("stats with token: %v", err)
	}
	if len(stats.Stats) != len(model.DependencyTypes) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGRPCCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want codes.Code
	}{
		{model.ErrValidation, codes.InvalidArgument},
		{model.ErrNotFound, codes.NotFound},
		{model.ErrDuplicateEdge, codes.AlreadyExists},
		{&model.CycleError{Path: []int64{1, 2, 1}}, codes.FailedPrecondition},
		{model.ErrInconsistentGraph, codes.Internal},
		{model.ErrRecomputeTimeout, codes.DeadlineExceeded},
	} {
		if got := grpcCode(tc.err); got != tc.want {
			t.Errorf("grpcCode(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
