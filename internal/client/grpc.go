package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// GRPCClient implements Client using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	token  string
	health healthpb.HealthClient
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty, it is sent as a Bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return NewGRPCClientFromConn(conn, token), nil
}

// NewGRPCClientFromConn wraps an existing connection. Close closes conn.
func NewGRPCClientFromConn(conn *grpc.ClientConn, token string) *GRPCClient {
	return &GRPCClient{conn: conn, token: token, health: healthpb.NewHealthClient(conn)}
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// RPCError is a gRPC failure carrying the server's error description. It
// unwraps to the error the response describes.
type RPCError struct {
	Status   *status.Status
	Response api.ErrorResponse
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Status.Code(), e.Response.Error)
}

func (e *RPCError) Unwrap() error { return e.Response.Err() }

// GRPCStatus lets status.FromError and status.Code see the original status.
func (e *RPCError) GRPCStatus() *status.Status { return e.Status }

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		var resp api.ErrorResponse
		if api.FromStruct(s, &resp) == nil && resp.Code != "" {
			return &RPCError{Status: st, Response: resp}
		}
	}
	return err
}

// call sends req to method and decodes the reply into resp.
func (c *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return fromStatus(err)
	}
	return api.FromStruct(out, resp)
}

// --- Dependencies ---

func (c *GRPCClient) AddDependency(ctx context.Context, req api.AddDependencyRequest) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.call(ctx, api.MethodAddDependency, req, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *GRPCClient) RemoveDependency(ctx context.Context, id int64, actor string) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.call(ctx, api.MethodRemoveDependency, api.DependencyRequest{DependencyID: id, Actor: actor}, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *GRPCClient) GetDependency(ctx context.Context, id int64) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.call(ctx, api.MethodGetDependency, api.DependencyRequest{DependencyID: id}, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *GRPCClient) ListDependencies(ctx context.Context, req api.ListDependenciesRequest) ([]*model.Dependency, error) {
	var resp api.DependenciesResponse
	if err := c.call(ctx, api.MethodListDependencies, req, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

// --- Tasks ---

func (c *GRPCClient) IsolateTask(ctx context.Context, taskID int64, actor string) ([]int64, error) {
	var resp api.IsolateResponse
	if err := c.call(ctx, api.MethodIsolateTask, api.TaskRequest{TaskID: taskID, Actor: actor}, &resp); err != nil {
		return nil, err
	}
	return resp.Deactivated, nil
}

func (c *GRPCClient) RestoreTask(ctx context.Context, taskID int64, actor string) (*model.Reactivation, error) {
	var resp model.Reactivation
	if err := c.call(ctx, api.MethodRestoreTask, api.TaskRequest{TaskID: taskID, Actor: actor}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Schedule ---

func (c *GRPCClient) Recompute(ctx context.Context, projectID int64) (*model.ScheduleReport, error) {
	var rep model.ScheduleReport
	if err := c.call(ctx, api.MethodRecompute, api.ProjectRequest{ProjectID: projectID}, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *GRPCClient) GetSchedule(ctx context.Context, projectID int64) (*model.ScheduleReport, error) {
	var rep model.ScheduleReport
	if err := c.call(ctx, api.MethodGetSchedule, api.ProjectRequest{ProjectID: projectID}, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// --- Reports ---

func (c *GRPCClient) MostBlocking(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	var resp api.RanksResponse
	if err := c.call(ctx, api.MethodMostBlocking, api.RankRequest{ProjectID: projectID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *GRPCClient) MostDependent(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	var resp api.RanksResponse
	if err := c.call(ctx, api.MethodMostDependent, api.RankRequest{ProjectID: projectID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *GRPCClient) ExternalConstraints(ctx context.Context, projectID int64, minLagHours *float64) ([]*model.Dependency, error) {
	var resp api.DependenciesResponse
	if err := c.call(ctx, api.MethodExternalConstraints, api.ExternalRequest{ProjectID: projectID, MinLagHours: minLagHours}, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

func (c *GRPCClient) Stats(ctx context.Context, projectID int64) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.call(ctx, api.MethodStats, api.ProjectRequest{ProjectID: projectID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) CurrentlyBlocking(ctx context.Context, projectID int64) ([]*model.Dependency, error) {
	var resp api.DependenciesResponse
	if err := c.call(ctx, api.MethodCurrentlyBlocking, api.ProjectRequest{ProjectID: projectID}, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

func (c *GRPCClient) Summary(ctx context.Context, projectID int64) (*model.Summary, error) {
	var sum model.Summary
	if err := c.call(ctx, api.MethodSummary, api.ProjectRequest{ProjectID: projectID}, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// --- Health ---

// Health queries the standard gRPC health service for the dependency service.
func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
