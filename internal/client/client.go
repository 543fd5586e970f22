// Package client provides a transport-agnostic interface for the taskdeps
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// Client is the interface the td CLI uses to talk to a taskdeps server.
// Server-side failures unwrap to the model sentinels, so callers can test
// them with errors.Is and read cycle paths with errors.As.
type Client interface {
	// Dependencies
	AddDependency(ctx context.Context, req api.AddDependencyRequest) (*model.Dependency, error)
	RemoveDependency(ctx context.Context, id int64, actor string) (*model.Dependency, error)
	GetDependency(ctx context.Context, id int64) (*model.Dependency, error)
	ListDependencies(ctx context.Context, req api.ListDependenciesRequest) ([]*model.Dependency, error)

	// Tasks
	IsolateTask(ctx context.Context, taskID int64, actor string) ([]int64, error)
	RestoreTask(ctx context.Context, taskID int64, actor string) (*model.Reactivation, error)

	// Schedule
	Recompute(ctx context.Context, projectID int64) (*model.ScheduleReport, error)
	GetSchedule(ctx context.Context, projectID int64) (*model.ScheduleReport, error)

	// Reports
	MostBlocking(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error)
	MostDependent(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error)
	ExternalConstraints(ctx context.Context, projectID int64, minLagHours *float64) ([]*model.Dependency, error)
	Stats(ctx context.Context, projectID int64) (*api.StatsResponse, error)
	CurrentlyBlocking(ctx context.Context, projectID int64) ([]*model.Dependency, error)
	Summary(ctx context.Context, projectID int64) (*model.Summary, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}
