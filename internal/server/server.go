// Package server exposes the dependency engine and its read side over HTTP
// and gRPC. Both transports call the same Server methods.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/engine"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/query"
)

// Server binds the write-side engine and the read-side query service.
type Server struct {
	engine *engine.Engine
	query  *query.Service
	log    *slog.Logger
}

// New returns a Server. A nil logger uses slog.Default().
func New(e *engine.Engine, q *query.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: e, query: q, log: log}
}

// AddDependency creates an edge.
func (s *Server) AddDependency(ctx context.Context, req api.AddDependencyRequest) (*model.Dependency, error) {
	return s.engine.AddDependency(ctx, engine.NewDependency{
		ProjectID:      req.ProjectID,
		DependentID:    req.DependentID,
		PrerequisiteID: req.PrerequisiteID,
		Type:           req.Type,
		LagHours:       req.LagHours,
		CreatedBy:      req.CreatedBy,
	})
}

// RemoveDependency soft-deactivates an edge.
func (s *Server) RemoveDependency(ctx context.Context, req api.DependencyRequest) (*model.Dependency, error) {
	return s.engine.RemoveDependency(ctx, req.DependencyID, req.Actor)
}

// GetDependency returns an edge by id.
func (s *Server) GetDependency(ctx context.Context, req api.DependencyRequest) (*model.Dependency, error) {
	return s.query.GetDependency(ctx, req.DependencyID)
}

// ListDependencies returns a project's edges matching the request filter.
func (s *Server) ListDependencies(ctx context.Context, req api.ListDependenciesRequest) (*api.DependenciesResponse, error) {
	if req.Type != "" && !req.Type.IsValid() {
		ve := &model.ValidationError{}
		ve.Add("type", "invalid value %q", req.Type)
		return nil, ve
	}
	deps, err := s.query.ListDependencies(ctx, req.ProjectID, req.Filter())
	if err != nil {
		return nil, err
	}
	return &api.DependenciesResponse{Dependencies: deps}, nil
}

// IsolateTask deactivates every active edge touching a task.
func (s *Server) IsolateTask(ctx context.Context, req api.TaskRequest) (*api.IsolateResponse, error) {
	ids, err := s.engine.DeactivateAllForTask(ctx, req.TaskID, req.Actor)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return &api.IsolateResponse{TaskID: req.TaskID, Deactivated: ids}, nil
}

// RestoreTask reactivates the edges a previous isolation deactivated.
func (s *Server) RestoreTask(ctx context.Context, req api.TaskRequest) (*model.Reactivation, error) {
	return s.engine.ReactivateAllForTask(ctx, req.TaskID, req.Actor)
}

// Recompute runs a full critical path recompute and returns the schedule.
func (s *Server) Recompute(ctx context.Context, req api.ProjectRequest) (*model.ScheduleReport, error) {
	res, err := s.engine.RecomputeCriticalPath(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return res.Report(), nil
}

// GetSchedule returns the last committed schedule of a project.
func (s *Server) GetSchedule(ctx context.Context, req api.ProjectRequest) (*model.ScheduleReport, error) {
	res, ok := s.query.Schedule(ctx, req.ProjectID)
	if !ok {
		return nil, fmt.Errorf("no schedule computed for project %d: %w", req.ProjectID, model.ErrNotFound)
	}
	return res.Report(), nil
}

// MostBlocking ranks tasks by how many active edges wait on them.
func (s *Server) MostBlocking(ctx context.Context, req api.RankRequest) (*api.RanksResponse, error) {
	ranks, err := s.query.MostBlockingTasks(ctx, req.ProjectID, req.Limit)
	if err != nil {
		return nil, err
	}
	return &api.RanksResponse{Tasks: ranks}, nil
}

// MostDependent ranks tasks by how many active prerequisites they have.
func (s *Server) MostDependent(ctx context.Context, req api.RankRequest) (*api.RanksResponse, error) {
	ranks, err := s.query.MostDependentTasks(ctx, req.ProjectID, req.Limit)
	if err != nil {
		return nil, err
	}
	return &api.RanksResponse{Tasks: ranks}, nil
}

// ExternalConstraints lists edges with lag above the threshold.
func (s *Server) ExternalConstraints(ctx context.Context, req api.ExternalRequest) (*api.DependenciesResponse, error) {
	threshold := s.query.ExternalLagHours()
	if req.MinLagHours != nil {
		threshold = *req.MinLagHours
	}
	deps, err := s.query.ExternalConstraints(ctx, req.ProjectID, threshold)
	if err != nil {
		return nil, err
	}
	return &api.DependenciesResponse{Dependencies: deps}, nil
}

// Stats returns per-type statistics and the average lag.
func (s *Server) Stats(ctx context.Context, req api.ProjectRequest) (*api.StatsResponse, error) {
	stats, err := s.query.DependencyStatsByType(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	avg, err := s.query.AverageLag(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return &api.StatsResponse{ProjectID: req.ProjectID, Stats: stats, AverageLagHours: avg}, nil
}

// CurrentlyBlocking lists active blocking edges whose prerequisite is not done.
func (s *Server) CurrentlyBlocking(ctx context.Context, req api.ProjectRequest) (*api.DependenciesResponse, error) {
	deps, err := s.query.CurrentlyBlocking(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return &api.DependenciesResponse{Dependencies: deps}, nil
}

// Summary bundles every report for a project.
func (s *Server) Summary(ctx context.Context, req api.ProjectRequest) (*model.Summary, error) {
	return s.query.Summary(ctx, req.ProjectID)
}
