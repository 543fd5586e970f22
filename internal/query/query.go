// Package query is the read side of the dependency graph. It composes store
// reads with the critpath rankings and never takes the engine's write locks.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/taskdeps/internal/critpath"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// ScheduleSource returns the last committed schedule of a project.
type ScheduleSource interface {
	Schedule(projectID int64) (*model.ScheduleResult, bool)
}

// Options configures a Service.
type Options struct {
	// ExternalLagHours is the default threshold for ExternalConstraints.
	ExternalLagHours float64
	Logger           *slog.Logger
}

// Service answers read-only questions about a project's dependency graph.
// Unknown projects yield empty results rather than errors.
type Service struct {
	store     store.Store
	schedules ScheduleSource
	opts      Options
	log       *slog.Logger
}

// New returns a Service over s. schedules may be nil, in which case Schedule
// always reports nothing.
func New(s store.Store, schedules ScheduleSource, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{store: s, schedules: schedules, opts: opts, log: opts.Logger}
}

// ExternalLagHours returns the default external-constraint threshold.
func (q *Service) ExternalLagHours() float64 {
	return q.opts.ExternalLagHours
}

// edges loads every edge of a project. ok is false for an unknown project.
func (q *Service) edges(ctx context.Context, projectID int64) (edges []*model.Dependency, ok bool, err error) {
	if !q.known(ctx, projectID) {
		return nil, false, nil
	}
	edges, err = q.store.ListEdges(ctx, projectID, false)
	if err != nil {
		return nil, false, fmt.Errorf("list edges for project %d: %w", projectID, err)
	}
	return edges, true, nil
}

func (q *Service) known(ctx context.Context, projectID int64) bool {
	if projectID <= 0 {
		q.log.Debug("query with invalid project id", "project_id", projectID)
		return false
	}
	if _, err := q.store.GetProject(ctx, projectID); err != nil {
		q.log.Debug("query for unknown project", "project_id", projectID, "error", err)
		return false
	}
	return true
}

// GetDependency returns one edge by id, active or not.
func (q *Service) GetDependency(ctx context.Context, id int64) (*model.Dependency, error) {
	if id <= 0 {
		return nil, fmt.Errorf("dependency %d: %w", id, model.ErrNotFound)
	}
	return q.store.GetDependency(ctx, id)
}

// ListDependencies returns the project's edges matching f, ordered by id.
func (q *Service) ListDependencies(ctx context.Context, projectID int64, f model.DependencyFilter) ([]*model.Dependency, error) {
	all, ok, err := q.edges(ctx, projectID)
	out := []*model.Dependency{}
	if err != nil || !ok {
		return out, err
	}
	for _, d := range all {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// MostBlockingTasks ranks tasks by active out-degree as prerequisite.
func (q *Service) MostBlockingTasks(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	all, _, err := q.edges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return critpath.MostBlocking(all, limit), nil
}

// MostDependentTasks ranks tasks by active in-degree as dependent.
func (q *Service) MostDependentTasks(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	all, _, err := q.edges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return critpath.MostDependent(all, limit), nil
}

// ExternalConstraints returns active edges whose lag exceeds minLagHours.
func (q *Service) ExternalConstraints(ctx context.Context, projectID int64, minLagHours float64) ([]*model.Dependency, error) {
	all, _, err := q.edges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return critpath.External(all, minLagHours), nil
}

// DependencyStatsByType aggregates the project's edges per type, in
// model.DependencyTypes order. Average lag covers active edges only.
func (q *Service) DependencyStatsByType(ctx context.Context, projectID int64) ([]model.TypeStats, error) {
	all, _, err := q.edges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return statsByType(all), nil
}

func statsByType(edges []*model.Dependency) []model.TypeStats {
	index := make(map[model.DependencyType]int, len(model.DependencyTypes))
	out := make([]model.TypeStats, len(model.DependencyTypes))
	for i, t := range model.DependencyTypes {
		out[i].Type = t
		index[t] = i
	}
	lagSum := make([]float64, len(out))
	for _, d := range edges {
		i, ok := index[d.Type]
		if !ok {
			continue
		}
		out[i].Count++
		if d.Active {
			out[i].ActiveCount++
			lagSum[i] += d.LagHours
			if d.CriticalPath {
				out[i].CriticalCount++
			}
		}
	}
	for i := range out {
		if out[i].ActiveCount > 0 {
			out[i].AverageLagHours = lagSum[i] / float64(out[i].ActiveCount)
		}
	}
	return out
}

// AverageLag returns the mean lag in hours over active edges, or 0.
func (q *Service) AverageLag(ctx context.Context, projectID int64) (float64, error) {
	all, _, err := q.edges(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return averageLag(all), nil
}

func averageLag(edges []*model.Dependency) float64 {
	var sum float64
	n := 0
	for _, d := range edges {
		if d.Active {
			sum += d.LagHours
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CurrentlyBlocking returns active structurally blocking edges whose
// prerequisite task is not yet complete.
func (q *Service) CurrentlyBlocking(ctx context.Context, projectID int64) ([]*model.Dependency, error) {
	all, ok, err := q.edges(ctx, projectID)
	if err != nil || !ok {
		return []*model.Dependency{}, err
	}
	tasks, err := q.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for project %d: %w", projectID, err)
	}
	return blocking(all, tasks), nil
}

func blocking(edges []*model.Dependency, tasks []*model.Task) []*model.Dependency {
	done := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		done[t.ID] = t.Completed
	}
	out := []*model.Dependency{}
	for _, d := range edges {
		if d.Active && d.Type.IsBlocking() && !done[d.PrerequisiteID] {
			out = append(out, d)
		}
	}
	return out
}

// Schedule returns the last committed schedule, if a recompute has run.
func (q *Service) Schedule(_ context.Context, projectID int64) (*model.ScheduleResult, bool) {
	if q.schedules == nil {
		return nil, false
	}
	return q.schedules.Schedule(projectID)
}

// Summary bundles every report for a project. The edge and task reads run
// concurrently.
func (q *Service) Summary(ctx context.Context, projectID int64) (*model.Summary, error) {
	sum := &model.Summary{
		ProjectID:           projectID,
		Stats:               statsByType(nil),
		MostBlocking:        []model.TaskRank{},
		MostDependent:       []model.TaskRank{},
		ExternalConstraints: []*model.Dependency{},
		CurrentlyBlocking:   []*model.Dependency{},
	}
	if !q.known(ctx, projectID) {
		return sum, nil
	}

	var (
		edges []*model.Dependency
		tasks []*model.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		edges, err = q.store.ListEdges(gctx, projectID, false)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = q.store.ListTasks(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return sum, nil
		}
		return nil, fmt.Errorf("summary for project %d: %w", projectID, err)
	}

	for _, d := range edges {
		if d.Active {
			sum.ActiveCount++
		}
	}
	sum.CriticalCount = critpath.CriticalCount(edges)
	sum.AverageLagHours = averageLag(edges)
	sum.Stats = statsByType(edges)
	sum.MostBlocking = critpath.MostBlocking(edges, 0)
	sum.MostDependent = critpath.MostDependent(edges, 0)
	sum.ExternalConstraints = critpath.External(edges, q.opts.ExternalLagHours)
	sum.CurrentlyBlocking = blocking(edges, tasks)
	return sum, nil
}
