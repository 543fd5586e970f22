// Package schedule runs the forward and backward passes over a project's
// dependency graph and derives earliest/latest dates and slack per task.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/graph"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// Options tunes propagation.
type Options struct {
	// AllowLeadInversion lets a negative lag place the dependent's constrained
	// point before the prerequisite has started. By default a lead only
	// shifts timing and never inverts the structural order.
	AllowLeadInversion bool
}

// Plan is a computed schedule together with the edge that governed each task
// in each pass. A task missing from Forward took its earliest start from the
// project origin; one missing from Backward took its latest finish from the horizon.
type Plan struct {
	Result   *model.ScheduleResult
	Forward  map[int64]int64
	Backward map[int64]int64
}

const unbounded = time.Duration(math.MaxInt64)

// Compute propagates the schedule for tasks under the active edges. Edges that
// reference tasks outside the list, or any cycle, yield ErrInconsistentGraph.
// A context deadline hit mid-pass yields ErrRecomputeTimeout.
func Compute(ctx context.Context, project *model.Project, tasks []*model.Task, edges []*model.Dependency, opts Options) (*Plan, error) {
	if err := checkBounds(project, tasks, edges); err != nil {
		return nil, err
	}
	g := graph.New(edges)

	ids := make([]int64, len(tasks))
	dur := make(map[int64]time.Duration, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		dur[t.ID] = t.Duration()
	}

	order, err := graph.TopoSort(ids, g)
	if err != nil {
		return nil, fmt.Errorf("project %d: %w", project.ID, err)
	}

	res := &model.ScheduleResult{
		ProjectID:  project.ID,
		ComputedAt: time.Now().UTC(),
		Origin:     project.Origin,
		Tasks:      make(map[int64]*model.TaskSchedule, len(order)),
		Edges:      make(map[int64]*model.EdgeSchedule, g.EdgeCount()),
		TopoOrder:  order,
	}
	plan := &Plan{
		Result:   res,
		Forward:  make(map[int64]int64),
		Backward: make(map[int64]int64),
	}
	clamp := !opts.AllowLeadInversion

	// Forward pass.
	for _, id := range order {
		if err := alive(ctx); err != nil {
			return nil, err
		}
		best, gov := -unbounded, int64(0)
		for _, e := range g.Prerequisites(id) {
			if b := earliestStart(e, res.Tasks[e.PrerequisiteID], dur[id], clamp); b > best {
				best, gov = b, e.ID
			}
		}
		es := time.Duration(0)
		if best >= 0 {
			es = best
			plan.Forward[id] = gov
		}
		res.Tasks[id] = &model.TaskSchedule{
			TaskID:         id,
			EarliestStart:  es,
			EarliestFinish: es + dur[id],
		}
		if f := es + dur[id]; f > res.Makespan {
			res.Makespan = f
		}
	}

	res.Horizon = res.Makespan
	if h := project.Horizon(); h > res.Horizon {
		res.Horizon = h
	}

	// Backward pass.
	for i := len(order) - 1; i >= 0; i-- {
		if err := alive(ctx); err != nil {
			return nil, err
		}
		id := order[i]
		best, gov := unbounded, int64(0)
		for _, e := range g.Dependents(id) {
			if b := latestFinish(e, res.Tasks[e.DependentID], dur[id], clamp); b < best {
				best, gov = b, e.ID
			}
		}
		lf := res.Horizon
		if best <= lf {
			lf = best
			plan.Backward[id] = gov
		}
		ts := res.Tasks[id]
		ts.LatestFinish = lf
		ts.LatestStart = lf - dur[id]
		ts.Slack = ts.LatestStart - ts.EarliestStart
		ts.Critical = ts.Slack == 0
	}

	for _, e := range g.Edges() {
		res.Edges[e.ID] = &model.EdgeSchedule{DependencyID: e.ID}
	}
	return plan, nil
}

// finishAnchored reports whether the edge constrains the dependent's finish.
func finishAnchored(t model.DependencyType) bool {
	return t == model.FinishToFinish || t == model.StartToFinish
}

// startAnchored reports whether the edge is measured from the prerequisite's start.
func startAnchored(t model.DependencyType) bool {
	return t == model.StartToStart || t == model.StartToFinish
}

// earliestStart returns the lower bound edge e places on its dependent's start.
func earliestStart(e *model.Dependency, pre *model.TaskSchedule, d time.Duration, clamp bool) time.Duration {
	anchor := pre.EarliestFinish
	if startAnchored(e.Type) {
		anchor = pre.EarliestStart
	}
	point := anchor + e.Lag()
	if clamp && point < pre.EarliestStart {
		point = pre.EarliestStart
	}
	if finishAnchored(e.Type) {
		return point - d
	}
	return point
}

// latestFinish returns the upper bound edge e places on its prerequisite's
// finish, given the dependent's late dates and the prerequisite duration d.
func latestFinish(e *model.Dependency, dep *model.TaskSchedule, d time.Duration, clamp bool) time.Duration {
	late := dep.LatestStart
	if finishAnchored(e.Type) {
		late = dep.LatestFinish
	}
	lf := late - e.Lag()
	if startAnchored(e.Type) {
		lf += d
	}
	if clamp {
		// The prerequisite may not start after the constrained point.
		if c := late + d; c < lf {
			lf = c
		}
	}
	return lf
}

func alive(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", model.ErrRecomputeTimeout, err)
	default:
		return fmt.Errorf("schedule propagation: %w", err)
	}
}

// checkBounds rejects stored hour values that would overflow the duration
// arithmetic of the passes.
func checkBounds(project *model.Project, tasks []*model.Task, edges []*model.Dependency) error {
	var ve model.ValidationError
	model.CheckHours(&ve, "horizon_hours", project.HorizonHours)
	for _, t := range tasks {
		model.CheckHours(&ve, fmt.Sprintf("tasks[%d].duration_hours", t.ID), t.DurationHours)
	}
	for _, d := range edges {
		model.CheckHours(&ve, fmt.Sprintf("dependencies[%d].lag_hours", d.ID), d.LagHours)
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
