package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/critpath"
	"github.com/alfredjeanlab/taskdeps/internal/events"
	"github.com/alfredjeanlab/taskdeps/internal/idgen"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/schedule"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// RecomputeCriticalPath runs a full schedule propagation for a project, writes
// the critical flags in one statement and caches the result. On failure the
// stored flags are left as they were.
func (e *Engine) RecomputeCriticalPath(ctx context.Context, projectID int64) (*model.ScheduleResult, error) {
	runID, err := idgen.RunID()
	if err != nil {
		runID = idgen.RunPrefix + "unknown"
	}
	log := e.log.With("project_id", projectID, "run_id", runID)

	unlock := e.locks.lock(projectID)
	defer unlock()

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var res *model.ScheduleResult
	err = e.store.RunInTransaction(tctx, func(tx store.Store) error {
		if err := tx.LockProject(tctx, projectID); err != nil {
			return fmt.Errorf("lock project %d: %w", projectID, err)
		}
		project, err := tx.GetProject(tctx, projectID)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(tctx, projectID)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		edges, err := tx.ListEdges(tctx, projectID, true)
		if err != nil {
			return fmt.Errorf("list edges: %w", err)
		}
		plan, err := schedule.Compute(tctx, project, tasks, edges, schedule.Options{
			AllowLeadInversion: e.opts.AllowLeadInversion,
		})
		if err != nil {
			return err
		}
		critical := critpath.Mark(plan, edges)
		if err := tctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", model.ErrRecomputeTimeout, err)
		}
		if err := tx.SetCriticalFlags(tctx, projectID, critical); err != nil {
			return fmt.Errorf("set critical flags: %w", err)
		}
		res = plan.Result
		res.CriticalChains = critpath.Chains(res, edges)
		return nil
	})
	if err != nil && !errors.Is(err, model.ErrRecomputeTimeout) && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %v", model.ErrRecomputeTimeout, err)
	}
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInconsistentGraph):
		e.alert(ctx, projectID, "recompute", err)
		return nil, err
	case errors.Is(err, model.ErrRecomputeTimeout):
		log.Warn("recompute timed out", "timeout", e.opts.Timeout, "elapsed", time.Since(start))
		return nil, err
	default:
		return nil, err
	}

	e.storeSchedule(res)
	log.Debug("critical path recomputed", "tasks", len(res.Tasks), "critical_edges", len(res.CriticalEdgeIDs),
		"makespan", res.Makespan, "elapsed", time.Since(start))
	e.recordAndPublish(ctx, events.TopicScheduleRecomputed, projectID, "system", events.ScheduleRecomputed{
		ProjectID:       projectID,
		MakespanHours:   model.ToHours(res.Makespan),
		HorizonHours:    model.ToHours(res.Horizon),
		CriticalEdgeIDs: res.CriticalEdgeIDs,
		CriticalTaskIDs: res.CriticalTasks(),
	})
	return res, nil
}
