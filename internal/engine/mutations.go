package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/events"
	"github.com/alfredjeanlab/taskdeps/internal/graph"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// Reasons an isolated edge was left inactive by ReactivateAllForTask.
const (
	SkipDuplicate = "duplicate_edge"
	SkipCycle     = "would_close_cycle"
)

// NewDependency is the input to AddDependency. An empty Type means FINISH_TO_START.
type NewDependency struct {
	ProjectID      int64
	DependentID    int64
	PrerequisiteID int64
	Type           model.DependencyType
	LagHours       float64
	CreatedBy      string
}

// AddDependency validates and stores a new edge. It fails with a validation
// error, ErrDuplicateEdge or a *model.CycleError, and nothing is persisted
// in that case.
func (e *Engine) AddDependency(ctx context.Context, in NewDependency) (*model.Dependency, error) {
	if in.Type == "" {
		in.Type = model.FinishToStart
	}
	dep := &model.Dependency{
		ProjectID:      in.ProjectID,
		DependentID:    in.DependentID,
		PrerequisiteID: in.PrerequisiteID,
		Type:           in.Type,
		LagHours:       in.LagHours,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      in.CreatedBy,
	}
	if err := model.ValidateNewDependency(dep); err != nil {
		return nil, err
	}
	var ve model.ValidationError
	model.CheckHours(&ve, "lag_hours", in.LagHours)
	if ve.HasErrors() {
		return nil, &ve
	}

	unlock := e.locks.lock(dep.ProjectID)
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockProject(ctx, dep.ProjectID); err != nil {
			return fmt.Errorf("lock project %d: %w", dep.ProjectID, err)
		}
		if err := checkEndpoints(ctx, tx, dep); err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx, dep.ProjectID, true)
		if err != nil {
			return fmt.Errorf("list edges: %w", err)
		}
		if err := e.guard.Check(graph.New(edges), dep.DependentID, dep.PrerequisiteID); err != nil {
			return err
		}
		if err := tx.AddDependency(ctx, dep); err != nil {
			return err
		}
		e.record(ctx, tx, events.TopicDependencyAdded, dep.ProjectID, dep.CreatedBy, events.DependencyAdded{Dependency: dep})
		return nil
	})
	unlock()
	if err != nil {
		if errors.Is(err, model.ErrInconsistentGraph) {
			e.alert(ctx, dep.ProjectID, "add_dependency", err)
		}
		return nil, err
	}

	e.log.Info("dependency added", "project_id", dep.ProjectID, "dependency_id", dep.ID,
		"dependent", dep.DependentID, "prerequisite", dep.PrerequisiteID, "type", dep.Type)
	e.publish(ctx, events.TopicDependencyAdded, dep.ProjectID, events.DependencyAdded{Dependency: dep})
	e.structuralChange(ctx, dep.ProjectID)
	return dep, nil
}

// checkEndpoints verifies the project and both tasks exist and agree.
func checkEndpoints(ctx context.Context, tx store.TaskSource, dep *model.Dependency) error {
	var ve model.ValidationError
	if _, err := tx.GetProject(ctx, dep.ProjectID); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("get project %d: %w", dep.ProjectID, err)
		}
		ve.Add("project_id", "project %d does not exist", dep.ProjectID)
	}
	for _, f := range []struct {
		field string
		id    int64
	}{
		{"dependent_task_id", dep.DependentID},
		{"prerequisite_task_id", dep.PrerequisiteID},
	} {
		t, err := tx.GetTask(ctx, f.id)
		switch {
		case errors.Is(err, model.ErrNotFound):
			ve.Add(f.field, "task %d does not exist", f.id)
		case err != nil:
			return fmt.Errorf("get task %d: %w", f.id, err)
		case t.ProjectID != dep.ProjectID:
			ve.Add(f.field, "task %d belongs to project %d", f.id, t.ProjectID)
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// RemoveDependency soft-deactivates an edge. Removing an inactive edge is a no-op.
func (e *Engine) RemoveDependency(ctx context.Context, id int64, actor string) (*model.Dependency, error) {
	dep, err := e.store.GetDependency(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	unlock := e.locks.lock(dep.ProjectID)
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockProject(ctx, dep.ProjectID); err != nil {
			return fmt.Errorf("lock project %d: %w", dep.ProjectID, err)
		}
		n, err := tx.DeactivateEdges(ctx, []int64{id}, model.ReasonRemoved)
		if err != nil {
			return fmt.Errorf("deactivate dependency %d: %w", id, err)
		}
		if n == 0 {
			return nil
		}
		changed = true
		if dep, err = tx.GetDependency(ctx, id); err != nil {
			return err
		}
		e.record(ctx, tx, events.TopicDependencyRemoved, dep.ProjectID, actor, events.DependencyRemoved{Dependency: dep})
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}
	if !changed {
		return dep, nil
	}

	e.log.Info("dependency removed", "project_id", dep.ProjectID, "dependency_id", id)
	e.publish(ctx, events.TopicDependencyRemoved, dep.ProjectID, events.DependencyRemoved{Dependency: dep})
	e.structuralChange(ctx, dep.ProjectID)
	return dep, nil
}

// DeactivateAllForTask isolates a task by deactivating every active edge that
// touches it, and returns the affected edge ids.
func (e *Engine) DeactivateAllForTask(ctx context.Context, taskID int64, actor string) ([]int64, error) {
	task, err := lookupTask(ctx, e.store, taskID)
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	unlock := e.locks.lock(task.ProjectID)
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockProject(ctx, task.ProjectID); err != nil {
			return fmt.Errorf("lock project %d: %w", task.ProjectID, err)
		}
		edges, err := tx.FindEdgesForTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("find edges for task %d: %w", taskID, err)
		}
		for _, d := range edges {
			if d.Active {
				ids = append(ids, d.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.DeactivateEdges(ctx, ids, model.ReasonTaskIsolated); err != nil {
			return fmt.Errorf("deactivate edges for task %d: %w", taskID, err)
		}
		e.record(ctx, tx, events.TopicDependencyDeactivated, task.ProjectID, actor, deactivated(task, ids))
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	e.log.Info("task isolated", "project_id", task.ProjectID, "task_id", taskID, "edges", len(ids))
	e.publish(ctx, events.TopicDependencyDeactivated, task.ProjectID, deactivated(task, ids))
	e.structuralChange(ctx, task.ProjectID)
	return ids, nil
}

func deactivated(task *model.Task, ids []int64) events.DependenciesDeactivated {
	return events.DependenciesDeactivated{
		ProjectID:     task.ProjectID,
		TaskID:        task.ID,
		DependencyIDs: ids,
		Reason:        model.ReasonTaskIsolated,
	}
}

// ReactivateAllForTask restores the edges DeactivateAllForTask removed from a
// task. Edges that would now duplicate an active pair or close a cycle stay
// inactive and are reported in Skipped.
func (e *Engine) ReactivateAllForTask(ctx context.Context, taskID int64, actor string) (*model.Reactivation, error) {
	task, err := lookupTask(ctx, e.store, taskID)
	if err != nil {
		return nil, err
	}

	out := &model.Reactivation{TaskID: taskID, Reactivated: []int64{}}
	unlock := e.locks.lock(task.ProjectID)
	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockProject(ctx, task.ProjectID); err != nil {
			return fmt.Errorf("lock project %d: %w", task.ProjectID, err)
		}
		touching, err := tx.FindEdgesForTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("find edges for task %d: %w", taskID, err)
		}
		active, err := tx.ListEdges(ctx, task.ProjectID, true)
		if err != nil {
			return fmt.Errorf("list edges: %w", err)
		}
		g := graph.New(active)

		for _, d := range touching {
			if d.Active || d.DeactivateReason != model.ReasonTaskIsolated {
				continue
			}
			err := e.guard.Check(g, d.DependentID, d.PrerequisiteID)
			switch {
			case err == nil:
				restored := *d
				restored.Active = true
				if err := g.Add(&restored); err != nil {
					return err
				}
				out.Reactivated = append(out.Reactivated, d.ID)
			case errors.Is(err, model.ErrDuplicateEdge):
				out.Skipped = append(out.Skipped, model.SkippedEdge{DependencyID: d.ID, Reason: SkipDuplicate})
			case errors.Is(err, model.ErrCycleDetected):
				out.Skipped = append(out.Skipped, model.SkippedEdge{DependencyID: d.ID, Reason: SkipCycle})
			default:
				return err
			}
		}
		if len(out.Reactivated) == 0 {
			return nil
		}
		if _, err := tx.ReactivateEdges(ctx, out.Reactivated); err != nil {
			return fmt.Errorf("reactivate edges for task %d: %w", taskID, err)
		}
		e.record(ctx, tx, events.TopicDependencyReactivated, task.ProjectID, actor, events.DependenciesReactivated{
			ProjectID:    task.ProjectID,
			Reactivation: out,
		})
		return nil
	})
	unlock()
	if err != nil {
		if errors.Is(err, model.ErrInconsistentGraph) {
			e.alert(ctx, task.ProjectID, "reactivate_task", err)
		}
		return nil, err
	}
	if len(out.Skipped) > 0 {
		e.log.Warn("isolated edges left inactive", "task_id", taskID, "skipped", len(out.Skipped))
	}
	if len(out.Reactivated) == 0 {
		return out, nil
	}

	e.log.Info("task restored", "project_id", task.ProjectID, "task_id", taskID, "edges", len(out.Reactivated))
	e.publish(ctx, events.TopicDependencyReactivated, task.ProjectID, events.DependenciesReactivated{
		ProjectID:    task.ProjectID,
		Reactivation: out,
	})
	e.structuralChange(ctx, task.ProjectID)
	return out, nil
}

func lookupTask(ctx context.Context, src store.TaskSource, taskID int64) (*model.Task, error) {
	task, err := src.GetTask(ctx, taskID)
	if errors.Is(err, model.ErrNotFound) {
		ve := &model.ValidationError{}
		ve.Add("task_id", "task %d does not exist", taskID)
		return nil, ve
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return task, nil
}
