// Package store defines persistence for the dependency graph and the
// read-only view of tasks and projects owned by the surrounding application.
package store

import (
	"context"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// TaskSource is the read-only task/project collaborator.
// Lookups of unknown ids return model.ErrNotFound.
type TaskSource interface {
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, projectID int64) ([]*model.Task, error)
}

// Store defines the persistence interface for dependency edges.
type Store interface {
	TaskSource

	// Dependencies
	// AddDependency assigns dep.ID. An existing active pair yields ErrDuplicateEdge.
	AddDependency(ctx context.Context, dep *model.Dependency) error
	GetDependency(ctx context.Context, id int64) (*model.Dependency, error)
	// ListEdges and FindEdgesForTask return edges ordered by id.
	ListEdges(ctx context.Context, projectID int64, activeOnly bool) ([]*model.Dependency, error)
	FindEdgesForTask(ctx context.Context, taskID int64) ([]*model.Dependency, error)
	DeactivateEdges(ctx context.Context, ids []int64, reason string) (int, error)
	ReactivateEdges(ctx context.Context, ids []int64) (int, error)

	// SetCriticalFlags clears every critical flag in the project and marks the
	// given edges, as a single atomic write.
	SetCriticalFlags(ctx context.Context, projectID int64, criticalIDs []int64) error

	// LockProject serializes mutations of one project for the rest of the
	// enclosing transaction. Outside a transaction it is a no-op.
	LockProject(ctx context.Context, projectID int64) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, projectID int64) ([]*model.Event, error)

	// ListProjects returns every project id that owns at least one edge.
	ListProjects(ctx context.Context) ([]int64, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
