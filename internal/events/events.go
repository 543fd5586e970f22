// Package events defines the dependency-graph event topics and the publisher
// and subscriber abstractions over the event bus.
package events

import (
	"context"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// Event topic constants
const (
	TopicDependencyAdded       = "taskdeps.dependency.added"
	TopicDependencyRemoved     = "taskdeps.dependency.removed"
	TopicDependencyDeactivated = "taskdeps.dependency.deactivated"
	TopicDependencyReactivated = "taskdeps.dependency.reactivated"
	TopicScheduleRecomputed    = "taskdeps.schedule.recomputed"
	TopicGraphInconsistent     = "taskdeps.graph.inconsistent"

	// TopicAll matches every topic above.
	TopicAll = "taskdeps.>"
)

// Topics lists every concrete topic.
var Topics = []string{
	TopicDependencyAdded,
	TopicDependencyRemoved,
	TopicDependencyDeactivated,
	TopicDependencyReactivated,
	TopicScheduleRecomputed,
	TopicGraphInconsistent,
}

// Event types

type DependencyAdded struct {
	Dependency *model.Dependency `json:"dependency"`
}

type DependencyRemoved struct {
	Dependency *model.Dependency `json:"dependency"`
}

// DependenciesDeactivated is emitted when a task is isolated from the graph.
type DependenciesDeactivated struct {
	ProjectID     int64   `json:"project_id"`
	TaskID        int64   `json:"task_id"`
	DependencyIDs []int64 `json:"dependency_ids"`
	Reason        string  `json:"reason"`
}

type DependenciesReactivated struct {
	ProjectID    int64               `json:"project_id"`
	Reactivation *model.Reactivation `json:"reactivation"`
}

type ScheduleRecomputed struct {
	ProjectID       int64   `json:"project_id"`
	MakespanHours   float64 `json:"makespan_hours"`
	HorizonHours    float64 `json:"horizon_hours"`
	CriticalEdgeIDs []int64 `json:"critical_edge_ids"`
	CriticalTaskIDs []int64 `json:"critical_task_ids"`
}

type GraphInconsistent struct {
	ProjectID int64  `json:"project_id"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
