// Package api defines the request and response shapes shared by the taskdeps
// server and its clients. HTTP bodies and gRPC google.protobuf.Struct
// messages both carry these types as JSON.
package api

import "github.com/alfredjeanlab/taskdeps/internal/model"

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "taskdeps.v1.DependencyService"

// ActorHeader names the caller recorded on HTTP mutations when the body
// does not carry one.
const ActorHeader = "X-Actor"

// gRPC method names.
const (
	MethodAddDependency       = "AddDependency"
	MethodRemoveDependency    = "RemoveDependency"
	MethodGetDependency       = "GetDependency"
	MethodListDependencies    = "ListDependencies"
	MethodIsolateTask         = "DeactivateAllForTask"
	MethodRestoreTask         = "ReactivateAllForTask"
	MethodRecompute           = "RecomputeCriticalPath"
	MethodGetSchedule         = "GetSchedule"
	MethodMostBlocking        = "MostBlockingTasks"
	MethodMostDependent       = "MostDependentTasks"
	MethodExternalConstraints = "ExternalConstraints"
	MethodStats               = "DependencyStatsByType"
	MethodCurrentlyBlocking   = "CurrentlyBlocking"
	MethodSummary             = "Summary"
)

// FullMethod returns the gRPC path of a method, e.g.
// "/taskdeps.v1.DependencyService/AddDependency".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// AddDependencyRequest links DependentID to PrerequisiteID. An empty Type
// means FINISH_TO_START.
type AddDependencyRequest struct {
	ProjectID      int64                `json:"project_id"`
	DependentID    int64                `json:"dependent_task_id"`
	PrerequisiteID int64                `json:"prerequisite_task_id"`
	Type           model.DependencyType `json:"type,omitempty"`
	LagHours       float64              `json:"lag_hours"`
	CreatedBy      string               `json:"created_by,omitempty"`
}

// DependencyRequest addresses one edge.
type DependencyRequest struct {
	DependencyID int64  `json:"dependency_id"`
	Actor        string `json:"actor,omitempty"`
}

// TaskRequest addresses every edge touching a task.
type TaskRequest struct {
	TaskID int64  `json:"task_id"`
	Actor  string `json:"actor,omitempty"`
}

// ProjectRequest addresses a project.
type ProjectRequest struct {
	ProjectID int64 `json:"project_id"`
}

// ListDependenciesRequest filters a project's edges. Inactive edges are
// left out unless IncludeInactive is set.
type ListDependenciesRequest struct {
	ProjectID       int64                `json:"project_id"`
	Type            model.DependencyType `json:"type,omitempty"`
	CriticalOnly    bool                 `json:"critical_only,omitempty"`
	IncludeInactive bool                 `json:"include_inactive,omitempty"`
}

// Filter converts the request to a store filter.
func (r ListDependenciesRequest) Filter() model.DependencyFilter {
	return model.DependencyFilter{
		Type:         r.Type,
		CriticalOnly: r.CriticalOnly,
		ActiveOnly:   !r.IncludeInactive,
	}
}

// RankRequest asks for the top Limit tasks; zero or less returns all.
type RankRequest struct {
	ProjectID int64 `json:"project_id"`
	Limit     int   `json:"limit,omitempty"`
}

// ExternalRequest lists edges whose lag exceeds MinLagHours. A nil threshold
// uses the server default.
type ExternalRequest struct {
	ProjectID   int64    `json:"project_id"`
	MinLagHours *float64 `json:"min_lag_hours,omitempty"`
}

// DependenciesResponse wraps a list of edges.
type DependenciesResponse struct {
	Dependencies []*model.Dependency `json:"dependencies"`
}

// IsolateResponse lists the edges a task isolation deactivated.
type IsolateResponse struct {
	TaskID      int64   `json:"task_id"`
	Deactivated []int64 `json:"deactivated"`
}

// RanksResponse wraps a degree ranking.
type RanksResponse struct {
	Tasks []model.TaskRank `json:"tasks"`
}

// StatsResponse carries per-type statistics and the project's average lag.
type StatsResponse struct {
	ProjectID       int64             `json:"project_id"`
	Stats           []model.TypeStats `json:"stats"`
	AverageLagHours float64           `json:"average_lag_hours"`
}
