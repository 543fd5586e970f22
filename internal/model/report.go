package model

// TaskRank is a task with a degree count, used by blocking/dependent rankings.
type TaskRank struct {
	TaskID int64 `json:"task_id"`
	Count  int   `json:"count"`
}

// TypeStats aggregates the edges of one dependency type.
type TypeStats struct {
	Type            DependencyType `json:"type"`
	Count           int            `json:"count"`
	ActiveCount     int            `json:"active_count"`
	CriticalCount   int            `json:"critical_count"`
	AverageLagHours float64        `json:"average_lag_hours"`
}

// Reactivation reports the outcome of restoring a task's isolated edges.
type Reactivation struct {
	TaskID      int64         `json:"task_id"`
	Reactivated []int64       `json:"reactivated"`
	Skipped     []SkippedEdge `json:"skipped,omitempty"`
}

// SkippedEdge is an edge left inactive because restoring it would break an invariant.
type SkippedEdge struct {
	DependencyID int64  `json:"dependency_id"`
	Reason       string `json:"reason"`
}

// Summary bundles the read-side reports for one project.
type Summary struct {
	ProjectID           int64         `json:"project_id"`
	ActiveCount         int           `json:"active_count"`
	CriticalCount       int           `json:"critical_count"`
	AverageLagHours     float64       `json:"average_lag_hours"`
	Stats               []TypeStats   `json:"stats"`
	MostBlocking        []TaskRank    `json:"most_blocking"`
	MostDependent       []TaskRank    `json:"most_dependent"`
	ExternalConstraints []*Dependency `json:"external_constraints"`
	CurrentlyBlocking   []*Dependency `json:"currently_blocking"`
}
