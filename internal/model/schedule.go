package model

import "time"

// TaskSchedule holds computed dates for one task, as offsets from the project origin.
type TaskSchedule struct {
	TaskID         int64         `json:"task_id"`
	EarliestStart  time.Duration `json:"earliest_start"`
	EarliestFinish time.Duration `json:"earliest_finish"`
	LatestStart    time.Duration `json:"latest_start"`
	LatestFinish   time.Duration `json:"latest_finish"`
	Slack          time.Duration `json:"slack"`
	Critical       bool          `json:"critical"`
}

// EdgeSchedule records whether an edge lies on the critical path.
type EdgeSchedule struct {
	DependencyID int64 `json:"dependency_id"`
	Critical     bool  `json:"critical"`
}

// ScheduleResult is the derived output of a full recompute. It is never persisted;
// only the per-edge critical flags are written back as a cache.
type ScheduleResult struct {
	ProjectID       int64                   `json:"project_id"`
	ComputedAt      time.Time               `json:"computed_at"`
	Origin          time.Time               `json:"origin"`
	Makespan        time.Duration           `json:"makespan"`
	Horizon         time.Duration           `json:"horizon"`
	Tasks           map[int64]*TaskSchedule `json:"tasks"`
	Edges           map[int64]*EdgeSchedule `json:"edges"`
	CriticalEdgeIDs []int64                 `json:"critical_edge_ids"`
	TopoOrder       []int64                 `json:"topo_order"`
	CriticalChains  [][]int64               `json:"critical_chains,omitempty"`
}

// CriticalTasks returns the zero-slack task ids in topological order.
func (r *ScheduleResult) CriticalTasks() []int64 {
	var ids []int64
	for _, id := range r.TopoOrder {
		if ts, ok := r.Tasks[id]; ok && ts.Critical {
			ids = append(ids, id)
		}
	}
	return ids
}

// StartAt converts an offset to wall-clock time.
func (r *ScheduleResult) StartAt(offset time.Duration) time.Time {
	return r.Origin.Add(offset)
}

// TaskDates is a TaskSchedule expressed in hours from the project origin,
// with the earliest dates also given as wall-clock times.
type TaskDates struct {
	TaskID              int64     `json:"task_id"`
	EarliestStartHours  float64   `json:"earliest_start_hours"`
	EarliestFinishHours float64   `json:"earliest_finish_hours"`
	LatestStartHours    float64   `json:"latest_start_hours"`
	LatestFinishHours   float64   `json:"latest_finish_hours"`
	SlackHours          float64   `json:"slack_hours"`
	Critical            bool      `json:"critical"`
	EarliestStartAt     time.Time `json:"earliest_start_at"`
	EarliestFinishAt    time.Time `json:"earliest_finish_at"`
}

// ScheduleReport is the wire form of a ScheduleResult.
type ScheduleReport struct {
	ProjectID       int64       `json:"project_id"`
	ComputedAt      time.Time   `json:"computed_at"`
	MakespanHours   float64     `json:"makespan_hours"`
	HorizonHours    float64     `json:"horizon_hours"`
	Tasks           []TaskDates `json:"tasks"`
	CriticalEdgeIDs []int64     `json:"critical_edge_ids"`
	CriticalTaskIDs []int64     `json:"critical_task_ids"`
	CriticalChains  [][]int64   `json:"critical_chains,omitempty"`
}

// Report converts the result to hours, listing tasks in topological order.
func (r *ScheduleResult) Report() *ScheduleReport {
	rep := &ScheduleReport{
		ProjectID:       r.ProjectID,
		ComputedAt:      r.ComputedAt,
		MakespanHours:   ToHours(r.Makespan),
		HorizonHours:    ToHours(r.Horizon),
		Tasks:           make([]TaskDates, 0, len(r.TopoOrder)),
		CriticalEdgeIDs: append([]int64{}, r.CriticalEdgeIDs...),
		CriticalTaskIDs: append([]int64{}, r.CriticalTasks()...),
		CriticalChains:  r.CriticalChains,
	}
	for _, id := range r.TopoOrder {
		ts, ok := r.Tasks[id]
		if !ok {
			continue
		}
		rep.Tasks = append(rep.Tasks, TaskDates{
			TaskID:              id,
			EarliestStartHours:  ToHours(ts.EarliestStart),
			EarliestFinishHours: ToHours(ts.EarliestFinish),
			LatestStartHours:    ToHours(ts.LatestStart),
			LatestFinishHours:   ToHours(ts.LatestFinish),
			SlackHours:          ToHours(ts.Slack),
			Critical:            ts.Critical,
			EarliestStartAt:     r.StartAt(ts.EarliestStart),
			EarliestFinishAt:    r.StartAt(ts.EarliestFinish),
		})
	}
	return rep
}
