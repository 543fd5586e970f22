package model

import "time"

// Project scopes every graph operation.
type Project struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	Origin time.Time `json:"origin"`
	// HorizonHours is the planned project length measured from Origin.
	// Zero means the horizon is the computed makespan.
	HorizonHours float64 `json:"horizon_hours,omitempty"`
}

// Horizon returns the planned project length as a duration.
func (p *Project) Horizon() time.Duration {
	return Hours(p.HorizonHours)
}

// Task is the slice of a task the dependency engine needs.
type Task struct {
	ID            int64      `json:"id"`
	ProjectID     int64      `json:"project_id"`
	Title         string     `json:"title,omitempty"`
	DurationHours float64    `json:"duration_hours"`
	PlannedStart  *time.Time `json:"planned_start,omitempty"`
	PlannedEnd    *time.Time `json:"planned_end,omitempty"`
	Completed     bool       `json:"completed"`
}

// Duration returns the task duration, never negative.
func (t *Task) Duration() time.Duration {
	if t.DurationHours <= 0 {
		return 0
	}
	return Hours(t.DurationHours)
}
