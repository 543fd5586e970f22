package model

import (
	"math"
	"time"
)

// DependencyType categorizes how a prerequisite constrains its dependent.
type DependencyType string

const (
	FinishToStart  DependencyType = "FINISH_TO_START"
	StartToStart   DependencyType = "START_TO_START"
	FinishToFinish DependencyType = "FINISH_TO_FINISH"
	StartToFinish  DependencyType = "START_TO_FINISH"
	Blocking       DependencyType = "BLOCKING"
)

// DependencyTypes lists every known type in display order.
var DependencyTypes = []DependencyType{FinishToStart, StartToStart, FinishToFinish, StartToFinish, Blocking}

// IsValid reports whether d is one of the known dependency types.
func (d DependencyType) IsValid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish, Blocking:
		return true
	}
	return false
}

// IsBlocking reports whether the dependent cannot begin until the
// prerequisite is complete.
func (d DependencyType) IsBlocking() bool {
	return d == FinishToStart || d == Blocking
}

// Deactivation reasons recorded on inactive edges.
const (
	ReasonRemoved      = "removed"
	ReasonTaskIsolated = "task_isolated"
)

// Dependency is a directed edge: DependentID depends on PrerequisiteID.
type Dependency struct {
	ID               int64          `json:"id"`
	ProjectID        int64          `json:"project_id"`
	DependentID      int64          `json:"dependent_task_id"`
	PrerequisiteID   int64          `json:"prerequisite_task_id"`
	Type             DependencyType `json:"type"`
	LagHours         float64        `json:"lag_hours"`
	Active           bool           `json:"active"`
	CriticalPath     bool           `json:"critical_path"`
	DeactivateReason string         `json:"deactivate_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Lag returns the edge lag as a duration.
func (d *Dependency) Lag() time.Duration {
	return Hours(d.LagHours)
}

// Touches reports whether taskID is either endpoint of the edge.
func (d *Dependency) Touches(taskID int64) bool {
	return d.DependentID == taskID || d.PrerequisiteID == taskID
}

// MaxHours bounds lags, durations and horizons, in hours. Four maximal
// values still sum within a time.Duration.
const MaxHours = float64(math.MaxInt64 / int64(time.Hour) / 4)

// Hours converts a fractional hour count to a duration, rounded to the second.
// Values beyond ±MaxHours are clamped.
func Hours(h float64) time.Duration {
	if math.IsNaN(h) {
		return 0
	}
	h = math.Max(-MaxHours, math.Min(MaxHours, h))
	secs := math.Round(h * 3600)
	return time.Duration(secs) * time.Second
}

// CheckHours adds a field error to ve when h is not finite or exceeds
// ±MaxHours.
func CheckHours(ve *ValidationError, field string, h float64) {
	switch {
	case math.IsNaN(h) || math.IsInf(h, 0):
		ve.Add(field, "must be a finite number")
	case math.Abs(h) > MaxHours:
		ve.Add(field, "must be within ±%.0f hours", MaxHours)
	}
}

// ToHours converts a duration back to fractional hours.
func ToHours(d time.Duration) float64 {
	return d.Hours()
}
