package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for dependency graph operations.
var (
	// ErrValidation marks rejected input: unknown tasks, bad types, cross-project edges.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a dependency, task or project does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSelfDependency is returned when a task is linked to itself.
	ErrSelfDependency = fmt.Errorf("%w: task cannot depend on itself", ErrValidation)

	// ErrDuplicateEdge is returned when an identical active pair already exists.
	ErrDuplicateEdge = errors.New("duplicate dependency")

	// ErrCycleDetected is returned when a new edge would close a cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrInconsistentGraph signals corrupted graph data found during traversal
	// or propagation. It should be unreachable while the cycle guard holds.
	ErrInconsistentGraph = errors.New("inconsistent dependency graph")

	// ErrRecomputeTimeout is returned when a recompute exceeds its wall-clock budget.
	ErrRecomputeTimeout = errors.New("critical path recompute timed out")
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// CycleError reports the task path a rejected edge would have closed.
// Path starts and ends with the dependent task.
type CycleError struct {
	Path []int64
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

// Is lets errors.Is match ErrCycleDetected.
func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// ValidateNewDependency checks the shape of an edge before it is stored.
func ValidateNewDependency(d *Dependency) error {
	var ve ValidationError
	if d.ProjectID <= 0 {
		ve.Add("project_id", "is required")
	}
	if d.DependentID <= 0 {
		ve.Add("dependent_task_id", "is required")
	}
	if d.PrerequisiteID <= 0 {
		ve.Add("prerequisite_task_id", "is required")
	}
	if !d.Type.IsValid() {
		ve.Add("type", "invalid value %q", d.Type)
	}
	if ve.HasErrors() {
		return &ve
	}
	if d.DependentID == d.PrerequisiteID {
		return ErrSelfDependency
	}
	return nil
}
