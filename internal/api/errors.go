package api

import (
	"errors"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation        = "validation"
	CodeSelfDependency    = "self_dependency"
	CodeNotFound          = "not_found"
	CodeDuplicateEdge     = "duplicate_edge"
	CodeCycleDetected     = "cycle_detected"
	CodeInconsistentGraph = "inconsistent_graph"
	CodeRecomputeTimeout  = "recompute_timeout"
	CodeUnauthenticated   = "unauthenticated"
	CodeInternal          = "internal"
)

// ErrorResponse is the error body of every failed call.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code,omitempty"`
	CyclePath []int64            `json:"cycle_path,omitempty"`
	Fields    []model.FieldError `json:"fields,omitempty"`
}

var sentinels = map[string]error{
	CodeValidation:        model.ErrValidation,
	CodeSelfDependency:    model.ErrSelfDependency,
	CodeNotFound:          model.ErrNotFound,
	CodeDuplicateEdge:     model.ErrDuplicateEdge,
	CodeCycleDetected:     model.ErrCycleDetected,
	CodeInconsistentGraph: model.ErrInconsistentGraph,
	CodeRecomputeTimeout:  model.ErrRecomputeTimeout,
}

// ErrorCode classifies err into one of the Code constants.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrCycleDetected):
		return CodeCycleDetected
	case errors.Is(err, model.ErrSelfDependency):
		return CodeSelfDependency
	case errors.Is(err, model.ErrValidation):
		return CodeValidation
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, model.ErrDuplicateEdge):
		return CodeDuplicateEdge
	case errors.Is(err, model.ErrRecomputeTimeout):
		return CodeRecomputeTimeout
	case errors.Is(err, model.ErrInconsistentGraph):
		return CodeInconsistentGraph
	default:
		return CodeInternal
	}
}

// NewErrorResponse describes err for the wire. Internal failures are not
// echoed back; their message is replaced with a generic one.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error(), Code: ErrorCode(err)}
	if resp.Code == CodeInternal {
		resp.Error = "internal error"
	}
	var ce *model.CycleError
	if errors.As(err, &ce) {
		resp.CyclePath = ce.Path
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Errors
	}
	return resp
}

// RemoteError is a failure reported by a taskdeps server. It matches the
// model sentinel for its code, and whatever that sentinel wraps, under
// errors.Is.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && errors.Is(s, target)
}

// Err converts a decoded error body back into an error. Cycle failures
// become *model.CycleError so callers can read the path.
func (r ErrorResponse) Err() error {
	if r.Code == CodeCycleDetected && len(r.CyclePath) > 0 {
		return &model.CycleError{Path: r.CyclePath}
	}
	if r.Code == CodeValidation && len(r.Fields) > 0 {
		return &model.ValidationError{Errors: r.Fields}
	}
	return &RemoteError{Code: r.Code, Message: r.Error}
}
