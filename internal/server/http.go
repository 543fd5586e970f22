package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/projects/{id}/dependencies", s.handleAddDependency)
	mux.HandleFunc("GET /v1/projects/{id}/dependencies", s.handleListDependencies)
	mux.HandleFunc("GET /v1/dependencies/{id}", s.handleGetDependency)
	mux.HandleFunc("DELETE /v1/dependencies/{id}", s.handleRemoveDependency)
	mux.HandleFunc("POST /v1/tasks/{id}/isolate", s.handleIsolateTask)
	mux.HandleFunc("POST /v1/tasks/{id}/restore", s.handleRestoreTask)
	mux.HandleFunc("POST /v1/projects/{id}/recompute", s.handleRecompute)
	mux.HandleFunc("GET /v1/projects/{id}/schedule", s.handleGetSchedule)
	mux.HandleFunc("GET /v1/projects/{id}/blocking", s.handleMostBlocking)
	mux.HandleFunc("GET /v1/projects/{id}/dependent", s.handleMostDependent)
	mux.HandleFunc("GET /v1/projects/{id}/external", s.handleExternal)
	mux.HandleFunc("GET /v1/projects/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /v1/projects/{id}/currently-blocking", s.handleCurrentlyBlocking)
	mux.HandleFunc("GET /v1/projects/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return RequestLogger(s.log, AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAddDependency handles POST /v1/projects/{id}/dependencies.
func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req api.AddDependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ProjectID = projectID
	if req.CreatedBy == "" {
		req.CreatedBy = r.Header.Get(api.ActorHeader)
	}
	dep, err := s.AddDependency(r.Context(), req)
	s.respond(w, r, http.StatusCreated, dep, err)
}

// handleListDependencies handles GET /v1/projects/{id}/dependencies.
// Filters come from the type, critical_only and include_inactive parameters.
func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := api.ListDependenciesRequest{ProjectID: projectID, Type: model.DependencyType(q.Get("type"))}
	var err error
	if req.CriticalOnly, err = queryBool(r, "critical_only"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IncludeInactive, err = queryBool(r, "include_inactive"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.ListDependencies(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

// handleGetDependency handles GET /v1/dependencies/{id}.
func (s *Server) handleGetDependency(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dep, err := s.GetDependency(r.Context(), api.DependencyRequest{DependencyID: id})
	s.respond(w, r, http.StatusOK, dep, err)
}

// handleRemoveDependency handles DELETE /v1/dependencies/{id}.
func (s *Server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dep, err := s.RemoveDependency(r.Context(), api.DependencyRequest{DependencyID: id, Actor: r.Header.Get(api.ActorHeader)})
	s.respond(w, r, http.StatusOK, dep, err)
}

// handleIsolateTask handles POST /v1/tasks/{id}/isolate.
func (s *Server) handleIsolateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := s.IsolateTask(r.Context(), api.TaskRequest{TaskID: id, Actor: r.Header.Get(api.ActorHeader)})
	s.respond(w, r, http.StatusOK, resp, err)
}

// handleRestoreTask handles POST /v1/tasks/{id}/restore.
func (s *Server) handleRestoreTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := s.RestoreTask(r.Context(), api.TaskRequest{TaskID: id, Actor: r.Header.Get(api.ActorHeader)})
	s.respond(w, r, http.StatusOK, resp, err)
}

// handleRecompute handles POST /v1/projects/{id}/recompute.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	projectCall(s, w, r, s.Recompute)
}

// handleGetSchedule handles GET /v1/projects/{id}/schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	projectCall(s, w, r, s.GetSchedule)
}

// handleMostBlocking handles GET /v1/projects/{id}/blocking?limit=N.
func (s *Server) handleMostBlocking(w http.ResponseWriter, r *http.Request) {
	rankCall(s, w, r, s.MostBlocking)
}

// handleMostDependent handles GET /v1/projects/{id}/dependent?limit=N.
func (s *Server) handleMostDependent(w http.ResponseWriter, r *http.Request) {
	rankCall(s, w, r, s.MostDependent)
}

// handleExternal handles GET /v1/projects/{id}/external?min_lag_hours=H.
func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	req := api.ExternalRequest{ProjectID: projectID}
	if v := r.URL.Query().Get("min_lag_hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_lag_hours must be a number")
			return
		}
		req.MinLagHours = &h
	}
	resp, err := s.ExternalConstraints(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

// handleStats handles GET /v1/projects/{id}/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	projectCall(s, w, r, s.Stats)
}

// handleCurrentlyBlocking handles GET /v1/projects/{id}/currently-blocking.
func (s *Server) handleCurrentlyBlocking(w http.ResponseWriter, r *http.Request) {
	projectCall(s, w, r, s.CurrentlyBlocking)
}

// handleSummary handles GET /v1/projects/{id}/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	projectCall(s, w, r, s.Summary)
}

// projectCall serves a route whose only input is the project in the path.
func projectCall[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(context.Context, api.ProjectRequest) (T, error)) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := fn(r.Context(), api.ProjectRequest{ProjectID: projectID})
	s.respond(w, r, http.StatusOK, resp, err)
}

// rankCall serves a ranking route, reading ?limit= (zero or absent means all).
func rankCall[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(context.Context, api.RankRequest) (T, error)) {
	projectID, ok := pathID(w, r)
	if !ok {
		return
	}
	req := api.RankRequest{ProjectID: projectID}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	resp, err := fn(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

// pathID parses the {id} path segment, writing a 400 if it is not a
// positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

// respond writes v on success or the mapped error otherwise.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

// httpStatus maps engine errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrCycleDetected), errors.Is(err, model.ErrDuplicateEdge):
		return http.StatusConflict
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRecomputeTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, api.NewErrorResponse(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	code := api.CodeValidation
	if status == http.StatusUnauthorized {
		code = api.CodeUnauthenticated
	}
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
