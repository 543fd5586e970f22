package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// do sends a request through h and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(api.ActorHeader, "tester")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, rec.Body.String())
	}
	return v
}

func addBody(dependent, prerequisite int64, typ model.DependencyType, lag float64) map[string]any {
	return map[string]any{
		"dependent_task_id":    dependent,
		"prerequisite_task_id": prerequisite,
		"type":                 typ,
		"lag_hours":            lag,
	}
}

func TestHTTPScenario(t *testing.T) {
	h := newTestServer(t).NewHTTPHandler("")

	rec := do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(2, 1, "", 0))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add A->B: %d %s", rec.Code, rec.Body.String())
	}
	ab := decode[model.Dependency](t, rec)
	if ab.CreatedBy != "tester" || ab.Type != model.FinishToStart || !ab.Active {
		t.Errorf("created edge = %+v", ab)
	}
	rec = do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(3, 2, model.FinishToStart, 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add B->C: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/projects/1/recompute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute: %d %s", rec.Code, rec.Body.String())
	}
	rep := decode[model.ScheduleReport](t, rec)
	type dates struct{ ES, EF, Slack float64 }
	got := map[int64]dates{}
	for _, td := range rep.Tasks {
		got[td.TaskID] = dates{td.EarliestStartHours, td.EarliestFinishHours, td.SlackHours}
	}
	want := map[int64]dates{1: {0, 2, 0}, 2: {2, 5, 0}, 3: {6, 7, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
	if rep.MakespanHours != 7 || !cmp.Equal(rep.CriticalTaskIDs, []int64{1, 2, 3}) {
		t.Errorf("report = %+v", rep)
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/schedule", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: %d", rec.Code)
	}

	// Closing the loop must fail with the path and leave the graph unchanged.
	rec = do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(1, 3, model.FinishToStart, 0))
	if rec.Code != http.StatusConflict {
		t.Fatalf("cycle: %d %s", rec.Code, rec.Body.String())
	}
	errResp := decode[api.ErrorResponse](t, rec)
	if errResp.Code != api.CodeCycleDetected || !cmp.Equal(errResp.CyclePath, []int64{1, 3, 2, 1}) {
		t.Errorf("cycle error = %+v", errResp)
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/dependencies?critical_only=true", nil)
	list := decode[api.DependenciesResponse](t, rec)
	if len(list.Dependencies) != 2 {
		t.Errorf("critical edges = %d, want 2", len(list.Dependencies))
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/blocking?limit=1", nil)
	ranks := decode[api.RanksResponse](t, rec)
	if diff := cmp.Diff([]model.TaskRank{{TaskID: 1, Count: 1}}, ranks.Tasks); diff != "" {
		t.Errorf("blocking mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/currently-blocking", nil)
	blocking := decode[api.DependenciesResponse](t, rec)
	if len(blocking.Dependencies) != 2 {
		t.Errorf("currently blocking = %d, want 2", len(blocking.Dependencies))
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/summary", nil)
	sum := decode[model.Summary](t, rec)
	if sum.ActiveCount != 2 || sum.CriticalCount != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestHTTPRemoveAndIsolate(t *testing.T) {
	h := newTestServer(t).NewHTTPHandler("")
	ab := decode[model.Dependency](t, do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(2, 1, model.StartToStart, 0)))
	do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(3, 2, model.FinishToStart, 0))

	rec := do(t, h, http.MethodDelete, "/v1/dependencies/"+strconv.FormatInt(ab.ID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body.String())
	}
	if removed := decode[model.Dependency](t, rec); removed.Active || removed.DeactivateReason != model.ReasonRemoved {
		t.Errorf("removed edge = %+v", removed)
	}

	active := decode[api.DependenciesResponse](t, do(t, h, http.MethodGet, "/v1/projects/1/dependencies", nil))
	all := decode[api.DependenciesResponse](t, do(t, h, http.MethodGet, "/v1/projects/1/dependencies?include_inactive=true", nil))
	if len(active.Dependencies) != 1 || len(all.Dependencies) != 2 {
		t.Errorf("active %d, all %d; want 1 and 2", len(active.Dependencies), len(all.Dependencies))
	}

	iso := decode[api.IsolateResponse](t, do(t, h, http.MethodPost, "/v1/tasks/3/isolate", nil))
	if len(iso.Deactivated) != 1 {
		t.Errorf("isolate = %+v", iso)
	}
	react := decode[model.Reactivation](t, do(t, h, http.MethodPost, "/v1/tasks/3/restore", nil))
	if len(react.Reactivated) != 1 || len(react.Skipped) != 0 {
		t.Errorf("restore = %+v", react)
	}

	rec = do(t, h, http.MethodGet, "/v1/dependencies/"+strconv.FormatInt(ab.ID, 10), nil)
	if got := decode[model.Dependency](t, rec); got.Active {
		t.Errorf("removed edge came back: %+v", got)
	}
}

func TestHTTPErrors(t *testing.T) {
	h := newTestServer(t).NewHTTPHandler("")
	do(t, h, http.MethodPost, "/v1/projects/1/dependencies", addBody(2, 1, "", 0))

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"self dependency", http.MethodPost, "/v1/projects/1/dependencies", addBody(2, 2, "", 0), http.StatusBadRequest, api.CodeSelfDependency},
		{"duplicate", http.MethodPost, "/v1/projects/1/dependencies", addBody(2, 1, "", 0), http.StatusConflict, api.CodeDuplicateEdge},
		{"unknown task", http.MethodPost, "/v1/projects/1/dependencies", addBody(99, 1, "", 0), http.StatusBadRequest, api.CodeValidation},
		{"bad type", http.MethodPost, "/v1/projects/1/dependencies", addBody(3, 1, "EVENTUALLY", 0), http.StatusBadRequest, api.CodeValidation},
		{"invalid json", http.MethodPost, "/v1/projects/1/dependencies", "{", http.StatusBadRequest, api.CodeValidation},
		{"bad id", http.MethodGet, "/v1/dependencies/abc", nil, http.StatusBadRequest, api.CodeValidation},
		{"missing dependency", http.MethodGet, "/v1/dependencies/999", nil, http.StatusNotFound, api.CodeNotFound},
		{"remove missing", http.MethodDelete, "/v1/dependencies/999", nil, http.StatusNotFound, api.CodeNotFound},
		{"no schedule yet", http.MethodGet, "/v1/projects/2/schedule", nil, http.StatusNotFound, api.CodeNotFound},
		{"recompute unknown project", http.MethodPost, "/v1/projects/77/recompute", nil, http.StatusNotFound, api.CodeNotFound},
		{"isolate unknown task", http.MethodPost, "/v1/tasks/99/isolate", nil, http.StatusBadRequest, api.CodeValidation},
		{"bad limit", http.MethodGet, "/v1/projects/1/blocking?limit=x", nil, http.StatusBadRequest, api.CodeValidation},
		{"bad threshold", http.MethodGet, "/v1/projects/1/external?min_lag_hours=x", nil, http.StatusBadRequest, api.CodeValidation},
		{"bad bool", http.MethodGet, "/v1/projects/1/dependencies?critical_only=maybe", nil, http.StatusBadRequest, api.CodeValidation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tc.status, rec.Body.String())
			}
			if resp := decode[api.ErrorResponse](t, rec); resp.Code != tc.code || resp.Error == "" {
				t.Errorf("error body = %+v, want code %q", resp, tc.code)
			}
		})
	}
}

func TestHTTPUnknownProjectReadsAreEmpty(t *testing.T) {
	h := newTestServer(t).NewHTTPHandler("")
	for _, path := range []string{
		"/v1/projects/42/dependencies",
		"/v1/projects/42/external",
		"/v1/projects/42/currently-blocking",
	} {
		rec := do(t, h, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
		if resp := decode[api.DependenciesResponse](t, rec); resp.Dependencies == nil || len(resp.Dependencies) != 0 {
			t.Errorf("%s = %+v, want empty list", path, resp)
		}
	}
}

func TestHTTPHealthAndAuth(t *testing.T) {
	h := newTestServer(t).NewHTTPHandler("secret")

	rec := do(t, h, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	rec = do(t, h, http.MethodGet, "/v1/projects/1/stats", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stats without token: %d", rec.Code)
	}
	if resp := decode[api.ErrorResponse](t, rec); resp.Code != api.CodeUnauthenticated {
		t.Errorf("auth error = %+v", resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/1/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats with token: %d", rec.Code)
	}
	if stats := decode[api.StatsResponse](t, rec); len(stats.Stats) != len(model.DependencyTypes) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHTTPStatus(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{model.ErrSelfDependency, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrDuplicateEdge, http.StatusConflict},
		{&model.CycleError{Path: []int64{1, 2, 1}}, http.StatusConflict},
		{model.ErrInconsistentGraph, http.StatusInternalServerError},
		{model.ErrRecomputeTimeout, http.StatusGatewayTimeout},
	} {
		if got := httpStatus(tc.err); got != tc.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
