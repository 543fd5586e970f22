package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/taskdeps/internal/api"
	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// HTTPClient implements Client using the taskdeps HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func projectPath(projectID int64, rest string) string {
	return "/v1/projects/" + strconv.FormatInt(projectID, 10) + rest
}

// --- Dependencies ---

func (c *HTTPClient) AddDependency(ctx context.Context, req api.AddDependencyRequest) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.doJSON(ctx, http.MethodPost, projectPath(req.ProjectID, "/dependencies"), req.CreatedBy, req, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *HTTPClient) RemoveDependency(ctx context.Context, id int64, actor string) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/dependencies/"+strconv.FormatInt(id, 10), actor, nil, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *HTTPClient) GetDependency(ctx context.Context, id int64) (*model.Dependency, error) {
	var dep model.Dependency
	if err := c.doJSON(ctx, http.MethodGet, "/v1/dependencies/"+strconv.FormatInt(id, 10), "", nil, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func (c *HTTPClient) ListDependencies(ctx context.Context, req api.ListDependenciesRequest) ([]*model.Dependency, error) {
	q := url.Values{}
	if req.Type != "" {
		q.Set("type", string(req.Type))
	}
	if req.CriticalOnly {
		q.Set("critical_only", "true")
	}
	if req.IncludeInactive {
		q.Set("include_inactive", "true")
	}
	path := projectPath(req.ProjectID, "/dependencies")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.DependenciesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

// --- Tasks ---

func (c *HTTPClient) IsolateTask(ctx context.Context, taskID int64, actor string) ([]int64, error) {
	var resp api.IsolateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tasks/"+strconv.FormatInt(taskID, 10)+"/isolate", actor, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Deactivated, nil
}

func (c *HTTPClient) RestoreTask(ctx context.Context, taskID int64, actor string) (*model.Reactivation, error) {
	var resp model.Reactivation
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tasks/"+strconv.FormatInt(taskID, 10)+"/restore", actor, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Schedule ---

func (c *HTTPClient) Recompute(ctx context.Context, projectID int64) (*model.ScheduleReport, error) {
	var rep model.ScheduleReport
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID, "/recompute"), "", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *HTTPClient) GetSchedule(ctx context.Context, projectID int64) (*model.ScheduleReport, error) {
	var rep model.ScheduleReport
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID, "/schedule"), "", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// --- Reports ---

func (c *HTTPClient) MostBlocking(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	return c.ranks(ctx, projectPath(projectID, "/blocking"), limit)
}

func (c *HTTPClient) MostDependent(ctx context.Context, projectID int64, limit int) ([]model.TaskRank, error) {
	return c.ranks(ctx, projectPath(projectID, "/dependent"), limit)
}

func (c *HTTPClient) ranks(ctx context.Context, path string, limit int) ([]model.TaskRank, error) {
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.RanksResponse
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *HTTPClient) ExternalConstraints(ctx context.Context, projectID int64, minLagHours *float64) ([]*model.Dependency, error) {
	path := projectPath(projectID, "/external")
	if minLagHours != nil {
		path += "?min_lag_hours=" + strconv.FormatFloat(*minLagHours, 'f', -1, 64)
	}
	var resp api.DependenciesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

func (c *HTTPClient) Stats(ctx context.Context, projectID int64) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID, "/stats"), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CurrentlyBlocking(ctx context.Context, projectID int64) ([]*model.Dependency, error) {
	var resp api.DependenciesResponse
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID, "/currently-blocking"), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

func (c *HTTPClient) Summary(ctx context.Context, projectID int64) (*model.Summary, error) {
	var sum model.Summary
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID, "/summary"), "", nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", "", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server. It unwraps to the
// error the response describes.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Response.Error)
}

func (e *APIError) Unwrap() error { return e.Response.Err() }

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// A non-empty actor is sent in the X-Actor header.
func (c *HTTPClient) doJSON(ctx context.Context, method, path, actor string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(api.ActorHeader, actor)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp = api.ErrorResponse{Error: strings.TrimSpace(string(respBody)), Code: api.CodeInternal}
		}
		return &APIError{StatusCode: resp.StatusCode, Response: errResp}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
