// Package engine owns every write to the dependency graph: edge mutations,
// cascade isolation and critical-path recomputation. Writes for one project
// are serialized; different projects proceed concurrently.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/events"
	"github.com/alfredjeanlab/taskdeps/internal/graph"
	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// Default settings applied when Options leaves a field zero.
const (
	DefaultTimeout = 5 * time.Second
)

// Options configures an Engine.
type Options struct {
	// Debounce coalesces recomputes triggered by structural edits. Zero runs
	// the recompute inline after each mutation.
	Debounce time.Duration
	// Timeout bounds a single recompute.
	Timeout time.Duration
	// MaxTraversal caps a cycle check; see graph.Guard.
	MaxTraversal int
	// AllowLeadInversion is passed through to the schedule propagator.
	AllowLeadInversion bool
	Logger             *slog.Logger
}

// Engine applies mutations and recomputes schedules.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	log       *slog.Logger
	opts      Options
	guard     graph.Guard

	locks    projectLocks
	debounce *debouncer

	cacheMu sync.RWMutex
	cache   map[int64]*model.ScheduleResult
}

// New returns an Engine over s. A nil publisher disables event publishing.
func New(s store.Store, p events.Publisher, opts Options) *Engine {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	e := &Engine{
		store:     s,
		publisher: p,
		log:       opts.Logger,
		opts:      opts,
		guard:     graph.Guard{MaxSteps: opts.MaxTraversal},
		locks:     projectLocks{locks: make(map[int64]*sync.Mutex)},
		cache:     make(map[int64]*model.ScheduleResult),
	}
	if opts.Debounce > 0 {
		e.debounce = newDebouncer(opts.Debounce, e.recomputeDebounced)
	}
	return e
}

// Close cancels pending debounced recomputes and waits for running ones.
func (e *Engine) Close() error {
	if e.debounce != nil {
		e.debounce.Close()
	}
	return nil
}

// Schedule returns the last committed schedule for a project, if any.
func (e *Engine) Schedule(projectID int64) (*model.ScheduleResult, bool) {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	res, ok := e.cache[projectID]
	return res, ok
}

func (e *Engine) storeSchedule(res *model.ScheduleResult) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[res.ProjectID] = res
}

// structuralChange schedules a recompute after an edge set changed.
func (e *Engine) structuralChange(ctx context.Context, projectID int64) {
	if e.debounce != nil {
		e.debounce.Trigger(projectID)
		return
	}
	if _, err := e.RecomputeCriticalPath(ctx, projectID); err != nil {
		e.log.Warn("inline recompute failed", "project_id", projectID, "error", err)
	}
}

func (e *Engine) recomputeDebounced(projectID int64) {
	if _, err := e.RecomputeCriticalPath(context.Background(), projectID); err != nil {
		e.log.Warn("debounced recompute failed", "project_id", projectID, "error", err)
	}
}

// record persists an audit event through tx. Failures are logged, not returned,
// so a bus or audit hiccup never rejects a valid mutation.
func (e *Engine) record(ctx context.Context, tx store.Store, topic string, projectID int64, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.log.Warn("failed to marshal event", "topic", topic, "project_id", projectID, "error", err)
		return
	}
	if err := tx.RecordEvent(ctx, &model.Event{
		Topic:     topic,
		ProjectID: projectID,
		Actor:     actor,
		Payload:   payload,
	}); err != nil {
		e.log.Warn("failed to record event", "topic", topic, "project_id", projectID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, topic string, projectID int64, event any) {
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.log.Warn("failed to publish event", "topic", topic, "project_id", projectID, "error", err)
	}
}

// recordAndPublish persists an event outside any transaction and publishes it.
func (e *Engine) recordAndPublish(ctx context.Context, topic string, projectID int64, actor string, event any) {
	e.record(ctx, e.store, topic, projectID, actor, event)
	e.publish(ctx, topic, projectID, event)
}

// alert reports corrupted graph data. Cached flags are left as they were.
func (e *Engine) alert(ctx context.Context, projectID int64, op string, err error) {
	e.log.Error("inconsistent dependency graph",
		"alert", "critical", "project_id", projectID, "operation", op, "error", err)
	e.recordAndPublish(ctx, events.TopicGraphInconsistent, projectID, "system", events.GraphInconsistent{
		ProjectID: projectID,
		Operation: op,
		Error:     err.Error(),
	})
}

// projectLocks hands out one mutex per project.
type projectLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *projectLocks) lock(projectID int64) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
