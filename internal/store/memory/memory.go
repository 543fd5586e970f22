// Package memory implements store.Store in process memory. It backs
// development mode (TASKDEPS_STORE=memory) and the engine tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// Store is a mutex-guarded in-memory store. Transactions on different
// projects run concurrently; LockProject serializes those on the same one.
type Store struct {
	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex

	mu       sync.RWMutex
	projects map[int64]*model.Project
	tasks    map[int64]*model.Task
	deps     map[int64]*model.Dependency
	events   []*model.Event
	nextDep  int64
	nextEvt  int64
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		projects: make(map[int64]*model.Project),
		tasks:    make(map[int64]*model.Task),
		deps:     make(map[int64]*model.Dependency),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// PutProject inserts or replaces a project.
func (s *Store) PutProject(p *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.projects[p.ID] = &clone
}

// PutTask inserts or replaces a task.
func (s *Store) PutTask(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tasks[t.ID] = &clone
}

// SetCompleted flips a task's completion flag.
func (s *Store) SetCompleted(taskID int64, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		t.Completed = completed
	}
}

func (s *Store) GetProject(_ context.Context, id int64) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, model.ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (s *Store) GetTask(_ context.Context, id int64) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	clone := *t
	return &clone, nil
}

func (s *Store) ListTasks(_ context.Context, projectID int64) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddDependency(_ context.Context, dep *model.Dependency) error {
	return s.addDependency(dep, nil)
}

// touchFunc is told about each edge before it is modified; prev is nil for
// an edge being created. It runs with s.mu held.
type touchFunc func(id int64, prev *model.Dependency)

func (s *Store) addDependency(dep *model.Dependency, touch touchFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deps {
		if d.Active && d.DependentID == dep.DependentID && d.PrerequisiteID == dep.PrerequisiteID {
			return fmt.Errorf("%d -> %d: %w", dep.DependentID, dep.PrerequisiteID, model.ErrDuplicateEdge)
		}
	}
	s.nextDep++
	dep.ID = s.nextDep
	now := time.Now().UTC()
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = now
	}
	dep.UpdatedAt = now
	if touch != nil {
		touch(dep.ID, nil)
	}
	clone := *dep
	s.deps[dep.ID] = &clone
	return nil
}

func (s *Store) GetDependency(_ context.Context, id int64) (*model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deps[id]
	if !ok {
		return nil, fmt.Errorf("dependency %d: %w", id, model.ErrNotFound)
	}
	clone := *d
	return &clone, nil
}

func (s *Store) ListEdges(_ context.Context, projectID int64, activeOnly bool) ([]*model.Dependency, error) {
	return s.collect(func(d *model.Dependency) bool {
		return d.ProjectID == projectID && (!activeOnly || d.Active)
	}), nil
}

func (s *Store) FindEdgesForTask(_ context.Context, taskID int64) ([]*model.Dependency, error) {
	return s.collect(func(d *model.Dependency) bool { return d.Touches(taskID) }), nil
}

func (s *Store) collect(keep func(*model.Dependency) bool) []*model.Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Dependency
	for _, d := range s.deps {
		if keep(d) {
			clone := *d
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) DeactivateEdges(_ context.Context, ids []int64, reason string) (int, error) {
	return s.deactivateEdges(ids, reason, nil)
}

func (s *Store) deactivateEdges(ids []int64, reason string, touch touchFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, id := range ids {
		d, ok := s.deps[id]
		if !ok || !d.Active {
			continue
		}
		if touch != nil {
			touch(id, d)
		}
		d.Active = false
		d.CriticalPath = false
		d.DeactivateReason = reason
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) ReactivateEdges(_ context.Context, ids []int64) (int, error) {
	return s.reactivateEdges(ids, nil)
}

func (s *Store) reactivateEdges(ids []int64, touch touchFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, id := range ids {
		d, ok := s.deps[id]
		if !ok || d.Active {
			continue
		}
		for _, other := range s.deps {
			if other.Active && other.DependentID == d.DependentID && other.PrerequisiteID == d.PrerequisiteID {
				return n, fmt.Errorf("reactivate %d: %w", id, model.ErrDuplicateEdge)
			}
		}
		if touch != nil {
			touch(id, d)
		}
		d.Active = true
		d.DeactivateReason = ""
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) SetCriticalFlags(_ context.Context, projectID int64, criticalIDs []int64) error {
	return s.setCriticalFlags(projectID, criticalIDs, nil)
}

func (s *Store) setCriticalFlags(projectID int64, criticalIDs []int64, touch touchFunc) error {
	critical := make(map[int64]struct{}, len(criticalIDs))
	for _, id := range criticalIDs {
		critical[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deps {
		if d.ProjectID != projectID {
			continue
		}
		_, ok := critical[d.ID]
		flag := ok && d.Active
		if flag == d.CriticalPath {
			continue
		}
		if touch != nil {
			touch(d.ID, d)
		}
		d.CriticalPath = flag
	}
	return nil
}

// LockProject is a no-op outside a transaction, where there is nothing to
// hold the lock for.
func (s *Store) LockProject(_ context.Context, _ int64) error {
	return nil
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEvent(e)
	return nil
}

// appendEvent assigns the next id and stores a copy of e. s.mu must be held.
func (s *Store) appendEvent(e *model.Event) {
	s.nextEvt++
	e.ID = s.nextEvt
	e.CreatedAt = time.Now().UTC()
	clone := *e
	s.events = append(s.events, &clone)
}

func (s *Store) GetEvents(_ context.Context, projectID int64) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.ProjectID == projectID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *Store) ListProjects(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var ids []int64
	for _, d := range s.deps {
		if _, ok := seen[d.ProjectID]; !ok {
			seen[d.ProjectID] = struct{}{}
			ids = append(ids, d.ProjectID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RunInTransaction runs fn against a transaction view of the store. On
// failure only the edges fn touched are restored and its events are
// discarded; writes made concurrently by other transactions survive. Reads
// inside fn see other transactions' uncommitted edges. Edge ids consumed by
// a rolled-back transaction are not reused.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	t := &tx{Store: s, undo: make(map[int64]*model.Dependency)}
	defer t.unlock()

	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	t.commit()
	return nil
}

// tx records an undo log of the edges it modifies and buffers its events
// until commit.
type tx struct {
	*Store
	undo   map[int64]*model.Dependency // nil value: edge created by this tx
	events []*model.Event
	held   map[int64]*sync.Mutex
}

var _ store.Store = (*tx)(nil)

func (t *tx) touch(id int64, prev *model.Dependency) {
	if _, ok := t.undo[id]; ok {
		return
	}
	if prev == nil {
		t.undo[id] = nil
		return
	}
	clone := *prev
	t.undo[id] = &clone
}

func (t *tx) AddDependency(_ context.Context, dep *model.Dependency) error {
	return t.Store.addDependency(dep, t.touch)
}

func (t *tx) DeactivateEdges(_ context.Context, ids []int64, reason string) (int, error) {
	return t.Store.deactivateEdges(ids, reason, t.touch)
}

func (t *tx) ReactivateEdges(_ context.Context, ids []int64) (int, error) {
	return t.Store.reactivateEdges(ids, t.touch)
}

func (t *tx) SetCriticalFlags(_ context.Context, projectID int64, criticalIDs []int64) error {
	return t.Store.setCriticalFlags(projectID, criticalIDs, t.touch)
}

// LockProject takes the project's lock until the transaction ends, like a
// transaction-scoped advisory lock.
func (t *tx) LockProject(_ context.Context, projectID int64) error {
	if _, ok := t.held[projectID]; ok {
		return nil
	}
	m := t.Store.projectLock(projectID)
	m.Lock()
	if t.held == nil {
		t.held = make(map[int64]*sync.Mutex)
	}
	t.held[projectID] = m
	return nil
}

func (t *tx) RecordEvent(_ context.Context, e *model.Event) error {
	t.events = append(t.events, e)
	return nil
}

// RunInTransaction nests into the enclosing transaction.
func (t *tx) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *tx) commit() {
	t.Store.mu.Lock()
	defer t.Store.mu.Unlock()
	for _, e := range t.events {
		t.Store.appendEvent(e)
	}
}

func (t *tx) rollback() {
	t.Store.mu.Lock()
	defer t.Store.mu.Unlock()
	for id, prev := range t.undo {
		if prev == nil {
			delete(t.Store.deps, id)
			continue
		}
		t.Store.deps[id] = prev
	}
}

func (t *tx) unlock() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

func (s *Store) projectLock(projectID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[projectID] = m
	}
	return m
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
