package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

func newDep(project, dependent, prereq int64) *model.Dependency {
	return &model.Dependency{
		ProjectID:      project,
		DependentID:    dependent,
		PrerequisiteID: prereq,
		Type:           model.FinishToStart,
		Active:         true,
	}
}

func TestAddDependency_AssignsIncreasingIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := newDep(1, 2, 1), newDep(1, 3, 2)
	if err := s.AddDependency(ctx, a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.AddDependency(ctx, b); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d", a.ID, b.ID)
	}
}

func TestAddDependency_DuplicateActivePair(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.AddDependency(ctx, newDep(1, 2, 1)); err != nil {
		t.Fatal(err)
	}
	err := s.AddDependency(ctx, newDep(1, 2, 1))
	if !errors.Is(err, model.ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	s := New()
	ctx := context.Background()
	d := newDep(1, 2, 1)
	_ = s.AddDependency(ctx, d)

	n, err := s.DeactivateEdges(ctx, []int64{d.ID, 99}, model.ReasonTaskIsolated)
	if err != nil || n != 1 {
		t.Fatalf("deactivate: n=%d err=%v", n, err)
	}
	got, _ := s.GetDependency(ctx, d.ID)
	if got.Active || got.DeactivateReason != model.ReasonTaskIsolated {
		t.Fatalf("got %+v", got)
	}

	// A fresh edge for the same pair may be added while the old one is inactive.
	_ = s.AddDependency(ctx, newDep(1, 2, 1))
	if _, err := s.ReactivateEdges(ctx, []int64{d.ID}); !errors.Is(err, model.ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge on reactivate, got %v", err)
	}
}

func TestSetCriticalFlags_ReplacesPreviousMarks(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := newDep(1, 2, 1), newDep(1, 3, 2)
	_ = s.AddDependency(ctx, a)
	_ = s.AddDependency(ctx, b)

	_ = s.SetCriticalFlags(ctx, 1, []int64{a.ID})
	_ = s.SetCriticalFlags(ctx, 1, []int64{b.ID})

	edges, _ := s.ListEdges(ctx, 1, true)
	if edges[0].CriticalPath || !edges[1].CriticalPath {
		t.Fatalf("flags = %v, %v", edges[0].CriticalPath, edges[1].CriticalPath)
	}
}

func TestRunInTransaction_RollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.AddDependency(ctx, newDep(1, 2, 1)); err != nil {
			return err
		}
		_ = tx.RecordEvent(ctx, &model.Event{Topic: "x", ProjectID: 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	edges, _ := s.ListEdges(ctx, 1, false)
	if len(edges) != 0 {
		t.Fatalf("expected rollback, got %d edges", len(edges))
	}
	events, _ := s.GetEvents(ctx, 1)
	if len(events) != 0 {
		t.Fatalf("expected rollback, got %d events", len(events))
	}

	// Like a serial column, ids consumed by the failed transaction stay used.
	d := newDep(1, 2, 1)
	_ = s.AddDependency(ctx, d)
	if d.ID != 2 {
		t.Fatalf("id = %d, want 2", d.ID)
	}
}

func TestRunInTransaction_RollbackRestoresTouchedEdges(t *testing.T) {
	s := New()
	ctx := context.Background()
	keep := newDep(1, 2, 1)
	other := newDep(1, 3, 1)
	_ = s.AddDependency(ctx, keep)
	_ = s.AddDependency(ctx, other)

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.DeactivateEdges(ctx, []int64{keep.ID}, "task_isolated"); err != nil {
			return err
		}
		if err := tx.SetCriticalFlags(ctx, 1, []int64{other.ID}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.GetDependency(ctx, keep.ID)
	if !got.Active || got.DeactivateReason != "" {
		t.Errorf("edge %d not restored: %+v", keep.ID, got)
	}
	got, _ = s.GetDependency(ctx, other.ID)
	if got.CriticalPath {
		t.Errorf("edge %d critical flag not restored", other.ID)
	}
}

func TestRunInTransaction_RollbackKeepsConcurrentEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	inside := make(chan struct{})
	recorded := make(chan struct{})

	go func() {
		<-inside
		_ = s.RecordEvent(ctx, &model.Event{Topic: "recompute_completed", ProjectID: 2})
		close(recorded)
	}()

	_ = s.RunInTransaction(ctx, func(tx store.Store) error {
		_ = tx.LockProject(ctx, 1)
		_ = tx.RecordEvent(ctx, &model.Event{Topic: "dependency_created", ProjectID: 1})
		close(inside)
		<-recorded
		return errors.New("boom")
	})

	events, _ := s.GetEvents(ctx, 2)
	if len(events) != 1 {
		t.Fatalf("expected 1 event for project 2, got %d", len(events))
	}
	if events[0].ID != 1 {
		t.Errorf("event id = %d, want 1", events[0].ID)
	}
	if got, _ := s.GetEvents(ctx, 1); len(got) != 0 {
		t.Errorf("expected rolled-back events dropped, got %d", len(got))
	}

	e := &model.Event{Topic: "x", ProjectID: 2}
	_ = s.RecordEvent(ctx, e)
	if e.ID != 2 {
		t.Errorf("next event id = %d, want 2", e.ID)
	}
}

func TestRunInTransaction_ProjectsDoNotSerialize(t *testing.T) {
	s := New()
	ctx := context.Background()
	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunInTransaction(ctx, func(tx store.Store) error {
			_ = tx.LockProject(ctx, 1)
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	// Completes while project 1's transaction is still open.
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.LockProject(ctx, 2); err != nil {
			return err
		}
		return tx.AddDependency(ctx, newDep(2, 2, 1))
	})
	if err != nil {
		t.Fatalf("project 2 transaction: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("project 1 transaction: %v", err)
	}
}

func TestRunInTransaction_SameProjectSerializes(t *testing.T) {
	s := New()
	ctx := context.Background()
	inside := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	second := make(chan error, 1)

	go func() {
		first <- s.RunInTransaction(ctx, func(tx store.Store) error {
			_ = tx.LockProject(ctx, 1)
			_ = tx.LockProject(ctx, 1) // reentrant within one transaction
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	go func() {
		second <- s.RunInTransaction(ctx, func(tx store.Store) error {
			return tx.LockProject(ctx, 1)
		})
	}()

	select {
	case <-second:
		t.Fatal("second transaction acquired project lock while first held it")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	if err := <-second; err != nil {
		t.Fatal(err)
	}
}

func TestTaskLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutTask(&model.Task{ID: 2, ProjectID: 1, DurationHours: 3})
	s.PutTask(&model.Task{ID: 1, ProjectID: 1, DurationHours: 2})
	s.PutTask(&model.Task{ID: 3, ProjectID: 9})

	tasks, _ := s.ListTasks(ctx, 1)
	if len(tasks) != 2 || tasks[0].ID != 1 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if _, err := s.GetTask(ctx, 42); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetProject(ctx, 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
