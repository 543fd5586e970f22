package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// depRowColumns matches depColumns.
var depRowColumns = []string{
	"id", "project_id", "dependent_task_id", "prerequisite_task_id", "type",
	"lag_hours", "active", "critical_path", "deactivate_reason", "created_at", "created_by", "updated_at",
}

func addDepRow(rows *sqlmock.Rows, id, project, dependent, prereq int64, typ string, lag float64, active, critical bool, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, project, dependent, prereq, typ, lag, active, critical, nil, now, nil, now)
}

func TestScanHelpers(t *testing.T) {
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("hello"); !ns.Valid || ns.String != "hello" {
		t.Errorf("nullString(\"hello\") = %v", ns)
	}
	if jsonbBytes(nil) != nil {
		t.Error("jsonbBytes(nil) should be nil")
	}
	input := json.RawMessage(`{"key":"value"}`)
	if string(jsonbBytes(input)) != `{"key":"value"}` {
		t.Errorf("jsonbBytes = %s", jsonbBytes(input))
	}
}

func TestQueryAddDependency(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	dep := &model.Dependency{
		ProjectID: 1, DependentID: 2, PrerequisiteID: 3,
		Type: model.FinishToStart, LagHours: 1.5, CreatedBy: "alice",
	}
	mock.ExpectQuery("INSERT INTO task_dependencies").
		WithArgs(int64(1), int64(2), int64(3), "FINISH_TO_START", 1.5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	if err := queryAddDependency(context.Background(), db, dep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dep.ID != 7 || !dep.Active {
		t.Fatalf("got id=%d active=%v", dep.ID, dep.Active)
	}
}

func TestQueryAddDependency_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO task_dependencies").
		WillReturnError(&pq.Error{Code: uniqueViolation, Detail: "Key (dependent_task_id, prerequisite_task_id)=(2, 3) already exists."})

	err := queryAddDependency(context.Background(), db, &model.Dependency{
		ProjectID: 1, DependentID: 2, PrerequisiteID: 3, Type: model.FinishToStart,
	})
	if !errors.Is(err, model.ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
}

func TestQueryGetDependency_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM task_dependencies WHERE id = \\$1").
		WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	_, err := queryGetDependency(context.Background(), db, 99)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryListEdges(t *testing.T) {
	for _, tc := range []struct {
		name       string
		activeOnly bool
		pattern    string
	}{
		{"All", false, "SELECT .+ FROM task_dependencies WHERE project_id = \\$1 ORDER BY id"},
		{"ActiveOnly", true, "SELECT .+ FROM task_dependencies WHERE project_id = \\$1 AND active ORDER BY id"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			now := time.Now().UTC()
			rows := sqlmock.NewRows(depRowColumns)
			addDepRow(rows, 1, 5, 2, 1, "FINISH_TO_START", 0, true, true, now)
			addDepRow(rows, 2, 5, 3, 2, "START_TO_START", -2, true, false, now)
			mock.ExpectQuery(tc.pattern).WithArgs(int64(5)).WillReturnRows(rows)

			edges, err := queryListEdges(context.Background(), db, 5, tc.activeOnly)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(edges) != 2 {
				t.Fatalf("expected 2 edges, got %d", len(edges))
			}
			if edges[1].Type != model.StartToStart || edges[1].LagHours != -2 {
				t.Fatalf("edge[1] = %+v", edges[1])
			}
			if !edges[0].CriticalPath {
				t.Fatal("edge[0] should be critical")
			}
		})
	}
}

func TestQueryFindEdgesForTask(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(depRowColumns)
	addDepRow(rows, 4, 1, 9, 2, "BLOCKING", 0, false, false, now)
	mock.ExpectQuery("WHERE dependent_task_id = \\$1 OR prerequisite_task_id = \\$1").
		WithArgs(int64(9)).WillReturnRows(rows)

	edges, err := queryFindEdgesForTask(context.Background(), db, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 1 || edges[0].Active {
		t.Fatalf("edges = %+v", edges)
	}
}

func TestQueryDeactivateEdges(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE task_dependencies SET active = FALSE").
		WithArgs(sqlmock.AnyArg(), model.ReasonTaskIsolated).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := queryDeactivateEdges(context.Background(), db, []int64{1, 2, 3}, model.ReasonTaskIsolated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
}

func TestQueryDeactivateEdges_EmptyIsNoop(t *testing.T) {
	db, _ := newMockDB(t)
	n, err := queryDeactivateEdges(context.Background(), db, nil, model.ReasonRemoved)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestQueryReactivateEdges_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE task_dependencies SET active = TRUE").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	_, err := queryReactivateEdges(context.Background(), db, []int64{1})
	if !errors.Is(err, model.ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
}

func TestQuerySetCriticalFlags_SingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE task_dependencies SET critical_path = \\(active AND id = ANY\\(\\$2\\)\\)").
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	if err := querySetCriticalFlags(context.Background(), db, 3, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryLockProject(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(\\$1\\)").WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryLockProject(context.Background(), db, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryGetTask(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM tasks WHERE id = \\$1").WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "title", "duration_hours", "planned_start", "planned_end", "completed"}).
			AddRow(int64(2), int64(1), "Pour foundation", 3.0, start, nil, false))

	task, err := queryGetTask(context.Background(), db, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Duration() != 3*time.Hour || task.PlannedStart == nil || task.PlannedEnd != nil {
		t.Fatalf("task = %+v", task)
	}
}

func TestQueryGetProject_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM projects WHERE id = \\$1").WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	if _, err := queryGetProject(context.Background(), db, 4); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryRecordEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO dependency_events").
		WithArgs("taskdeps.dependency.added", int64(1), "bob", []byte(`{"id":1}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	e := &model.Event{Topic: "taskdeps.dependency.added", ProjectID: 1, Actor: "bob", Payload: json.RawMessage(`{"id":1}`)}
	if err := queryRecordEvent(context.Background(), db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != 11 {
		t.Fatalf("id = %d", e.ID)
	}
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := &PostgresStore{db: db}
	boom := errors.New("boom")
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if err := tx.LockProject(context.Background(), 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
