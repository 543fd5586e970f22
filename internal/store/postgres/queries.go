package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// depColumns is the column list used for SELECT statements on task_dependencies.
const depColumns = `id, project_id, dependent_task_id, prerequisite_task_id, type,
	lag_hours, active, critical_path, deactivate_reason, created_at, created_by, updated_at`

// uniqueViolation is the SQLSTATE raised by the active-pair unique index.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to model.ErrNotFound and leaves other errors intact.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
	}
	return err
}

// duplicate maps unique violations to model.ErrDuplicateEdge.
func duplicate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Detail, model.ErrDuplicateEdge)
	}
	return err
}

func queryGetProject(ctx context.Context, db executor, id int64) (*model.Project, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, origin, horizon_hours
		FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func queryGetTask(ctx context.Context, db executor, id int64) (*model.Task, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, project_id, title, duration_hours, planned_start, planned_end, completed
		FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return t, nil
}

func queryListTasks(ctx context.Context, db executor, projectID int64) ([]*model.Task, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project_id, title, duration_hours, planned_start, planned_end, completed
		FROM tasks WHERE project_id = $1
		ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func queryAddDependency(ctx context.Context, db executor, dep *model.Dependency) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO task_dependencies (
			project_id, dependent_task_id, prerequisite_task_id, type,
			lag_hours, active, created_by
		) VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id, created_at, updated_at`,
		dep.ProjectID,
		dep.DependentID,
		dep.PrerequisiteID,
		string(dep.Type),
		dep.LagHours,
		nullString(dep.CreatedBy),
	).Scan(&dep.ID, &dep.CreatedAt, &dep.UpdatedAt)
	if err != nil {
		return duplicate(err)
	}
	dep.Active = true
	return nil
}

func queryGetDependency(ctx context.Context, db executor, id int64) (*model.Dependency, error) {
	row := db.QueryRowContext(ctx, `SELECT `+depColumns+` FROM task_dependencies WHERE id = $1`, id)
	d, err := scanDependency(row)
	if err != nil {
		return nil, notFound(err, "dependency", id)
	}
	return d, nil
}

func queryListEdges(ctx context.Context, db executor, projectID int64, activeOnly bool) ([]*model.Dependency, error) {
	q := `SELECT ` + depColumns + ` FROM task_dependencies WHERE project_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

func queryFindEdgesForTask(ctx context.Context, db executor, taskID int64) ([]*model.Dependency, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+depColumns+`
		FROM task_dependencies
		WHERE dependent_task_id = $1 OR prerequisite_task_id = $1
		ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("find edges for task: %w", err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

func queryDeactivateEdges(ctx context.Context, db executor, ids []int64, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE task_dependencies
		SET active = FALSE, critical_path = FALSE, deactivate_reason = $2, updated_at = NOW()
		WHERE id = ANY($1) AND active`,
		pq.Array(ids), reason,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate edges: %w", err)
	}
	return rowsAffected(res)
}

func queryReactivateEdges(ctx context.Context, db executor, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE task_dependencies
		SET active = TRUE, deactivate_reason = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND NOT active`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, duplicate(err)
	}
	return rowsAffected(res)
}

// querySetCriticalFlags rewrites every flag of the project in one statement so
// readers never observe a partially marked graph.
func querySetCriticalFlags(ctx context.Context, db executor, projectID int64, criticalIDs []int64) error {
	if criticalIDs == nil {
		criticalIDs = []int64{}
	}
	_, err := db.ExecContext(ctx, `
		UPDATE task_dependencies
		SET critical_path = (active AND id = ANY($2)), updated_at = NOW()
		WHERE project_id = $1
		  AND critical_path IS DISTINCT FROM (active AND id = ANY($2))`,
		projectID, pq.Array(criticalIDs),
	)
	if err != nil {
		return fmt.Errorf("set critical flags: %w", err)
	}
	return nil
}

func queryLockProject(ctx context.Context, db executor, projectID int64) error {
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, projectID); err != nil {
		return fmt.Errorf("lock project %d: %w", projectID, err)
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO dependency_events (topic, project_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.ProjectID, nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, projectID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, project_id, actor, payload, created_at
		FROM dependency_events
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListProjects(ctx context.Context, db executor) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT project_id FROM task_dependencies ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
