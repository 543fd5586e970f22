package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/taskdeps/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanDependency scans a single row into a model.Dependency.
// The row must contain columns in the order defined by depColumns.
func scanDependency(row scannable) (*model.Dependency, error) {
	var d model.Dependency
	var (
		reason    sql.NullString
		createdBy sql.NullString
	)
	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.DependentID,
		&d.PrerequisiteID,
		&d.Type,
		&d.LagHours,
		&d.Active,
		&d.CriticalPath,
		&reason,
		&d.CreatedAt,
		&createdBy,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.DeactivateReason = reason.String
	d.CreatedBy = createdBy.String
	return &d, nil
}

// scanDependencies scans multiple rows into a slice of model.Dependency pointers.
func scanDependencies(rows *sql.Rows) ([]*model.Dependency, error) {
	var deps []*model.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deps, nil
}

func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Origin, &p.HorizonHours); err != nil {
		return nil, err
	}
	return &p, nil
}

// scanTask scans a single row into a model.Task.
func scanTask(row scannable) (*model.Task, error) {
	var t model.Task
	var start, end sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.DurationHours,
		&start,
		&end,
		&t.Completed,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		st := start.Time
		t.PlannedStart = &st
	}
	if end.Valid {
		et := end.Time
		t.PlannedEnd = &et
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		actor   sql.NullString
		payload []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &e.ProjectID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
