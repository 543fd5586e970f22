// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/taskdeps/internal/model"
	"github.com/alfredjeanlab/taskdeps/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "taskdeps_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return queryGetProject(ctx, s.db, id)
}

func (s *PostgresStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	return queryGetTask(ctx, s.db, id)
}

func (s *PostgresStore) ListTasks(ctx context.Context, projectID int64) ([]*model.Task, error) {
	return queryListTasks(ctx, s.db, projectID)
}

func (s *PostgresStore) AddDependency(ctx context.Context, dep *model.Dependency) error {
	return queryAddDependency(ctx, s.db, dep)
}

func (s *PostgresStore) GetDependency(ctx context.Context, id int64) (*model.Dependency, error) {
	return queryGetDependency(ctx, s.db, id)
}

func (s *PostgresStore) ListEdges(ctx context.Context, projectID int64, activeOnly bool) ([]*model.Dependency, error) {
	return queryListEdges(ctx, s.db, projectID, activeOnly)
}

func (s *PostgresStore) FindEdgesForTask(ctx context.Context, taskID int64) ([]*model.Dependency, error) {
	return queryFindEdgesForTask(ctx, s.db, taskID)
}

func (s *PostgresStore) DeactivateEdges(ctx context.Context, ids []int64, reason string) (int, error) {
	return queryDeactivateEdges(ctx, s.db, ids, reason)
}

func (s *PostgresStore) ReactivateEdges(ctx context.Context, ids []int64) (int, error) {
	return queryReactivateEdges(ctx, s.db, ids)
}

func (s *PostgresStore) SetCriticalFlags(ctx context.Context, projectID int64, criticalIDs []int64) error {
	return querySetCriticalFlags(ctx, s.db, projectID, criticalIDs)
}

// LockProject is a no-op outside a transaction; advisory transaction locks
// would be released as soon as the implicit statement transaction ends.
func (s *PostgresStore) LockProject(_ context.Context, _ int64) error {
	return nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, projectID int64) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, projectID)
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]int64, error) {
	return queryListProjects(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return queryGetProject(ctx, s.tx, id)
}

func (s *txStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	return queryGetTask(ctx, s.tx, id)
}

func (s *txStore) ListTasks(ctx context.Context, projectID int64) ([]*model.Task, error) {
	return queryListTasks(ctx, s.tx, projectID)
}

func (s *txStore) AddDependency(ctx context.Context, dep *model.Dependency) error {
	return queryAddDependency(ctx, s.tx, dep)
}

func (s *txStore) GetDependency(ctx context.Context, id int64) (*model.Dependency, error) {
	return queryGetDependency(ctx, s.tx, id)
}

func (s *txStore) ListEdges(ctx context.Context, projectID int64, activeOnly bool) ([]*model.Dependency, error) {
	return queryListEdges(ctx, s.tx, projectID, activeOnly)
}

func (s *txStore) FindEdgesForTask(ctx context.Context, taskID int64) ([]*model.Dependency, error) {
	return queryFindEdgesForTask(ctx, s.tx, taskID)
}

func (s *txStore) DeactivateEdges(ctx context.Context, ids []int64, reason string) (int, error) {
	return queryDeactivateEdges(ctx, s.tx, ids, reason)
}

func (s *txStore) ReactivateEdges(ctx context.Context, ids []int64) (int, error) {
	return queryReactivateEdges(ctx, s.tx, ids)
}

func (s *txStore) SetCriticalFlags(ctx context.Context, projectID int64, criticalIDs []int64) error {
	return querySetCriticalFlags(ctx, s.tx, projectID, criticalIDs)
}

// LockProject takes a transaction-scoped advisory lock keyed by project id.
func (s *txStore) LockProject(ctx context.Context, projectID int64) error {
	return queryLockProject(ctx, s.tx, projectID)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, projectID int64) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, projectID)
}

func (s *txStore) ListProjects(ctx context.Context) ([]int64, error) {
	return queryListProjects(ctx, s.tx)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
