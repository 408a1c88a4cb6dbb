// Package sqlstore persists workflow execution state in Postgres, SQLite or
// MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

const table = "workflow_executions"

var columns = []string{"execution_id", "workflow_id", "status", "current_node", "state", "created_at", "updated_at"}

var (
	_ workflow.Store  = (*Store)(nil)
	_ workflow.Lister = (*Store)(nil)
)

// Store keeps one row per execution holding the JSON encoded state.
type Store struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
}

// Open connects to the database, applies migrations and returns a store
// that closes the connection on Close.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dialect.dsn(dsn))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", dialect)
	}
	if dialect == SQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", dialect)
	}
	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: dialect, ownsDB: true}, nil
}

// New returns a store using an existing connection. The schema must already
// be migrated, see Migrate.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection if it was opened by Open.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, executionID string, state *workflow.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "failed to encode state for execution %s", executionID)
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsertSQL(table, columns),
		executionID,
		state.WorkflowID,
		string(state.Status),
		state.CurrentNode,
		string(data),
		state.CreatedAt.UnixMicro(),
		updatedAt.UnixMicro(),
	)
	return errors.Wrapf(err, "failed to save execution %s", executionID)
}

func (s *Store) Load(ctx context.Context, executionID string) (*workflow.ExecutionState, error) {
	query := "SELECT state FROM " + table + " WHERE execution_id = " + s.dialect.placeholder(1)
	var data string
	err := s.db.QueryRowContext(ctx, query, executionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load execution %s", executionID)
	}
	return decodeState(data)
}

func (s *Store) Delete(ctx context.Context, executionID string) error {
	query := "DELETE FROM " + table + " WHERE execution_id = " + s.dialect.placeholder(1)
	_, err := s.db.ExecContext(ctx, query, executionID)
	return errors.Wrapf(err, "failed to delete execution %s", executionID)
}

// List returns summaries of all executions, newest first.
func (s *Store) List(ctx context.Context) ([]*workflow.ExecutionSummary, error) {
	return s.list(ctx, "SELECT state FROM "+table+" ORDER BY created_at DESC, execution_id DESC")
}

// ListByStatus returns summaries of executions in the given status, newest
// first.
func (s *Store) ListByStatus(ctx context.Context, status workflow.ExecutionStatus) ([]*workflow.ExecutionSummary, error) {
	query := "SELECT state FROM " + table + " WHERE status = " + s.dialect.placeholder(1) +
		" ORDER BY created_at DESC, execution_id DESC"
	return s.list(ctx, query, string(status))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*workflow.ExecutionSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	summaries := []*workflow.ExecutionSummary{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		state, err := decodeState(data)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, state.Summary())
	}
	return summaries, errors.Wrap(rows.Err(), "failed to list executions")
}

func decodeState(data string) (*workflow.ExecutionState, error) {
	var state workflow.ExecutionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, errors.Wrap(err, "failed to decode execution state")
	}
	return &state, nil
}
