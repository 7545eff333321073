package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore persists mastery definitions and execution records in
// PostgreSQL. Definitions are stored whole as JSONB next to their
// (name, version) key.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// definitionRow is the wire shape of a stored definition.
type definitionRow struct {
	Name       string `db:"name"`
	Version    string `db:"version"`
	Definition []byte `db:"definition"`
}

// SaveDefinition upserts a definition under its (name, version) key.
func (s *PostgresStore) SaveDefinition(def models.MasteryDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition %s@%s: %w", def.Name, def.Version, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO mastery_definitions (name, version, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, version) DO UPDATE SET definition = $3, updated_at = CURRENT_TIMESTAMP`,
		def.Name, def.Version, payload, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save definition %s@%s: %w", def.Name, def.Version, err)
	}
	return nil
}

// GetDefinition retrieves one definition by its (name, version) key.
func (s *PostgresStore) GetDefinition(name, version string) (models.MasteryDefinition, error) {
	var row definitionRow
	err := s.db.Get(&row, "SELECT name, version, definition FROM mastery_definitions WHERE name = $1 AND version = $2", name, version)
	if err == sql.ErrNoRows {
		return models.MasteryDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.MasteryDefinition{}, err
	}
	return unmarshalDefinition(row)
}

func (s *PostgresStore) ListDefinitions() ([]models.MasteryDefinition, error) {
	var rows []definitionRow
	err := s.db.Select(&rows, "SELECT name, version, definition FROM mastery_definitions ORDER BY name, version")
	if err != nil {
		return nil, err
	}
	return unmarshalDefinitions(rows)
}

func (s *PostgresStore) ListVersions(name string) ([]models.MasteryDefinition, error) {
	var rows []definitionRow
	err := s.db.Select(&rows, "SELECT name, version, definition FROM mastery_definitions WHERE name = $1 ORDER BY version", name)
	if err != nil {
		return nil, err
	}
	return unmarshalDefinitions(rows)
}

func (s *PostgresStore) DeleteDefinition(name, version string) error {
	res, err := s.db.Exec("DELETE FROM mastery_definitions WHERE name = $1 AND version = $2", name, version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveExecution inserts a flattened execution record and returns its ID.
func (s *PostgresStore) SaveExecution(rec models.ExecutionRecord) (int64, error) {
	path, err := json.Marshal(rec.ExecutionPath)
	if err != nil {
		return 0, fmt.Errorf("marshal execution path for task %s: %w", rec.TaskID, err)
	}
	var id int64
	err = s.db.QueryRowx(`
		INSERT INTO mastery_executions
			(mastery_name, mastery_version, task_id, status, error_msg, execution_path, started_at, finished_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		rec.MasteryName, rec.MasteryVersion, rec.TaskID, rec.Status, rec.ErrorMsg, path,
		rec.StartedAt, rec.FinishedAt, rec.DurationMS).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save execution for task %s: %w", rec.TaskID, err)
	}
	return id, nil
}

type executionRow struct {
	models.ExecutionRecord
	Path []byte `db:"execution_path"`
}

func (s *PostgresStore) ListExecutions(masteryName string, limit int) ([]models.ExecutionRecord, error) {
	query := "SELECT id, mastery_name, mastery_version, task_id, status, error_msg, execution_path, started_at, finished_at, duration_ms FROM mastery_executions"
	args := []interface{}{}
	if masteryName != "" {
		query += " WHERE mastery_name = $1"
		args = append(args, masteryName)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var rows []executionRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	recs := make([]models.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.ExecutionRecord
		if len(row.Path) > 0 {
			if err := json.Unmarshal(row.Path, &rec.ExecutionPath); err != nil {
				return nil, fmt.Errorf("unmarshal execution path for task %s: %w", rec.TaskID, err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func unmarshalDefinition(row definitionRow) (models.MasteryDefinition, error) {
	var def models.MasteryDefinition
	if err := json.Unmarshal(row.Definition, &def); err != nil {
		return models.MasteryDefinition{}, fmt.Errorf("unmarshal definition %s@%s: %w", row.Name, row.Version, err)
	}
	return def, nil
}

func unmarshalDefinitions(rows []definitionRow) ([]models.MasteryDefinition, error) {
	defs := make([]models.MasteryDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := unmarshalDefinition(row)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
