package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeFormat = time.RFC3339Nano

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// shared across callers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

type containerRow struct {
	ID              string         `db:"id"`
	Description     string         `db:"description"`
	ActiveBlueprint sql.NullString `db:"active_blueprint"`
	QueuedBlueprint sql.NullString `db:"queued_blueprint"`
	Busy            bool           `db:"busy"`
	Version         int64          `db:"version"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

type blueprintRow struct {
	ID        string  `db:"id"`
	Phase     string  `db:"phase"`
	Outcome   string  `db:"outcome"`
	Outputs   *string `db:"outputs"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
}

type blueprintErrorRow struct {
	ID          string `db:"id"`
	BlueprintID string `db:"blueprint_id"`
	Phase       string `db:"phase"`
	Outcome     string `db:"outcome"`
	Message     string `db:"message"`
	CreatedAt   string `db:"created_at"`
}

type inputRow struct {
	Key         string `db:"key"`
	Value       string `db:"value"`
	Description string `db:"description"`
}

// =============================================================================
// Container Operations
// =============================================================================

func (s *SQLiteStore) CreateContainer(ctx context.Context, container *domain.Container) error {
	return createContainer(ctx, s.db, container)
}

func (s *SQLiteStore) GetContainer(ctx context.Context, id string) (*domain.Container, error) {
	return getContainer(ctx, s.db, id)
}

func (s *SQLiteStore) SaveContainer(ctx context.Context, container *domain.Container) error {
	return saveContainer(ctx, s.db, container)
}

func (s *SQLiteStore) DeleteContainer(ctx context.Context, id string, version int64) error {
	return deleteContainer(ctx, s.db, id, version)
}

func (s *SQLiteStore) ListContainers(ctx context.Context, opts ListOptions) ([]domain.Container, error) {
	return listContainers(ctx, s.db, opts)
}

// =============================================================================
// Blueprint Operations
// =============================================================================

func (s *SQLiteStore) CreateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error {
	return createBlueprint(ctx, s.db, blueprint)
}

func (s *SQLiteStore) GetBlueprint(ctx context.Context, id string) (*domain.Blueprint, error) {
	return getBlueprint(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error {
	return updateBlueprint(ctx, s.db, blueprint)
}

func (s *SQLiteStore) DeleteBlueprint(ctx context.Context, id string) error {
	return deleteBlueprint(ctx, s.db, id)
}

func (s *SQLiteStore) ListBlueprints(ctx context.Context, opts ListOptions) ([]domain.Blueprint, error) {
	return listBlueprints(ctx, s.db, opts)
}

func (s *SQLiteStore) AppendBlueprintError(ctx context.Context, record domain.ErrorRecord) error {
	return appendBlueprintError(ctx, s.db, record)
}

// =============================================================================
// Input Operations
// =============================================================================

func (s *SQLiteStore) CreateInput(ctx context.Context, input *domain.Input) error {
	return createInput(ctx, s.db, input)
}

func (s *SQLiteStore) GetInput(ctx context.Context, key string) (*domain.Input, error) {
	return getInput(ctx, s.db, key)
}

func (s *SQLiteStore) UpdateInput(ctx context.Context, input *domain.Input) error {
	return updateInput(ctx, s.db, input)
}

func (s *SQLiteStore) DeleteInput(ctx context.Context, key string) error {
	return deleteInput(ctx, s.db, key)
}

func (s *SQLiteStore) ListInputs(ctx context.Context) ([]domain.Input, error) {
	return listInputs(ctx, s.db)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateContainer(ctx context.Context, container *domain.Container) error {
	return createContainer(ctx, s.tx, container)
}

func (s *txSQLiteStore) GetContainer(ctx context.Context, id string) (*domain.Container, error) {
	return getContainer(ctx, s.tx, id)
}

func (s *txSQLiteStore) SaveContainer(ctx context.Context, container *domain.Container) error {
	return saveContainer(ctx, s.tx, container)
}

func (s *txSQLiteStore) DeleteContainer(ctx context.Context, id string, version int64) error {
	return deleteContainer(ctx, s.tx, id, version)
}

func (s *txSQLiteStore) ListContainers(ctx context.Context, opts ListOptions) ([]domain.Container, error) {
	return listContainers(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error {
	return createBlueprint(ctx, s.tx, blueprint)
}

func (s *txSQLiteStore) GetBlueprint(ctx context.Context, id string) (*domain.Blueprint, error) {
	return getBlueprint(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error {
	return updateBlueprint(ctx, s.tx, blueprint)
}

func (s *txSQLiteStore) DeleteBlueprint(ctx context.Context, id string) error {
	return deleteBlueprint(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListBlueprints(ctx context.Context, opts ListOptions) ([]domain.Blueprint, error) {
	return listBlueprints(ctx, s.tx, opts)
}

func (s *txSQLiteStore) AppendBlueprintError(ctx context.Context, record domain.ErrorRecord) error {
	return appendBlueprintError(ctx, s.tx, record)
}

func (s *txSQLiteStore) CreateInput(ctx context.Context, input *domain.Input) error {
	return createInput(ctx, s.tx, input)
}

func (s *txSQLiteStore) GetInput(ctx context.Context, key string) (*domain.Input, error) {
	return getInput(ctx, s.tx, key)
}

func (s *txSQLiteStore) UpdateInput(ctx context.Context, input *domain.Input) error {
	return updateInput(ctx, s.tx, input)
}

func (s *txSQLiteStore) DeleteInput(ctx context.Context, key string) error {
	return deleteInput(ctx, s.tx, key)
}

func (s *txSQLiteStore) ListInputs(ctx context.Context) ([]domain.Input, error) {
	return listInputs(ctx, s.tx)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions - Containers
// =============================================================================

func createContainer(ctx context.Context, exec executor, container *domain.Container) error {
	query := `
		INSERT INTO containers (
			id, description, active_blueprint, queued_blueprint, busy, version,
			created_at, updated_at
		) VALUES (
			:id, :description, :active_blueprint, :queued_blueprint, :busy, :version,
			:created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, containerToRow(container))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: containers.id") {
			return NewStoreError("CreateContainer", "container", container.ID, "container with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateContainer", "container", container.ID, err.Error(), err)
	}

	return nil
}

func getContainer(ctx context.Context, exec executor, id string) (*domain.Container, error) {
	query := `SELECT * FROM containers WHERE id = ?`

	var row containerRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetContainer", "container", id, "container not found", ErrNotFound)
		}
		return nil, NewStoreError("GetContainer", "container", id, err.Error(), err)
	}

	return rowToContainer(&row), nil
}

// saveContainer writes every mutable field only if the stored version still
// equals container.Version. On success the caller's copy carries the new
// version.
func saveContainer(ctx context.Context, exec executor, container *domain.Container) error {
	updatedAt := time.Now().UTC()
	row := containerToRow(container)
	row.UpdatedAt = updatedAt.Format(timeFormat)

	query := `
		UPDATE containers SET
			description = :description,
			active_blueprint = :active_blueprint,
			queued_blueprint = :queued_blueprint,
			busy = :busy,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("SaveContainer", "container", container.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return versionMiss(ctx, exec, "SaveContainer", container.ID, container.Version)
	}

	container.Version++
	container.UpdatedAt = updatedAt
	return nil
}

func deleteContainer(ctx context.Context, exec executor, id string, version int64) error {
	query := `DELETE FROM containers WHERE id = ? AND version = ?`

	result, err := exec.ExecContext(ctx, query, id, version)
	if err != nil {
		return NewStoreError("DeleteContainer", "container", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return versionMiss(ctx, exec, "DeleteContainer", id, version)
	}

	return nil
}

// versionMiss tells a vanished row apart from a moved version.
func versionMiss(ctx context.Context, exec executor, op, id string, version int64) error {
	var current int64
	err := exec.GetContext(ctx, &current, `SELECT version FROM containers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewStoreError(op, "container", id, "container not found", ErrNotFound)
	}
	if err != nil {
		return NewStoreError(op, "container", id, err.Error(), err)
	}
	return NewStoreError(op, "container", id,
		fmt.Sprintf("expected version %d, found %d", version, current), ErrVersionConflict)
}

func listContainers(ctx context.Context, exec executor, opts ListOptions) ([]domain.Container, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM containers ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []containerRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListContainers", "container", "", err.Error(), err)
	}

	containers := make([]domain.Container, 0, len(rows))
	for i := range rows {
		containers = append(containers, *rowToContainer(&rows[i]))
	}
	return containers, nil
}

// =============================================================================
// Shared Implementation Functions - Blueprints
// =============================================================================

func createBlueprint(ctx context.Context, exec executor, blueprint *domain.Blueprint) error {
	row, err := blueprintToRow(blueprint)
	if err != nil {
		return NewStoreError("CreateBlueprint", "blueprint", blueprint.ID, "failed to serialize outputs", ErrInvalidData)
	}

	query := `
		INSERT INTO blueprints (id, phase, outcome, outputs, created_at, updated_at)
		VALUES (:id, :phase, :outcome, :outputs, :created_at, :updated_at)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: blueprints.id") {
			return NewStoreError("CreateBlueprint", "blueprint", blueprint.ID, "blueprint with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateBlueprint", "blueprint", blueprint.ID, err.Error(), err)
	}

	return nil
}

func getBlueprint(ctx context.Context, exec executor, id string) (*domain.Blueprint, error) {
	var row blueprintRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM blueprints WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetBlueprint", "blueprint", id, "blueprint not found", ErrNotFound)
		}
		return nil, NewStoreError("GetBlueprint", "blueprint", id, err.Error(), err)
	}

	blueprint, err := rowToBlueprint(&row)
	if err != nil {
		return nil, err
	}

	var errRows []blueprintErrorRow
	query := `SELECT * FROM blueprint_errors WHERE blueprint_id = ? ORDER BY rowid`
	if err := exec.SelectContext(ctx, &errRows, query, id); err != nil {
		return nil, NewStoreError("GetBlueprint", "blueprint", id, err.Error(), err)
	}
	for i := range errRows {
		rec, err := rowToErrorRecord(&errRows[i])
		if err != nil {
			return nil, err
		}
		blueprint.Errors = append(blueprint.Errors, rec)
	}

	return blueprint, nil
}

// updateBlueprint persists state and outputs. Error records are written
// separately through appendBlueprintError.
func updateBlueprint(ctx context.Context, exec executor, blueprint *domain.Blueprint) error {
	row, err := blueprintToRow(blueprint)
	if err != nil {
		return NewStoreError("UpdateBlueprint", "blueprint", blueprint.ID, "failed to serialize outputs", ErrInvalidData)
	}

	query := `
		UPDATE blueprints SET
			phase = :phase,
			outcome = :outcome,
			outputs = :outputs,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateBlueprint", "blueprint", blueprint.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateBlueprint", "blueprint", blueprint.ID, "blueprint not found", ErrNotFound)
	}

	return nil
}

func deleteBlueprint(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM blueprints WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteBlueprint", "blueprint", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteBlueprint", "blueprint", id, "blueprint not found", ErrNotFound)
	}

	return nil
}

func listBlueprints(ctx context.Context, exec executor, opts ListOptions) ([]domain.Blueprint, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM blueprints ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []blueprintRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListBlueprints", "blueprint", "", err.Error(), err)
	}

	blueprints := make([]domain.Blueprint, 0, len(rows))
	for i := range rows {
		b, err := rowToBlueprint(&rows[i])
		if err != nil {
			return nil, err
		}
		blueprints = append(blueprints, *b)
	}
	return blueprints, nil
}

func appendBlueprintError(ctx context.Context, exec executor, record domain.ErrorRecord) error {
	query := `
		INSERT INTO blueprint_errors (id, blueprint_id, phase, outcome, message, created_at)
		VALUES (:id, :blueprint_id, :phase, :outcome, :message, :created_at)`

	row := blueprintErrorRow{
		ID:          record.ID,
		BlueprintID: record.BlueprintID,
		Phase:       record.State.Phase.String(),
		Outcome:     string(record.State.Outcome),
		Message:     record.Message,
		CreatedAt:   record.CreatedAt.UTC().Format(timeFormat),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("AppendBlueprintError", "blueprint", record.BlueprintID, "blueprint not found", ErrNotFound)
		}
		return NewStoreError("AppendBlueprintError", "blueprint", record.BlueprintID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Shared Implementation Functions - Inputs
// =============================================================================

func createInput(ctx context.Context, exec executor, input *domain.Input) error {
	query := `INSERT INTO inputs (key, value, description) VALUES (:key, :value, :description)`

	if _, err := exec.NamedExecContext(ctx, query, inputRow(*input)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: inputs.key") {
			return NewStoreError("CreateInput", "input", input.Key, "input with this key already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateInput", "input", input.Key, err.Error(), err)
	}
	return nil
}

func getInput(ctx context.Context, exec executor, key string) (*domain.Input, error) {
	var row inputRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM inputs WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetInput", "input", key, "input not found", ErrNotFound)
		}
		return nil, NewStoreError("GetInput", "input", key, err.Error(), err)
	}
	input := domain.Input(row)
	return &input, nil
}

func updateInput(ctx context.Context, exec executor, input *domain.Input) error {
	query := `UPDATE inputs SET value = :value, description = :description WHERE key = :key`

	result, err := exec.NamedExecContext(ctx, query, inputRow(*input))
	if err != nil {
		return NewStoreError("UpdateInput", "input", input.Key, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateInput", "input", input.Key, "input not found", ErrNotFound)
	}
	return nil
}

func deleteInput(ctx context.Context, exec executor, key string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM inputs WHERE key = ?`, key)
	if err != nil {
		return NewStoreError("DeleteInput", "input", key, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteInput", "input", key, "input not found", ErrNotFound)
	}
	return nil
}

func listInputs(ctx context.Context, exec executor) ([]domain.Input, error) {
	var rows []inputRow
	if err := exec.SelectContext(ctx, &rows, `SELECT * FROM inputs ORDER BY key`); err != nil {
		return nil, NewStoreError("ListInputs", "input", "", err.Error(), err)
	}
	inputs := make([]domain.Input, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, domain.Input(row))
	}
	return inputs, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func containerToRow(c *domain.Container) containerRow {
	return containerRow{
		ID:              c.ID,
		Description:     c.Description,
		ActiveBlueprint: nullString(c.ActiveBlueprint),
		QueuedBlueprint: nullString(c.QueuedBlueprint),
		Busy:            c.Busy,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:       c.UpdatedAt.UTC().Format(timeFormat),
	}
}

func rowToContainer(row *containerRow) *domain.Container {
	createdAt, _ := time.Parse(timeFormat, row.CreatedAt)
	updatedAt, _ := time.Parse(timeFormat, row.UpdatedAt)

	return &domain.Container{
		ID:              row.ID,
		Description:     row.Description,
		ActiveBlueprint: row.ActiveBlueprint.String,
		QueuedBlueprint: row.QueuedBlueprint.String,
		Busy:            row.Busy,
		Version:         row.Version,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
}

func blueprintToRow(b *domain.Blueprint) (blueprintRow, error) {
	row := blueprintRow{
		ID:        b.ID,
		Phase:     b.State.Phase.String(),
		Outcome:   string(b.State.Outcome),
		CreatedAt: b.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: b.UpdatedAt.UTC().Format(timeFormat),
	}
	if len(b.Outputs) > 0 {
		data, err := json.Marshal(b.Outputs)
		if err != nil {
			return row, err
		}
		outputs := string(data)
		row.Outputs = &outputs
	}
	return row, nil
}

func rowToBlueprint(row *blueprintRow) (*domain.Blueprint, error) {
	createdAt, _ := time.Parse(timeFormat, row.CreatedAt)
	updatedAt, _ := time.Parse(timeFormat, row.UpdatedAt)

	phase, err := domain.ParsePhase(row.Phase)
	if err != nil {
		return nil, NewStoreError("rowToBlueprint", "blueprint", row.ID, err.Error(), ErrInvalidData)
	}

	var outputs map[string]domain.Output
	if row.Outputs != nil && *row.Outputs != "" && *row.Outputs != "null" {
		if err := json.Unmarshal([]byte(*row.Outputs), &outputs); err != nil {
			return nil, NewStoreError("rowToBlueprint", "blueprint", row.ID, "failed to parse outputs", ErrInvalidData)
		}
	}

	return &domain.Blueprint{
		ID:        row.ID,
		State:     domain.State{Phase: phase, Outcome: domain.Outcome(row.Outcome)},
		Outputs:   outputs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func rowToErrorRecord(row *blueprintErrorRow) (domain.ErrorRecord, error) {
	createdAt, _ := time.Parse(timeFormat, row.CreatedAt)

	phase, err := domain.ParsePhase(row.Phase)
	if err != nil {
		return domain.ErrorRecord{}, NewStoreError("rowToErrorRecord", "blueprint", row.BlueprintID, err.Error(), ErrInvalidData)
	}

	return domain.ErrorRecord{
		ID:          row.ID,
		BlueprintID: row.BlueprintID,
		State:       domain.State{Phase: phase, Outcome: domain.Outcome(row.Outcome)},
		Message:     row.Message,
		CreatedAt:   createdAt,
	}, nil
}
