// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite store backend for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/store"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ store.MetadataStore = (*Backend)(nil)
	_ store.RunStore      = (*Backend)(nil)
	_ store.Store         = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			workflow_name TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			description TEXT,
			created_by TEXT,
			creation_timestamp INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			deployed_through_service INTEGER NOT NULL DEFAULT 0,
			registration_instructions TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_timestamp INTEGER NOT NULL,
			end_timestamp INTEGER NOT NULL DEFAULT 0,
			submitted_by TEXT,
			engine_execution_date TEXT,
			UNIQUE (workflow_name, run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow_name)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs(status)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateWorkflow stores a new workflow registration.
func (b *Backend) CreateWorkflow(ctx context.Context, metadata *model.WorkflowMetadata) error {
	var instructionsJSON []byte
	if metadata.RegistrationInstructions != nil {
		var err error
		instructionsJSON, err = json.Marshal(metadata.RegistrationInstructions)
		if err != nil {
			return fmt.Errorf("failed to marshal registration instructions: %w", err)
		}
	}

	query := `
		INSERT INTO workflows (workflow_name, workflow_id, description, created_by,
			creation_timestamp, version, deployed_through_service, registration_instructions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	deployed := 0
	if metadata.IsDeployedThroughWorkflowService {
		deployed = 1
	}

	_, err := b.db.ExecContext(ctx, query,
		metadata.WorkflowName, metadata.WorkflowID, nullString(metadata.Description),
		nullString(metadata.CreatedBy), metadata.CreationTimestamp, metadata.Version,
		deployed, nullBytes(instructionsJSON),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workflow %s: %w", metadata.WorkflowName, store.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow registration by name.
func (b *Backend) GetWorkflow(ctx context.Context, workflowName string) (*model.WorkflowMetadata, error) {
	query := `
		SELECT workflow_name, workflow_id, description, created_by,
			creation_timestamp, version, deployed_through_service, registration_instructions
		FROM workflows WHERE workflow_name = ?
	`

	metadata, err := scanWorkflow(b.db.QueryRowContext(ctx, query, workflowName))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %s: %w", workflowName, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return metadata, nil
}

// ListWorkflows returns registrations matching the prefix, sorted by name.
func (b *Backend) ListWorkflows(ctx context.Context, prefix string) ([]*model.WorkflowMetadata, error) {
	query := `
		SELECT workflow_name, workflow_id, description, created_by,
			creation_timestamp, version, deployed_through_service, registration_instructions
		FROM workflows
	`
	args := []any{}

	if prefix != "" {
		query += " WHERE workflow_name LIKE ? ESCAPE '\\'"
		args = append(args, escapeLike(prefix)+"%")
	}
	query += " ORDER BY workflow_name"

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*model.WorkflowMetadata
	for rows.Next() {
		metadata, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, metadata)
	}
	return workflows, rows.Err()
}

// DeleteWorkflow removes a workflow registration.
func (b *Backend) DeleteWorkflow(ctx context.Context, workflowName string) error {
	result, err := b.db.ExecContext(ctx, "DELETE FROM workflows WHERE workflow_name = ?", workflowName)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("workflow %s: %w", workflowName, store.ErrNotFound)
	}
	return nil
}

// SaveRun stores a new workflow run.
func (b *Backend) SaveRun(ctx context.Context, run *model.WorkflowRun) error {
	query := `
		INSERT INTO workflow_runs (workflow_name, run_id, workflow_id, status,
			start_timestamp, end_timestamp, submitted_by, engine_execution_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		run.WorkflowName, run.RunID, run.WorkflowID, run.Status.String(),
		run.StartTimeStamp, run.EndTimeStamp, nullString(run.SubmittedBy),
		nullString(run.EngineExecutionDate),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s of workflow %s: %w", run.RunID, run.WorkflowName, store.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves one run of a workflow.
func (b *Backend) GetRun(ctx context.Context, workflowName, runID string) (*model.WorkflowRun, error) {
	query := `
		SELECT workflow_name, run_id, workflow_id, status,
			start_timestamp, end_timestamp, submitted_by, engine_execution_date
		FROM workflow_runs WHERE workflow_name = ? AND run_id = ?
	`

	run, err := scanRun(b.db.QueryRowContext(ctx, query, workflowName, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRun overwrites an existing run.
func (b *Backend) UpdateRun(ctx context.Context, run *model.WorkflowRun) error {
	query := `
		UPDATE workflow_runs SET
			workflow_id = ?, status = ?, start_timestamp = ?, end_timestamp = ?,
			submitted_by = ?, engine_execution_date = ?
		WHERE workflow_name = ? AND run_id = ?
	`

	result, err := b.db.ExecContext(ctx, query,
		run.WorkflowID, run.Status.String(), run.StartTimeStamp, run.EndTimeStamp,
		nullString(run.SubmittedBy), nullString(run.EngineExecutionDate),
		run.WorkflowName, run.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run %s of workflow %s: %w", run.RunID, run.WorkflowName, store.ErrNotFound)
	}
	return nil
}

// DeleteRuns removes the given runs of one workflow in a single statement.
func (b *Backend) DeleteRuns(ctx context.Context, workflowName string, runIDs []string) error {
	if len(runIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(runIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf("DELETE FROM workflow_runs WHERE workflow_name = ? AND run_id IN (%s)", placeholders)

	args := make([]any, 0, len(runIDs)+1)
	args = append(args, workflowName)
	for _, id := range runIDs {
		args = append(args, id)
	}

	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	return nil
}

// ListRuns returns one page of a workflow's runs in insertion order. The
// cursor is the sequence number of the last row of the previous page.
func (b *Backend) ListRuns(ctx context.Context, workflowName string, limit int, cursor string) (*model.RunPage, error) {
	afterSeq := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		afterSeq = parsed
	}

	query := `
		SELECT seq, workflow_name, run_id, workflow_id, status,
			start_timestamp, end_timestamp, submitted_by, engine_execution_date
		FROM workflow_runs
		WHERE workflow_name = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{workflowName, afterSeq}

	// Fetch one extra row to learn whether another page exists.
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	page := &model.RunPage{}
	var seqs []int64
	for rows.Next() {
		var seq int64
		var run model.WorkflowRun
		var status string
		var submittedBy, executionDate sql.NullString

		err := rows.Scan(
			&seq, &run.WorkflowName, &run.RunID, &run.WorkflowID, &status,
			&run.StartTimeStamp, &run.EndTimeStamp, &submittedBy, &executionDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Status = model.Status(status)
		if submittedBy.Valid {
			run.SubmittedBy = submittedBy.String
		}
		if executionDate.Valid {
			run.EngineExecutionDate = executionDate.String
		}

		page.Items = append(page.Items, &run)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	if limit > 0 && len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.Cursor = strconv.FormatInt(seqs[limit-1], 10)
	}
	return page, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*model.WorkflowMetadata, error) {
	var metadata model.WorkflowMetadata
	var description, createdBy, instructionsJSON sql.NullString
	var deployed int

	err := row.Scan(
		&metadata.WorkflowName, &metadata.WorkflowID, &description, &createdBy,
		&metadata.CreationTimestamp, &metadata.Version, &deployed, &instructionsJSON,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		metadata.Description = description.String
	}
	if createdBy.Valid {
		metadata.CreatedBy = createdBy.String
	}
	metadata.IsDeployedThroughWorkflowService = deployed == 1

	if instructionsJSON.Valid && instructionsJSON.String != "" {
		if err := json.Unmarshal([]byte(instructionsJSON.String), &metadata.RegistrationInstructions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal registration instructions: %w", err)
		}
	}

	return &metadata, nil
}

func scanRun(row rowScanner) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	var status string
	var submittedBy, executionDate sql.NullString

	err := row.Scan(
		&run.WorkflowName, &run.RunID, &run.WorkflowID, &status,
		&run.StartTimeStamp, &run.EndTimeStamp, &submittedBy, &executionDate,
	)
	if err != nil {
		return nil, err
	}

	run.Status = model.Status(status)
	if submittedBy.Valid {
		run.SubmittedBy = submittedBy.String
	}
	if executionDate.Valid {
		run.EngineExecutionDate = executionDate.String
	}
	return &run, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// nullString returns nil if string is empty, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullBytes returns nil if byte slice is empty, otherwise the string representation.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
