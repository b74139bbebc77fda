package migration

import (
	"context"

	"fairnb/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run-history schema. The DDL sticks to types
// that both PostgreSQL and SQLite accept.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeStorageError, errors.Wrap(err, "failed to create runs table"))
	}

	if err := r.createIterationsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeStorageError, errors.Wrap(err, "failed to create iterations table"))
	}

	if err := r.createPatternsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeStorageError, errors.Wrap(err, "failed to create patterns table"))
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.WithCode(errors.CodeStorageError, errors.Wrap(err, "failed to create indexes"))
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(64) PRIMARY KEY,
			dataset VARCHAR(100) NOT NULL,
			selector VARCHAR(10) NOT NULL,
			delta DOUBLE PRECISION NOT NULL,
			k INTEGER NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'running',
			baseline_independent DOUBLE PRECISION,
			baseline_unconstrained DOUBLE PRECISION,
			iterations INTEGER NOT NULL DEFAULT 0,
			log_likelihood DOUBLE PRECISION,
			total_patterns INTEGER NOT NULL DEFAULT 0,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)
	`)
	return err
}

func (r *MigrationRunner) createIterationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS iterations (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			log_likelihood DOUBLE PRECISION NOT NULL,
			valid BOOLEAN NOT NULL,
			nodes_visited BIGINT NOT NULL,
			accepted INTEGER NOT NULL,
			satisfaction DOUBLE PRECISION NOT NULL,
			total_patterns INTEGER NOT NULL,
			PRIMARY KEY (run_id, iteration)
		)
	`)
	return err
}

func (r *MigrationRunner) createPatternsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patterns (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			sens TEXT NOT NULL,
			base TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			p_dy DOUBLE PRECISION NOT NULL,
			p_not_dy DOUBLE PRECISION NOT NULL,
			p_dxy DOUBLE PRECISION NOT NULL,
			p_not_dxy DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, iteration, ordinal)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_config ON runs(dataset, selector, delta, k)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_run ON patterns(run_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
