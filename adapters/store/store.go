// Package store persists run history (runs, iterations and accepted
// patterns) in PostgreSQL or SQLite through sqlx.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/internal/errors"
	"fairnb/internal/migration"
	"fairnb/ports"
)

// Store records runs. It implements ports.RunObserver.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

var _ ports.RunObserver = (*Store)(nil)

// RunRow is one row of the runs table.
type RunRow struct {
	ID                    string          `db:"id"`
	Dataset               string          `db:"dataset"`
	Selector              string          `db:"selector"`
	Delta                 float64         `db:"delta"`
	K                     int             `db:"k"`
	Status                string          `db:"status"`
	BaselineIndependent   sql.NullFloat64 `db:"baseline_independent"`
	BaselineUnconstrained sql.NullFloat64 `db:"baseline_unconstrained"`
	Iterations            int             `db:"iterations"`
	LogLikelihood         sql.NullFloat64 `db:"log_likelihood"`
	TotalPatterns         int             `db:"total_patterns"`
	ElapsedMs             int64           `db:"elapsed_ms"`
	ErrorMessage          sql.NullString  `db:"error_message"`
	CreatedAt             time.Time       `db:"created_at"`
	FinishedAt            sql.NullTime    `db:"finished_at"`
}

type patternRow struct {
	RunID     string  `db:"run_id"`
	Iteration int     `db:"iteration"`
	Ordinal   int     `db:"ordinal"`
	Sens      string  `db:"sens"`
	Base      string  `db:"base"`
	Score     float64 `db:"score"`
	PDY       float64 `db:"p_dy"`
	PNotDY    float64 `db:"p_not_dy"`
	PDXY      float64 `db:"p_dxy"`
	PNotDXY   float64 `db:"p_not_dxy"`
}

type iterationRow struct {
	RunID string `db:"run_id"`
	run.IterationRecord
}

// ParseDSN maps a STORE_DSN value to a database/sql driver and source.
// postgres:// and postgresql:// URLs use lib/pq; sqlite3://path, sqlite://path,
// file: URIs, :memory: and bare paths use go-sqlite3.
func ParseDSN(dsn string) (driver, source string, err error) {
	switch {
	case dsn == "":
		return "", "", errors.ConfigInvalid("empty store DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite3://"), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.Contains(dsn, "://"):
		return "", "", errors.ConfigInvalid(fmt.Sprintf("unsupported store DSN scheme in %q", dsn))
	default:
		return "sqlite3", dsn, nil
	}
}

// Open connects to the database named by dsn and migrates the schema.
func Open(ctx context.Context, dsn string, logger *logrus.Logger) (*Store, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, errors.StorageError("failed to connect to run store", err)
	}
	if driver == "sqlite3" {
		// one writer; also keeps a :memory: database on a single connection
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, errors.StorageError("failed to enable foreign keys", err)
		}
	}
	s := New(db, logger)
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"driver": driver}).Info("[Store] run store ready")
	return s, nil
}

// New wraps an already migrated connection.
func New(db *sqlx.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Store{db: db, logger: logger}
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunStarted(ctx context.Context, m *run.Manifest, baseline run.Baseline) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO runs (id, dataset, selector, delta, k, status,
			baseline_independent, baseline_unconstrained, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), m.RunID.String(), m.Dataset, string(m.Selector), m.Delta, m.K, string(run.StatusRunning),
		baseline.Independent, baseline.Unconstrained, created)
	if err != nil {
		return errors.StorageError("failed to insert run", err)
	}
	return nil
}

func (s *Store) IterationCompleted(ctx context.Context, m *run.Manifest, rec run.IterationRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO iterations (run_id, iteration, log_likelihood, valid, nodes_visited,
			accepted, satisfaction, total_patterns)
		VALUES (:run_id, :iteration, :log_likelihood, :valid, :nodes_visited,
			:accepted, :satisfaction, :total_patterns)
	`, iterationRow{RunID: m.RunID.String(), IterationRecord: rec})
	if err != nil {
		return errors.StorageError("failed to insert iteration", err)
	}

	for i, p := range rec.Patterns {
		row, err := toPatternRow(m.RunID, rec.Iteration, i, p)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO patterns (run_id, iteration, ordinal, sens, base, score,
				p_dy, p_not_dy, p_dxy, p_not_dxy)
			VALUES (:run_id, :iteration, :ordinal, :sens, :base, :score,
				:p_dy, :p_not_dy, :p_dxy, :p_not_dxy)
		`, row)
		if err != nil {
			return errors.StorageError("failed to insert pattern", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("failed to commit iteration", err)
	}
	return nil
}

func (s *Store) RunFinished(ctx context.Context, m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) error {
	var errMsg sql.NullString
	if summary.Err != nil {
		errMsg = sql.NullString{String: summary.Err.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE runs SET status = ?, iterations = ?, log_likelihood = ?, total_patterns = ?,
			elapsed_ms = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`), string(summary.Status), summary.Iterations, summary.LogLikelihood, summary.TotalPatterns,
		summary.Elapsed.Milliseconds(), errMsg, time.Now().UTC(), m.RunID.String())
	if err != nil {
		return errors.StorageError("failed to update run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// the run failed before RunStarted; record it now
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO runs (id, dataset, selector, delta, k, status, iterations,
				total_patterns, elapsed_ms, error_message, created_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), m.RunID.String(), m.Dataset, string(m.Selector), m.Delta, m.K, string(summary.Status),
			summary.Iterations, summary.TotalPatterns, summary.Elapsed.Milliseconds(), errMsg,
			time.Now().UTC(), time.Now().UTC())
		if err != nil {
			return errors.StorageError("failed to insert finished run", err)
		}
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id core.RunID) (*RunRow, error) {
	var row RunRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM runs WHERE id = ?`), id.String())
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(fmt.Sprintf("run %s not found", id), err)
	}
	if err != nil {
		return nil, errors.StorageError("failed to load run", err)
	}
	return &row, nil
}

// ListRuns returns the runs of a dataset, newest first.
func (s *Store) ListRuns(ctx context.Context, dataset string) ([]RunRow, error) {
	var rows []RunRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT * FROM runs WHERE dataset = ? ORDER BY created_at DESC, id
	`), dataset)
	if err != nil {
		return nil, errors.StorageError("failed to list runs", err)
	}
	return rows, nil
}

// Iterations returns the iteration records of a run in order. Patterns are
// not loaded.
func (s *Store) Iterations(ctx context.Context, id core.RunID) ([]run.IterationRecord, error) {
	var rows []iterationRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT run_id, iteration, log_likelihood, valid, nodes_visited, accepted,
			satisfaction, total_patterns
		FROM iterations WHERE run_id = ? ORDER BY iteration
	`), id.String())
	if err != nil {
		return nil, errors.StorageError("failed to list iterations", err)
	}
	out := make([]run.IterationRecord, len(rows))
	for i, r := range rows {
		out[i] = r.IterationRecord
	}
	return out, nil
}

// Patterns returns the accepted patterns of a run in acceptance order.
func (s *Store) Patterns(ctx context.Context, id core.RunID) ([]pattern.Pattern, error) {
	var rows []patternRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT * FROM patterns WHERE run_id = ? ORDER BY iteration, ordinal
	`), id.String())
	if err != nil {
		return nil, errors.StorageError("failed to list patterns", err)
	}
	out := make([]pattern.Pattern, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPattern()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toPatternRow(id core.RunID, iteration, ordinal int, p pattern.Pattern) (patternRow, error) {
	sens, err := json.Marshal(nonNil(p.Sens))
	if err != nil {
		return patternRow{}, errors.StorageError("failed to encode pattern", err)
	}
	base, err := json.Marshal(nonNil(p.Base))
	if err != nil {
		return patternRow{}, errors.StorageError("failed to encode pattern", err)
	}
	return patternRow{
		RunID:     id.String(),
		Iteration: iteration,
		Ordinal:   ordinal,
		Sens:      string(sens),
		Base:      string(base),
		Score:     p.Score,
		PDY:       p.PDY,
		PNotDY:    p.PNotDY,
		PDXY:      p.PDXY,
		PNotDXY:   p.PNotDXY,
	}, nil
}

func (r patternRow) toPattern() (pattern.Pattern, error) {
	p := pattern.Pattern{
		Score:   r.Score,
		PDY:     r.PDY,
		PNotDY:  r.PNotDY,
		PDXY:    r.PDXY,
		PNotDXY: r.PNotDXY,
	}
	if err := json.Unmarshal([]byte(r.Sens), &p.Sens); err != nil {
		return p, errors.StorageError("failed to decode pattern", err)
	}
	if err := json.Unmarshal([]byte(r.Base), &p.Base); err != nil {
		return p, errors.StorageError("failed to decode pattern", err)
	}
	return p, nil
}

func nonNil(as []pattern.Assignment) []pattern.Assignment {
	if as == nil {
		return []pattern.Assignment{}
	}
	return as
}
