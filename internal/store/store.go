package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one batch: a model translating a corpus into one target language.
type Run struct {
	ID         string
	Experiment string
	ModelID    string
	Strategy   string
	SourceLang string
	TargetLang string
	SourceFile string
	OutputFile string
	NLines     int
	NCalls     int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// CallRecord is the per-call metadata of a completed run.
type CallRecord struct {
	Index     int
	Line      int
	Pass      int
	Prompt    string
	Output    string
	Attempts  int
	LatencyMs int64
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Experiment string
	ModelID    string
	TargetLang string
	Status     string
	Limit      int
}

// Stats summarises the ledger.
type Stats struct {
	TotalRuns     int
	Completed     int
	Failed        int
	Running       int
	TotalCalls    int
	TotalAttempts int
	RetriedCalls  int
	AvgLatencyMs  float64
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_file TEXT NOT NULL,
		output_file TEXT NOT NULL DEFAULT '',
		nlines INTEGER NOT NULL,
		ncalls INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	-- run_calls holds per-call metadata of completed runs
	CREATE TABLE IF NOT EXISTS run_calls (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		line INTEGER NOT NULL,
		pass INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		output TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, idx),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(experiment, model_id, target_lang);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun records a run in the running state and returns its id. An empty
// run.ID is replaced with a fresh UUID.
func (s *Store) StartRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, model_id, strategy, source_lang, target_lang, source_file, output_file, nlines, ncalls, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Experiment, run.ModelID, run.Strategy, run.SourceLang, run.TargetLang,
		run.SourceFile, run.OutputFile, run.NLines, run.NCalls, StatusRunning, run.StartedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return run.ID, nil
}

// FinishRun closes a run. A nil runErr marks it completed, anything else
// failed with the error text.
func (s *Store) FinishRun(ctx context.Context, id, outputFile string, runErr error) error {
	status, msg := StatusCompleted, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, output_file = ?, finished_at = ? WHERE id = ?`,
		status, msg, outputFile, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return expectRow(res, id)
}

// SaveCalls stores the calls of a run in one transaction and updates the
// run's call count.
func (s *Store) SaveCalls(ctx context.Context, runID string, calls []CallRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO run_calls (run_id, idx, line, pass, prompt, output, attempts, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range calls {
		if _, err = stmt.ExecContext(ctx, runID, c.Index, c.Line, c.Pass,
			normalizeText(c.Prompt), c.Output, c.Attempts, c.LatencyMs); err != nil {
			return fmt.Errorf("failed to save call %d: %w", c.Index, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET ncalls = (SELECT COUNT(*) FROM run_calls WHERE run_id = ?) WHERE id = ?`, runID, runID)
	if err != nil {
		return fmt.Errorf("failed to update call count: %w", err)
	}
	if err = expectRow(res, runID); err != nil {
		return err
	}
	return tx.Commit()
}

const runColumns = `id, experiment, model_id, strategy, source_lang, target_lang, source_file, output_file, nlines, ncalls, status, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := sc.Scan(&r.ID, &r.Experiment, &r.ModelID, &r.Strategy, &r.SourceLang, &r.TargetLang,
		&r.SourceFile, &r.OutputFile, &r.NLines, &r.NCalls, &r.Status, &r.Error, &r.StartedAt, &finished)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, err
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs matching f, newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var conds []string
	var args []any
	for _, c := range []struct{ col, val string }{
		{"experiment", f.Experiment},
		{"model_id", f.ModelID},
		{"target_lang", f.TargetLang},
		{"status", f.Status},
	} {
		if c.val != "" {
			conds = append(conds, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY started_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListCalls returns the calls of a run in input order.
func (s *Store) ListCalls(ctx context.Context, runID string) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, line, pass, prompt, output, attempts, latency_ms FROM run_calls WHERE run_id = ? ORDER BY idx`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(&c.Index, &c.Line, &c.Pass, &c.Prompt, &c.Output, &c.Attempts, &c.LatencyMs); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// CompletedTargets returns the target languages that have a completed run
// for the experiment and model, mapped to the latest artifact path.
func (s *Store) CompletedTargets(ctx context.Context, experiment, modelID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_lang, output_file FROM runs
		 WHERE experiment = ? AND model_id = ? AND status = ?
		 ORDER BY started_at`,
		experiment, modelID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]string)
	for rows.Next() {
		var target, output string
		if err := rows.Scan(&target, &output); err != nil {
			return nil, err
		}
		done[target] = output
	}
	return done, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0)
		FROM runs`).Scan(
		&stats.TotalRuns,
		&stats.Completed,
		&stats.Failed,
		&stats.Running,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(attempts), 0),
			COALESCE(SUM(CASE WHEN attempts > 1 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM run_calls`).Scan(
		&stats.TotalCalls,
		&stats.TotalAttempts,
		&stats.RetriedCalls,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteRun removes a run and its calls.
func (s *Store) DeleteRun(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM run_calls WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = expectRow(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// normalizeText trims whitespace and applies Unicode NFC normalization.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
