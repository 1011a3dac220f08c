// Package store persists translation runs and the API calls they made.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/db"
	"github.com/agentic-turing/atm/pkg/db/migrations"
)

// RunStatus is the lifecycle state of a translation run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one execution of the translation chain for a noise level
type Run struct {
	ID          string     `db:"id" json:"id"`
	NoiseLevel  int        `db:"noise_level" json:"noise_level"`
	InputText   string     `db:"input_text" json:"input_text"`
	FinalOutput string     `db:"final_output" json:"final_output,omitempty"`
	Status      RunStatus  `db:"status" json:"status"`
	Error       string     `db:"error" json:"error,omitempty"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Store is the SQLite backed run and call store
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps an already migrated database
func New(database *sqlx.DB) *Store {
	return &Store{db: database, now: func() time.Time { return time.Now().UTC() }}
}

// Open opens the database at path and applies migrations
func Open(ctx context.Context, path string) (*Store, error) {
	database, err := db.OpenAndMigrate(ctx, path, migrations.All())
	if err != nil {
		return nil, err
	}
	return New(database), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

const runColumns = `id, noise_level, input_text, COALESCE(final_output, '') AS final_output, status,
	COALESCE(error, '') AS error, started_at, finished_at`

// CreateRun inserts a run in the running state
func (s *Store) CreateRun(ctx context.Context, noiseLevel int, input string) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		NoiseLevel: noiseLevel,
		InputText:  input,
		Status:     StatusRunning,
		StartedAt:  s.now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_runs (id, noise_level, input_text, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.NoiseLevel, run.InputText, run.Status, run.StartedAt)
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to insert translation run")
	}
	return run, nil
}

// FinishRun marks a run completed, or failed when runErr is not nil
func (s *Store) FinishRun(ctx context.Context, id, finalOutput string, runErr error) error {
	status := StatusCompleted
	var errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE translation_runs SET final_output = ?, status = ?, error = ?, finished_at = ? WHERE id = ?`,
		finalOutput, status, errText, s.now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update translation run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("translation run %s not found", id)
	}
	return nil
}

// GetRun returns a single run
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM translation_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Errorf("translation run %s not found", id)
	}
	return run, errors.Wrap(err, "failed to get translation run")
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM translation_runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list translation runs")
	}
	return runs, nil
}

// RecordCall stores a tracked call. It satisfies cost.Sink.
func (s *Store) RecordCall(ctx context.Context, call cost.Call) error {
	runID := sql.NullString{String: call.RunID, Valid: call.RunID != ""}
	createdAt := call.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_calls (run_id, provider, model, stage, noise_level, input_tokens, output_tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, call.Provider, call.Model, call.Stage, call.NoiseLevel, call.InputTokens, call.OutputTokens, call.Cost, createdAt.UTC())
	return errors.Wrap(err, "failed to insert api call")
}

const callColumns = `COALESCE(run_id, '') AS run_id, provider, model, stage, noise_level, input_tokens, output_tokens, cost, created_at`

// CallsForRun returns the calls of a run in stage order
func (s *Store) CallsForRun(ctx context.Context, runID string) ([]cost.Call, error) {
	calls := []cost.Call{}
	err := s.db.SelectContext(ctx, &calls, `SELECT `+callColumns+` FROM api_calls WHERE run_id = ? ORDER BY stage, id`, runID)
	return calls, errors.Wrap(err, "failed to list api calls")
}

// Calls returns every stored call, oldest first
func (s *Store) Calls(ctx context.Context) ([]cost.Call, error) {
	calls := []cost.Call{}
	err := s.db.SelectContext(ctx, &calls, `SELECT `+callColumns+` FROM api_calls ORDER BY id`)
	return calls, errors.Wrap(err, "failed to list api calls")
}

// CostSummary aggregates every stored call
func (s *Store) CostSummary(ctx context.Context, currency string) (cost.Summary, error) {
	summary := cost.Summary{
		CostByStage:      map[int]float64{1: 0, 2: 0, 3: 0},
		CostByNoiseLevel: map[int]float64{},
		Currency:         currency,
	}

	var totals struct {
		Calls  int     `db:"calls"`
		Cost   float64 `db:"cost"`
		Input  int     `db:"input"`
		Output int     `db:"output"`
	}
	if err := s.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS calls, COALESCE(SUM(cost), 0) AS cost,
			COALESCE(SUM(input_tokens), 0) AS input, COALESCE(SUM(output_tokens), 0) AS output
		FROM api_calls`); err != nil {
		return summary, errors.Wrap(err, "failed to aggregate api calls")
	}

	summary.TotalCalls = totals.Calls
	summary.TotalCost = totals.Cost
	summary.TotalTokens = cost.Tokens{Input: totals.Input, Output: totals.Output, Total: totals.Input + totals.Output}
	if totals.Calls > 0 {
		summary.AverageCostPerCall = totals.Cost / float64(totals.Calls)
	}

	type bucket struct {
		Key  int     `db:"bucket_key"`
		Cost float64 `db:"cost"`
	}
	for column, target := range map[string]map[int]float64{
		"stage":       summary.CostByStage,
		"noise_level": summary.CostByNoiseLevel,
	} {
		var buckets []bucket
		if err := s.db.SelectContext(ctx, &buckets,
			`SELECT `+column+` AS bucket_key, SUM(cost) AS cost FROM api_calls GROUP BY `+column); err != nil {
			return summary, errors.Wrapf(err, "failed to aggregate api calls by %s", column)
		}
		for _, b := range buckets {
			target[b.Key] = b.Cost
		}
	}

	return summary, nil
}
