package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// ErrNotFound is returned when a run is not in the archive.
var ErrNotFound = errors.New("run not found")

// Store is a SQLite-backed run archive.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the archive at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID               string          `db:"id"`
	Status           string          `db:"status"`
	Model            string          `db:"model"`
	Period           sql.NullFloat64 `db:"period"`
	OnDuration       sql.NullFloat64 `db:"on_duration"`
	Amin             sql.NullFloat64 `db:"amin"`
	Amax             sql.NullFloat64 `db:"amax"`
	Rates            string          `db:"rates"`
	CreatedAt        string          `db:"created_at"`
	StartedAt        sql.NullString  `db:"started_at"`
	EndedAt          sql.NullString  `db:"ended_at"`
	DurationMs       int64           `db:"duration_ms"`
	HabituationTime  sql.NullFloat64 `db:"habituation_time"`
	HabituationSteps sql.NullInt64   `db:"habituation_steps"`
	RecoveryTime     sql.NullFloat64 `db:"recovery_time"`
	Outcome          sql.NullString  `db:"outcome"`
	Periods          sql.NullInt64   `db:"periods"`
	DegradedPeriods  sql.NullInt64   `db:"degraded_periods"`
	Error            string          `db:"error"`
}

type peakRow struct {
	RunID string          `db:"run_id"`
	Idx   int             `db:"idx"`
	Step  int             `db:"step"`
	Level sql.NullFloat64 `db:"level"`
}

const runColumns = `id, status, model, period, on_duration, amin, amax, rates,
	created_at, started_at, ended_at, duration_ms,
	habituation_time, habituation_steps, recovery_time, outcome, periods, degraded_periods, error`

// Save inserts or replaces a run and its peaks.
func (s *Store) Save(ctx context.Context, run *models.Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (:id, :status, :model, :period, :on_duration, :amin, :amax, :rates,
			:created_at, :started_at, :ended_at, :duration_ms,
			:habituation_time, :habituation_steps, :recovery_time, :outcome, :periods, :degraded_periods, :error)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			model = excluded.model,
			period = excluded.period,
			on_duration = excluded.on_duration,
			amin = excluded.amin,
			amax = excluded.amax,
			rates = excluded.rates,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms,
			habituation_time = excluded.habituation_time,
			habituation_steps = excluded.habituation_steps,
			recovery_time = excluded.recovery_time,
			outcome = excluded.outcome,
			periods = excluded.periods,
			degraded_periods = excluded.degraded_periods,
			error = excluded.error
	`, row)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM peaks WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear peaks for run %s: %w", run.ID, err)
	}
	if run.Summary != nil && len(run.Summary.Peaks) > 0 {
		peaks := make([]peakRow, len(run.Summary.Peaks))
		for i, p := range run.Summary.Peaks {
			peaks[i] = peakRow{RunID: run.ID, Idx: i, Step: p.Step, Level: nullFloat(p.Level)}
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO peaks (run_id, idx, step, level) VALUES (:run_id, :idx, :step, :level)`, peaks)
		if err != nil {
			return fmt.Errorf("failed to save peaks for run %s: %w", run.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns a run with its peaks.
func (s *Store) Get(ctx context.Context, id string) (*models.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	run, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	if run.Summary != nil {
		peaks, err := s.Peaks(ctx, id)
		if err != nil {
			return nil, err
		}
		run.Summary.Peaks = peaks
	}
	return run, nil
}

// Peaks returns the stored peaks of a run in order.
func (s *Store) Peaks(ctx context.Context, id string) ([]models.Extremum, error) {
	var rows []peakRow
	err := s.db.SelectContext(ctx, &rows, `SELECT run_id, idx, step, level FROM peaks WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load peaks for run %s: %w", id, err)
	}
	out := make([]models.Extremum, len(rows))
	for i, r := range rows {
		out[i] = models.Extremum{Step: r.Step, Level: floatOrNaN(r.Level)}
	}
	return out, nil
}

// List returns the newest runs first, without peaks. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]*models.Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Delete removes a run and its peaks.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func toRow(run *models.Run) (runRow, error) {
	if run == nil || run.ID == "" {
		return runRow{}, fmt.Errorf("run id is required")
	}
	rates, err := json.Marshal(run.Params.Rates)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to encode rates: %w", err)
	}
	row := runRow{
		ID:         run.ID,
		Status:     string(run.Status),
		Model:      run.Model,
		Period:     nullFloat(run.Params.Period),
		OnDuration: nullFloat(run.Params.OnDuration),
		Amin:       nullFloat(run.Params.Amin),
		Amax:       nullFloat(run.Params.Amax),
		Rates:      string(rates),
		CreatedAt:  run.CreatedAt.UTC().Format(time.RFC3339Nano),
		StartedAt:  nullTime(run.StartedAt),
		EndedAt:    nullTime(run.EndedAt),
		DurationMs: run.Duration.Milliseconds(),
		Error:      run.Error,
	}
	if sum := run.Summary; sum != nil {
		row.HabituationTime = nullFloat(sum.HabituationTime)
		row.HabituationSteps = sql.NullInt64{Int64: int64(sum.HabituationSteps), Valid: true}
		row.RecoveryTime = nullFloat(sum.RecoveryTime)
		row.Outcome = sql.NullString{String: string(sum.Outcome), Valid: true}
		row.Periods = sql.NullInt64{Int64: int64(sum.Periods), Valid: true}
		row.DegradedPeriods = sql.NullInt64{Int64: int64(sum.DegradedPeriods), Valid: true}
	}
	return row, nil
}

func fromRow(row runRow) (*models.Run, error) {
	run := &models.Run{
		ID:     row.ID,
		Status: models.RunStatus(row.Status),
		Model:  row.Model,
		Params: models.ParameterSet{Protocol: models.NewProtocol(
			floatOrNaN(row.Period),
			floatOrNaN(row.OnDuration),
			floatOrNaN(row.Amax),
			models.WithAmin(floatOrNaN(row.Amin)),
		)},
		Duration: time.Duration(row.DurationMs) * time.Millisecond,
		Error:    row.Error,
	}
	if err := json.Unmarshal([]byte(row.Rates), &run.Params.Rates); err != nil {
		return nil, fmt.Errorf("run %s: failed to decode rates: %w", row.ID, err)
	}
	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, row.CreatedAt); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", row.ID, err)
	}
	if run.StartedAt, err = parseNullTime(row.StartedAt); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", row.ID, err)
	}
	if run.EndedAt, err = parseNullTime(row.EndedAt); err != nil {
		return nil, fmt.Errorf("run %s: bad ended_at: %w", row.ID, err)
	}
	if row.Outcome.Valid {
		run.Summary = &models.RunSummary{
			HabituationTime:  floatOrNaN(row.HabituationTime),
			HabituationSteps: int(row.HabituationSteps.Int64),
			RecoveryTime:     floatOrNaN(row.RecoveryTime),
			Outcome:          models.Outcome(row.Outcome.String),
			Periods:          int(row.Periods.Int64),
			DegradedPeriods:  int(row.DegradedPeriods.Int64),
		}
	}
	return run, nil
}

// SQLite has no NaN; unset values are stored as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}
