package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func completedRun(id string, created time.Time) *models.Run {
	return &models.Run{
		ID:     id,
		Status: models.RunStatusCompleted,
		Model:  "depletion",
		Params: models.ParameterSet{
			Protocol: models.NewProtocol(10, 1, 1),
			Rates:    []float64{0.01, 1, 1, 1},
		},
		CreatedAt: created,
		StartedAt: created.Add(time.Millisecond),
		EndedAt:   created.Add(250 * time.Millisecond),
		Duration:  249 * time.Millisecond,
		Summary: &models.RunSummary{
			HabituationTime:  120,
			HabituationSteps: 12,
			RecoveryTime:     310.5,
			Outcome:          models.OutcomeHabituated,
			Periods:          14,
			Peaks:            []models.Extremum{{Step: 20, Level: 0.6}, {Step: 220, Level: 0.5}, {Step: 420, Level: math.NaN()}},
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	if err := s.Save(ctx, completedRun("run-a", created)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, "run-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.Model != "depletion" {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.Duration != 249*time.Millisecond {
		t.Fatalf("times not preserved: %v %v", got.CreatedAt, got.Duration)
	}
	if got.Params.Period != 10 || got.Params.Amax != 1 || len(got.Params.Rates) != 4 {
		t.Fatalf("params not preserved: %+v", got.Params)
	}
	if got.Summary == nil || got.Summary.HabituationSteps != 12 || got.Summary.RecoveryTime != 310.5 {
		t.Fatalf("summary not preserved: %+v", got.Summary)
	}
	if len(got.Summary.Peaks) != 3 || got.Summary.Peaks[1].Step != 220 {
		t.Fatalf("peaks not preserved: %+v", got.Summary.Peaks)
	}
	if !math.IsNaN(got.Summary.Peaks[2].Level) {
		t.Fatalf("expected NaN level to round-trip through NULL, got %v", got.Summary.Peaks[2].Level)
	}
}

func TestSaveUpdatesExistingRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &models.Run{
		ID:        "run-b",
		Status:    models.RunStatusRunning,
		Model:     "linear",
		Params:    models.ParameterSet{Protocol: models.Unset(), Rates: []float64{1}},
		CreatedAt: time.Now(),
	}
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, "run-b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != nil || !got.StartedAt.IsZero() {
		t.Fatalf("expected no summary and no start time, got %+v", got)
	}
	if !math.IsNaN(got.Params.Period) {
		t.Fatalf("expected unset period to load as NaN, got %v", got.Params.Period)
	}

	run.Status = models.RunStatusFailed
	run.Error = "solver diverged"
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	got, err = s.Get(ctx, "run-b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.RunStatusFailed || got.Error != "solver diverged" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		if err := s.Save(ctx, completedRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	runs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Fatalf("unexpected order: %v", ids(runs))
	}
	if runs[0].Summary == nil || runs[0].Summary.Peaks != nil {
		t.Fatalf("list should carry summaries without peaks")
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
}

func TestDeleteCascadesPeaks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, completedRun("run-c", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "run-c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "run-c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	peaks, err := s.Peaks(ctx, "run-c")
	if err != nil {
		t.Fatalf("Peaks: %v", err)
	}
	if len(peaks) != 0 {
		t.Fatalf("expected peaks to be removed, got %d", len(peaks))
	}
	if err := s.Delete(ctx, "run-c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		var n int
		if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM schema_version`); err != nil {
			t.Fatalf("count versions: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected one schema_version row, got %d", n)
		}
		s.Close()
	}
}

func TestSaveRejectsMissingID(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), &models.Run{}); err == nil {
		t.Fatal("expected error for run without id")
	}
}

func ids(runs []*models.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
