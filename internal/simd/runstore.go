package simd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run already exists")
	ErrRunTerminal  = errors.New("run is terminal")
	ErrRunIDMissing = errors.New("run_id is required")
	ErrInvalidRunID = errors.New("invalid run id")
	ErrInvalidInput = errors.New("invalid run input")
)

// RunInput is what a client submits to start an experiment.
type RunInput struct {
	ProtocolYAML   string `json:"protocol_yaml"`
	SkipRecovery   bool   `json:"skip_recovery,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"-"`
}

// RunRecord is a run plus its input and, once completed, its full result.
type RunRecord struct {
	Run    *models.Run
	Input  RunInput
	Result *models.Result
}

// RunStore keeps run records in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
	now  func() time.Time
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// snapshot copies the mutable parts of a record so callers never share it
// with the executor.
func (r *RunRecord) snapshot() *RunRecord {
	run := *r.Run
	return &RunRecord{Run: &run, Input: r.Input, Result: r.Result}
}

// Create registers a pending run. An empty runID gets a generated one.
func (s *RunStore) Create(runID string, input RunInput) (*RunRecord, error) {
	if strings.ContainsAny(runID, "/:? ") {
		return nil, fmt.Errorf("%w: %q cannot contain '/', ':', '?' or spaces", ErrInvalidRunID, runID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	rec := &RunRecord{
		Run: &models.Run{
			ID:        runID,
			Status:    models.RunStatusPending,
			CreatedAt: s.now(),
		},
		Input: input,
	}
	s.runs[runID] = rec
	return rec.snapshot(), nil
}

func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.snapshot(), true
}

// List returns up to limit runs, newest first. Status filters when non-empty.
func (s *RunStore) List(limit int, status models.RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status != "" && rec.Run.Status != status {
			continue
		}
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Run.CreatedAt.Equal(out[j].Run.CreatedAt) {
			return out[i].Run.CreatedAt.After(out[j].Run.CreatedAt)
		}
		return out[i].Run.ID < out[j].Run.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetModel records the model name once the protocol has been parsed.
func (s *RunStore) SetModel(runID, model string, params models.ParameterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Run.Model = model
	rec.Run.Params = params
	return nil
}

// SetStatus moves a run to status. Terminal runs never change again.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.active(runID)
	if err != nil {
		return nil, err
	}
	s.transition(rec, status, errMsg)
	return rec.snapshot(), nil
}

// Complete stores the result of a running run and marks it completed.
// errMsg records a non-fatal failure such as a failed recovery search.
func (s *RunStore) Complete(runID string, result *models.Result, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.active(runID)
	if err != nil {
		return nil, err
	}
	rec.Result = result
	rec.Run.Summary = models.Summarize(result)
	s.transition(rec, models.RunStatusCompleted, errMsg)
	return rec.snapshot(), nil
}

func (s *RunStore) active(runID string) (*RunRecord, error) {
	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}
	return rec, nil
}

func (s *RunStore) transition(rec *RunRecord, status models.RunStatus, errMsg string) {
	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}

	now := s.now()
	switch status {
	case models.RunStatusRunning:
		if rec.Run.StartedAt.IsZero() {
			rec.Run.StartedAt = now
		}
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		rec.Run.EndedAt = now
		if !rec.Run.StartedAt.IsZero() {
			rec.Run.Duration = now.Sub(rec.Run.StartedAt)
		}
	}
}
