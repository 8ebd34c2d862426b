package simd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/GoSim-25-26J-441/habituation-core/internal/experiment"
	"github.com/GoSim-25-26J-441/habituation-core/internal/metrics"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// Archive persists finished runs. *store.Store satisfies it.
type Archive interface {
	Save(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]*models.Run, error)
}

// RunExecutor runs experiments asynchronously, at most workers at a time
// (unbounded when workers <= 0).
type RunExecutor struct {
	store    *RunStore
	archive  Archive
	notifier *Notifier
	metrics  *metrics.Collector
	sem      *semaphore.Weighted
	log      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// ExecutorOption configures a RunExecutor.
type ExecutorOption func(*RunExecutor)

// WithArchive saves every terminal run to a.
func WithArchive(a Archive) ExecutorOption {
	return func(e *RunExecutor) { e.archive = a }
}

// WithNotifier sends completion callbacks through n.
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *RunExecutor) { e.notifier = n }
}

// WithMetrics records finished runs into c instead of a private collector.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *RunExecutor) {
		if c != nil {
			e.metrics = c
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *RunExecutor) {
		if l != nil {
			e.log = l
		}
	}
}

func NewRunExecutor(store *RunStore, workers int, opts ...ExecutorOption) *RunExecutor {
	e := &RunExecutor{
		store:   store,
		log:     logger.Component("executor"),
		metrics: metrics.NewCollector(),
		cancels: make(map[string]context.CancelFunc),
	}
	if workers > 0 {
		e.sem = semaphore.NewWeighted(int64(workers))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Archive returns the configured archive, or nil.
func (e *RunExecutor) Archive() Archive {
	return e.archive
}

// Metrics returns the collector finished runs are recorded in.
func (e *RunExecutor) Metrics() *metrics.Collector {
	return e.metrics
}

// Submit validates the protocol, creates a run and starts it.
func (e *RunExecutor) Submit(runID string, input RunInput) (*RunRecord, error) {
	if input.ProtocolYAML == "" {
		return nil, fmt.Errorf("%w: protocol_yaml is required", ErrInvalidInput)
	}
	if _, err := config.ParseProtocolYAMLString(input.ProtocolYAML); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.CallbackURL != "" {
		if err := ValidateCallbackURL(input.CallbackURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	rec, err := e.store.Create(runID, input)
	if err != nil {
		return nil, err
	}
	return e.Start(rec.Run.ID)
}

// Start queues a pending run. The run turns RUNNING once a worker slot is
// free. Starting a running run is a no-op.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	e.mu.Lock()
	if _, queued := e.cancels[runID]; queued {
		e.mu.Unlock()
		return rec, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancels[runID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(ctx, runID)
	return rec, nil
}

// Stop cancels a queued or running run and marks it cancelled. A run already
// inside Compute finishes its integration but its result is discarded.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	updated, err := e.store.SetStatus(runID, models.RunStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	e.log.Info("run cancelled", "run_id", runID)
	e.finish(updated)
	return updated, nil
}

// Wait blocks until every started run has returned.
func (e *RunExecutor) Wait() {
	e.wg.Wait()
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) run(ctx context.Context, runID string) {
	defer e.wg.Done()
	defer e.cleanup(runID)

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			// Stopped while queued.
			return
		}
		defer e.sem.Release(1)
	}

	rec, err := e.store.SetStatus(runID, models.RunStatusRunning, "")
	if err != nil {
		e.log.Debug("run not started", "run_id", runID, "error", err)
		return
	}
	log := e.log.With("run_id", runID)

	pf, err := config.ParseProtocolYAMLString(rec.Input.ProtocolYAML)
	if err != nil {
		e.fail(runID, fmt.Sprintf("invalid protocol: %v", err))
		return
	}
	opts := []experiment.Option{experiment.WithLogger(log)}
	if rec.Input.SkipRecovery {
		opts = append(opts, experiment.WithoutRecovery())
	}
	ex, protocol, err := experiment.FromFile(pf, opts...)
	if err != nil {
		e.fail(runID, fmt.Sprintf("experiment setup failed: %v", err))
		return
	}
	if err := e.store.SetModel(runID, pf.Model, models.ParameterSet{Protocol: protocol, Rates: ex.Rates()}); err != nil {
		log.Error("failed to record model", "error", err)
	}

	log.Info("starting experiment", "model", pf.Model, "period", protocol.Period, "amax", protocol.Amax)
	_, _, computeErr := ex.Compute(protocol)
	if ctx.Err() != nil {
		log.Info("experiment finished after cancellation, result discarded")
		return
	}
	result, ok := ex.Result()
	if !ok {
		e.fail(runID, fmt.Sprintf("compute failed: %v", computeErr))
		return
	}

	msg := ""
	if computeErr != nil {
		msg = computeErr.Error()
	}
	done, err := e.store.Complete(runID, result, msg)
	if err != nil {
		log.Info("run not completed", "error", err)
		return
	}
	log.Info("run completed",
		"outcome", done.Run.Summary.Outcome,
		"habituation_time", done.Run.Summary.HabituationTime,
		"recovery_time", done.Run.Summary.RecoveryTime,
		"duration", done.Run.Duration)
	e.finish(done)
}

func (e *RunExecutor) fail(runID, msg string) {
	e.log.Error("run failed", "run_id", runID, "error", msg)
	rec, err := e.store.SetStatus(runID, models.RunStatusFailed, msg)
	if err != nil {
		e.log.Error("failed to set failed status", "run_id", runID, "error", err)
		return
	}
	e.finish(rec)
}

// finish records, archives and announces a terminal run.
func (e *RunExecutor) finish(rec *RunRecord) {
	e.record(rec.Run)
	if e.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.archive.Save(ctx, rec.Run); err != nil {
			e.log.Error("failed to archive run", "run_id", rec.Run.ID, "error", err)
		}
		cancel()
	}
	if e.notifier != nil {
		e.notifier.Notify(rec)
	}
}

func (e *RunExecutor) record(run *models.Run) {
	labels := map[string]string{"status": string(run.Status)}
	if run.Model != "" {
		labels["model"] = run.Model
	}
	at := run.EndedAt
	e.metrics.Record(metrics.RunsFinished, 1, at, labels)
	if run.Duration > 0 {
		e.metrics.Record(metrics.RunDuration, float64(run.Duration.Milliseconds()), at, labels)
	}
	if sum := run.Summary; sum != nil {
		e.metrics.Record(metrics.HabituationSteps, float64(sum.HabituationSteps), at, labels)
		if sum.HabituationSteps > 0 {
			e.metrics.Record(metrics.HabituationTime, sum.HabituationTime, at, labels)
		}
		if sum.RecoveryTime > 0 {
			e.metrics.Record(metrics.RecoveryTime, sum.RecoveryTime, at, labels)
		}
	}
}
