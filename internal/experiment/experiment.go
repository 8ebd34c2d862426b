// Package experiment owns a model with its rate constants and initial
// state and runs habituation/recovery measurements against it.
package experiment

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoSim-25-26J-441/habituation-core/internal/habituation"
	"github.com/GoSim-25-26J-441/habituation-core/internal/integrator"
	"github.com/GoSim-25-26J-441/habituation-core/internal/recovery"
	"github.com/GoSim-25-26J-441/habituation-core/internal/steadystate"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

var (
	ErrMissingParameter = models.ErrMissingParameter
	ErrInvalidProtocol  = models.ErrInvalidProtocol

	// ErrNoResult indicates an operation that needs a prior Compute.
	ErrNoResult = errors.New("no computed result")

	// ErrNoHabituation indicates the stored result has no habituation point.
	ErrNoHabituation = errors.New("stored result has no habituation point")

	// ErrCorruptResult indicates stored data that does not match its own indices.
	ErrCorruptResult = errors.New("stored result is inconsistent")

	// ErrInvalidConfig is returned for unusable experiment settings.
	ErrInvalidConfig = errors.New("invalid experiment config")
)

// Config bundles the settings of every stage.
type Config struct {
	Integrator integrator.Config  `json:"integrator" yaml:"integrator"`
	Detector   habituation.Config `json:"detector" yaml:"detector"`
	Recovery   recovery.Config    `json:"recovery" yaml:"recovery"`

	// Precondition relaxes x0 at Amin for PreconditionDuration before each Compute.
	Precondition         bool    `json:"precondition" yaml:"precondition"`
	PreconditionDuration float64 `json:"precondition_duration" yaml:"precondition_duration"`

	// SkipRecovery stops Compute after habituation detection.
	SkipRecovery bool `json:"skip_recovery" yaml:"skip_recovery"`
}

// DefaultConfig returns default settings for every stage.
func DefaultConfig() Config {
	return Config{
		Integrator:           integrator.DefaultConfig(),
		Detector:             habituation.DefaultConfig(),
		Recovery:             recovery.DefaultConfig(),
		PreconditionDuration: steadystate.DefaultDuration,
	}
}

// Validate checks every stage for a state of dimension n.
func (c Config) Validate(n int) error {
	if err := c.Integrator.Validate(n); err != nil {
		return err
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	if c.Detector.DeclineThreshold < c.Integrator.DeclineThreshold {
		return fmt.Errorf("%w: detector threshold %g below integrator threshold %g",
			ErrInvalidConfig, c.Detector.DeclineThreshold, c.Integrator.DeclineThreshold)
	}
	return nil
}

// Experiment is not safe for concurrent use; run independent experiments
// in parallel instead.
type Experiment struct {
	model models.Model
	rates []float64
	x0    []float64
	cfg   Config
	log   *slog.Logger

	in     *integrator.Integrator
	det    *habituation.Detector
	search *recovery.Search

	result *models.Result
}

// Option configures an Experiment.
type Option func(*Experiment)

// WithLogger sets the logger for the experiment and its stages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.log = l
		}
	}
}

// WithoutRecovery makes Compute stop after habituation detection.
func WithoutRecovery() Option {
	return func(e *Experiment) { e.cfg.SkipRecovery = true }
}

// New creates an Experiment. rates and x0 are copied.
func New(model models.Model, rates, x0 []float64, cfg Config, opts ...Option) (*Experiment, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidConfig)
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("%w: empty initial state", ErrInvalidConfig)
	}
	if err := cfg.Validate(len(x0)); err != nil {
		return nil, err
	}
	e := &Experiment{
		model: model,
		rates: append([]float64(nil), rates...),
		x0:    append([]float64(nil), x0...),
		cfg:   cfg,
		log:   logger.Default,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.in = integrator.New(cfg.Integrator, integrator.WithLogger(e.log))
	e.det = habituation.New(cfg.Detector)
	e.search = recovery.New(e.in, cfg.Recovery, recovery.WithLogger(e.log))
	return e, nil
}

// Compute runs the periodic integration for p, detects habituation and,
// when habituation was found, searches for the recovery time unless
// SkipRecovery is set. The previous
// result is replaced.
func (e *Experiment) Compute(p models.Protocol) (habituationTime, recoveryTime float64, err error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	ps := models.ParameterSet{Protocol: p, Rates: e.rates}

	x0 := e.x0
	if e.cfg.Precondition {
		x0, err = steadystate.Find(e.in, e.model, e.x0, e.rates, p.Amin, e.cfg.PreconditionDuration)
		if err != nil {
			return 0, 0, fmt.Errorf("precondition: %w", err)
		}
	}

	run, err := e.in.Run(e.model, x0, ps)
	if err != nil {
		return 0, 0, err
	}

	icfg := e.cfg.Integrator
	out := icfg.Output(len(x0))
	count := e.det.Detect(models.Levels(run.Peaks))
	result := &models.Result{
		Params: models.ParameterSet{
			Protocol: p,
			Rates:    append([]float64(nil), e.rates...),
		},
		OutputIndex:     out,
		StepsPerTime:    icfg.StepsPerTime,
		Times:           run.Times,
		Trajectory:      run.Trajectory,
		Peaks:           run.Peaks,
		Troughs:         run.Troughs,
		Outcome:         run.Outcome,
		DegradedPeriods: run.DegradedPeriods,
		Habituation:     habituation.Locate(count, p.Period, icfg.StepsPerTime),
	}
	if step := result.Habituation.TimeStep; step >= len(result.Trajectory) {
		result.Habituation.TimeStep = len(result.Trajectory) - 1
	}

	var searchErr error
	if count > 0 && !e.cfg.SkipRecovery {
		rec, err := e.search.Run(recovery.Input{
			Model:           e.model,
			Params:          result.Params,
			State:           utils.ClampNonNegative(result.Trajectory[result.Habituation.TimeStep]),
			HabituationStep: result.Habituation.TimeStep,
			ReferencePeak:   result.Peaks[0].Level,
			Output:          out,
		})
		if err != nil {
			searchErr = fmt.Errorf("recovery search: %w", err)
		} else {
			result.Recovery = rec
		}
	}
	e.result = result

	e.log.Info("experiment computed",
		"period", p.Period,
		"on_duration", p.OnDuration,
		"amax", p.Amax,
		"outcome", result.Outcome,
		"habituation_steps", count,
		"habituation_time", result.Habituation.Time,
		"recovery_time", result.RecoveryTime(),
		"degraded_periods", len(result.DegradedPeriods))
	return result.Habituation.Time, result.RecoveryTime(), searchErr
}

// Result returns the record stored by the last Compute.
func (e *Experiment) Result() (*models.Result, bool) {
	return e.result, e.result != nil
}

// Rates returns a copy of the rate constants.
func (e *Experiment) Rates() []float64 {
	return append([]float64(nil), e.rates...)
}

// InitialState returns a copy of the initial state.
func (e *Experiment) InitialState() []float64 {
	return append([]float64(nil), e.x0...)
}

// habituatedState returns the stored habituated state, clamped, and its index.
func (e *Experiment) habituatedState() ([]float64, *models.Result, error) {
	r := e.result
	if r == nil {
		return nil, nil, ErrNoResult
	}
	if r.Habituation.Steps == 0 {
		return nil, nil, ErrNoHabituation
	}
	step := r.Habituation.TimeStep
	if step < 0 || step >= len(r.Trajectory) || len(r.Trajectory[step]) != len(e.x0) {
		return nil, nil, fmt.Errorf("%w: habituation index %d with %d trajectory rows", ErrCorruptResult, step, len(r.Trajectory))
	}
	return utils.ClampNonNegative(r.Trajectory[step]), r, nil
}
