package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMissingParameter indicates a required protocol parameter was not supplied
	ErrMissingParameter = errors.New("missing protocol parameter")

	// ErrInvalidProtocol indicates protocol parameters that violate 0 <= Ton <= T, T > 0
	ErrInvalidProtocol = errors.New("invalid protocol")
)

// Model computes dx/dt for state x at time t under stimulus amplitude and
// rate constants k. dxdt has the same length as x.
type Model func(x []float64, t, amplitude float64, k []float64, dxdt []float64)

// Protocol describes a square-wave stimulus. Build it with NewProtocol or
// Unset; a struct literal leaves the required fields indistinguishable from
// zero and fails Validate. NaN marks an unset field.
type Protocol struct {
	Period     float64 `json:"period"`
	OnDuration float64 `json:"on_duration"`
	Amin       float64 `json:"amin"`
	Amax       float64 `json:"amax"`

	built bool
}

// ProtocolOption sets an optional protocol field.
type ProtocolOption func(*Protocol)

// WithAmin sets the off-level. It defaults to 0.
func WithAmin(amin float64) ProtocolOption {
	return func(p *Protocol) { p.Amin = amin }
}

// NewProtocol returns a protocol with the required period, on-duration and
// on-level set.
func NewProtocol(period, onDuration, amax float64, opts ...ProtocolOption) Protocol {
	p := Protocol{Period: period, OnDuration: onDuration, Amax: amax, built: true}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Unset returns a protocol with every required field unset and Amin at rest.
func Unset() Protocol {
	return NewProtocol(math.NaN(), math.NaN(), math.NaN())
}

// Validate checks required fields and the 0 <= Ton <= T invariant.
func (p Protocol) Validate() error {
	if !p.built {
		return fmt.Errorf("%w: period, on_duration and amax were not supplied", ErrMissingParameter)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"period", p.Period},
		{"on_duration", p.OnDuration},
		{"amax", p.Amax},
	} {
		if math.IsNaN(f.value) {
			return fmt.Errorf("%w: %s", ErrMissingParameter, f.name)
		}
		if math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidProtocol, f.name)
		}
	}
	if math.IsNaN(p.Amin) || math.IsInf(p.Amin, 0) {
		return fmt.Errorf("%w: amin must be finite", ErrInvalidProtocol)
	}
	if p.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %g", ErrInvalidProtocol, p.Period)
	}
	if p.OnDuration < 0 || p.OnDuration > p.Period {
		return fmt.Errorf("%w: on_duration %g outside [0, %g]", ErrInvalidProtocol, p.OnDuration, p.Period)
	}
	return nil
}

// Amplitude returns the stimulus at time t. Negative times are rest.
func (p Protocol) Amplitude(t float64) float64 {
	if t >= 0 && math.Mod(t, p.Period) < p.OnDuration {
		return p.Amax
	}
	return p.Amin
}

// ParameterSet is a protocol plus the model's rate constants.
type ParameterSet struct {
	Protocol
	Rates []float64 `json:"rates"`
}

// Flatten returns the ordered tuple (T, Ton, Amin, Amax, k1..kn).
func (ps ParameterSet) Flatten() []float64 {
	out := make([]float64, 0, 4+len(ps.Rates))
	out = append(out, ps.Period, ps.OnDuration, ps.Amin, ps.Amax)
	return append(out, ps.Rates...)
}

// Extremum is a peak or trough: a trajectory row and the output level there.
type Extremum struct {
	Step  int     `json:"step"`
	Level float64 `json:"level"`
}

// Levels extracts the level of each extremum.
func Levels(ex []Extremum) []float64 {
	out := make([]float64, len(ex))
	for i, e := range ex {
		out[i] = e.Level
	}
	return out
}

// Outcome reports why periodic integration stopped.
type Outcome string

const (
	OutcomeHabituated   Outcome = "habituated"
	OutcomeSensitizing  Outcome = "sensitizing"
	OutcomeNonConverged Outcome = "non_converged"
)

// HabituationResult locates the habituation point.
type HabituationResult struct {
	Steps    int     `json:"steps"`
	Time     float64 `json:"time"`
	TimeStep int     `json:"time_step"`
}

// RecoveryProbe is one single-pulse test issued during the recovery search.
type RecoveryProbe struct {
	Offset     float64     `json:"offset"`
	Step       int         `json:"step"`
	PeakRatio  float64     `json:"peak_ratio"`
	Times      []float64   `json:"times,omitempty"`
	Trajectory [][]float64 `json:"trajectory,omitempty"`
}

// RecoveryResult is the output of the recovery search.
type RecoveryResult struct {
	Time                 float64         `json:"time"`
	EndStep              int             `json:"end_step"`
	Times                []float64       `json:"times,omitempty"`
	Trajectory           [][]float64     `json:"trajectory,omitempty"`
	Probes               []RecoveryProbe `json:"probes,omitempty"`
	MonotonicityViolated bool            `json:"monotonicity_violated"`
}

// Probe returns the probe issued at offset, if any.
func (r *RecoveryResult) Probe(offset float64) (RecoveryProbe, bool) {
	for _, p := range r.Probes {
		if p.Offset == offset {
			return p, true
		}
	}
	return RecoveryProbe{}, false
}

// Result is the immutable record produced by one Compute call.
type Result struct {
	Params          ParameterSet      `json:"params"`
	OutputIndex     int               `json:"output_index"`
	StepsPerTime    float64           `json:"steps_per_time"`
	Times           []float64         `json:"times"`
	Trajectory      [][]float64       `json:"trajectory"`
	Peaks           []Extremum        `json:"peaks"`
	Troughs         []Extremum        `json:"troughs"`
	Outcome         Outcome           `json:"outcome"`
	DegradedPeriods []int             `json:"degraded_periods,omitempty"`
	Habituation     HabituationResult `json:"habituation"`
	Recovery        *RecoveryResult   `json:"recovery,omitempty"`
}

// Output returns the output variable's time series.
func (r *Result) Output() []float64 {
	out := make([]float64, len(r.Trajectory))
	for i, row := range r.Trajectory {
		out[i] = row[r.OutputIndex]
	}
	return out
}

// RecoveryTime returns the recovery time, or 0 when no search ran.
func (r *Result) RecoveryTime() float64 {
	if r.Recovery == nil {
		return 0
	}
	return r.Recovery.Time
}

// RunStatus represents the status of an experiment run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// RunSummary holds the scalar outputs of a finished run.
type RunSummary struct {
	HabituationTime  float64    `json:"habituation_time"`
	HabituationSteps int        `json:"habituation_steps"`
	RecoveryTime     float64    `json:"recovery_time"`
	Outcome          Outcome    `json:"outcome"`
	Periods          int        `json:"periods"`
	DegradedPeriods  int        `json:"degraded_periods"`
	Peaks            []Extremum `json:"peaks,omitempty"`
}

// Summarize reduces a result to its run summary.
func Summarize(r *Result) *RunSummary {
	return &RunSummary{
		HabituationTime:  r.Habituation.Time,
		HabituationSteps: r.Habituation.Steps,
		RecoveryTime:     r.RecoveryTime(),
		Outcome:          r.Outcome,
		Periods:          len(r.Peaks),
		DegradedPeriods:  len(r.DegradedPeriods),
		Peaks:            append([]Extremum(nil), r.Peaks...),
	}
}

// Run represents an experiment run
type Run struct {
	ID        string        `json:"id"`
	Status    RunStatus     `json:"status"`
	Model     string        `json:"model"`
	Params    ParameterSet  `json:"params"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Summary   *RunSummary   `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
}
