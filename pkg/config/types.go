package config

import (
	"math"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// ProtocolFile is a complete experiment description: which model to run,
// its rate constants and starting state, the stimulus train and optional
// per-stage overrides.
type ProtocolFile struct {
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format,omitempty"`
	Model        string        `yaml:"model"`
	Rates        []float64     `yaml:"rates,omitempty"`
	InitialState []float64     `yaml:"initial_state,omitempty"`
	Stimulus     Stimulus      `yaml:"stimulus"`
	Integration  *Integration  `yaml:"integration,omitempty"`
	Detection    *Detection    `yaml:"detection,omitempty"`
	Recovery     *Recovery     `yaml:"recovery,omitempty"`
	Precondition *Precondition `yaml:"precondition,omitempty"`
	Grid         *Grid         `yaml:"grid,omitempty"`
	Sensitivity  *Sensitivity  `yaml:"sensitivity,omitempty"`
	Optimization *Optimization `yaml:"optimization,omitempty"`
}

// Stimulus fields are pointers so that an omitted value is distinguishable
// from zero. Amin defaults to 0 when omitted.
type Stimulus struct {
	Period     *float64 `yaml:"period"`
	OnDuration *float64 `yaml:"on_duration"`
	Amin       *float64 `yaml:"amin,omitempty"`
	Amax       *float64 `yaml:"amax"`
}

// Protocol converts the stimulus section. Omitted required fields become NaN
// so that models.Protocol.Validate reports them as missing.
func (s Stimulus) Protocol() models.Protocol {
	var opts []models.ProtocolOption
	if s.Amin != nil {
		opts = append(opts, models.WithAmin(*s.Amin))
	}
	return models.NewProtocol(orNaN(s.Period), orNaN(s.OnDuration), orNaN(s.Amax), opts...)
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Integration overrides the periodic integrator defaults.
type Integration struct {
	OutputIndex          *int      `yaml:"output_index,omitempty"`
	DeclineThreshold     *float64  `yaml:"decline_threshold,omitempty"`
	MinOutputLevel       *float64  `yaml:"min_output_level,omitempty"`
	MaxStep              *float64  `yaml:"max_step,omitempty"`
	StepsPerTime         *float64  `yaml:"steps_per_time,omitempty"`
	PeriodsPerExpansion  *int      `yaml:"periods_per_expansion,omitempty"`
	MaxExpansionAttempts *int      `yaml:"max_expansion_attempts,omitempty"`
	SteadyRun            *int      `yaml:"steady_run,omitempty"`
	IncreasingRun        *int      `yaml:"increasing_run,omitempty"`
	StepLadder           []float64 `yaml:"step_ladder,omitempty"`
}

// Detection overrides the habituation detector defaults.
type Detection struct {
	DeclineThreshold *float64 `yaml:"decline_threshold,omitempty"`
	ZeroCrossFloor   *float64 `yaml:"zero_cross_floor,omitempty"`
	FirstPeakFloor   *float64 `yaml:"first_peak_floor,omitempty"`
}

// Recovery overrides the recovery search defaults.
type Recovery struct {
	Fraction              *float64 `yaml:"fraction,omitempty"`
	MaxDepth              *int     `yaml:"max_depth,omitempty"`
	KeepProbeTrajectories *bool    `yaml:"keep_probe_trajectories,omitempty"`
	SampleStride          *int     `yaml:"sample_stride,omitempty"`
}

// Precondition relaxes the initial state at Amin before each measurement.
type Precondition struct {
	Enabled  bool    `yaml:"enabled"`
	Duration float64 `yaml:"duration,omitempty"`
}

// Grid describes a periods x amplitudes sweep for hallmark assessment.
type Grid struct {
	Periods    []float64 `yaml:"periods"`
	Amplitudes []float64 `yaml:"amplitudes"`
	OnDuration *float64  `yaml:"on_duration,omitempty"` // defaults to the stimulus on_duration
	Workers    int       `yaml:"workers,omitempty"`
}

// Sensitivity tunes the per-rate robustness scan.
type Sensitivity struct {
	InitialVariation float64 `yaml:"initial_variation,omitempty"` // log10 units, default 0.5
	MinVariation     float64 `yaml:"min_variation,omitempty"`     // default 0.001
	Workers          int     `yaml:"workers,omitempty"`
}

// Optimization tunes the rate-constant search.
type Optimization struct {
	Objective     string  `yaml:"objective"` // hallmark_fitness, hallmark_count
	MaxIterations int     `yaml:"max_iterations"`
	StepSize      float64 `yaml:"step_size,omitempty"` // log10 units
	MinStepSize   float64 `yaml:"min_step_size,omitempty"`
	Convergence   string  `yaml:"convergence,omitempty"` // no_improvement, plateau, combined
	Patience      int     `yaml:"patience,omitempty"`
}
