package integrator

import (
	"errors"
	"fmt"
)

// DefaultStepLadder lists the max-step sizes tried, in order, after a
// period produces non-finite or negative states.
var DefaultStepLadder = []float64{1e-2, 1e-3, 1e-4, 1e-5, 1e-6}

// ErrInvalidConfig is returned for configurations that cannot be run.
var ErrInvalidConfig = errors.New("invalid integrator config")

// Config controls periodic integration and termination.
type Config struct {
	// OutputIndex selects the output variable; -1 means the last component.
	OutputIndex int `json:"output_index" yaml:"output_index"`

	// DeclineThreshold is the relative peak decline under which a period counts as steady.
	DeclineThreshold float64 `json:"decline_threshold" yaml:"decline_threshold"`

	// MinOutputLevel treats a previous peak below it as already extinguished.
	MinOutputLevel float64 `json:"min_output_level" yaml:"min_output_level"`

	// MaxStep is passed to the solver for the first attempt; 0 leaves it unbounded.
	MaxStep float64 `json:"max_step" yaml:"max_step"`

	StepsPerTime         float64 `json:"steps_per_time" yaml:"steps_per_time"`
	PeriodsPerExpansion  int     `json:"periods_per_expansion" yaml:"periods_per_expansion"`
	MaxExpansionAttempts int     `json:"max_expansion_attempts" yaml:"max_expansion_attempts"`
	SteadyRun            int     `json:"steady_run" yaml:"steady_run"`
	IncreasingRun        int     `json:"increasing_run" yaml:"increasing_run"`

	StepLadder []float64 `json:"step_ladder" yaml:"step_ladder"`
}

// DefaultConfig returns the standard integration settings.
func DefaultConfig() Config {
	return Config{
		OutputIndex:          -1,
		DeclineThreshold:     0.01,
		MinOutputLevel:       1e-4,
		MaxStep:              0,
		StepsPerTime:         100,
		PeriodsPerExpansion:  10,
		MaxExpansionAttempts: 3,
		SteadyRun:            4,
		IncreasingRun:        10,
		StepLadder:           append([]float64(nil), DefaultStepLadder...),
	}
}

// Validate checks the config against a state of dimension n.
func (c Config) Validate(n int) error {
	if c.OutputIndex < -1 || c.OutputIndex >= n {
		return fmt.Errorf("%w: output_index %d out of range for %d variables", ErrInvalidConfig, c.OutputIndex, n)
	}
	if c.StepsPerTime <= 0 {
		return fmt.Errorf("%w: steps_per_time must be positive", ErrInvalidConfig)
	}
	if c.DeclineThreshold < 0 {
		return fmt.Errorf("%w: decline_threshold must be non-negative", ErrInvalidConfig)
	}
	if c.PeriodsPerExpansion <= 0 {
		return fmt.Errorf("%w: periods_per_expansion must be positive", ErrInvalidConfig)
	}
	if c.MaxExpansionAttempts < 0 {
		return fmt.Errorf("%w: max_expansion_attempts must be non-negative", ErrInvalidConfig)
	}
	if c.SteadyRun <= 0 || c.IncreasingRun <= 0 {
		return fmt.Errorf("%w: steady_run and increasing_run must be positive", ErrInvalidConfig)
	}
	for _, h := range c.StepLadder {
		if h <= 0 {
			return fmt.Errorf("%w: step ladder entries must be positive", ErrInvalidConfig)
		}
	}
	return nil
}

// Output resolves OutputIndex for a state of dimension n.
func (c Config) Output(n int) int {
	if c.OutputIndex < 0 {
		return n - 1
	}
	return c.OutputIndex
}

// Step returns the discretization step 1/StepsPerTime.
func (c Config) Step() float64 {
	return 1 / c.StepsPerTime
}

// Steps converts a duration to a whole number of steps, truncating.
func (c Config) Steps(duration float64) int {
	return int(duration * c.StepsPerTime)
}
