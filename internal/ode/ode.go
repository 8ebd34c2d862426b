// Package ode provides the adaptive Runge-Kutta primitive used by the
// periodic integrator. Only the explicit Dormand-Prince 5(4) pair is
// implemented; the habituation models are non-stiff at the step sizes the
// retry ladder enforces.
package ode

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyState indicates an initial state of length zero.
	ErrEmptyState = errors.New("ode: empty initial state")

	// ErrNonIncreasingTimes indicates output times that are not strictly increasing.
	ErrNonIncreasingTimes = errors.New("ode: output times must be strictly increasing")

	// ErrStepTooSmall indicates the adaptive step fell below the minimum step size.
	ErrStepTooSmall = errors.New("ode: adaptive step below minimum")

	// ErrTooManySteps indicates the step budget for one output interval was exhausted.
	ErrTooManySteps = errors.New("ode: step budget exhausted")
)

// Func evaluates the right-hand side y'(t) into dydt.
type Func func(t float64, y, dydt []float64)

// DefaultTolerance matches the tolerance used by classic LSODA wrappers.
const DefaultTolerance = 1.49012e-8

// Options controls step-size selection.
type Options struct {
	// RelTol and AbsTol weight the local error estimate per component.
	RelTol float64
	AbsTol float64

	// MaxStep, if > 0, caps every step. Zero leaves the step unbounded.
	MaxStep float64

	// InitialStep, if > 0, replaces the automatic first-step estimate.
	InitialStep float64

	// MinStep, if > 0, aborts integration once the step shrinks below it.
	// Zero uses a floor relative to machine precision.
	MinStep float64

	// MaxSteps bounds the accepted plus rejected steps per output interval.
	MaxSteps int
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		RelTol:   DefaultTolerance,
		AbsTol:   DefaultTolerance,
		MaxSteps: 100000,
	}
}

// Stats counts solver work for one Solve call.
type Stats struct {
	Steps       int `json:"steps"`
	Rejected    int `json:"rejected"`
	Evaluations int `json:"evaluations"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Steps += other.Steps
	s.Rejected += other.Rejected
	s.Evaluations += other.Evaluations
}

// Solution holds the state at each requested output time.
// Rows past a failure point are filled with NaN.
type Solution struct {
	Times []float64
	Y     [][]float64
	Stats Stats
}

// Reached reports how many rows were integrated successfully.
func (s *Solution) Reached() int {
	for i, row := range s.Y {
		if len(row) > 0 && math.IsNaN(row[0]) {
			return i
		}
	}
	return len(s.Y)
}

// IntervalError reports where integration stopped.
type IntervalError struct {
	Time    float64
	Step    float64
	Wrapped error
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("%v at t=%g (h=%g)", e.Wrapped, e.Time, e.Step)
}

func (e *IntervalError) Unwrap() error {
	return e.Wrapped
}

// Solve integrates f from y0 at times[0] and returns the state at every
// entry of times. Row 0 is a copy of y0. The solver never steps across an
// output time, so each row is an exact step endpoint rather than an
// interpolant.
func Solve(f Func, y0 []float64, times []float64, opts Options) (*Solution, error) {
	if len(y0) == 0 {
		return nil, ErrEmptyState
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return nil, ErrNonIncreasingTimes
		}
	}
	opts = normalize(opts)

	n := len(y0)
	sol := &Solution{
		Times: append([]float64(nil), times...),
		Y:     make([][]float64, len(times)),
	}
	if len(times) == 0 {
		return sol, nil
	}

	s := newStepper(f, n, opts)
	y := append([]float64(nil), y0...)
	sol.Y[0] = append([]float64(nil), y...)

	var err error
	h := opts.InitialStep
	for i := 1; i < len(times); i++ {
		h, err = s.advance(times[i-1], times[i], y, h)
		if err != nil {
			for j := i; j < len(times); j++ {
				sol.Y[j] = nanRow(n)
			}
			break
		}
		sol.Y[i] = append([]float64(nil), y...)
	}
	sol.Stats = s.stats
	return sol, err
}

func normalize(opts Options) Options {
	def := DefaultOptions()
	if opts.RelTol <= 0 {
		opts.RelTol = def.RelTol
	}
	if opts.AbsTol <= 0 {
		opts.AbsTol = def.AbsTol
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = def.MaxSteps
	}
	if opts.MaxStep < 0 {
		opts.MaxStep = 0
	}
	return opts
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}
