package improvement

import (
	"context"

	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
)

// ObjectiveFunction scores a rate vector.
type ObjectiveFunction interface {
	// Evaluate computes the objective value for a rate vector.
	Evaluate(ctx context.Context, rates []float64) (float64, error)

	// Name returns the name of the objective function.
	Name() string

	// Direction returns whether we're minimizing (true) or maximizing (false).
	Direction() bool // true = minimize, false = maximize
}

// ObjectiveType represents the type of objective function
type ObjectiveType string

const (
	// ObjectiveHallmarkFitness minimizes the frequency/intensity trend fitness
	ObjectiveHallmarkFitness ObjectiveType = "hallmark_fitness"
	// ObjectiveHallmarkCount maximizes the number of hallmarks a grid sweep shows
	ObjectiveHallmarkCount ObjectiveType = "hallmark_count"
)

// ObjectiveOptions carries what the hallmark objectives need to run sweeps.
type ObjectiveOptions struct {
	// Build returns an experiment factory for a candidate rate vector.
	Build   func(rates []float64) hallmarks.Factory
	Scan    hallmarks.Scan
	Grid    hallmarks.Grid
	Workers int
}

// NewObjectiveFunction creates an objective function from a type string
func NewObjectiveFunction(objType string, opts ObjectiveOptions) (ObjectiveFunction, error) {
	if opts.Build == nil {
		return nil, &InvalidRatesError{Reason: "no experiment builder"}
	}
	switch ObjectiveType(objType) {
	case ObjectiveHallmarkFitness:
		return &HallmarkFitnessObjective{build: opts.Build, scan: opts.Scan, workers: opts.Workers}, nil
	case ObjectiveHallmarkCount:
		return &HallmarkCountObjective{build: opts.Build, grid: opts.Grid, workers: opts.Workers}, nil
	default:
		return nil, &UnknownObjectiveError{ObjectiveType: objType}
	}
}

// HallmarkFitnessObjective scores rates by hallmarks.Fitness over a Scan.
type HallmarkFitnessObjective struct {
	build   func(rates []float64) hallmarks.Factory
	scan    hallmarks.Scan
	workers int
}

func (o *HallmarkFitnessObjective) Name() string {
	return string(ObjectiveHallmarkFitness)
}

func (o *HallmarkFitnessObjective) Direction() bool {
	return true // minimize
}

func (o *HallmarkFitnessObjective) Evaluate(ctx context.Context, rates []float64) (float64, error) {
	if err := checkRates(rates); err != nil {
		return 0, err
	}
	score, _, _, err := hallmarks.NewEvaluator(o.build(rates), o.workers).Score(ctx, o.scan)
	return score, err
}

// HallmarkCountObjective counts the hallmarks (0, 1 or 2) a grid sweep shows.
type HallmarkCountObjective struct {
	build   func(rates []float64) hallmarks.Factory
	grid    hallmarks.Grid
	workers int
}

func (o *HallmarkCountObjective) Name() string {
	return string(ObjectiveHallmarkCount)
}

func (o *HallmarkCountObjective) Direction() bool {
	return false // maximize
}

func (o *HallmarkCountObjective) Evaluate(ctx context.Context, rates []float64) (float64, error) {
	if err := checkRates(rates); err != nil {
		return 0, err
	}
	m, err := hallmarks.NewEvaluator(o.build(rates), o.workers).Evaluate(ctx, o.grid)
	if err != nil {
		return 0, err
	}
	a := hallmarks.Assess(m, hallmarks.DefaultRatio)
	count := 0.0
	if a.Intensity {
		count++
	}
	if a.Frequency {
		count++
	}
	return count, nil
}

// FuncObjective adapts a plain function.
type FuncObjective struct {
	name     string
	minimize bool
	fn       func(ctx context.Context, rates []float64) (float64, error)
}

// NewFuncObjective wraps fn as an objective.
func NewFuncObjective(name string, minimize bool, fn func(ctx context.Context, rates []float64) (float64, error)) *FuncObjective {
	return &FuncObjective{name: name, minimize: minimize, fn: fn}
}

func (o *FuncObjective) Name() string    { return o.name }
func (o *FuncObjective) Direction() bool { return o.minimize }

func (o *FuncObjective) Evaluate(ctx context.Context, rates []float64) (float64, error) {
	return o.fn(ctx, rates)
}

func checkRates(rates []float64) error {
	if len(rates) == 0 {
		return &InvalidRatesError{Reason: "rates are empty"}
	}
	for _, r := range rates {
		if !(r >= 0) {
			return &InvalidRatesError{Reason: "rates must be non-negative"}
		}
	}
	return nil
}

// UnknownObjectiveError indicates an unknown objective type
type UnknownObjectiveError struct {
	ObjectiveType string
}

func (e *UnknownObjectiveError) Error() string {
	return "unknown objective type: " + e.ObjectiveType
}

// InvalidRatesError indicates a rate vector that cannot be evaluated
type InvalidRatesError struct {
	Reason string
}

func (e *InvalidRatesError) Error() string {
	return "invalid rates: " + e.Reason
}
