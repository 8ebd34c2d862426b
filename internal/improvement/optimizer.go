// Package improvement searches rate-constant space for parameter sets that
// score well on a habituation objective.
package improvement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
)

// Optimizer implements a hill-climbing search in log10 rate space. When no
// neighbor improves, the step size halves.
type Optimizer struct {
	objective     ObjectiveFunction
	maxIterations int
	stepSize      float64 // log10 units
	minStepSize   float64
	workers       int
	explorer      ParameterExplorer
	convergence   ConvergenceStrategy
	progress      func(iteration int, score float64)
	log           *slog.Logger

	mu          sync.RWMutex
	bestScore   float64
	bestRates   []float64
	iteration   int
	evaluations int
	history     []OptimizationStep
}

// OptimizationStep is the state after one iteration. Score is oriented so
// that lower is better.
type OptimizationStep struct {
	Iteration int       `json:"iteration"`
	Score     float64   `json:"score"`
	Rates     []float64 `json:"rates"`
	StepSize  float64   `json:"step_size"`
}

// OptimizationResult contains the final optimization result. BestScore is
// in the objective's own direction.
type OptimizationResult struct {
	Objective         string             `json:"objective"`
	BestRates         []float64          `json:"best_rates"`
	BestScore         float64            `json:"best_score"`
	Iterations        int                `json:"iterations"`
	Evaluations       int                `json:"evaluations"`
	History           []OptimizationStep `json:"history"`
	Converged         bool               `json:"converged"`
	ConvergenceReason string             `json:"convergence_reason"`
}

// NewOptimizer creates a new hill-climbing optimizer
func NewOptimizer(objective ObjectiveFunction, maxIterations int, stepSize float64) *Optimizer {
	if stepSize <= 0 {
		stepSize = 0.5 // half a decade
	}
	return &Optimizer{
		objective:     objective,
		maxIterations: maxIterations,
		stepSize:      stepSize,
		minStepSize:   1e-3,
		explorer:      NewLogExplorer(),
		bestScore:     math.MaxFloat64,
		log:           logger.Component("improvement"),
	}
}

// WithExplorer sets a custom parameter exploration strategy
func (o *Optimizer) WithExplorer(explorer ParameterExplorer) *Optimizer {
	o.explorer = explorer
	return o
}

// WithConvergence sets an additional stopping rule.
func (o *Optimizer) WithConvergence(s ConvergenceStrategy) *Optimizer {
	o.convergence = s
	return o
}

// WithMinStepSize stops the search once the step halves below minStep.
func (o *Optimizer) WithMinStepSize(minStep float64) *Optimizer {
	if minStep > 0 {
		o.minStepSize = minStep
	}
	return o
}

// WithWorkers bounds concurrent neighbor evaluations; 0 means unbounded.
func (o *Optimizer) WithWorkers(n int) *Optimizer {
	o.workers = n
	return o
}

// WithProgressReporter is called after every iteration with the current score.
func (o *Optimizer) WithProgressReporter(fn func(iteration int, score float64)) *Optimizer {
	o.progress = fn
	return o
}

// WithLogger replaces the optimizer's logger.
func (o *Optimizer) WithLogger(l *slog.Logger) *Optimizer {
	if l != nil {
		o.log = l
	}
	return o
}

// Optimize runs the hill-climbing search from initial.
func (o *Optimizer) Optimize(ctx context.Context, initial []float64) (*OptimizationResult, error) {
	if o.objective == nil {
		return nil, fmt.Errorf("objective function is required")
	}
	if len(initial) == 0 {
		return nil, &InvalidRatesError{Reason: "initial rates are empty"}
	}

	initialScore, err := o.score(ctx, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate initial rates: %w", err)
	}

	current := append([]float64(nil), initial...)
	currentScore := initialScore
	step := o.stepSize

	o.mu.Lock()
	o.bestScore = initialScore
	o.bestRates = append([]float64(nil), initial...)
	o.iteration = 0
	o.evaluations = 1
	o.history = []OptimizationStep{{Iteration: 0, Score: initialScore, Rates: append([]float64(nil), initial...), StepSize: step}}
	o.mu.Unlock()

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.iteration = iteration
		o.mu.Unlock()

		neighbors := o.explorer.GenerateNeighbors(current, step)
		if len(neighbors) == 0 {
			return o.buildResult(true, "no valid neighbors"), nil
		}

		bestNeighbor, bestNeighborScore, err := o.bestOf(ctx, neighbors)
		if err != nil {
			return nil, err
		}

		if bestNeighborScore < currentScore {
			current, currentScore = bestNeighbor, bestNeighborScore
		} else {
			step /= 2
		}

		o.mu.Lock()
		if currentScore < o.bestScore {
			o.bestScore = currentScore
			o.bestRates = append([]float64(nil), current...)
		}
		o.history = append(o.history, OptimizationStep{
			Iteration: iteration,
			Score:     currentScore,
			Rates:     append([]float64(nil), current...),
			StepSize:  step,
		})
		history := o.history
		o.mu.Unlock()

		o.log.Debug("optimizer iteration", "iteration", iteration, "score", currentScore, "step", step)
		if o.progress != nil {
			o.progress(iteration, o.native(currentScore))
		}

		if step < o.minStepSize {
			return o.buildResult(true, fmt.Sprintf("step size %.3g below minimum %.3g", step, o.minStepSize)), nil
		}
		if o.convergence != nil {
			if converged, reason := o.convergence.CheckConvergence(history); converged {
				return o.buildResult(true, reason), nil
			}
		}
	}

	return o.buildResult(false, "max iterations reached"), nil
}

// bestOf evaluates neighbors concurrently. Neighbors whose evaluation fails
// are skipped; cancellation aborts.
func (o *Optimizer) bestOf(ctx context.Context, neighbors [][]float64) ([]float64, float64, error) {
	results := make([]float64, len(neighbors))
	var eg errgroup.Group
	if o.workers > 0 {
		eg.SetLimit(o.workers)
	}
	for i, n := range neighbors {
		eg.Go(func() error {
			s, err := o.score(ctx, n)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				o.log.Debug("neighbor skipped", "rates", n, "error", err)
				s = math.Inf(1)
			}
			results[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	o.mu.Lock()
	o.evaluations += len(neighbors)
	o.mu.Unlock()

	best := 0
	for i, s := range results {
		if s < results[best] {
			best = i
		}
	}
	return neighbors[best], results[best], nil
}

// score evaluates rates, oriented so that lower is better. NaN scores
// rank last.
func (o *Optimizer) score(ctx context.Context, rates []float64) (float64, error) {
	s, err := o.objective.Evaluate(ctx, rates)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(s) {
		return math.Inf(1), nil
	}
	if !o.objective.Direction() {
		s = -s
	}
	return s, nil
}

// native converts an oriented score back to the objective's direction.
func (o *Optimizer) native(s float64) float64 {
	if !o.objective.Direction() {
		return -s
	}
	return s
}

// buildResult constructs the optimization result
func (o *Optimizer) buildResult(converged bool, reason string) *OptimizationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	o.log.Info("optimization finished",
		"objective", o.objective.Name(),
		"best_score", o.native(o.bestScore),
		"iterations", o.iteration,
		"converged", converged,
		"reason", reason)
	return &OptimizationResult{
		Objective:         o.objective.Name(),
		BestRates:         append([]float64(nil), o.bestRates...),
		BestScore:         o.native(o.bestScore),
		Iterations:        o.iteration,
		Evaluations:       o.evaluations,
		History:           append([]OptimizationStep(nil), o.history...),
		Converged:         converged,
		ConvergenceReason: reason,
	}
}

// GetBestRates returns the best rates found so far
func (o *Optimizer) GetBestRates() []float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]float64(nil), o.bestRates...)
}

// GetBestScore returns the best score found so far, in the objective's direction
func (o *Optimizer) GetBestScore() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.native(o.bestScore)
}

// GetIteration returns the current iteration number
func (o *Optimizer) GetIteration() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.iteration
}
