package improvement

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// ConvergenceStrategy decides from the history whether the search can stop.
// History scores are oriented so that lower is better.
type ConvergenceStrategy interface {
	CheckConvergence(history []OptimizationStep) (bool, string)
	Name() string
}

// ConvergenceConfig holds configuration for convergence detection
type ConvergenceConfig struct {
	// NoImprovementIterations is the number of iterations without a new best before stopping
	NoImprovementIterations int
	// ScoreTolerance is the absolute score range that counts as a plateau
	ScoreTolerance float64
	// RelativeDeviation is the relative standard deviation under which scores count as stable
	RelativeDeviation float64
	// MinIterations is the minimum history length before convergence can be detected
	MinIterations int
	// PlateauIterations is the window for the plateau and variance checks
	PlateauIterations int
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		NoImprovementIterations: 5,
		ScoreTolerance:          1e-3,
		RelativeDeviation:       1e-3,
		MinIterations:           3,
		PlateauIterations:       5,
	}
}

// NewConvergenceStrategy maps a strategy name to a strategy. An empty name
// returns nil, which leaves only the step-size and iteration limits.
func NewConvergenceStrategy(name string, config *ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "":
		return nil, nil
	case "no_improvement":
		return NewNoImprovementStrategy(config), nil
	case "plateau":
		return NewPlateauStrategy(config), nil
	case "variance":
		return NewVarianceStrategy(config), nil
	case "combined":
		return NewCombinedStrategy(config), nil
	default:
		return nil, fmt.Errorf("unknown convergence strategy: %s", name)
	}
}

// NoImprovementStrategy stops when the best score is N iterations old.
type NoImprovementStrategy struct {
	config *ConvergenceConfig
}

func NewNoImprovementStrategy(config *ConvergenceConfig) *NoImprovementStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(history []OptimizationStep) (bool, string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}
	best := 0
	for i, step := range history {
		if step.Score < history[best].Score {
			best = i
		}
	}
	since := len(history) - 1 - best
	if since >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no improvement for %d iterations (best at iteration %d)", since, history[best].Iteration)
	}
	return false, ""
}

// PlateauStrategy stops when the last N scores span less than ScoreTolerance.
type PlateauStrategy struct {
	config *ConvergenceConfig
}

func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []OptimizationStep) (bool, string) {
	n := s.config.PlateauIterations
	if len(history) < s.config.MinIterations || n <= 0 || len(history) < n {
		return false, ""
	}
	recent := scores(history[len(history)-n:])
	lo, _ := stats.Min(recent)
	hi, _ := stats.Max(recent)
	if hi-lo <= s.config.ScoreTolerance {
		return true, fmt.Sprintf("score plateaued for %d iterations (range: %.6f)", n, hi-lo)
	}
	return false, ""
}

// VarianceStrategy stops when recent scores have a small relative spread.
type VarianceStrategy struct {
	config *ConvergenceConfig
}

func NewVarianceStrategy(config *ConvergenceConfig) *VarianceStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &VarianceStrategy{config: config}
}

func (s *VarianceStrategy) Name() string {
	return "variance"
}

func (s *VarianceStrategy) CheckConvergence(history []OptimizationStep) (bool, string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}
	window := min(s.config.PlateauIterations, len(history))
	if window < 2 {
		return false, ""
	}
	recent := scores(history[len(history)-window:])
	mean, _ := stats.Mean(recent)
	sd, _ := stats.StandardDeviationPopulation(recent)
	if mean == 0 {
		return false, ""
	}
	// fitness scores are usually negative
	rel := sd / math.Abs(mean)
	if rel < s.config.RelativeDeviation {
		return true, fmt.Sprintf("low score variance (relative stddev: %.4f%%)", rel*100)
	}
	return false, ""
}

// CombinedStrategy converges when any of its strategies does.
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewCombinedStrategy combines no-improvement, plateau and variance checks.
func NewCombinedStrategy(config *ConvergenceConfig) *CombinedStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &CombinedStrategy{
		strategies: []ConvergenceStrategy{
			NewNoImprovementStrategy(config),
			NewPlateauStrategy(config),
			NewVarianceStrategy(config),
		},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(history []OptimizationStep) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(history); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// AddStrategy adds a custom strategy to the combined strategy
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}

func scores(steps []OptimizationStep) stats.Float64Data {
	out := make(stats.Float64Data, len(steps))
	for i, s := range steps {
		out[i] = s.Score
	}
	return out
}
