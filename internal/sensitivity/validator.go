package sensitivity

import (
	"context"

	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
)

// HallmarkValidator accepts rate vectors whose sweep over g shows both
// frequency and intensity sensitivity. factory builds an experiment factory
// for a candidate rate vector.
func HallmarkValidator(factory func(rates []float64) hallmarks.Factory, g hallmarks.Grid, workers int) Validator {
	return func(ctx context.Context, rates []float64) (bool, error) {
		m, err := hallmarks.NewEvaluator(factory(rates), workers).Evaluate(ctx, g)
		if err != nil {
			return false, err
		}
		return hallmarks.Assess(m, hallmarks.DefaultRatio).Both(), nil
	}
}
