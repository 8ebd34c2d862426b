// Package steadystate relaxes a model at rest so that periodic stimulation
// starts from its unstimulated equilibrium rather than an arbitrary state.
package steadystate

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/habituation-core/internal/integrator"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

// DefaultDuration is the rest period used when none is given.
const DefaultDuration = 2000.0

// ErrNoSteadyState indicates the rest integration stayed invalid through the step ladder.
var ErrNoSteadyState = errors.New("steady state not reached")

// Find integrates x0 at amplitude for duration and returns the final state.
// Tiny negative residuals are clamped to zero.
func Find(in *integrator.Integrator, model models.Model, x0, rates []float64, amplitude, duration float64) ([]float64, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	steps := in.Config().Steps(duration)
	if steps <= 0 {
		return append([]float64(nil), x0...), nil
	}
	a, ok := in.Sample(model, x0, rates, amplitude, 0, []int{0, steps})
	if !ok {
		return nil, fmt.Errorf("%w after %g time units: %v", ErrNoSteadyState, duration, a.Err)
	}
	return utils.ClampNonNegative(a.Rows[len(a.Rows)-1]), nil
}
