package steadystate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/habituation-core/internal/integrator"
	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
)

func TestFindLinearEquilibrium(t *testing.T) {
	sys, err := systems.Lookup("linear")
	require.NoError(t, err)
	in := integrator.New(integrator.DefaultConfig())

	// y' = k_in*A - k_dec*y settles at A*k_in/k_dec
	x, err := Find(in, sys.Model, []float64{0}, []float64{2, 4}, 3, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, x[0], 1e-6)
}

func TestFindReceptorConservesMass(t *testing.T) {
	sys, err := systems.Lookup("receptor_feedforward")
	require.NoError(t, err)
	in := integrator.New(integrator.DefaultConfig())

	x, err := Find(in, sys.Model, sys.InitialState, sys.DefaultRates, 0, 500)
	require.NoError(t, err)
	for _, v := range x {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestFindFailsOnNonFiniteModel(t *testing.T) {
	model := func(x []float64, _, _ float64, _ []float64, dxdt []float64) {
		dxdt[0] = math.NaN()
	}
	cfg := integrator.DefaultConfig()
	cfg.StepsPerTime = 10
	in := integrator.New(cfg)

	_, err := Find(in, model, []float64{1}, nil, 0, 10)
	assert.ErrorIs(t, err, ErrNoSteadyState)
}

func TestFindZeroLengthReturnsCopy(t *testing.T) {
	cfg := integrator.DefaultConfig()
	cfg.StepsPerTime = 1
	in := integrator.New(cfg)
	x0 := []float64{1, 2}

	x, err := Find(in, nil, x0, nil, 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, x0, x)
	x[0] = 9
	assert.Equal(t, 1.0, x0[0])
}
