package ode

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	return out
}

func TestSolveExponentialDecay(t *testing.T) {
	f := func(_ float64, y, dydt []float64) { dydt[0] = -y[0] }
	times := linspace(0, 5, 51)

	sol, err := Solve(f, []float64{1}, times, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, sol.Y, len(times))

	for i, tt := range times {
		assert.InDelta(t, math.Exp(-tt), sol.Y[i][0], 1e-6, "t=%g", tt)
	}
	assert.Greater(t, sol.Stats.Steps, 0)
	assert.Equal(t, len(times), sol.Reached())
}

func TestSolveHarmonicOscillator(t *testing.T) {
	f := func(_ float64, y, dydt []float64) {
		dydt[0] = y[1]
		dydt[1] = -y[0]
	}
	times := linspace(0, 2*math.Pi, 101)

	sol, err := Solve(f, []float64{1, 0}, times, DefaultOptions())
	require.NoError(t, err)

	last := sol.Y[len(sol.Y)-1]
	assert.InDelta(t, 1, last[0], 1e-6)
	assert.InDelta(t, 0, last[1], 1e-6)
}

func TestSolveRowZeroIsInitialState(t *testing.T) {
	f := func(_ float64, y, dydt []float64) { dydt[0] = 1 }
	y0 := []float64{3}

	sol, err := Solve(f, y0, []float64{0, 1}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3.0, sol.Y[0][0])
	assert.InDelta(t, 4, sol.Y[1][0], 1e-12)

	y0[0] = 99
	assert.Equal(t, 3.0, sol.Y[0][0], "row 0 must not alias y0")
}

func TestSolveMaxStepBoundsStepCount(t *testing.T) {
	f := func(_ float64, y, dydt []float64) { dydt[0] = -0.1 * y[0] }
	opts := DefaultOptions()
	opts.MaxStep = 0.01

	sol, err := Solve(f, []float64{1}, []float64{0, 1}, opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sol.Stats.Steps, 100)
}

func TestSolveRejectsNonIncreasingTimes(t *testing.T) {
	f := func(_ float64, y, dydt []float64) { dydt[0] = 0 }

	_, err := Solve(f, []float64{1}, []float64{0, 1, 1}, DefaultOptions())
	require.ErrorIs(t, err, ErrNonIncreasingTimes)

	_, err = Solve(f, nil, []float64{0, 1}, DefaultOptions())
	require.ErrorIs(t, err, ErrEmptyState)
}

func TestSolveNonFiniteDerivativeFailsWithNaNRows(t *testing.T) {
	f := func(tt float64, y, dydt []float64) {
		if tt > 0.5 {
			dydt[0] = math.NaN()
			return
		}
		dydt[0] = -y[0]
	}
	times := linspace(0, 1, 11)

	sol, err := Solve(f, []float64{1}, times, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepTooSmall))

	var ie *IntervalError
	require.ErrorAs(t, err, &ie)
	assert.Less(t, sol.Reached(), len(times))
	assert.True(t, math.IsNaN(sol.Y[len(times)-1][0]))
	assert.False(t, math.IsNaN(sol.Y[0][0]))
}

func TestSolveTooManySteps(t *testing.T) {
	f := func(_ float64, y, dydt []float64) { dydt[0] = -y[0] }
	opts := DefaultOptions()
	opts.MaxStep = 1e-3
	opts.MaxSteps = 10

	_, err := Solve(f, []float64{1}, []float64{0, 1}, opts)
	require.ErrorIs(t, err, ErrTooManySteps)
}

func TestStatsAdd(t *testing.T) {
	s := Stats{Steps: 1, Rejected: 2, Evaluations: 3}
	s.Add(Stats{Steps: 10, Rejected: 20, Evaluations: 30})
	assert.Equal(t, Stats{Steps: 11, Rejected: 22, Evaluations: 33}, s)
}
