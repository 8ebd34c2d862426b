package systems

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownSystems(t *testing.T) {
	for _, name := range Names() {
		s, err := Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name)
		assert.Len(t, s.DefaultRates, len(s.RateNames), name)
		assert.Len(t, s.InitialState, s.Dim(), name)
		require.NotNil(t, s.Model, name)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("nope")
	assert.True(t, errors.Is(err, ErrUnknownSystem))
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Contains(t, names, "receptor_feedforward")
	assert.Contains(t, names, "receptor_feedback")
	assert.Contains(t, names, "iff_concat")
}

func TestModelsProduceFiniteDerivatives(t *testing.T) {
	for _, name := range Names() {
		s, _ := Lookup(name)
		dxdt := make([]float64, s.Dim())
		for _, amp := range []float64{0, 1, 10} {
			s.Model(s.InitialState, 0, amp, s.DefaultRates, dxdt)
			for i, v := range dxdt {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s dx%d at amplitude %g", name, i, amp)
			}
		}
	}
}

func TestReceptorConservesTotal(t *testing.T) {
	// the three receptor states trade mass among themselves
	for _, tc := range []struct {
		name string
		idx  [3]int
	}{
		{"receptor_feedforward", [3]int{0, 1, 2}},
		{"receptor_feedback", [3]int{0, 1, 5}},
	} {
		s, err := Lookup(tc.name)
		require.NoError(t, err)
		x := []float64{0.3, 0.2, 0.1, 0.4, 0.5, 0.2}
		dxdt := make([]float64, 6)
		s.Model(x, 0, 2, s.DefaultRates, dxdt)
		assert.InDelta(t, 0, dxdt[tc.idx[0]]+dxdt[tc.idx[1]]+dxdt[tc.idx[2]], 1e-12, tc.name)
	}
}

func TestStimulusOnlyEntersThroughAmplitude(t *testing.T) {
	s, err := Lookup("iff_concat")
	require.NoError(t, err)
	x := []float64{0.5, 0, 0, 0, 0, 0}
	dxdt := make([]float64, 6)
	s.Model(x, 0, 0, s.DefaultRates, dxdt)
	assert.InDelta(t, -s.DefaultRates[1]*0.5, dxdt[0], 1e-12)
}

func TestCheckRatesAndDefaults(t *testing.T) {
	s, err := Lookup("linear")
	require.NoError(t, err)
	assert.Error(t, s.CheckRates([]float64{1}))
	assert.NoError(t, s.CheckRates([]float64{1, 2}))
	assert.Equal(t, s.DefaultRates, s.Rates(nil))
	assert.Equal(t, []float64{5}, s.Initial([]float64{5}))

	r := s.Rates(nil)
	r[0] = 42
	assert.NotEqual(t, 42.0, s.DefaultRates[0], "Rates must copy defaults")
}
