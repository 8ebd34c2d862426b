package hallmarks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/habituation-core/internal/experiment"
	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

func depletionFactory(t *testing.T) Factory {
	t.Helper()
	sys, err := systems.Lookup("depletion")
	require.NoError(t, err)
	cfg := experiment.DefaultConfig()
	cfg.Integrator.StepsPerTime = 20
	cfg.SkipRecovery = true
	return func() (*experiment.Experiment, error) {
		return experiment.New(sys.Model, sys.DefaultRates, sys.InitialState, cfg)
	}
}

func TestEvaluateFillsEveryCell(t *testing.T) {
	f := depletionFactory(t)
	g := Grid{Periods: []float64{5, 10}, Amplitudes: []float64{0.5, 1, 2}, OnDuration: 1}

	m, err := NewEvaluator(f, 2).Evaluate(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, m.HT, 2)
	require.Len(t, m.Cells[1], 3)

	for i, period := range g.Periods {
		for j, amp := range g.Amplitudes {
			c := m.Cells[i][j]
			assert.Equal(t, period, c.Period)
			assert.Equal(t, amp, c.Amplitude)
			assert.Equal(t, capped(c.Steps), m.HT[i][j])
		}
	}

	e, err := f()
	require.NoError(t, err)
	ht, _, err := e.Compute(models.NewProtocol(10, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, ht, m.Cells[1][1].HabituationTime, "cells match a direct computation")
	assert.Greater(t, m.HT[1][1], 0.0)
}

func TestEvaluateErrors(t *testing.T) {
	f := depletionFactory(t)
	ev := NewEvaluator(f, 0)

	_, err := ev.Evaluate(context.Background(), Grid{Periods: []float64{5}, OnDuration: 1})
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = ev.Evaluate(context.Background(), Grid{Periods: []float64{0.5}, Amplitudes: []float64{1}, OnDuration: 1})
	assert.ErrorIs(t, err, ErrInvalidGrid, "on-duration longer than the period")

	boom := errors.New("boom")
	_, err = NewEvaluator(func() (*experiment.Experiment, error) { return nil, boom }, 1).
		Evaluate(context.Background(), Grid{Periods: []float64{10}, Amplitudes: []float64{1}, OnDuration: 1})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ev.Evaluate(ctx, Grid{Periods: []float64{10}, Amplitudes: []float64{1}, OnDuration: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssess(t *testing.T) {
	m := &Matrix{
		Periods:    []float64{5, 10},
		Amplitudes: []float64{1, 2, 3},
		HT:         [][]float64{{1, 2, 3}, {5, 5, 5}},
		RT:         [][]float64{{10, 10, 10}, {20, 20, 5}},
	}
	a := Assess(m, DefaultRatio)
	assert.True(t, a.Intensity)
	assert.Equal(t, 0, a.IntensityRow)
	assert.True(t, a.Frequency)
	assert.Equal(t, 0, a.FrequencyColumn)
	assert.True(t, a.Both())

	// RT must rise with period too
	m.RT = [][]float64{{10, 10, 10}, {10, 10, 10}}
	a = Assess(m, DefaultRatio)
	assert.True(t, a.Intensity)
	assert.False(t, a.Frequency)
	assert.Equal(t, -1, a.FrequencyColumn)

	// frequency is not checked without intensity sensitivity
	m.HT = [][]float64{{3, 2, 1}, {5, 5, 5}}
	m.RT = [][]float64{{10, 10, 10}, {20, 20, 20}}
	a = Assess(m, DefaultRatio)
	assert.False(t, a.Intensity)
	assert.False(t, a.Frequency)

	// unhabituated cells break a row
	m.HT = [][]float64{{0, 2, 3}, {5, 5, 5}}
	assert.False(t, Assess(m, DefaultRatio).Intensity)

	// ratios must stay under the threshold
	m.HT = [][]float64{{100, 101, 102}, {5, 5, 5}}
	assert.False(t, Assess(m, DefaultRatio).Intensity)
	assert.True(t, Assess(m, 1).Intensity)
}

func TestCorrelate(t *testing.T) {
	m := &Matrix{
		Periods:    []float64{5, 10, 15},
		Amplitudes: []float64{1, 2},
		HT:         [][]float64{{1, 4}, {2, 4}, {3, 4}},
	}
	tr := Correlate(m)
	require.Len(t, tr.PeriodTrend, 2)
	require.Len(t, tr.AmplitudeTrend, 3)
	assert.InDelta(t, 1, tr.PeriodTrend[0], 1e-9)
	assert.Zero(t, tr.PeriodTrend[1], "constant column has no trend")
	assert.InDelta(t, 1, tr.AmplitudeTrend[0], 1e-9)
}

func TestTrendAndFitness(t *testing.T) {
	assert.InDelta(t, 0, Trend([]float64{30, 20, 10}), 1e-12)
	assert.InDelta(t, -2, Trend([]float64{10, 20, 30}), 1e-12)
	assert.InDelta(t, -10.0/21-1, Trend([]float64{10, 10, 20}), 1e-12)
	assert.InDelta(t, -1, Trend([]float64{7, 7, 7}), 1e-12)
	assert.Zero(t, Trend([]float64{10, 50, 30}))
	assert.Zero(t, Trend([]float64{10}))

	assert.InDelta(t, -4, Fitness([]float64{10, 20, 30}, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 0, Fitness([]float64{30, 20, 10}, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, -2, Fitness([]float64{7, 7, 7}, []float64{1, 2, 3}), 1e-12)
}

func TestScore(t *testing.T) {
	s := Scan{
		FrequencyPeriods:    []float64{5, 10},
		FrequencyAmplitude:  1,
		IntensityAmplitudes: []float64{1, 2},
		IntensityPeriod:     10,
		OnDuration:          1,
	}
	fit, freq, inten, err := NewEvaluator(depletionFactory(t), 0).Score(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, freq, 2)
	require.Len(t, inten, 2)
	assert.Equal(t, freq[1], inten[0], "both scans share the (10, 1) cell")
	assert.InDelta(t, Fitness(freq, inten), fit, 0)
	assert.LessOrEqual(t, fit, 0.0)

	_, _, _, err = NewEvaluator(depletionFactory(t), 0).Score(context.Background(), Scan{OnDuration: 1})
	assert.ErrorIs(t, err, ErrInvalidGrid)
}
