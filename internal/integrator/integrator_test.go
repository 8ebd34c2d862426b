package integrator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

func protocol(period, on, amax float64) models.Protocol {
	return models.NewProtocol(period, on, amax)
}

func mustSystem(t *testing.T, name string) systems.System {
	t.Helper()
	s, err := systems.Lookup(name)
	require.NoError(t, err)
	return s
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.StepsPerTime = 20
	return cfg
}

func TestRunDepletionHabituates(t *testing.T) {
	sys := mustSystem(t, "depletion")
	in := New(fastConfig())

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(10, 1, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeHabituated, res.Outcome)
	assert.Empty(t, res.DegradedPeriods)
	require.GreaterOrEqual(t, len(res.Peaks), 3)

	levels := models.Levels(res.Peaks)
	assert.Greater(t, levels[0], levels[len(levels)-1], "peaks should decline")
}

func TestRunInvariants(t *testing.T) {
	sys := mustSystem(t, "depletion")
	cfg := fastConfig()
	in := New(cfg)

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(10, 2, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)

	require.Len(t, res.Times, len(res.Trajectory))
	assert.Equal(t, sys.InitialState, res.Trajectory[0])
	for i, tt := range res.Times {
		assert.InDelta(t, float64(i)/cfg.StepsPerTime, tt, 1e-12)
	}
	// whole periods only; row 0 is x0, then one row per integrated step
	assert.Zero(t, (len(res.Trajectory)-1)%cfg.Steps(10))
	assert.Equal(t, len(res.Peaks)*cfg.Steps(10), len(res.Trajectory)-1)

	for i := 1; i < len(res.Peaks); i++ {
		assert.Greater(t, res.Peaks[i].Step, res.Peaks[i-1].Step)
	}
	require.Len(t, res.Troughs, len(res.Peaks)+1)
	assert.Equal(t, models.Extremum{Step: 0, Level: 0}, res.Troughs[0])
	for i, p := range res.Peaks {
		tr := res.Troughs[i+1]
		assert.LessOrEqual(t, tr.Level, p.Level)
		if i+1 < len(res.Peaks) {
			assert.LessOrEqual(t, tr.Level, res.Peaks[i+1].Level)
			assert.True(t, tr.Step >= p.Step && tr.Step <= res.Peaks[i+1].Step)
		}
	}
}

func TestRunFacilitationRisingPeaksCountAsSteady(t *testing.T) {
	sys := mustSystem(t, "facilitation")
	in := New(fastConfig())

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(10, 1, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeHabituated, res.Outcome)
	// two warm-up peaks plus the steady run
	assert.Len(t, res.Peaks, 2+DefaultConfig().SteadyRun)
}

func TestRunFacilitationSensitizes(t *testing.T) {
	sys := mustSystem(t, "facilitation")
	cfg := fastConfig()
	cfg.IncreasingRun = 3
	cfg.SteadyRun = 10
	in := New(cfg)

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(10, 1, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSensitizing, res.Outcome)
	assert.Len(t, res.Peaks, 2+cfg.IncreasingRun)
}

func risingPeaks(n int, growth float64) []models.Extremum {
	peaks := make([]models.Extremum, n)
	level := 1.0
	for i := range peaks {
		peaks[i] = models.Extremum{Step: (i + 1) * 10, Level: level}
		level *= 1 + growth
	}
	return peaks
}

func TestCheckTerminationRisingPeaksHabituate(t *testing.T) {
	in := New(DefaultConfig())
	peaks := risingPeaks(12, 0.02)

	var steady, increasing int
	for n := 1; n <= len(peaks); n++ {
		stop, outcome := in.checkTermination(peaks[:n], &steady, &increasing)
		if !stop {
			continue
		}
		assert.Equal(t, models.OutcomeHabituated, outcome)
		assert.Equal(t, 2+DefaultConfig().SteadyRun, n)
		assert.Equal(t, DefaultConfig().SteadyRun, steady)
		return
	}
	t.Fatalf("no termination after %d rising peaks (steady=%d increasing=%d)", len(peaks), steady, increasing)
}

func TestCheckTerminationSharpDeclineResetsSteady(t *testing.T) {
	in := New(DefaultConfig())
	peaks := []models.Extremum{
		{Step: 10, Level: 1}, {Step: 20, Level: 1}, {Step: 30, Level: 1}, {Step: 40, Level: 0.5},
	}

	var steady, increasing int
	for n := 1; n <= 3; n++ {
		in.checkTermination(peaks[:n], &steady, &increasing)
	}
	assert.Equal(t, 1, steady)
	stop, _ := in.checkTermination(peaks, &steady, &increasing)
	assert.False(t, stop)
	assert.Zero(t, steady)
}

func TestRunSteadyDeclineExhaustsHorizon(t *testing.T) {
	// pure depletion without replenishment: 5% decline per period forever
	model := func(x []float64, _, s float64, k []float64, dxdt []float64) {
		dxdt[0] = -k[0] * s * x[0]
		dxdt[1] = s*x[0] - x[1]
	}
	cfg := fastConfig()
	cfg.MaxExpansionAttempts = 1
	in := New(cfg)

	res, err := in.Run(model, []float64{1, 0}, models.ParameterSet{
		Protocol: protocol(10, 1, 1),
		Rates:    []float64{0.05},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNonConverged, res.Outcome)
	horizon := cfg.Steps(10) * cfg.PeriodsPerExpansion * 2
	assert.Equal(t, horizon, res.Horizon)
	// x0 plus one row per integrated step
	assert.Len(t, res.Trajectory, horizon+1)
	assert.Len(t, res.Peaks, 2*cfg.PeriodsPerExpansion)
}

func TestRunPlateauCountsAsSteady(t *testing.T) {
	sys := mustSystem(t, "linear")
	in := New(fastConfig())

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(20, 2, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeHabituated, res.Outcome)
}

func TestRunTonEqualsPeriod(t *testing.T) {
	sys := mustSystem(t, "linear")
	in := New(fastConfig())

	res, err := in.Run(sys.Model, sys.InitialState, models.ParameterSet{
		Protocol: protocol(5, 5, 1),
		Rates:    sys.DefaultRates,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Peaks)
	last := res.Trajectory[len(res.Trajectory)-1][0]
	assert.InDelta(t, 1, last, 1e-3, "constant stimulus should saturate")
}

func TestRunPersistentFailureIsFlagged(t *testing.T) {
	model := func(x []float64, _, _ float64, _ []float64, dxdt []float64) {
		dxdt[0] = math.NaN()
	}
	in := New(fastConfig())

	res, err := in.Run(model, []float64{1}, models.ParameterSet{Protocol: protocol(1, 0.5, 1)})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNonConverged, res.Outcome)
	assert.Equal(t, []int{0}, res.DegradedPeriods)
	assert.Empty(t, res.Peaks)
	assert.Len(t, res.Troughs, 1)
}

func TestRunRejectsBadInput(t *testing.T) {
	sys := mustSystem(t, "linear")
	in := New(DefaultConfig())
	ps := models.ParameterSet{Protocol: protocol(10, 1, 1), Rates: sys.DefaultRates}

	_, err := in.Run(nil, sys.InitialState, ps)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = in.Run(sys.Model, nil, ps)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad := ps
	bad.OnDuration = 20
	_, err = in.Run(sys.Model, sys.InitialState, bad)
	assert.ErrorIs(t, err, models.ErrInvalidProtocol)

	bad = ps
	bad.Period = 0.001
	_, err = in.Run(sys.Model, sys.InitialState, bad)
	assert.ErrorIs(t, err, models.ErrInvalidProtocol)

	cfg := DefaultConfig()
	cfg.OutputIndex = 3
	_, err = New(cfg).Run(sys.Model, sys.InitialState, ps)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStabilizeRecoversWithLadder(t *testing.T) {
	// the first solve overshoots below zero; later solves are well behaved
	solves := 0
	model := func(x []float64, tt, _ float64, _ []float64, dxdt []float64) {
		if tt == 0 && x[0] == 1 {
			solves++
		}
		if solves == 1 {
			dxdt[0] = -1000
			return
		}
		dxdt[0] = -x[0]
	}
	in := New(fastConfig())

	a, ok := in.Relax(model, []float64{1}, nil, 0, 0, 20)
	require.True(t, ok)
	assert.Equal(t, DefaultStepLadder[0], a.MaxStep)
	assert.Len(t, a.Rows, 21)
	assert.InDelta(t, math.Exp(-1), a.Rows[20][0], 1e-6)
}

func TestStabilizeReturnsLastAttemptWhenAllFail(t *testing.T) {
	model := func(x []float64, _, _ float64, _ []float64, dxdt []float64) {
		dxdt[0] = -1000
	}
	cfg := fastConfig()
	cfg.StepLadder = []float64{1e-2, 1e-3}
	in := New(cfg)

	a, ok := in.Relax(model, []float64{1}, nil, 0, 0, 20)
	assert.False(t, ok)
	assert.Equal(t, 1e-3, a.MaxStep)
	assert.Len(t, a.Rows, 21)
}

func TestPulseSegments(t *testing.T) {
	in := New(fastConfig())
	p := protocol(10, 2, 3)

	segs := in.periodSegments(p, 200, 400)
	require.Len(t, segs, 2)
	assert.Equal(t, Segment{Amplitude: 3, StartStep: 200, Steps: 40}, segs[0])
	assert.Equal(t, Segment{Amplitude: 0, StartStep: 240, Steps: 160}, segs[1])

	segs = in.periodSegments(protocol(10, 0, 3), 0, 200)
	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].Amplitude)

	segs = in.periodSegments(protocol(10, 10, 3), 0, 200)
	require.Len(t, segs, 1)
	assert.Equal(t, 3.0, segs[0].Amplitude)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate(2))

	cases := []func(*Config){
		func(c *Config) { c.StepsPerTime = 0 },
		func(c *Config) { c.DeclineThreshold = -1 },
		func(c *Config) { c.PeriodsPerExpansion = 0 },
		func(c *Config) { c.MaxExpansionAttempts = -1 },
		func(c *Config) { c.SteadyRun = 0 },
		func(c *Config) { c.StepLadder = []float64{1e-2, 0} },
		func(c *Config) { c.OutputIndex = -2 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		err := cfg.Validate(2)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "case %d: %v", i, err)
	}
	assert.Equal(t, 1, DefaultConfig().Output(2))
}

func TestSampleMatchesDenseRelax(t *testing.T) {
	sys := mustSystem(t, "linear")
	in := New(fastConfig())
	x0 := []float64{1}

	dense, ok := in.Relax(sys.Model, x0, sys.DefaultRates, 0, 0, 100)
	require.True(t, ok)
	sparse, ok := in.Sample(sys.Model, x0, sys.DefaultRates, 0, 0, []int{0, 40, 100})
	require.True(t, ok)

	require.Len(t, sparse.Rows, 3)
	assert.Equal(t, x0, sparse.Rows[0])
	assert.InDelta(t, dense.Rows[40][0], sparse.Rows[1][0], 1e-7)
	assert.InDelta(t, dense.Rows[100][0], sparse.Rows[2][0], 1e-7)
	assert.InDelta(t, math.Exp(-5), sparse.Rows[2][0], 1e-7)
}
