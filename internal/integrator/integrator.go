// Package integrator drives a model through a repeating square-wave
// stimulus one period at a time, stopping once the peak response settles,
// keeps rising, or the time horizon is exhausted.
package integrator

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/GoSim-25-26J-441/habituation-core/internal/ode"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

// Integrator runs periodic integrations with a fixed configuration.
// It holds no per-run state and may be shared.
type Integrator struct {
	cfg    Config
	solver ode.Options
	log    *slog.Logger
}

// Option configures an Integrator.
type Option func(*Integrator)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(in *Integrator) {
		if l != nil {
			in.log = l
		}
	}
}

// WithSolverOptions overrides the solver tolerances and step budget.
// MaxStep is always taken from the config and the ladder.
func WithSolverOptions(opts ode.Options) Option {
	return func(in *Integrator) {
		in.solver = opts
	}
}

// New creates an Integrator.
func New(cfg Config, opts ...Option) *Integrator {
	in := &Integrator{
		cfg:    cfg,
		solver: ode.DefaultOptions(),
		log:    logger.Default,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Config returns the integrator's configuration.
func (in *Integrator) Config() Config {
	return in.cfg
}

// Result is the output of one periodic integration.
type Result struct {
	// Times[i] is the time of Trajectory[i], i/StepsPerTime.
	Times      []float64
	Trajectory [][]float64
	Peaks      []models.Extremum
	// Troughs has one more entry than Peaks; Troughs[0] is the synthetic (0, 0).
	Troughs         []models.Extremum
	Outcome         models.Outcome
	DegradedPeriods []int
	// Horizon is the final step horizon after expansions.
	Horizon int
	Stats   ode.Stats
}

// Run integrates model from x0 under the square wave in ps.
func (in *Integrator) Run(model models.Model, x0 []float64, ps models.ParameterSet) (*Result, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidConfig)
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("%w: empty initial state", ErrInvalidConfig)
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	if err := in.cfg.Validate(len(x0)); err != nil {
		return nil, err
	}

	cfg := in.cfg
	out := cfg.Output(len(x0))
	duration := cfg.Steps(ps.Period)
	if duration <= 0 {
		return nil, fmt.Errorf("%w: period %g shorter than one step", models.ErrInvalidProtocol, ps.Period)
	}
	horizon := duration * cfg.PeriodsPerExpansion
	expansions := cfg.MaxExpansionAttempts

	res := &Result{Outcome: models.OutcomeNonConverged}
	traj := make([][]float64, 1, horizon+1)
	traj[0] = append([]float64(nil), x0...)

	var (
		steady     int
		increasing int
		start      int
		period     int
	)
	for {
		if start >= horizon {
			if expansions <= 0 {
				in.log.Debug("time horizon exhausted", "horizon", horizon, "periods", period)
				break
			}
			expansions--
			horizon *= 2
			in.log.Debug("expanding time horizon", "horizon", horizon, "attempts_left", expansions)
		}
		end := start + duration
		if end > horizon {
			end = horizon
		}

		attempt, ok := in.Stabilize(model, traj[start], ps.Rates, in.periodSegments(ps.Protocol, start, end))
		res.Stats.Add(attempt.Stats)
		traj = append(traj, attempt.Rows[1:]...)
		if !ok {
			res.DegradedPeriods = append(res.DegradedPeriods, period)
			in.log.Warn("period still invalid after step ladder",
				"period", period,
				"start_step", start,
				"error", errString(attempt.Err))
			// a non-finite end state cannot seed the next period; stop
			// without a peak for this one
			if !finite(traj[end]) {
				start = end
				break
			}
		}

		if end-start > 1 {
			levels := make([]float64, end-start)
			for i := range levels {
				levels[i] = traj[start+i][out]
			}
			m := utils.ArgMax(levels)
			res.Peaks = append(res.Peaks, models.Extremum{Step: start + m, Level: levels[m]})
		}

		start = end
		period++

		if stop, outcome := in.checkTermination(res.Peaks, &steady, &increasing); stop {
			res.Outcome = outcome
			break
		}
	}

	res.Trajectory = traj[:start+1]
	res.Times = utils.Arange(0, cfg.Step(), len(res.Trajectory))
	res.Troughs = troughs(res.Trajectory, out, res.Peaks)
	res.Horizon = horizon

	in.log.Debug("periodic integration finished",
		"outcome", res.Outcome,
		"periods", period,
		"peaks", len(res.Peaks),
		"rows", len(res.Trajectory),
		"degraded", len(res.DegradedPeriods),
		"solver_steps", res.Stats.Steps)
	return res, nil
}

// checkTermination applies the increasing and steady counters to the
// newest pair of peaks. The steady check always runs; a pair is steady when
// the previous peak is below MinOutputLevel or the relative decline
// 1 - last/prev is under DeclineThreshold. A rising pair is always steady.
func (in *Integrator) checkTermination(peaks []models.Extremum, steady, increasing *int) (bool, models.Outcome) {
	n := len(peaks)
	if n <= 2 {
		return false, ""
	}
	last, prev := peaks[n-1].Level, peaks[n-2].Level
	if last >= prev {
		*increasing++
		if *increasing >= in.cfg.IncreasingRun {
			return true, models.OutcomeSensitizing
		}
	}
	if prev < in.cfg.MinOutputLevel || 1-last/prev < in.cfg.DeclineThreshold {
		*steady++
	} else {
		*steady = 0
	}
	if *steady >= in.cfg.SteadyRun {
		return true, models.OutcomeHabituated
	}
	return false, ""
}

// troughs returns the synthetic leading trough, the minimum between each
// pair of consecutive peaks (bounds included), and the minimum after the
// last peak.
func troughs(traj [][]float64, out int, peaks []models.Extremum) []models.Extremum {
	res := make([]models.Extremum, 0, len(peaks)+1)
	res = append(res, models.Extremum{Step: 0, Level: 0})
	for i, p := range peaks {
		hi := len(traj) - 1
		if i+1 < len(peaks) {
			hi = peaks[i+1].Step
		}
		best := p.Step
		for j := p.Step; j <= hi; j++ {
			if traj[j][out] < traj[best][out] {
				best = j
			}
		}
		res = append(res, models.Extremum{Step: best, Level: traj[best][out]})
	}
	return res
}

func finite(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
