// Package recovery measures how long a habituated system must rest before
// a single test pulse again evokes a response close to its first one.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/habituation-core/internal/integrator"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

var (
	// ErrNoReference indicates a missing or non-positive reference peak.
	ErrNoReference = errors.New("recovery: reference peak must be positive")

	// ErrRelaxationFailed indicates the rest integration produced a non-finite state.
	ErrRelaxationFailed = errors.New("recovery: relaxation failed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid recovery config")
)

// Config controls the search.
type Config struct {
	// Fraction of the reference peak a test pulse must reach to count as recovered.
	Fraction float64 `json:"fraction" yaml:"fraction"`

	// MaxDepth bounds the rest duration at Period * 2^MaxDepth.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// KeepProbeTrajectories stores each test pulse's trajectory in the result.
	KeepProbeTrajectories bool `json:"keep_probe_trajectories" yaml:"keep_probe_trajectories"`

	// SampleStride is the spacing, in steps, of the stored rest trajectory.
	// Zero samples once per stimulus period.
	SampleStride int `json:"sample_stride" yaml:"sample_stride"`
}

// DefaultConfig returns the standard search settings.
func DefaultConfig() Config {
	return Config{
		Fraction:              0.95,
		MaxDepth:              12,
		KeepProbeTrajectories: true,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Fraction <= 0 || c.Fraction > 1 {
		return fmt.Errorf("%w: fraction must be in (0, 1]", ErrInvalidConfig)
	}
	if c.MaxDepth < 1 || c.MaxDepth > 30 {
		return fmt.Errorf("%w: max_depth must be in [1, 30]", ErrInvalidConfig)
	}
	if c.SampleStride < 0 {
		return fmt.Errorf("%w: sample_stride must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Input describes the habituated system to probe.
type Input struct {
	Model  models.Model
	Params models.ParameterSet
	// State is the habituated state; negative residuals should already be clamped.
	State []float64
	// HabituationStep is the trajectory index of State.
	HabituationStep int
	// ReferencePeak is the first peak of the periodic run.
	ReferencePeak float64
	// Output is the resolved output variable index.
	Output int
}

// Search runs recovery searches.
type Search struct {
	in  *integrator.Integrator
	cfg Config
	log *slog.Logger
}

// Option configures a Search.
type Option func(*Search)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Search) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Search that integrates through in.
func New(in *integrator.Integrator, cfg Config, opts ...Option) *Search {
	s := &Search{in: in, cfg: cfg, log: logger.Default}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run relaxes the habituated state at Amin and binary-searches the
// shortest rest after which a single pulse reaches Fraction of the
// reference peak.
func (s *Search) Run(input Input) (*models.RecoveryResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if !(input.ReferencePeak > 0) {
		return nil, ErrNoReference
	}
	icfg := s.in.Config()
	spt := icfg.StepsPerTime
	maxDuration := input.Params.Period * math.Pow(2, float64(s.cfg.MaxDepth))
	total := icfg.Steps(maxDuration)

	rest := newRelaxation(s.in, input)
	var (
		t      int
		probes []models.RecoveryProbe
	)
	for dt := total / 2; dt > 0; dt /= 2 {
		k := t + dt - 1
		x, err := rest.at(k)
		if err != nil {
			return nil, err
		}
		probe, err := s.probe(input, x, k)
		if err != nil {
			return nil, err
		}
		probes = append(probes, probe)
		if probe.PeakRatio < s.cfg.Fraction {
			t += dt
		}
	}

	res := &models.RecoveryResult{
		Time:    float64(t+1) / spt,
		EndStep: input.HabituationStep + t + 1,
		Probes:  probes,
	}
	res.MonotonicityViolated = nonMonotone(probes)
	if res.MonotonicityViolated {
		s.log.Warn("recovery probes not monotone in rest duration",
			"probes", len(probes),
			"recovery_time", res.Time)
	}

	times, rows, err := s.trajectory(rest, input, t+1)
	if err != nil {
		return nil, err
	}
	res.Times, res.Trajectory = times, rows

	s.log.Debug("recovery search finished",
		"recovery_time", res.Time,
		"end_step", res.EndStep,
		"probes", len(probes))
	return res, nil
}

func (s *Search) probe(input Input, x []float64, k int) (models.RecoveryProbe, error) {
	p := input.Params.Protocol
	a, ok := s.in.Pulse(input.Model, x, input.Params.Rates, p, 0)
	if !ok {
		s.log.Warn("test pulse still invalid after step ladder", "rest_step", k)
	}
	duration := s.in.Config().Steps(p.Period)
	if duration > len(a.Rows) {
		duration = len(a.Rows)
	}
	peak := utils.ArgMax(utils.Column(a.Rows[:duration], input.Output))
	level := a.Rows[peak][input.Output]
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return models.RecoveryProbe{}, fmt.Errorf("%w: test pulse after %d rest steps", ErrRelaxationFailed, k)
	}

	probe := models.RecoveryProbe{
		Offset:    float64(k) / s.in.Config().StepsPerTime,
		Step:      k,
		PeakRatio: level / input.ReferencePeak,
	}
	if s.cfg.KeepProbeTrajectories {
		probe.Trajectory = a.Rows
		probe.Times = utils.Arange(0, s.in.Config().Step(), len(a.Rows))
	}
	return probe, nil
}

// trajectory samples the rest from the habituated state up to step end.
func (s *Search) trajectory(rest *relaxation, input Input, end int) ([]float64, [][]float64, error) {
	stride := s.cfg.SampleStride
	if stride <= 0 {
		stride = s.in.Config().Steps(input.Params.Period)
	}
	offsets := []int{0}
	for k := stride; k < end; k += stride {
		offsets = append(offsets, k)
	}
	if end > 0 {
		offsets = append(offsets, end)
	}
	a, ok := s.in.Sample(input.Model, input.State, input.Params.Rates, input.Params.Amin, 0, offsets)
	if !ok && !finiteRows(a.Rows) {
		return nil, nil, fmt.Errorf("%w: sampling rest trajectory: %v", ErrRelaxationFailed, a.Err)
	}
	times := make([]float64, len(offsets))
	for i, k := range offsets {
		times[i] = float64(k) / s.in.Config().StepsPerTime
	}
	return times, a.Rows, nil
}

// nonMonotone reports whether a longer rest ever produced a weaker test
// response than a shorter one.
func nonMonotone(probes []models.RecoveryProbe) bool {
	sorted := append([]models.RecoveryProbe(nil), probes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Step < sorted[j].Step })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].PeakRatio < sorted[i-1].PeakRatio-1e-9 {
			return true
		}
	}
	return false
}

func finiteRows(rows [][]float64) bool {
	for _, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
