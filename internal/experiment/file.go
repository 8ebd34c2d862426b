package experiment

import (
	"fmt"

	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// ConfigFromFile overlays the stage sections of a protocol file on the
// defaults. When only the integrator threshold is raised, the detector
// threshold follows it.
func ConfigFromFile(pf *config.ProtocolFile) Config {
	cfg := DefaultConfig()
	if in := pf.Integration; in != nil {
		ic := &cfg.Integrator
		setInt(&ic.OutputIndex, in.OutputIndex)
		setFloat(&ic.DeclineThreshold, in.DeclineThreshold)
		setFloat(&ic.MinOutputLevel, in.MinOutputLevel)
		setFloat(&ic.MaxStep, in.MaxStep)
		setFloat(&ic.StepsPerTime, in.StepsPerTime)
		setInt(&ic.PeriodsPerExpansion, in.PeriodsPerExpansion)
		setInt(&ic.MaxExpansionAttempts, in.MaxExpansionAttempts)
		setInt(&ic.SteadyRun, in.SteadyRun)
		setInt(&ic.IncreasingRun, in.IncreasingRun)
		if len(in.StepLadder) > 0 {
			ic.StepLadder = append([]float64(nil), in.StepLadder...)
		}
	}
	if cfg.Detector.DeclineThreshold < cfg.Integrator.DeclineThreshold {
		cfg.Detector.DeclineThreshold = cfg.Integrator.DeclineThreshold
	}
	if d := pf.Detection; d != nil {
		setFloat(&cfg.Detector.DeclineThreshold, d.DeclineThreshold)
		setFloat(&cfg.Detector.ZeroCrossFloor, d.ZeroCrossFloor)
		setFloat(&cfg.Detector.FirstPeakFloor, d.FirstPeakFloor)
	}
	if r := pf.Recovery; r != nil {
		setFloat(&cfg.Recovery.Fraction, r.Fraction)
		setInt(&cfg.Recovery.MaxDepth, r.MaxDepth)
		setInt(&cfg.Recovery.SampleStride, r.SampleStride)
		if r.KeepProbeTrajectories != nil {
			cfg.Recovery.KeepProbeTrajectories = *r.KeepProbeTrajectories
		}
	}
	if pc := pf.Precondition; pc != nil {
		cfg.Precondition = pc.Enabled
		if pc.Duration > 0 {
			cfg.PreconditionDuration = pc.Duration
		}
	}
	return cfg
}

// FromFile builds an Experiment for the model a protocol file names. Rates
// and initial state fall back to the model defaults when omitted.
func FromFile(pf *config.ProtocolFile, opts ...Option) (*Experiment, models.Protocol, error) {
	sys, err := systems.Lookup(pf.Model)
	if err != nil {
		return nil, models.Protocol{}, err
	}
	rates := sys.Rates(pf.Rates)
	if err := sys.CheckRates(rates); err != nil {
		return nil, models.Protocol{}, err
	}
	x0 := sys.Initial(pf.InitialState)
	if len(x0) != sys.Dim() {
		return nil, models.Protocol{}, fmt.Errorf("%w: %s has %d variables, initial_state has %d",
			ErrInvalidConfig, sys.Name, sys.Dim(), len(x0))
	}
	e, err := New(sys.Model, rates, x0, ConfigFromFile(pf), opts...)
	if err != nil {
		return nil, models.Protocol{}, err
	}
	return e, pf.Stimulus.Protocol(), nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
