package main

import (
	"log/slog"

	"github.com/GoSim-25-26J-441/habituation-core/internal/experiment"
	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
	"github.com/GoSim-25-26J-441/habituation-core/internal/systems"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/config"
)

// builder returns experiment factories for candidate rate vectors, keeping
// everything else from the protocol file.
func builder(pf *config.ProtocolFile, log *slog.Logger) func(rates []float64) hallmarks.Factory {
	return func(rates []float64) hallmarks.Factory {
		return func() (*experiment.Experiment, error) {
			cp := *pf
			cp.Rates = append([]float64(nil), rates...)
			e, _, err := experiment.FromFile(&cp, experiment.WithLogger(log))
			return e, err
		}
	}
}

// gridOf builds the hallmark grid from the protocol's grid section. The
// on-duration and rest level default to the stimulus values.
func gridOf(pf *config.ProtocolFile) hallmarks.Grid {
	p := pf.Stimulus.Protocol()
	g := hallmarks.Grid{OnDuration: p.OnDuration, Amin: p.Amin}
	if pf.Grid != nil {
		g.Periods = pf.Grid.Periods
		g.Amplitudes = pf.Grid.Amplitudes
		if pf.Grid.OnDuration != nil {
			g.OnDuration = *pf.Grid.OnDuration
		}
	}
	return g
}

func gridWorkers(pf *config.ProtocolFile) int {
	if pf.Grid != nil && pf.Grid.Workers > 0 {
		return pf.Grid.Workers
	}
	return 4
}

// baseRates returns the protocol's rates or the model defaults.
func baseRates(pf *config.ProtocolFile) ([]float64, []string, error) {
	sys, err := systems.Lookup(pf.Model)
	if err != nil {
		return nil, nil, err
	}
	rates := sys.Rates(pf.Rates)
	if err := sys.CheckRates(rates); err != nil {
		return nil, nil, err
	}
	return append([]float64(nil), rates...), sys.RateNames, nil
}
