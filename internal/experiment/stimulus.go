package experiment

import (
	"fmt"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

// IntegratePostHabituationAtRest continues from the stored habituated state
// at Amin for duration. Times are absolute, starting at the habituation time.
func (e *Experiment) IntegratePostHabituationAtRest(duration float64) ([]float64, [][]float64, error) {
	x, r, err := e.habituatedState()
	if err != nil {
		return nil, nil, err
	}
	if duration <= 0 {
		return nil, nil, fmt.Errorf("%w: rest duration must be positive", ErrInvalidConfig)
	}
	steps := e.cfg.Integrator.Steps(duration)
	a, ok := e.in.Relax(e.model, x, r.Params.Rates, r.Params.Amin, r.Habituation.TimeStep, steps)
	if !ok {
		e.log.Warn("rest integration still invalid after step ladder", "duration", duration)
	}
	times := utils.Arange(r.Habituation.Time, e.cfg.Integrator.Step(), len(a.Rows))
	return times, a.Rows, nil
}

// StimulusOption overrides protocol fields for ApplySingleStimulus.
type StimulusOption func(*models.Protocol)

// WithProtocol replaces the whole protocol.
func WithProtocol(p models.Protocol) StimulusOption {
	return func(dst *models.Protocol) { *dst = p }
}

// WithAmplitude sets the on-level.
func WithAmplitude(amax float64) StimulusOption {
	return func(dst *models.Protocol) { dst.Amax = amax }
}

// WithPeriod sets the period and on-duration.
func WithPeriod(period, onDuration float64) StimulusOption {
	return func(dst *models.Protocol) {
		dst.Period = period
		dst.OnDuration = onDuration
	}
}

// ApplySingleStimulus applies one on/off cycle from x0. The protocol is
// taken from the last Compute unless overridden; without a prior Compute
// the options must supply a complete protocol.
func (e *Experiment) ApplySingleStimulus(x0 []float64, opts ...StimulusOption) ([]float64, [][]float64, error) {
	if len(x0) != len(e.x0) {
		return nil, nil, fmt.Errorf("%w: state has %d components, model has %d", ErrInvalidConfig, len(x0), len(e.x0))
	}
	p := models.Unset()
	if e.result != nil {
		p = e.result.Params.Protocol
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		if e.result == nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrNoResult, err)
		}
		return nil, nil, err
	}
	a, ok := e.in.Pulse(e.model, x0, e.rates, p, 0)
	if !ok {
		e.log.Warn("single stimulus still invalid after step ladder", "period", p.Period)
	}
	return utils.Arange(0, e.cfg.Integrator.Step(), len(a.Rows)), a.Rows, nil
}
