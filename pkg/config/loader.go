package config

import (
	"fmt"
	"math"
	"os"
)

// LoadProtocol loads and parses a protocol file
func LoadProtocol(path string) (*ProtocolFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol file %s: %w", path, err)
	}
	pf, err := ParseProtocolYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse protocol file %s: %w", path, err)
	}
	return pf, nil
}

// validateProtocol performs validation on a protocol file
func validateProtocol(pf *ProtocolFile) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[pf.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", pf.LogLevel)
	}
	validFormats := map[string]bool{"": true, "json": true, "text": true}
	if !validFormats[pf.LogFormat] {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", pf.LogFormat)
	}

	if pf.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if err := finiteAll("rates", pf.Rates); err != nil {
		return err
	}
	if err := finiteAll("initial_state", pf.InitialState); err != nil {
		return err
	}

	if err := validateStimulus(&pf.Stimulus); err != nil {
		return fmt.Errorf("stimulus validation failed: %w", err)
	}

	if pf.Integration != nil {
		if err := validateIntegration(pf.Integration); err != nil {
			return fmt.Errorf("integration validation failed: %w", err)
		}
	}
	if pf.Detection != nil {
		if err := validateDetection(pf.Detection); err != nil {
			return fmt.Errorf("detection validation failed: %w", err)
		}
	}
	if pf.Recovery != nil {
		if err := validateRecovery(pf.Recovery); err != nil {
			return fmt.Errorf("recovery validation failed: %w", err)
		}
	}
	if pf.Precondition != nil && pf.Precondition.Duration < 0 {
		return fmt.Errorf("precondition duration cannot be negative, got %g", pf.Precondition.Duration)
	}
	if pf.Grid != nil {
		if err := validateGrid(pf.Grid); err != nil {
			return fmt.Errorf("grid validation failed: %w", err)
		}
	}
	if pf.Sensitivity != nil {
		if err := validateSensitivity(pf.Sensitivity); err != nil {
			return fmt.Errorf("sensitivity validation failed: %w", err)
		}
	}
	if pf.Optimization != nil {
		if err := validateOptimization(pf.Optimization); err != nil {
			return fmt.Errorf("optimization validation failed: %w", err)
		}
	}

	return nil
}

// validateStimulus requires period, on_duration and amax and checks them
// the same way a measurement would.
func validateStimulus(s *Stimulus) error {
	if s.Period == nil {
		return fmt.Errorf("period is required")
	}
	if s.OnDuration == nil {
		return fmt.Errorf("on_duration is required")
	}
	if s.Amax == nil {
		return fmt.Errorf("amax is required")
	}
	return s.Protocol().Validate()
}

func validateIntegration(in *Integration) error {
	if in.DeclineThreshold != nil && !(*in.DeclineThreshold > 0) {
		return fmt.Errorf("decline_threshold must be positive, got %g", *in.DeclineThreshold)
	}
	if in.MinOutputLevel != nil && *in.MinOutputLevel < 0 {
		return fmt.Errorf("min_output_level cannot be negative, got %g", *in.MinOutputLevel)
	}
	if in.MaxStep != nil && *in.MaxStep < 0 {
		return fmt.Errorf("max_step cannot be negative, got %g", *in.MaxStep)
	}
	if in.StepsPerTime != nil && !(*in.StepsPerTime > 0) {
		return fmt.Errorf("steps_per_time must be positive, got %g", *in.StepsPerTime)
	}
	if in.PeriodsPerExpansion != nil && *in.PeriodsPerExpansion <= 0 {
		return fmt.Errorf("periods_per_expansion must be positive, got %d", *in.PeriodsPerExpansion)
	}
	if in.MaxExpansionAttempts != nil && *in.MaxExpansionAttempts < 0 {
		return fmt.Errorf("max_expansion_attempts cannot be negative, got %d", *in.MaxExpansionAttempts)
	}
	if in.SteadyRun != nil && *in.SteadyRun <= 0 {
		return fmt.Errorf("steady_run must be positive, got %d", *in.SteadyRun)
	}
	if in.IncreasingRun != nil && *in.IncreasingRun <= 0 {
		return fmt.Errorf("increasing_run must be positive, got %d", *in.IncreasingRun)
	}
	for i, h := range in.StepLadder {
		if !(h > 0) || math.IsInf(h, 0) {
			return fmt.Errorf("step_ladder[%d] must be a positive finite step, got %g", i, h)
		}
	}
	return nil
}

func validateDetection(d *Detection) error {
	if d.DeclineThreshold != nil && !(*d.DeclineThreshold > 0) {
		return fmt.Errorf("decline_threshold must be positive, got %g", *d.DeclineThreshold)
	}
	if d.ZeroCrossFloor != nil && *d.ZeroCrossFloor < 0 {
		return fmt.Errorf("zero_cross_floor cannot be negative, got %g", *d.ZeroCrossFloor)
	}
	if d.FirstPeakFloor != nil && *d.FirstPeakFloor < 0 {
		return fmt.Errorf("first_peak_floor cannot be negative, got %g", *d.FirstPeakFloor)
	}
	return nil
}

func validateRecovery(r *Recovery) error {
	if r.Fraction != nil && !(*r.Fraction > 0 && *r.Fraction <= 1) {
		return fmt.Errorf("fraction must be in (0, 1], got %g", *r.Fraction)
	}
	if r.MaxDepth != nil && (*r.MaxDepth < 0 || *r.MaxDepth > 30) {
		return fmt.Errorf("max_depth must be between 0 and 30, got %d", *r.MaxDepth)
	}
	if r.SampleStride != nil && *r.SampleStride < 0 {
		return fmt.Errorf("sample_stride cannot be negative, got %d", *r.SampleStride)
	}
	return nil
}

func validateGrid(g *Grid) error {
	if len(g.Periods) < 2 {
		return fmt.Errorf("at least two periods must be defined")
	}
	if len(g.Amplitudes) < 2 {
		return fmt.Errorf("at least two amplitudes must be defined")
	}
	for i, t := range g.Periods {
		if !(t > 0) || math.IsInf(t, 0) {
			return fmt.Errorf("periods[%d] must be positive, got %g", i, t)
		}
	}
	for i, a := range g.Amplitudes {
		if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("amplitudes[%d] cannot be negative, got %g", i, a)
		}
	}
	if g.OnDuration != nil {
		for _, t := range g.Periods {
			if !(*g.OnDuration >= 0 && *g.OnDuration <= t) {
				return fmt.Errorf("on_duration %g does not fit period %g", *g.OnDuration, t)
			}
		}
	}
	if g.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", g.Workers)
	}
	return nil
}

func validateSensitivity(s *Sensitivity) error {
	if s.InitialVariation < 0 || s.MinVariation < 0 {
		return fmt.Errorf("variations cannot be negative")
	}
	if s.InitialVariation > 0 && s.MinVariation > 0 && s.MinVariation >= s.InitialVariation {
		return fmt.Errorf("min_variation %g must be below initial_variation %g", s.MinVariation, s.InitialVariation)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", s.Workers)
	}
	return nil
}

// validateOptimization validates the optimization configuration
func validateOptimization(o *Optimization) error {
	validObjectives := map[string]bool{
		"hallmark_fitness": true,
		"hallmark_count":   true,
	}
	if !validObjectives[o.Objective] {
		return fmt.Errorf("invalid objective: %q (must be hallmark_fitness or hallmark_count)", o.Objective)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", o.MaxIterations)
	}
	if o.StepSize < 0 || o.MinStepSize < 0 {
		return fmt.Errorf("step sizes cannot be negative")
	}
	validConvergence := map[string]bool{
		"":               true,
		"no_improvement": true,
		"plateau":        true,
		"combined":       true,
	}
	if !validConvergence[o.Convergence] {
		return fmt.Errorf("invalid convergence: %s (must be no_improvement, plateau, or combined)", o.Convergence)
	}
	if o.Patience < 0 {
		return fmt.Errorf("patience cannot be negative, got %d", o.Patience)
	}
	return nil
}

func finiteAll(field string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s[%d] must be finite, got %g", field, i, x)
		}
	}
	return nil
}
