package hallmarks

import (
	"context"
	"fmt"
)

// Scan is the pair of one-dimensional sweeps behind Fitness: periods at a
// fixed amplitude, and amplitudes at a fixed period.
type Scan struct {
	FrequencyPeriods    []float64 `json:"frequency_periods"`
	FrequencyAmplitude  float64   `json:"frequency_amplitude"`
	IntensityAmplitudes []float64 `json:"intensity_amplitudes"`
	IntensityPeriod     float64   `json:"intensity_period"`
	OnDuration          float64   `json:"on_duration"`
}

// DefaultScan returns the scan used for the receptor models.
func DefaultScan() Scan {
	return Scan{
		FrequencyPeriods:    []float64{5, 10, 15},
		FrequencyAmplitude:  15,
		IntensityAmplitudes: []float64{10, 15, 20},
		IntensityPeriod:     10,
		OnDuration:          1,
	}
}

// Score runs both sweeps of s and returns their Fitness along with the raw
// habituation counts.
func (ev *Evaluator) Score(ctx context.Context, s Scan) (fitness float64, frequency, intensity []float64, err error) {
	freq, err := ev.Evaluate(ctx, Grid{
		Periods:    s.FrequencyPeriods,
		Amplitudes: []float64{s.FrequencyAmplitude},
		OnDuration: s.OnDuration,
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("frequency scan: %w", err)
	}
	inten, err := ev.Evaluate(ctx, Grid{
		Periods:    []float64{s.IntensityPeriod},
		Amplitudes: s.IntensityAmplitudes,
		OnDuration: s.OnDuration,
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("intensity scan: %w", err)
	}

	frequency = make([]float64, len(freq.Periods))
	for i := range freq.Periods {
		frequency[i] = float64(freq.Cells[i][0].Steps)
	}
	intensity = make([]float64, len(inten.Amplitudes))
	for j := range inten.Amplitudes {
		intensity[j] = float64(inten.Cells[0][j].Steps)
	}
	return Fitness(frequency, intensity), frequency, intensity, nil
}
