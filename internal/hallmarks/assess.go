package hallmarks

import (
	"math"

	"github.com/montanaflynn/stats"
)

// DefaultRatio is the largest consecutive ratio that still counts as a
// strict increase.
const DefaultRatio = 0.95

// Assessment reports which hallmarks a sweep shows. Rows and columns are -1
// when the hallmark is absent.
type Assessment struct {
	Intensity       bool `json:"intensity"`
	IntensityRow    int  `json:"intensity_row"`
	Frequency       bool `json:"frequency"`
	FrequencyColumn int  `json:"frequency_column"`
}

// Both reports whether both hallmarks hold.
func (a Assessment) Both() bool {
	return a.Intensity && a.Frequency
}

// Assess checks intensity sensitivity (some period whose HT rises strictly
// with amplitude) and frequency sensitivity (some amplitude whose HT and RT
// both rise strictly with period). Frequency is only checked once intensity
// sensitivity holds.
func Assess(m *Matrix, ratio float64) Assessment {
	a := Assessment{IntensityRow: -1, FrequencyColumn: -1}
	for i, row := range m.HT {
		if allPositive(row) && increasing(row, ratio) {
			a.Intensity, a.IntensityRow = true, i
			break
		}
	}
	if !a.Intensity {
		return a
	}
	for j := range m.Amplitudes {
		ht, rt := column(m.HT, j), column(m.RT, j)
		if allPositive(ht) && increasing(ht, ratio) && increasing(rt, ratio) {
			a.Frequency, a.FrequencyColumn = true, j
			break
		}
	}
	return a
}

func allPositive(v []float64) bool {
	for _, x := range v {
		if !(x > 0) {
			return false
		}
	}
	return true
}

// increasing reports v[i]/v[i+1] < ratio for every consecutive pair.
func increasing(v []float64, ratio float64) bool {
	for i := 0; i+1 < len(v); i++ {
		if !(v[i]/v[i+1] < ratio) {
			return false
		}
	}
	return true
}

// Trends holds Pearson correlations of HT against the swept variable:
// PeriodTrend per amplitude column, AmplitudeTrend per period row. Undefined
// correlations are 0.
type Trends struct {
	PeriodTrend    []float64 `json:"period_trend"`
	AmplitudeTrend []float64 `json:"amplitude_trend"`
}

// Correlate computes the HT trends of a sweep.
func Correlate(m *Matrix) Trends {
	tr := Trends{
		PeriodTrend:    make([]float64, len(m.Amplitudes)),
		AmplitudeTrend: make([]float64, len(m.Periods)),
	}
	for j := range m.Amplitudes {
		tr.PeriodTrend[j] = pearson(m.Periods, column(m.HT, j))
	}
	for i, row := range m.HT {
		tr.AmplitudeTrend[i] = pearson(m.Amplitudes, row)
	}
	return tr
}

func pearson(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	corr, err := stats.Correlation(stats.Float64Data(x), stats.Float64Data(y))
	if err != nil || !finite(corr) {
		return 0
	}
	return corr
}

// Trend scores the direction of a sequence of habituation counts as
// (sum of consecutive drops) / (2 * largest |drop|) - 1, with 1 added to the
// denominator when any drop is zero. Evenly falling counts score 0 and evenly
// rising counts -2. A count at or above UnhabituatedCap scores 0.
func Trend(counts []float64) float64 {
	for _, c := range counts {
		if c >= UnhabituatedCap {
			return 0
		}
	}
	if len(counts) < 2 {
		return 0
	}
	var sum, largest float64
	zero := false
	for i := 0; i+1 < len(counts); i++ {
		d := counts[i] - counts[i+1]
		sum += d
		largest = math.Max(largest, math.Abs(d))
		if d == 0 {
			zero = true
		}
	}
	norm := 2 * largest
	if zero {
		norm++
	}
	return sum/norm - 1
}

// Fitness combines the frequency and intensity scan trends into a score
// to minimize: -|Trend(frequency) * Trend(intensity)|.
func Fitness(frequency, intensity []float64) float64 {
	return -math.Abs(Trend(frequency) * Trend(intensity))
}
