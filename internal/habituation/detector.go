// Package habituation decides from a sequence of per-period peak levels
// whether, and after how many periods, the response stopped declining.
package habituation

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config holds the detector thresholds.
type Config struct {
	// DeclineThreshold is the relative decline that counts as significant.
	DeclineThreshold float64 `json:"decline_threshold" yaml:"decline_threshold"`

	// ZeroCrossFloor and FirstPeakFloor define the near-zero crossing: a
	// peak above ZeroCrossFloor followed by one below it, provided the first
	// peak exceeded FirstPeakFloor.
	ZeroCrossFloor float64 `json:"zero_cross_floor" yaml:"zero_cross_floor"`
	FirstPeakFloor float64 `json:"first_peak_floor" yaml:"first_peak_floor"`
}

// DefaultConfig returns the standard detector thresholds.
func DefaultConfig() Config {
	return Config{
		DeclineThreshold: 0.01,
		ZeroCrossFloor:   1e-5,
		FirstPeakFloor:   1e-3,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.DeclineThreshold <= 0 {
		return fmt.Errorf("%w: decline_threshold must be positive", ErrInvalidConfig)
	}
	if c.ZeroCrossFloor < 0 || c.FirstPeakFloor < 0 {
		return fmt.Errorf("%w: floors must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Detector finds the habituation point in a peak sequence.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns the number of periods after which the peaks stopped
// declining significantly, or 0 when the sequence shows no habituation.
//
// Peaks before the global maximum are discarded. The sequence must still
// be declining significantly at its start and must have stopped doing so at
// its tail; the result is the position just after the last significant
// decline (or near-zero crossing), counted from the first peak.
func (d *Detector) Detect(levels []float64) int {
	m := utils.ArgMax(levels)
	if m < 0 {
		return 0
	}
	p := levels[m:]
	thr := d.cfg.DeclineThreshold

	i := len(p) - 1
	if i <= 0 || decline(p, i) > thr {
		return 0
	}
	if decline(p, 1) < thr {
		return 0
	}

	var hab int
	for ; i > 0; i-- {
		hab = i
		if decline(p, i) > thr || d.crossesZero(p, i) {
			break
		}
	}
	if i == 0 {
		return 0
	}
	return m + hab + 1
}

func (d *Detector) crossesZero(p []float64, i int) bool {
	return p[i-1] > d.cfg.ZeroCrossFloor && p[i] < d.cfg.ZeroCrossFloor && p[0] > d.cfg.FirstPeakFloor
}

// decline is the relative drop from p[i-1] to p[i].
func decline(p []float64, i int) float64 {
	return 1 - p[i]/p[i-1]
}

// Locate converts a habituation count into time and trajectory index.
// Row i of a trajectory holds the state at i/stepsPerTime, so TimeStep is
// the row at the end of the last habituating period. It is -1 when count
// is 0.
func Locate(count int, period, stepsPerTime float64) models.HabituationResult {
	if count <= 0 {
		return models.HabituationResult{TimeStep: -1}
	}
	t := float64(count) * period
	return models.HabituationResult{
		Steps:    count,
		Time:     t,
		TimeStep: int(math.Round(t * stepsPerTime)),
	}
}
