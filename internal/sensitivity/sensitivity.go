// Package sensitivity measures how far each rate constant can move, in
// log10 units, before a model loses a required behavior.
package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
)

var ErrInvalidConfig = errors.New("invalid sensitivity config")

// Validator reports whether a rate vector still shows the required behavior.
type Validator func(ctx context.Context, rates []float64) (bool, error)

// Config controls the per-rate binary search.
type Config struct {
	InitialVariation float64 `json:"initial_variation" yaml:"initial_variation"`
	MinVariation     float64 `json:"min_variation" yaml:"min_variation"`
	Workers          int     `json:"workers" yaml:"workers"`
}

// DefaultConfig starts at half a decade and stops below a thousandth.
func DefaultConfig() Config {
	return Config{InitialVariation: 0.5, MinVariation: 0.001, Workers: 4}
}

func (c Config) Validate() error {
	if !(c.InitialVariation > 0) || !(c.MinVariation > 0) || c.MinVariation >= c.InitialVariation {
		return fmt.Errorf("%w: need 0 < min_variation < initial_variation, got %g and %g",
			ErrInvalidConfig, c.MinVariation, c.InitialVariation)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Bound is the tolerated range of one rate: Up >= 0 and Down <= 0 are log10
// exponents, so the rate may be scaled by 10^Down .. 10^Up.
type Bound struct {
	Index int     `json:"index"`
	Name  string  `json:"name,omitempty"`
	Up    float64 `json:"up"`
	Down  float64 `json:"down"`
}

// Width is the tolerated range in decades.
func (b Bound) Width() float64 {
	return b.Up - b.Down
}

// Report holds one Bound per rate.
type Report struct {
	Rates  []float64 `json:"rates"`
	Bounds []Bound   `json:"bounds"`
}

// Matrix returns the bounds as [n][2]{up, down} rows.
func (r *Report) Matrix() [][2]float64 {
	out := make([][2]float64, len(r.Bounds))
	for i, b := range r.Bounds {
		out[i] = [2]float64{b.Up, b.Down}
	}
	return out
}

// Summary describes the spread of bound widths across rates.
type Summary struct {
	MeanWidth   float64 `json:"mean_width"`
	MedianWidth float64 `json:"median_width"`
	MinWidth    float64 `json:"min_width"`
	Fragile     int     `json:"fragile"` // index of the narrowest rate
}

// Summarize computes width statistics. An empty report yields Fragile -1.
func (r *Report) Summarize() Summary {
	s := Summary{Fragile: -1}
	if len(r.Bounds) == 0 {
		return s
	}
	widths := make(stats.Float64Data, len(r.Bounds))
	for i, b := range r.Bounds {
		widths[i] = b.Width()
	}
	s.MeanWidth, _ = stats.Mean(widths)
	s.MedianWidth, _ = stats.Median(widths)
	s.MinWidth, _ = stats.Min(widths)
	for i, w := range widths {
		if w == s.MinWidth {
			s.Fragile = i
			break
		}
	}
	return s
}

// Analyzer runs the scan.
type Analyzer struct {
	cfg      Config
	validate Validator
	names    []string
	log      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithNames labels bounds with rate names.
func WithNames(names []string) Option {
	return func(a *Analyzer) { a.names = names }
}

// New creates an Analyzer.
func New(validate Validator, cfg Config, opts ...Option) (*Analyzer, error) {
	if validate == nil {
		return nil, fmt.Errorf("%w: nil validator", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{cfg: cfg, validate: validate, log: logger.Component("sensitivity")}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze scans every rate upward then downward. Rates are scanned in
// parallel; each scan is sequential.
func (a *Analyzer) Analyze(ctx context.Context, rates []float64) (*Report, error) {
	rep := &Report{
		Rates:  append([]float64(nil), rates...),
		Bounds: make([]Bound, len(rates)),
	}
	eg, ctx := errgroup.WithContext(ctx)
	if a.cfg.Workers > 0 {
		eg.SetLimit(a.cfg.Workers)
	}
	for i := range rates {
		eg.Go(func() error {
			up, err := a.scan(ctx, rates, i, 1)
			if err != nil {
				return fmt.Errorf("rate %d upward: %w", i, err)
			}
			down, err := a.scan(ctx, rates, i, -1)
			if err != nil {
				return fmt.Errorf("rate %d downward: %w", i, err)
			}
			b := Bound{Index: i, Up: up, Down: -down}
			if i < len(a.names) {
				b.Name = a.names[i]
			}
			rep.Bounds[i] = b
			a.log.Debug("rate scanned", "index", i, "name", b.Name, "up", b.Up, "down", b.Down)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// scan returns the largest tolerated exponent magnitude in direction sign.
// Each step tries the current exponent plus the variation and keeps it when
// the validator accepts; the variation halves every step.
func (a *Analyzer) scan(ctx context.Context, rates []float64, index int, sign float64) (float64, error) {
	var exponent float64
	for v := a.cfg.InitialVariation; v > a.cfg.MinVariation; v /= 2 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		trial := append([]float64(nil), rates...)
		trial[index] = rates[index] * math.Pow(10, sign*(exponent+v))
		ok, err := a.validate(ctx, trial)
		if err != nil {
			return 0, err
		}
		if ok {
			exponent += v
		}
	}
	return exponent, nil
}
