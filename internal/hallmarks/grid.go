// Package hallmarks sweeps stimulus period and amplitude and checks the
// frequency and intensity sensitivity of habituation.
package hallmarks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/habituation-core/internal/experiment"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// UnhabituatedCap is the habituation count at or above which a cell counts
// as not habituating.
const UnhabituatedCap = 50

var ErrInvalidGrid = errors.New("invalid hallmark grid")

// Factory builds a fresh experiment per grid cell. Experiments are not
// shared between goroutines.
type Factory func() (*experiment.Experiment, error)

// Grid is a periods x amplitudes sweep with a shared on-duration and rest level.
type Grid struct {
	Periods    []float64 `json:"periods"`
	Amplitudes []float64 `json:"amplitudes"`
	OnDuration float64   `json:"on_duration"`
	Amin       float64   `json:"amin"`
}

// Validate checks that every cell forms a valid protocol.
func (g Grid) Validate() error {
	if len(g.Periods) == 0 || len(g.Amplitudes) == 0 {
		return fmt.Errorf("%w: need at least one period and one amplitude", ErrInvalidGrid)
	}
	for _, t := range g.Periods {
		for _, a := range g.Amplitudes {
			if err := g.protocol(t, a).Validate(); err != nil {
				return fmt.Errorf("%w: period %g amplitude %g: %v", ErrInvalidGrid, t, a, err)
			}
		}
	}
	return nil
}

func (g Grid) protocol(period, amplitude float64) models.Protocol {
	return models.NewProtocol(period, g.OnDuration, amplitude, models.WithAmin(g.Amin))
}

// Cell is the measurement at one (period, amplitude) pair.
type Cell struct {
	Period          float64        `json:"period"`
	Amplitude       float64        `json:"amplitude"`
	Steps           int            `json:"steps"`
	HabituationTime float64        `json:"habituation_time"`
	RecoveryTime    float64        `json:"recovery_time"`
	Outcome         models.Outcome `json:"outcome"`
	Error           string         `json:"error,omitempty"`
}

// Matrix holds a sweep. HT and RT are indexed [period][amplitude]; HT is the
// habituation count with unhabituated cells (count 0 or >= UnhabituatedCap)
// reported as 0.
type Matrix struct {
	Periods    []float64   `json:"periods"`
	Amplitudes []float64   `json:"amplitudes"`
	HT         [][]float64 `json:"ht"`
	RT         [][]float64 `json:"rt"`
	Cells      [][]Cell    `json:"cells"`
}

// Evaluator runs grid sweeps with bounded parallelism.
type Evaluator struct {
	newExperiment Factory
	workers       int
	log           *slog.Logger
}

// NewEvaluator creates an Evaluator. workers <= 0 means one goroutine per cell.
func NewEvaluator(f Factory, workers int) *Evaluator {
	return &Evaluator{newExperiment: f, workers: workers, log: logger.Component("hallmarks")}
}

// WithLogger replaces the evaluator's logger.
func (ev *Evaluator) WithLogger(l *slog.Logger) *Evaluator {
	if l != nil {
		ev.log = l
	}
	return ev
}

// Evaluate computes every cell of g. A cell whose recovery search fails
// keeps its habituation count and records the error; any other failure
// aborts the sweep.
func (ev *Evaluator) Evaluate(ctx context.Context, g Grid) (*Matrix, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	m := &Matrix{
		Periods:    append([]float64(nil), g.Periods...),
		Amplitudes: append([]float64(nil), g.Amplitudes...),
		HT:         make([][]float64, len(g.Periods)),
		RT:         make([][]float64, len(g.Periods)),
		Cells:      make([][]Cell, len(g.Periods)),
	}
	for i := range g.Periods {
		m.HT[i] = make([]float64, len(g.Amplitudes))
		m.RT[i] = make([]float64, len(g.Amplitudes))
		m.Cells[i] = make([]Cell, len(g.Amplitudes))
	}

	eg, ctx := errgroup.WithContext(ctx)
	if ev.workers > 0 {
		eg.SetLimit(ev.workers)
	}
	for i, period := range g.Periods {
		for j, amp := range g.Amplitudes {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				cell, err := ev.cell(g.protocol(period, amp))
				if err != nil {
					return err
				}
				// each goroutine owns one (i, j) slot
				m.Cells[i][j] = cell
				m.HT[i][j] = capped(cell.Steps)
				m.RT[i][j] = cell.RecoveryTime
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func (ev *Evaluator) cell(p models.Protocol) (Cell, error) {
	e, err := ev.newExperiment()
	if err != nil {
		return Cell{}, err
	}
	ht, rt, err := e.Compute(p)
	r, ok := e.Result()
	if !ok {
		return Cell{}, fmt.Errorf("period %g amplitude %g: %w", p.Period, p.Amax, err)
	}
	c := Cell{
		Period:          p.Period,
		Amplitude:       p.Amax,
		Steps:           r.Habituation.Steps,
		HabituationTime: ht,
		RecoveryTime:    rt,
		Outcome:         r.Outcome,
	}
	if err != nil {
		c.Error = err.Error()
		ev.log.Warn("grid cell recovery failed", "period", p.Period, "amplitude", p.Amax, "error", err)
	}
	ev.log.Debug("grid cell", "period", p.Period, "amplitude", p.Amax, "steps", c.Steps, "recovery_time", rt)
	return c, nil
}

func capped(steps int) float64 {
	if steps >= UnhabituatedCap {
		return 0
	}
	return float64(steps)
}

// column returns HT or RT values for amplitude index j across periods.
func column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[j]
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
