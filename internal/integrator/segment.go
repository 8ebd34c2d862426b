package integrator

import (
	"math"

	"github.com/GoSim-25-26J-441/habituation-core/internal/ode"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/utils"
)

// Segment is a piece of trajectory integrated at a fixed stimulus level.
type Segment struct {
	Amplitude float64
	// StartStep is the global index of the first row.
	StartStep int
	Steps     int
}

// integrateSegment returns Steps+1 rows; row 0 is x0. On solver failure
// the unreached rows are NaN and the error is returned alongside them.
func (in *Integrator) integrateSegment(model models.Model, x0 []float64, rates []float64, seg Segment, maxStep float64) ([][]float64, ode.Stats, error) {
	if seg.Steps <= 0 {
		return [][]float64{append([]float64(nil), x0...)}, ode.Stats{}, nil
	}
	dt := in.cfg.Step()
	times := make([]float64, seg.Steps+1)
	for i := range times {
		times[i] = float64(seg.StartStep+i) * dt
	}
	rhs := func(t float64, y, dydt []float64) {
		model(y, t, seg.Amplitude, rates, dydt)
	}
	opts := in.solver
	opts.MaxStep = maxStep
	sol, err := ode.Solve(rhs, x0, times, opts)
	if sol == nil {
		return nil, ode.Stats{}, err
	}
	return sol.Y, sol.Stats, err
}

// integrateChain integrates consecutive segments, each continuing from the
// final state of the previous one. The shared boundary row is kept once.
// After a failure the remaining rows are NaN so the row count is always
// 1 + the total number of steps.
func (in *Integrator) integrateChain(model models.Model, x0 []float64, rates []float64, segs []Segment, maxStep float64) ([][]float64, ode.Stats, error) {
	var (
		rows     [][]float64
		stats    ode.Stats
		firstErr error
	)
	state := x0
	for i, seg := range segs {
		want := seg.Steps
		if i == 0 {
			want++
		}
		if firstErr != nil {
			rows = appendNaN(rows, want, len(x0))
			continue
		}
		part, st, err := in.integrateSegment(model, state, rates, seg, maxStep)
		stats.Add(st)
		if i > 0 && len(part) > 0 {
			part = part[1:]
		}
		rows = append(rows, part...)
		if len(part) < want {
			rows = appendNaN(rows, want-len(part), len(x0))
		}
		if err != nil {
			firstErr = err
			continue
		}
		state = rows[len(rows)-1]
	}
	return rows, stats, firstErr
}

func appendNaN(rows [][]float64, count, n int) [][]float64 {
	for i := 0; i < count; i++ {
		row := make([]float64, n)
		for j := range row {
			row[j] = math.NaN()
		}
		rows = append(rows, row)
	}
	return rows
}

// Attempt is one pass of the stability ladder.
type Attempt struct {
	Rows    [][]float64
	Stats   ode.Stats
	MaxStep float64
	Err     error
}

// Valid reports whether the attempt finished with finite, non-negative states.
func (a Attempt) Valid() bool {
	return a.Err == nil && utils.ValidRows(a.Rows)
}

// Stabilize integrates segs with the configured max step and, while the
// result is invalid, retries with each ladder size in turn. The returned
// flag is false when every attempt was invalid; the last attempt is
// returned in that case.
func (in *Integrator) Stabilize(model models.Model, x0 []float64, rates []float64, segs []Segment) (Attempt, bool) {
	return in.ladder(segs[0].StartStep, func(maxStep float64) ([][]float64, ode.Stats, error) {
		return in.integrateChain(model, x0, rates, segs, maxStep)
	})
}

// Sample integrates x0 at constant amplitude from global step startStep and
// returns only the states at the given step offsets, which must start at 0
// and strictly increase. The solver is free to take steps longer than one
// grid interval between offsets.
func (in *Integrator) Sample(model models.Model, x0 []float64, rates []float64, amplitude float64, startStep int, offsets []int) (Attempt, bool) {
	dt := in.cfg.Step()
	times := make([]float64, len(offsets))
	for i, k := range offsets {
		times[i] = float64(startStep+k) * dt
	}
	rhs := func(t float64, y, dydt []float64) {
		model(y, t, amplitude, rates, dydt)
	}
	return in.ladder(startStep, func(maxStep float64) ([][]float64, ode.Stats, error) {
		opts := in.solver
		opts.MaxStep = maxStep
		sol, err := ode.Solve(rhs, x0, times, opts)
		if sol == nil {
			return appendNaN(nil, len(times), len(x0)), ode.Stats{}, err
		}
		return sol.Y, sol.Stats, err
	})
}

func (in *Integrator) ladder(startStep int, run func(maxStep float64) ([][]float64, ode.Stats, error)) (Attempt, bool) {
	sizes := append([]float64{in.cfg.MaxStep}, in.cfg.StepLadder...)
	var a Attempt
	for i, h := range sizes {
		rows, stats, err := run(h)
		a = Attempt{Rows: rows, Stats: stats, MaxStep: h, Err: err}
		if a.Valid() {
			return a, true
		}
		if i < len(sizes)-1 {
			in.log.Debug("retrying with smaller max step",
				"start_step", startStep,
				"max_step", h,
				"next_max_step", sizes[i+1],
				"error", errString(err))
		}
	}
	return a, false
}

// Relax integrates x0 at constant amplitude for the given number of steps
// starting at global step startStep, through the stability ladder.
func (in *Integrator) Relax(model models.Model, x0 []float64, rates []float64, amplitude float64, startStep, steps int) (Attempt, bool) {
	return in.Stabilize(model, x0, rates, []Segment{{Amplitude: amplitude, StartStep: startStep, Steps: steps}})
}

// Pulse integrates one on/off cycle of p from x0 starting at global step startStep.
func (in *Integrator) Pulse(model models.Model, x0 []float64, rates []float64, p models.Protocol, startStep int) (Attempt, bool) {
	return in.Stabilize(model, x0, rates, in.periodSegments(p, startStep, startStep+in.cfg.Steps(p.Period)))
}

// periodSegments splits [start, end] into the on segment and the off segment.
func (in *Integrator) periodSegments(p models.Protocol, start, end int) []Segment {
	onEnd := start + in.cfg.Steps(p.OnDuration)
	if onEnd > end {
		onEnd = end
	}
	segs := make([]Segment, 0, 2)
	if onEnd > start {
		segs = append(segs, Segment{Amplitude: p.Amax, StartStep: start, Steps: onEnd - start})
	}
	if end > onEnd || len(segs) == 0 {
		segs = append(segs, Segment{Amplitude: p.Amin, StartStep: onEnd, Steps: end - onEnd})
	}
	return segs
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
