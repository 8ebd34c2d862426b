package main

import (
	"math"

	"github.com/GoSim-25-26J-441/habituation-core/internal/hallmarks"
	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// num maps NaN and infinities to null so results always encode.
func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nums(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = num(x)
	}
	return out
}

func extrema(ex []models.Extremum) []map[string]any {
	out := make([]map[string]any, len(ex))
	for i, e := range ex {
		out[i] = map[string]any{"step": e.Step, "level": num(e.Level)}
	}
	return out
}

func rows(traj [][]float64) [][]any {
	out := make([][]any, len(traj))
	for i, row := range traj {
		out[i] = nums(row)
	}
	return out
}

// resultJSON renders a result for JSON output.
func resultJSON(r *models.Result, withTrajectory bool) map[string]any {
	out := map[string]any{
		"params": map[string]any{
			"period":      r.Params.Period,
			"on_duration": r.Params.OnDuration,
			"amin":        r.Params.Amin,
			"amax":        r.Params.Amax,
			"rates":       nums(r.Params.Rates),
		},
		"output_index":     r.OutputIndex,
		"steps_per_time":   r.StepsPerTime,
		"outcome":          r.Outcome,
		"peaks":            extrema(r.Peaks),
		"troughs":          extrema(r.Troughs),
		"habituation":      r.Habituation,
		"degraded_periods": r.DegradedPeriods,
	}
	if withTrajectory {
		out["times"] = nums(r.Times)
		out["trajectory"] = rows(r.Trajectory)
	}
	if rec := r.Recovery; rec != nil {
		probes := make([]map[string]any, len(rec.Probes))
		for i, p := range rec.Probes {
			probes[i] = map[string]any{"offset": p.Offset, "step": p.Step, "peak_ratio": num(p.PeakRatio)}
		}
		recovery := map[string]any{
			"time":                  rec.Time,
			"end_step":              rec.EndStep,
			"probes":                probes,
			"monotonicity_violated": rec.MonotonicityViolated,
		}
		if withTrajectory {
			recovery["times"] = nums(rec.Times)
			recovery["trajectory"] = rows(rec.Trajectory)
		}
		out["recovery"] = recovery
	}
	return out
}

// matrixJSON renders a sweep for JSON output.
func matrixJSON(m *hallmarks.Matrix) map[string]any {
	cells := make([][]map[string]any, len(m.Cells))
	for i, row := range m.Cells {
		cells[i] = make([]map[string]any, len(row))
		for j, c := range row {
			cells[i][j] = map[string]any{
				"period":           c.Period,
				"amplitude":        c.Amplitude,
				"steps":            c.Steps,
				"habituation_time": num(c.HabituationTime),
				"recovery_time":    num(c.RecoveryTime),
				"outcome":          c.Outcome,
				"error":            c.Error,
			}
		}
	}
	return map[string]any{
		"periods":    m.Periods,
		"amplitudes": m.Amplitudes,
		"ht":         rows(m.HT),
		"rt":         rows(m.RT),
		"cells":      cells,
	}
}
