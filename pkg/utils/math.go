package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ArgMax returns the index of the first maximum, or -1 for an empty slice.
func ArgMax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}

// ArgMin returns the index of the first minimum, or -1 for an empty slice.
func ArgMin(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MinIdx(values)
}

// Column extracts component idx from each row.
func Column(rows [][]float64, idx int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[idx]
	}
	return out
}

// Arange returns n uniformly spaced values start, start+step, ...
func Arange(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// ValidRows reports whether every value is finite and non-negative.
func ValidRows(rows [][]float64) bool {
	for _, row := range rows {
		if floats.HasNaN(row) {
			return false
		}
		for _, v := range row {
			if v < 0 || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// ClampNonNegative returns a copy of x with negative entries set to zero.
func ClampNonNegative(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(v, 0)
	}
	return out
}

// CloneRows deep-copies a row matrix.
func CloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Round rounds a float64 to the specified number of decimal places
func Round(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}
