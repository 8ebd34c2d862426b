package utils

import (
	"math"
	"testing"
)

func TestArgMaxArgMin(t *testing.T) {
	values := []float64{1, 5, 3, 5, -2, 0}
	if got := ArgMax(values); got != 1 {
		t.Errorf("ArgMax = %d, expected 1 (first maximum)", got)
	}
	if got := ArgMin(values); got != 4 {
		t.Errorf("ArgMin = %d, expected 4", got)
	}
	if ArgMax(nil) != -1 || ArgMin(nil) != -1 {
		t.Error("expected -1 for empty input")
	}
}

func TestColumn(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	col := Column(rows, 1)
	if len(col) != 3 || col[0] != 2 || col[2] != 6 {
		t.Fatalf("unexpected column %v", col)
	}
}

func TestArange(t *testing.T) {
	got := Arange(1, 0.5, 4)
	want := []float64{1, 1.5, 2, 2.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Arange[%d] = %g, expected %g", i, got[i], want[i])
		}
	}
}

func TestValidRows(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
		want bool
	}{
		{"finite non-negative", [][]float64{{0, 1}, {2, 3}}, true},
		{"negative", [][]float64{{0, -1e-9}}, false},
		{"nan", [][]float64{{math.NaN(), 1}}, false},
		{"inf", [][]float64{{math.Inf(1)}}, false},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		if got := ValidRows(tt.rows); got != tt.want {
			t.Errorf("%s: ValidRows = %v, expected %v", tt.name, got, tt.want)
		}
	}
}

func TestClampNonNegative(t *testing.T) {
	in := []float64{-1, 0, 2}
	out := ClampNonNegative(in)
	if out[0] != 0 || out[1] != 0 || out[2] != 2 {
		t.Fatalf("unexpected clamp result %v", out)
	}
	if in[0] != -1 {
		t.Fatal("ClampNonNegative must not modify its input")
	}
}

func TestCloneRows(t *testing.T) {
	rows := [][]float64{{1, 2}}
	c := CloneRows(rows)
	c[0][0] = 9
	if rows[0][0] != 1 {
		t.Fatal("CloneRows must deep copy")
	}
}

func TestRound(t *testing.T) {
	if got := Round(3.14159, 2); got != 3.14 {
		t.Errorf("Round = %g, expected 3.14", got)
	}
}
