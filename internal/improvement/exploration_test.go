package improvement

import (
	"math"
	"testing"
)

func TestLogExplorerNeighbors(t *testing.T) {
	e := NewLogExplorer()
	if e.Name() != "log10" {
		t.Fatalf("unexpected name %q", e.Name())
	}
	n := e.GenerateNeighbors([]float64{1, 100}, 1)
	if len(n) != 4 {
		t.Fatalf("expected 4 neighbors, got %d", len(n))
	}
	want := [][]float64{{10, 100}, {0.1, 100}, {1, 1000}, {1, 10}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(n[i][j]-want[i][j]) > 1e-9 {
				t.Fatalf("neighbor %d = %v, want %v", i, n[i], want[i])
			}
		}
	}
}

func TestLogExplorerDoesNotAliasBase(t *testing.T) {
	base := []float64{1, 1}
	n := NewLogExplorer().GenerateNeighbors(base, 0.5)
	n[0][1] = 42
	if base[1] != 1 || n[1][1] != 1 {
		t.Fatal("neighbors must be independent copies")
	}
}

func TestLogExplorerBoundsAndFixed(t *testing.T) {
	e := NewLogExplorer().WithBounds([]float64{0.5}, []float64{5, 500}).WithFixed(2)
	n := e.GenerateNeighbors([]float64{1, 100, 7}, 1)
	// rate 0: 10 above 5 and 0.1 below 0.5; rate 1: 1000 above 500; rate 2 fixed
	if len(n) != 1 {
		t.Fatalf("expected 1 neighbor, got %v", n)
	}
	if math.Abs(n[0][1]-10) > 1e-9 {
		t.Fatalf("unexpected neighbor %v", n[0])
	}
}

func TestLogExplorerSkipsZeroRates(t *testing.T) {
	n := NewLogExplorer().GenerateNeighbors([]float64{0}, 1)
	if len(n) != 0 {
		t.Fatalf("a zero rate has no log neighbors, got %v", n)
	}
}
