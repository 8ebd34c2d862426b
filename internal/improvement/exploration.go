package improvement

import "math"

// ParameterExplorer defines strategies for exploring the rate space
type ParameterExplorer interface {
	// GenerateNeighbors creates neighboring rate vectors around base
	GenerateNeighbors(base []float64, stepSize float64) [][]float64
	// Name returns the name of the exploration strategy
	Name() string
}

// LogExplorer moves one rate at a time by a factor of 10^±stepSize.
type LogExplorer struct {
	lower, upper []float64
	fixed        map[int]bool
}

// NewLogExplorer creates an unbounded explorer that moves every rate.
func NewLogExplorer() *LogExplorer {
	return &LogExplorer{fixed: make(map[int]bool)}
}

// WithBounds limits rate i to [lower[i], upper[i]]. A nil slice leaves
// that side open.
func (e *LogExplorer) WithBounds(lower, upper []float64) *LogExplorer {
	e.lower, e.upper = lower, upper
	return e
}

// WithFixed keeps the given rate indices unchanged.
func (e *LogExplorer) WithFixed(indices ...int) *LogExplorer {
	for _, i := range indices {
		e.fixed[i] = true
	}
	return e
}

func (e *LogExplorer) Name() string {
	return "log10"
}

// GenerateNeighbors returns up to 2n neighbors: for each free rate, the
// rate scaled up, then down. Neighbors that leave the bounds or do not
// change the rate are skipped.
func (e *LogExplorer) GenerateNeighbors(base []float64, stepSize float64) [][]float64 {
	neighbors := make([][]float64, 0, 2*len(base))
	factor := math.Pow(10, stepSize)
	for i, r := range base {
		if e.fixed[i] {
			continue
		}
		for _, next := range []float64{r * factor, r / factor} {
			if next == r || !e.inBounds(i, next) {
				continue
			}
			neighbor := append([]float64(nil), base...)
			neighbor[i] = next
			neighbors = append(neighbors, neighbor)
		}
	}
	return neighbors
}

func (e *LogExplorer) inBounds(i int, r float64) bool {
	if i < len(e.lower) && r < e.lower[i] {
		return false
	}
	if i < len(e.upper) && r > e.upper[i] {
		return false
	}
	return !math.IsInf(r, 0) && !math.IsNaN(r)
}
