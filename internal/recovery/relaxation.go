package recovery

import (
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/habituation-core/internal/integrator"
)

// relaxation yields the rest state at arbitrary step offsets without
// storing the whole rest trajectory. States are cached as checkpoints and
// each new request integrates from the nearest earlier checkpoint.
type relaxation struct {
	in    *integrator.Integrator
	input Input
	steps []int
	cache map[int][]float64
}

func newRelaxation(in *integrator.Integrator, input Input) *relaxation {
	return &relaxation{
		in:    in,
		input: input,
		steps: []int{0},
		cache: map[int][]float64{0: append([]float64(nil), input.State...)},
	}
}

func (r *relaxation) at(k int) ([]float64, error) {
	if k < 0 {
		k = 0
	}
	if x, ok := r.cache[k]; ok {
		return x, nil
	}
	i := sort.SearchInts(r.steps, k)
	from := r.steps[i-1]

	a, ok := r.in.Sample(r.input.Model, r.cache[from], r.input.Params.Rates, r.input.Params.Amin, from, []int{0, k - from})
	x := a.Rows[len(a.Rows)-1]
	if !ok && !finiteRows([][]float64{x}) {
		return nil, fmt.Errorf("%w: rest to step %d: %v", ErrRelaxationFailed, k, a.Err)
	}

	r.cache[k] = x
	r.steps = append(r.steps, 0)
	copy(r.steps[i+1:], r.steps[i:])
	r.steps[i] = k
	return x, nil
}
