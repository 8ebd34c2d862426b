// Package systems is the library of named models that can be referenced
// from protocol files and the daemon API.
package systems

import (
	"errors"
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/models"
)

// ErrUnknownSystem is returned by Lookup for unregistered names.
var ErrUnknownSystem = errors.New("unknown system")

// System describes a registered model.
type System struct {
	Name         string
	Description  string
	Variables    []string
	RateNames    []string
	DefaultRates []float64
	InitialState []float64
	Model        models.Model
}

// Dim returns the state dimension.
func (s System) Dim() int {
	return len(s.Variables)
}

// CheckRates validates a rate vector against the system.
func (s System) CheckRates(rates []float64) error {
	if len(rates) != len(s.RateNames) {
		return fmt.Errorf("system %s expects %d rates, got %d", s.Name, len(s.RateNames), len(rates))
	}
	return nil
}

// Rates returns rates when non-empty, otherwise a copy of the defaults.
func (s System) Rates(rates []float64) []float64 {
	if len(rates) == 0 {
		return append([]float64(nil), s.DefaultRates...)
	}
	return rates
}

// Initial returns x0 when non-empty, otherwise a copy of the default initial state.
func (s System) Initial(x0 []float64) []float64 {
	if len(x0) == 0 {
		return append([]float64(nil), s.InitialState...)
	}
	return x0
}

var registry = map[string]System{}

func register(s System) {
	if _, dup := registry[s.Name]; dup {
		panic("systems: duplicate registration of " + s.Name)
	}
	registry[s.Name] = s
}

// Lookup returns the named system.
func Lookup(name string) (System, error) {
	s, ok := registry[name]
	if !ok {
		return System{}, fmt.Errorf("%w: %q", ErrUnknownSystem, name)
	}
	return s, nil
}

// Names lists registered systems in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
