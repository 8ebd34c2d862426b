package improvement

import (
	"strings"
	"testing"
)

func history(scores ...float64) []OptimizationStep {
	h := make([]OptimizationStep, len(scores))
	for i, s := range scores {
		h[i] = OptimizationStep{Iteration: i, Score: s}
	}
	return h
}

func TestNoImprovementStrategy(t *testing.T) {
	s := NewNoImprovementStrategy(nil)
	if s.Name() != "no_improvement" {
		t.Fatalf("unexpected name %q", s.Name())
	}
	if ok, _ := s.CheckConvergence(history(-1, -2)); ok {
		t.Fatal("should not converge before MinIterations")
	}
	if ok, _ := s.CheckConvergence(history(-1, -2, -2, -2, -2, -2)); ok {
		t.Fatal("best is only four iterations old")
	}
	ok, reason := s.CheckConvergence(history(-1, -2, -2, -2, -2, -2, -2))
	if !ok {
		t.Fatal("expected convergence after five iterations without a new best")
	}
	if !strings.Contains(reason, "best at iteration 1") {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestPlateauStrategy(t *testing.T) {
	s := NewPlateauStrategy(nil)
	if ok, _ := s.CheckConvergence(history(-1, -1.5, -1.5005, -1.5008, -1.5009)); ok {
		t.Fatal("window includes a large drop")
	}
	if ok, _ := s.CheckConvergence(history(-1, -1.5, -1.5005, -1.5008, -1.5009, -1.5009)); !ok {
		t.Fatal("expected plateau within tolerance")
	}
}

func TestVarianceStrategy(t *testing.T) {
	s := NewVarianceStrategy(nil)
	if ok, _ := s.CheckConvergence(history(-4, -4, -4.0001, -4.0001, -4.0001)); !ok {
		t.Fatal("expected low relative spread to converge")
	}
	if ok, _ := s.CheckConvergence(history(-1, -2, -3, -4, -5)); ok {
		t.Fatal("steady progress should not converge")
	}
	if ok, _ := s.CheckConvergence(history(0, 0, 0, 0)); ok {
		t.Fatal("zero mean is undefined and must not converge")
	}
}

func TestCombinedStrategy(t *testing.T) {
	s := NewCombinedStrategy(nil)
	ok, reason := s.CheckConvergence(history(-1, -1.5, -1.5005, -1.5008, -1.5009, -1.5009))
	if !ok {
		t.Fatal("expected convergence")
	}
	if !strings.HasPrefix(reason, "plateau: ") && !strings.HasPrefix(reason, "variance: ") {
		t.Fatalf("reason should name the strategy, got %q", reason)
	}

	s.AddStrategy(stopAlways{})
	if ok, reason := s.CheckConvergence(history(-1, -2, -3)); !ok || reason != "always: now" {
		t.Fatalf("custom strategy not consulted: %v %q", ok, reason)
	}
}

type stopAlways struct{}

func (stopAlways) Name() string { return "always" }
func (stopAlways) CheckConvergence([]OptimizationStep) (bool, string) {
	return true, "now"
}

func TestNewConvergenceStrategy(t *testing.T) {
	for _, name := range []string{"no_improvement", "plateau", "variance", "combined"} {
		s, err := NewConvergenceStrategy(name, nil)
		if err != nil || s.Name() != name {
			t.Fatalf("NewConvergenceStrategy(%q) = %v, %v", name, s, err)
		}
	}
	if s, err := NewConvergenceStrategy("", nil); err != nil || s != nil {
		t.Fatalf("empty name should yield no strategy, got %v, %v", s, err)
	}
	if _, err := NewConvergenceStrategy("threshold", nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
