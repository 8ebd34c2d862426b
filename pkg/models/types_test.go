package models

import (
	"errors"
	"math"
	"testing"
)

func TestProtocolValidate(t *testing.T) {
	valid := NewProtocol(10, 1, 1)
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid protocol, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(p *Protocol)
		wantErr error
	}{
		{"missing period", func(p *Protocol) { p.Period = math.NaN() }, ErrMissingParameter},
		{"missing on duration", func(p *Protocol) { p.OnDuration = math.NaN() }, ErrMissingParameter},
		{"missing amax", func(p *Protocol) { p.Amax = math.NaN() }, ErrMissingParameter},
		{"zero period", func(p *Protocol) { p.Period = 0 }, ErrInvalidProtocol},
		{"negative on duration", func(p *Protocol) { p.OnDuration = -1 }, ErrInvalidProtocol},
		{"on duration beyond period", func(p *Protocol) { p.OnDuration = 11 }, ErrInvalidProtocol},
		{"infinite amax", func(p *Protocol) { p.Amax = math.Inf(1) }, ErrInvalidProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProtocolLiteralIsMissing(t *testing.T) {
	for _, p := range []Protocol{
		{Period: 10, OnDuration: 1},
		{Period: 10, OnDuration: 1, Amax: 1},
		{},
	} {
		if err := p.Validate(); !errors.Is(err, ErrMissingParameter) {
			t.Fatalf("expected ErrMissingParameter for %+v, got %v", p, err)
		}
	}
}

func TestNewProtocolOptions(t *testing.T) {
	p := NewProtocol(10, 0, 2, WithAmin(0.5))
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid protocol, got %v", err)
	}
	if p.Amin != 0.5 || p.OnDuration != 0 {
		t.Fatalf("unexpected protocol %+v", p)
	}
}

func TestUnsetProtocolIsMissing(t *testing.T) {
	if err := Unset().Validate(); !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
}

func TestProtocolAmplitude(t *testing.T) {
	p := NewProtocol(10, 2, 3, WithAmin(0.5))
	cases := map[float64]float64{
		-1:   0.5,
		0:    3,
		1.99: 3,
		2:    0.5,
		9.9:  0.5,
		10:   3,
		21:   3,
		22.5: 0.5,
	}
	for tt, want := range cases {
		if got := p.Amplitude(tt); got != want {
			t.Errorf("Amplitude(%g) = %g, want %g", tt, got, want)
		}
	}
}

func TestParameterSetFlatten(t *testing.T) {
	ps := ParameterSet{
		Protocol: NewProtocol(10, 1, 2),
		Rates:    []float64{0.1, 0.2},
	}
	got := ps.Flatten()
	want := []float64{10, 1, 0, 2, 0.1, 0.2}
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %g, want %g", i, got[i], want[i])
		}
	}
}

func TestResultHelpers(t *testing.T) {
	r := &Result{
		OutputIndex: 1,
		Trajectory:  [][]float64{{0, 1}, {0, 2}, {0, 3}},
		Peaks:       []Extremum{{Step: 1, Level: 2}},
		Outcome:     OutcomeHabituated,
		Habituation: HabituationResult{Steps: 1, Time: 10, TimeStep: 999},
	}
	out := r.Output()
	if len(out) != 3 || out[2] != 3 {
		t.Fatalf("unexpected output series %v", out)
	}
	if r.RecoveryTime() != 0 {
		t.Fatalf("expected zero recovery time without search")
	}

	r.Recovery = &RecoveryResult{Time: 4.2, Probes: []RecoveryProbe{{Offset: 2, PeakRatio: 0.5}}}
	s := Summarize(r)
	if s.RecoveryTime != 4.2 || s.HabituationSteps != 1 || s.Periods != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if _, ok := r.Recovery.Probe(2); !ok {
		t.Fatalf("expected probe at offset 2")
	}
	if _, ok := r.Recovery.Probe(3); ok {
		t.Fatalf("unexpected probe at offset 3")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestLevels(t *testing.T) {
	got := Levels([]Extremum{{Step: 0, Level: 1}, {Step: 5, Level: 0.5}})
	if len(got) != 2 || got[0] != 1 || got[1] != 0.5 {
		t.Fatalf("unexpected levels %v", got)
	}
}
