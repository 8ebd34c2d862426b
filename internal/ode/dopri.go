package ode

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// Dormand-Prince 5(4) tableau.
const (
	c2 = 1.0 / 5
	c3 = 3.0 / 10
	c4 = 4.0 / 5
	c5 = 8.0 / 9

	a21 = 1.0 / 5

	a31 = 3.0 / 40
	a32 = 9.0 / 40

	a41 = 44.0 / 45
	a42 = -56.0 / 15
	a43 = 32.0 / 9

	a51 = 19372.0 / 6561
	a52 = -25360.0 / 2187
	a53 = 64448.0 / 6561
	a54 = -212.0 / 729

	a61 = 9017.0 / 3168
	a62 = -355.0 / 33
	a63 = 46732.0 / 5247
	a64 = 49.0 / 176
	a65 = -5103.0 / 18656

	b1 = 35.0 / 384
	b3 = 500.0 / 1113
	b4 = 125.0 / 192
	b5 = -2187.0 / 6784
	b6 = 11.0 / 84

	// difference between the 5th and embedded 4th order weights
	e1 = 71.0 / 57600
	e3 = -71.0 / 16695
	e4 = 71.0 / 1920
	e5 = -17253.0 / 339200
	e6 = 22.0 / 525
	e7 = -1.0 / 40
)

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 10.0
)

type stepper struct {
	f     Func
	opts  Options
	stats Stats

	k1, k2, k3, k4, k5, k6, k7 []float64
	tmp, ynew, errv, weight    []float64
	fsal                       bool
}

func newStepper(f Func, n int, opts Options) *stepper {
	alloc := func() []float64 { return make([]float64, n) }
	return &stepper{
		f:      f,
		opts:   opts,
		k1:     alloc(),
		k2:     alloc(),
		k3:     alloc(),
		k4:     alloc(),
		k5:     alloc(),
		k6:     alloc(),
		k7:     alloc(),
		tmp:    alloc(),
		ynew:   alloc(),
		errv:   alloc(),
		weight: alloc(),
	}
}

func (s *stepper) eval(t float64, y, dydt []float64) {
	s.stats.Evaluations++
	s.f(t, y, dydt)
}

// advance integrates y in place from t0 to t1 and returns the step size to
// try next.
func (s *stepper) advance(t0, t1 float64, y []float64, h float64) (float64, error) {
	if !s.fsal {
		s.eval(t0, y, s.k1)
		s.fsal = true
	}
	if h <= 0 {
		h = s.initialStep(t0, t1, y)
	}

	t := t0
	attempts := 0
	for t < t1 {
		if attempts >= s.opts.MaxSteps {
			return h, &IntervalError{Time: t, Step: h, Wrapped: ErrTooManySteps}
		}
		attempts++

		if s.opts.MaxStep > 0 && h > s.opts.MaxStep {
			h = s.opts.MaxStep
		}
		hTry := h
		last := false
		if t+h >= t1 || t1-(t+h) < 1e-12*math.Max(math.Abs(t1), 1) {
			h = t1 - t
			last = true
		}
		if h < s.minStep(t) {
			return h, &IntervalError{Time: t, Step: h, Wrapped: ErrStepTooSmall}
		}

		errNorm := s.try(t, h, y)
		if errNorm <= 1 {
			s.stats.Steps++
			if last {
				t = t1
			} else {
				t += h
			}
			copy(y, s.ynew)
			s.k1, s.k7 = s.k7, s.k1
			next := h * growth(errNorm)
			if last && next < hTry {
				next = hTry
			}
			h = next
			continue
		}
		s.stats.Rejected++
		h *= shrink(errNorm)
	}
	return h, nil
}

// try performs one trial step from (t, y) with size h, leaving the
// candidate in s.ynew and its derivative in s.k7. It returns the scaled
// RMS error estimate.
func (s *stepper) try(t, h float64, y []float64) float64 {
	floats.AddScaledTo(s.tmp, y, h*a21, s.k1)
	s.eval(t+c2*h, s.tmp, s.k2)

	floats.AddScaledTo(s.tmp, y, h*a31, s.k1)
	floats.AddScaled(s.tmp, h*a32, s.k2)
	s.eval(t+c3*h, s.tmp, s.k3)

	floats.AddScaledTo(s.tmp, y, h*a41, s.k1)
	floats.AddScaled(s.tmp, h*a42, s.k2)
	floats.AddScaled(s.tmp, h*a43, s.k3)
	s.eval(t+c4*h, s.tmp, s.k4)

	floats.AddScaledTo(s.tmp, y, h*a51, s.k1)
	floats.AddScaled(s.tmp, h*a52, s.k2)
	floats.AddScaled(s.tmp, h*a53, s.k3)
	floats.AddScaled(s.tmp, h*a54, s.k4)
	s.eval(t+c5*h, s.tmp, s.k5)

	floats.AddScaledTo(s.tmp, y, h*a61, s.k1)
	floats.AddScaled(s.tmp, h*a62, s.k2)
	floats.AddScaled(s.tmp, h*a63, s.k3)
	floats.AddScaled(s.tmp, h*a64, s.k4)
	floats.AddScaled(s.tmp, h*a65, s.k5)
	s.eval(t+h, s.tmp, s.k6)

	floats.AddScaledTo(s.ynew, y, h*b1, s.k1)
	floats.AddScaled(s.ynew, h*b3, s.k3)
	floats.AddScaled(s.ynew, h*b4, s.k4)
	floats.AddScaled(s.ynew, h*b5, s.k5)
	floats.AddScaled(s.ynew, h*b6, s.k6)
	s.eval(t+h, s.ynew, s.k7)

	floats.ScaleTo(s.errv, h*e1, s.k1)
	floats.AddScaled(s.errv, h*e3, s.k3)
	floats.AddScaled(s.errv, h*e4, s.k4)
	floats.AddScaled(s.errv, h*e5, s.k5)
	floats.AddScaled(s.errv, h*e6, s.k6)
	floats.AddScaled(s.errv, h*e7, s.k7)

	for i := range s.weight {
		sc := s.opts.AbsTol + s.opts.RelTol*math.Max(math.Abs(y[i]), math.Abs(s.ynew[i]))
		s.weight[i] = 1 / sc
	}
	return s.rms(s.errv)
}

// rms returns sqrt(mean((v*weight)^2)), overwriting v.
func (s *stepper) rms(v []float64) float64 {
	vecmath.MulBlockInPlace(v, s.weight)
	norm := math.Sqrt(floats.Dot(v, v) / float64(len(v)))
	if math.IsNaN(norm) {
		return math.Inf(1)
	}
	return norm
}

// initialStep follows the Hairer-Norsett-Wanner starting step heuristic.
func (s *stepper) initialStep(t0, t1 float64, y []float64) float64 {
	for i := range s.weight {
		s.weight[i] = 1 / (s.opts.AbsTol + s.opts.RelTol*math.Abs(y[i]))
	}
	copy(s.tmp, y)
	d0 := s.rms(s.tmp)
	copy(s.tmp, s.k1)
	d1 := s.rms(s.tmp)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 && !math.IsInf(d1, 1) {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, t1-t0)

	floats.AddScaledTo(s.ynew, y, h0, s.k1)
	s.eval(t0+h0, s.ynew, s.k2)
	floats.SubTo(s.tmp, s.k2, s.k1)
	d2 := s.rms(s.tmp) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1.0/5)
	}
	h := math.Min(100*h0, h1)
	if s.opts.MaxStep > 0 {
		h = math.Min(h, s.opts.MaxStep)
	}
	return h
}

func (s *stepper) minStep(t float64) float64 {
	floor := 16 * eps * math.Max(math.Abs(t), 1)
	if s.opts.MinStep > floor {
		return s.opts.MinStep
	}
	return floor
}

const eps = 2.220446049250313e-16

func growth(errNorm float64) float64 {
	if errNorm == 0 {
		return maxFactor
	}
	return math.Min(maxFactor, safety*math.Pow(errNorm, -1.0/5))
}

func shrink(errNorm float64) float64 {
	if math.IsInf(errNorm, 1) {
		return minFactor
	}
	return math.Max(minFactor, safety*math.Pow(errNorm, -1.0/5))
}
