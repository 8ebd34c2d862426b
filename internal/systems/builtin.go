package systems

func init() {
	register(System{
		Name:         "receptor_feedforward",
		Description:  "three-state receptor driving an incoherent feedforward loop",
		Variables:    []string{"R_a", "R_i", "R_s", "A", "I", "O"},
		RateNames:    []string{"k_i", "k_r", "k_a", "k_ad", "k_b", "k_bd", "k_o", "k_od", "k_s"},
		DefaultRates: []float64{0.05, 0.1, 1, 1, 1, 0.1, 1, 5, 1},
		InitialState: []float64{1, 0, 0, 0, 0, 0},
		Model:        receptorFeedforward,
	})
	register(System{
		Name:         "receptor_feedback",
		Description:  "three-state receptor with negative feedback onto the active receptor",
		Variables:    []string{"R_i", "R_s", "A", "B", "C", "R_a"},
		RateNames:    []string{"k_i", "k_r", "k_f", "k_a", "k_ad", "k_b", "k_bd", "k_c", "k_cd", "k_s"},
		DefaultRates: []float64{0.05, 0.1, 1, 1, 1, 1, 0.5, 1, 0.5, 1},
		InitialState: []float64{1, 0, 0, 0, 0, 0},
		Model:        receptorFeedback,
	})
	register(System{
		Name:         "iff_concat",
		Description:  "two incoherent feedforward loops in series",
		Variables:    []string{"R1", "I1", "O1", "R2", "I2", "O2"},
		RateNames: []string{
			"k_r1", "k_r1d", "k_i1", "k_i1d", "k_o1", "k_o1d", "K_o1",
			"k_i2", "k_i2d", "k_o2", "k_o2d", "K_o2", "k_r2", "k_r2d",
		},
		DefaultRates: []float64{1, 1, 0.1, 0.05, 1, 5, 0.1, 0.1, 0.05, 1, 5, 0.1, 1, 1},
		InitialState: []float64{0, 0, 0, 0, 0, 0},
		Model:        iffConcat,
	})
	register(System{
		Name:         "depletion",
		Description:  "response gated by a slowly replenished resource",
		Variables:    []string{"r", "y"},
		RateNames:    []string{"k_rec", "k_use", "k_out", "k_dec"},
		DefaultRates: []float64{0.01, 1, 1, 1},
		InitialState: []float64{1, 0},
		Model:        depletion,
	})
	register(System{
		Name:         "facilitation",
		Description:  "response whose gain grows with every stimulus",
		Variables:    []string{"g", "y"},
		RateNames:    []string{"k_gain", "k_out", "k_dec"},
		DefaultRates: []float64{0.1, 1, 1},
		InitialState: []float64{1, 0},
		Model:        facilitation,
	})
	register(System{
		Name:         "linear",
		Description:  "stimulus-driven production with first-order decay",
		Variables:    []string{"y"},
		RateNames:    []string{"k_in", "k_dec"},
		DefaultRates: []float64{1, 1},
		InitialState: []float64{0},
		Model:        linear,
	})
}

func receptorFeedforward(x []float64, _, s float64, k []float64, dxdt []float64) {
	bind := s * k[8] * (1 - x[1] - x[2])
	release := k[0] * (1 - x[0] - x[1])
	reset := k[1] * (1 - x[0] - x[2])
	dxdt[0] = reset - bind
	dxdt[1] = release - reset
	dxdt[2] = bind - release
	dxdt[3] = x[2]*k[2]*(1-x[3]) - k[3]*x[3]
	dxdt[4] = x[3]*k[4]*(1-x[4]) - k[5]*x[4]
	dxdt[5] = x[3]*k[6]*(1-x[5]) - x[4]*k[7]*x[5]
}

func receptorFeedback(x []float64, _, s float64, k []float64, dxdt []float64) {
	bind := s * k[9] * (1 - x[1] - x[5])
	release := k[0] * (1 - x[0] - x[1])
	reset := k[1] * (1 - x[0] - x[5])
	feedback := k[2] * x[3] * x[5]
	dxdt[0] = reset - bind
	dxdt[1] = release - reset + feedback
	dxdt[2] = x[5]*k[3]*(1-x[2]) - k[4]*x[2]
	dxdt[3] = x[4]*k[7]*(1-x[3]) - k[8]*x[3]
	dxdt[4] = x[2]*k[5]*(1-x[4]) - k[6]*x[4]
	dxdt[5] = bind - release - feedback
}

func iffConcat(x []float64, _, s float64, k []float64, dxdt []float64) {
	dxdt[0] = s*k[0]*(1-x[0]) - k[1]*x[0]
	dxdt[1] = x[2]*k[2]*(1-x[1]) - k[3]*x[1]
	dxdt[2] = x[0]*k[4]*(1-x[2]) - x[1]*k[5]*x[2]/(k[6]+x[2])
	dxdt[3] = x[2]*k[12]*(1-x[3]) - k[13]*x[3]
	dxdt[4] = x[5]*k[7]*(1-x[4]) - k[8]*x[4]
	dxdt[5] = x[3]*k[9]*(1-x[5]) - x[4]*k[10]*x[5]/(k[11]+x[5])
}

func depletion(x []float64, _, s float64, k []float64, dxdt []float64) {
	dxdt[0] = k[0]*(1-x[0]) - k[1]*s*x[0]
	dxdt[1] = k[2]*s*x[0] - k[3]*x[1]
}

func facilitation(x []float64, _, s float64, k []float64, dxdt []float64) {
	dxdt[0] = k[0] * s
	dxdt[1] = k[1]*s*x[0] - k[2]*x[1]
}

func linear(x []float64, _, s float64, k []float64, dxdt []float64) {
	dxdt[0] = k[0]*s - k[1]*x[0]
}
