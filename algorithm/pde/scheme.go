package pde

// Scheme Crank-Nicolson 分裂后的隐式与显式半步系数:
// (I - 0.5*dt*A) V^n = (I + 0.5*dt*A) V^{n+1}。
type Scheme struct {
	Implicit Coefficients
	Explicit Coefficients
	Dt       float64
}

// NewCrankNicolson 由基础算子与时间步长生成两组系数。
func NewCrankNicolson(op Coefficients, dt float64) Scheme {
	m := op.Len()
	imp := newCoefficients(m)
	exp := newCoefficients(m)
	h := 0.5 * dt

	for i := range m {
		imp.L[i] = -h * op.L[i]
		imp.D[i] = 1 - h*op.D[i]
		imp.U[i] = -h * op.U[i]

		exp.L[i] = h * op.L[i]
		exp.D[i] = 1 + h*op.D[i]
		exp.U[i] = h * op.U[i]
	}

	return Scheme{Implicit: imp, Explicit: exp, Dt: dt}
}
