package pde

import (
	"github.com/wyfcoding/fdpricer/xerrors"
)

// Coefficients 三对角算子的三条对角线, 长度均为 M。
// 仅内部下标 1..M-2 有意义, 边界位置保持为零。
type Coefficients struct {
	L []float64 // 下对角线
	D []float64 // 主对角线
	U []float64 // 上对角线
}

func newCoefficients(m int) Coefficients {
	return Coefficients{
		L: make([]float64, m),
		D: make([]float64, m),
		U: make([]float64, m),
	}
}

// Len 系数长度。
func (c Coefficients) Len() int { return len(c.D) }

// BuildOperator 构造 Black-Scholes 生成元在内部节点上的中心差分离散:
//
//	alpha = 0.5*sigma^2*S_i^2/dS^2, beta = 0.5*(r-q)*S_i/dS
//	L_i = alpha - beta, D_i = -2*alpha - r, U_i = alpha + beta
func BuildOperator(g *SpatialGrid, r, q, sigma float64) (Coefficients, error) {
	dS := g.Step()
	if !(dS > 0) {
		return Coefficients{}, xerrors.Derive(xerrors.ErrInvalidInput, "degenerate grid spacing %v", dS)
	}

	m := g.Len()
	op := newCoefficients(m)
	for i := 1; i < m-1; i++ {
		s := g.At(i)
		alpha := 0.5 * sigma * sigma * s * s / (dS * dS)
		beta := 0.5 * (r - q) * s / dS

		op.L[i] = alpha - beta
		op.D[i] = -2*alpha - r
		op.U[i] = alpha + beta
	}

	return op, nil
}
