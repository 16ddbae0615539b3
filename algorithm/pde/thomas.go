package pde

import (
	"math"

	"github.com/wyfcoding/fdpricer/xerrors"
)

// pivotEpsilon 主元绝对值低于该阈值视为奇异。
const pivotEpsilon = 1e-14

// thomasWorkspace 封装 Thomas 消元的 c*/d* 工作数组, 在一次时间推进内复用。
// 每次 solve 都返回新分配的解向量, 复用对调用方不可见。
type thomasWorkspace struct {
	cStar []float64
	dStar []float64
}

func newThomasWorkspace(m int) *thomasWorkspace {
	return &thomasWorkspace{
		cStar: make([]float64, m),
		dStar: make([]float64, m),
	}
}

// solve 求解内部行 1..M-2 上的三对角方程组, 边界分量置零。
// shift 非空时叠加到主对角线 (罚项), 长度须为 M。
func (w *thomasWorkspace) solve(lower, diag, upper, shift, rhs []float64) ([]float64, error) {
	m := len(diag)
	if len(lower) != m || len(upper) != m || len(rhs) != m || len(w.cStar) != m || (shift != nil && len(shift) != m) {
		return nil, xerrors.ErrDimMismatch
	}
	if m < 3 {
		return nil, xerrors.Derive(xerrors.ErrInvalidInput, "tridiagonal system needs at least one interior row, got %d nodes", m)
	}

	d := func(i int) float64 {
		if shift != nil {
			return diag[i] + shift[i]
		}
		return diag[i]
	}

	clear(w.cStar)
	clear(w.dStar)

	denom := d(1)
	if err := checkPivot(denom, 1); err != nil {
		return nil, err
	}
	w.cStar[1] = upper[1] / denom
	w.dStar[1] = rhs[1] / denom

	for i := 2; i < m-1; i++ {
		denom = d(i) - w.cStar[i-1]*lower[i]
		if err := checkPivot(denom, i); err != nil {
			return nil, err
		}
		w.cStar[i] = upper[i] / denom
		w.dStar[i] = (rhs[i] - w.dStar[i-1]*lower[i]) / denom
	}

	x := make([]float64, m)
	x[m-2] = w.dStar[m-2]
	for i := m - 3; i >= 1; i-- {
		x[i] = w.dStar[i] - w.cStar[i]*x[i+1]
	}

	return x, nil
}

func checkPivot(denom float64, row int) error {
	if math.IsNaN(denom) || math.Abs(denom) < pivotEpsilon {
		return xerrors.Derive(xerrors.ErrZeroPivot, "pivot %g at row %d", denom, row)
	}
	return nil
}

// SolveTridiagonal 用 Thomas 算法求解内部行 1..M-2 上的三对角方程组。
// 四个切片长度均为 M; 返回长度为 M 的新向量, 两端边界分量为零。
// 边界耦合项须由调用方事先移到右端项中。
func SolveTridiagonal(lower, diag, upper, rhs []float64) ([]float64, error) {
	return newThomasWorkspace(len(diag)).solve(lower, diag, upper, nil, rhs)
}
