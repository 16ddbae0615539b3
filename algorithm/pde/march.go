package pde

import (
	"slices"

	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// Contract 时间推进所需的合约与市场参数。
type Contract struct {
	OptionType types.OptionType
	Strike     float64
	Rate       float64
	Dividend   float64
	Maturity   float64
	TimeSteps  int
}

// SolveStats 一次时间推进的统计信息。
type SolveStats struct {
	Steps           int // 实际推进的时间步数
	TotalIterations int // 全部线性求解次数
	MaxIterations   int // 单步内最多的求解次数
}

// marcher 持有一次时间推进的只读输入与私有工作区。
type marcher struct {
	c      Contract
	grid   *SpatialGrid
	scheme Scheme
	payoff []float64
	ws     *thomasWorkspace
	dt     float64
	m      int
}

func newMarcher(c Contract, g *SpatialGrid, s Scheme) (*marcher, error) {
	if c.TimeSteps <= 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidStepCount, "time steps = %d", c.TimeSteps)
	}
	m := g.Len()
	if s.Implicit.Len() != m || s.Explicit.Len() != m {
		return nil, xerrors.ErrDimMismatch
	}
	return &marcher{
		c:      c,
		grid:   g,
		scheme: s,
		payoff: Payoff(c.OptionType, g, c.Strike),
		ws:     newThomasWorkspace(m),
		dt:     c.Maturity / float64(c.TimeSteps),
		m:      m,
	}, nil
}

// boundary 时间层 n 上的边界值, tau = T - n*dt。
func (mc *marcher) boundary(n int) (lo, hi float64) {
	tau := mc.c.Maturity - float64(n)*mc.dt
	return BoundaryValues(mc.c.OptionType, mc.grid.Max(), mc.c.Strike, mc.c.Rate, mc.c.Dividend, tau)
}

// known 复制已知解并施加时间层 n 的边界条件。
func (mc *marcher) known(v []float64, n int) []float64 {
	old := slices.Clone(v)
	old[0], old[mc.m-1] = mc.boundary(n)
	return old
}

// rhs 用显式系数组装内部节点的右端项, 再扣除隐式算子与新时间层边界值的耦合。
// forcing 非空时逐点叠加。
func (mc *marcher) rhs(old []float64, bcLo, bcHi float64, forcing []float64) []float64 {
	exp, imp := mc.scheme.Explicit, mc.scheme.Implicit
	r := make([]float64, mc.m)
	for k := 1; k < mc.m-1; k++ {
		r[k] = exp.L[k]*old[k-1] + exp.D[k]*old[k] + exp.U[k]*old[k+1]
		if forcing != nil {
			r[k] += forcing[k]
		}
	}
	r[1] -= imp.L[1] * bcLo
	r[mc.m-2] -= imp.U[mc.m-2] * bcHi
	return r
}

// terminal 创建曲面并写入到期收益列, 返回作为首个已知解的收益副本。
func (mc *marcher) terminal() (*Surface, []float64) {
	surf := newSurface(mc.m, mc.c.TimeSteps)
	surf.setColumn(mc.c.TimeSteps-1, mc.payoff)
	return surf, slices.Clone(mc.payoff)
}
