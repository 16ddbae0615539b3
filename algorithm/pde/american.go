package pde

import (
	"slices"

	algomath "github.com/wyfcoding/fdpricer/algorithm/math"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// PenaltyConfig 罚函数法参数。
type PenaltyConfig struct {
	Lambda        float64 // 罚系数, 量级须远大于 1/dt
	Tolerance     float64 // 相邻两次猜测的最大范数变化阈值
	MaxIterations int     // 单个时间步内的迭代上限
}

// DefaultPenaltyConfig 返回默认罚函数参数。
func DefaultPenaltyConfig() PenaltyConfig {
	return PenaltyConfig{
		Lambda:        1e3,
		Tolerance:     1e-6,
		MaxIterations: 500,
	}
}

func (p PenaltyConfig) validate() error {
	if !(p.Lambda > 0) || !(p.Tolerance > 0) || p.MaxIterations <= 0 {
		return xerrors.Derive(xerrors.ErrInvalidInput, "penalty lambda=%v tolerance=%v max_iterations=%d", p.Lambda, p.Tolerance, p.MaxIterations)
	}
	return nil
}

// MarchAmerican 在 MarchEuropean 的基础上, 将每步的单次求解替换为罚函数不动点迭代,
// 以近似线性互补问题 V >= payoff。每次迭代:
//  1. 由当前猜测计算行权指示 (payoff > guess 的内部节点);
//  2. 右端项叠加 lambda*dt*payoff*indicator, 主对角线叠加 lambda*dt*indicator;
//  3. Thomas 求解后以收益为下界截断并重置边界值;
//  4. 与上一猜测的最大范数变化不超过 Tolerance 即收敛。
//
// 单步迭代次数达到 MaxIterations 时返回 ErrPenaltyNotConverged, 不返回未收敛的曲面。
func MarchAmerican(c Contract, g *SpatialGrid, s Scheme, p PenaltyConfig) (*Surface, SolveStats, error) {
	var stats SolveStats
	if err := p.validate(); err != nil {
		return nil, stats, err
	}
	mc, err := newMarcher(c, g, s)
	if err != nil {
		return nil, stats, err
	}

	surf, v := mc.terminal()
	imp := s.Implicit
	weight := p.Lambda * mc.dt
	shift := make([]float64, mc.m)
	forcing := make([]float64, mc.m)

	for n := c.TimeSteps - 2; n >= 0; n-- {
		old := mc.known(v, n+1)
		lo, hi := mc.boundary(n)

		guess := slices.Clone(old)
		iterations := 0
		for {
			if iterations == p.MaxIterations {
				return nil, stats, xerrors.Derive(xerrors.ErrPenaltyNotConverged,
					"time step %d: %d iterations without reaching tolerance %g", n, iterations, p.Tolerance)
			}
			iterations++

			for k := 1; k < mc.m-1; k++ {
				if mc.payoff[k] > guess[k] {
					shift[k] = weight
					forcing[k] = weight * mc.payoff[k]
				} else {
					shift[k] = 0
					forcing[k] = 0
				}
			}

			next, err := mc.ws.solve(imp.L, imp.D, imp.U, shift, mc.rhs(old, lo, hi, forcing))
			if err != nil {
				return nil, stats, err
			}
			for i := range next {
				next[i] = max(next[i], mc.payoff[i])
			}
			next[0], next[mc.m-1] = lo, hi

			change := algomath.MaxAbsDiff(next, guess)
			guess = next
			if change <= p.Tolerance {
				break
			}
		}

		surf.setColumn(n, guess)
		v = guess

		stats.Steps++
		stats.TotalIterations += iterations
		stats.MaxIterations = max(stats.MaxIterations, iterations)
	}

	return surf, stats, nil
}
