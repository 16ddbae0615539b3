package pde

// MarchEuropean 从到期收益出发, 对 n = TimeSteps-2 .. 0 逐步后向推进无约束的
// Crank-Nicolson 方程组, 每步一次 Thomas 求解。
// 返回曲面的第 TimeSteps-1 列为收益, 第 0 列为当前价格曲线。
func MarchEuropean(c Contract, g *SpatialGrid, s Scheme) (*Surface, SolveStats, error) {
	var stats SolveStats
	mc, err := newMarcher(c, g, s)
	if err != nil {
		return nil, stats, err
	}

	surf, v := mc.terminal()
	imp := s.Implicit

	for n := c.TimeSteps - 2; n >= 0; n-- {
		old := mc.known(v, n+1)
		lo, hi := mc.boundary(n)

		next, err := mc.ws.solve(imp.L, imp.D, imp.U, nil, mc.rhs(old, lo, hi, nil))
		if err != nil {
			return nil, stats, err
		}
		next[0], next[mc.m-1] = lo, hi

		surf.setColumn(n, next)
		v = next

		stats.Steps++
		stats.TotalIterations++
		stats.MaxIterations = 1
	}

	return surf, stats, nil
}
