package pde

import (
	"math"

	algomath "github.com/wyfcoding/fdpricer/algorithm/math"
	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// boundaryTarget 插值时 diff 的目标值, 略高于零。
const boundaryTarget = 1e-4

// BoundaryAt 提取时间层 0 上的自由边界。
// 内部节点全部处于持有区 (diff > 0) 时不存在有意义的边界, 返回 NaN。
func BoundaryAt(t types.OptionType, surf *Surface, g *SpatialGrid, strike float64) (float64, error) {
	s, diff, err := sliceDiff(t, surf, g, strike, 0)
	if err != nil {
		return 0, err
	}
	if allPositive(diff) {
		return math.NaN(), nil
	}
	return boundaryFromDiff(t, s, diff), nil
}

// BoundaryCurve 对每个保留的时间层提取自由边界。
// 退化的时间层取对应的网格边缘值。
func BoundaryCurve(t types.OptionType, surf *Surface, g *SpatialGrid, strike float64) ([]float64, error) {
	curve := make([]float64, surf.Cols())
	for n := range curve {
		s, diff, err := sliceDiff(t, surf, g, strike, n)
		if err != nil {
			return nil, err
		}
		curve[n] = boundaryFromDiff(t, s, diff)
	}
	return curve, nil
}

// sliceDiff 返回内部节点及其上的 V - payoff。
func sliceDiff(t types.OptionType, surf *Surface, g *SpatialGrid, strike float64, n int) ([]float64, []float64, error) {
	if surf.Rows() != g.Len() {
		return nil, nil, xerrors.ErrDimMismatch
	}
	if g.Len() < 3 {
		return nil, nil, xerrors.Derive(xerrors.ErrInvalidInput, "grid has no interior nodes")
	}
	s := g.Interior()
	diff := make([]float64, len(s))
	for k := range s {
		diff[k] = surf.At(k+1, n) - t.Payoff(s[k], strike)
	}
	return s, diff, nil
}

func allPositive(diff []float64) bool {
	for _, d := range diff {
		if !(d > 0) {
			return false
		}
	}
	return true
}

// boundaryFromDiff diff > 0 视为持有, diff <= 0 视为行权。
//   - 全部持有: call 取最高内部节点, put 取最低内部节点;
//   - 全部行权: 取相反一侧的边缘;
//   - 混合: call 在最后一个持有节点与其上一节点之间插值,
//     put 在第一个持有节点与其下一节点之间插值。
func boundaryFromDiff(t types.OptionType, s, diff []float64) float64 {
	first, last := -1, -1
	for k, d := range diff {
		if d > 0 {
			if first < 0 {
				first = k
			}
			last = k
		}
	}

	n := len(s)
	switch {
	case first < 0:
		if t.IsCall() {
			return s[0]
		}
		return s[n-1]
	case allPositive(diff):
		if t.IsCall() {
			return s[n-1]
		}
		return s[0]
	}

	if t.IsCall() {
		if last+1 >= n {
			return s[n-1]
		}
		return algomath.Lerp(s[last], s[last+1], diff[last], diff[last+1], boundaryTarget)
	}
	if first-1 < 0 {
		return s[0]
	}
	return algomath.Lerp(s[first-1], s[first], diff[first-1], diff[first], boundaryTarget)
}
