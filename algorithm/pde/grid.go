// Package pde 实现 Black-Scholes 偏微分方程的有限差分定价引擎。
// 空间采用均匀网格上的中心差分, 时间采用 Crank-Nicolson 格式, 美式期权的提前行权约束
// 通过罚函数法在每个时间步内以不动点迭代求解。
package pde

import (
	"math"
	"slices"

	algomath "github.com/wyfcoding/fdpricer/algorithm/math"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// SpatialGrid 标的价格的均匀网格, 构造后不可变。
// 节点 0 与节点 Len()-1 为边界节点, 其余为内部节点。
type SpatialGrid struct {
	nodes []float64
	step  float64
}

// StockGrid 生成 [0, sMax] 上 steps+1 个等距节点。
func StockGrid(sMax float64, steps int) (*SpatialGrid, error) {
	if steps <= 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidStepCount, "stock steps = %d", steps)
	}
	if !(sMax > 0) || math.IsInf(sMax, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidInput, "spatial bound must be positive and finite, got %v", sMax)
	}
	step := sMax / float64(steps)
	return &SpatialGrid{
		nodes: algomath.UniformNodes(0, step, steps+1),
		step:  step,
	}, nil
}

// TimeGrid 生成 [0, maturity] 上 steps+1 个等距时间点。
func TimeGrid(maturity float64, steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, xerrors.Derive(xerrors.ErrInvalidStepCount, "time steps = %d", steps)
	}
	if !(maturity > 0) || math.IsInf(maturity, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidInput, "maturity must be positive and finite, got %v", maturity)
	}
	return algomath.UniformNodes(0, maturity/float64(steps), steps+1), nil
}

// Len 节点个数 M。
func (g *SpatialGrid) Len() int { return len(g.nodes) }

// At 第 i 个节点。
func (g *SpatialGrid) At(i int) float64 { return g.nodes[i] }

// Step 网格间距 dS。
func (g *SpatialGrid) Step() float64 { return g.step }

// Max 最高节点 S_max。
func (g *SpatialGrid) Max() float64 { return g.nodes[len(g.nodes)-1] }

// Nodes 返回节点副本。
func (g *SpatialGrid) Nodes() []float64 { return slices.Clone(g.nodes) }

// Interior 返回内部节点副本 (去掉两端边界)。
func (g *SpatialGrid) Interior() []float64 {
	if len(g.nodes) < 3 {
		return nil
	}
	return slices.Clone(g.nodes[1 : len(g.nodes)-1])
}

// NearestIndex 返回距离 s 最近的节点下标, 距离相同时取较小下标。
func (g *SpatialGrid) NearestIndex(s float64) int {
	best := 0
	bestDist := math.Abs(g.nodes[0] - s)
	for i := 1; i < len(g.nodes); i++ {
		if d := math.Abs(g.nodes[i] - s); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
