package pde

import (
	"math"

	"github.com/wyfcoding/fdpricer/algorithm/types"
)

// BoundaryValues 返回剩余期限 tau 时最低与最高节点上的边界值。
//
//	call: V(0) = 0, V(S_max) = S_max*e^{-q*tau} - K*e^{-r*tau}
//	put:  V(0) = K*e^{-r*tau}, V(S_max) = 0
func BoundaryValues(t types.OptionType, sMax, strike, r, q, tau float64) (lo, hi float64) {
	if t.IsCall() {
		return 0, sMax*math.Exp(-q*tau) - strike*math.Exp(-r*tau)
	}
	return strike * math.Exp(-r*tau), 0
}

// Payoff 在网格上计算到期收益向量。
func Payoff(t types.OptionType, g *SpatialGrid, strike float64) []float64 {
	out := make([]float64, g.Len())
	for i := range out {
		out[i] = t.Payoff(g.At(i), strike)
	}
	return out
}
