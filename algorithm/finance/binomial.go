package finance

import (
	"math"

	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// LatticeParams 二叉树定价参数
type LatticeParams struct {
	S0    float64
	K     float64
	R     float64
	Q     float64 // 连续股息率
	Sigma float64
	T     float64
	Steps int
}

func (p LatticeParams) validate() error {
	if p.Steps <= 0 {
		return xerrors.ErrInvalidStepCount
	}
	if p.S0 <= 0 || p.K <= 0 || p.Sigma <= 0 || p.T <= 0 {
		return xerrors.ErrInvalidInput
	}
	return nil
}

// lattice CRR 树的单步参数: 上涨/下跌因子、风险中性概率与单步折现。
func (p LatticeParams) lattice() (u, d, prob, disc float64) {
	dt := p.T / float64(p.Steps)
	u = math.Exp(p.Sigma * math.Sqrt(dt))
	d = 1 / u
	prob = (math.Exp((p.R-p.Q)*dt) - d) / (u - d)
	disc = math.Exp(-p.R * dt)
	return u, d, prob, disc
}

// terminal 到期时各节点的收益, 下标 j 为上涨次数。
func (p LatticeParams) terminal(t types.OptionType, u, d float64) []float64 {
	values := make([]float64, p.Steps+1)
	for j := range values {
		s := p.S0 * math.Pow(u, float64(j)) * math.Pow(d, float64(p.Steps-j))
		values[j] = t.Payoff(s, p.K)
	}
	return values
}

// EuropeanBinomialPrice 用 CRR 二叉树计算欧式期权价格。
func EuropeanBinomialPrice(t types.OptionType, p LatticeParams) (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	u, d, prob, disc := p.lattice()
	values := p.terminal(t, u, d)

	for i := p.Steps; i > 0; i-- {
		for j := range i {
			values[j] = disc * (prob*values[j+1] + (1-prob)*values[j])
		}
	}
	return values[0], nil
}

// AmericanBinomialPrice 用 CRR 二叉树计算美式期权价格, 每个节点比较行权价值与持有价值。
func AmericanBinomialPrice(t types.OptionType, p LatticeParams) (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	u, d, prob, disc := p.lattice()
	values := p.terminal(t, u, d)

	for i := p.Steps; i > 0; i-- {
		for j := range i {
			continuation := disc * (prob*values[j+1] + (1-prob)*values[j])
			s := p.S0 * math.Pow(u, float64(j)) * math.Pow(d, float64(i-1-j))
			values[j] = max(t.Payoff(s, p.K), continuation)
		}
	}
	return values[0], nil
}
