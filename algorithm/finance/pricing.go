// Package finance - 期权定价参考模型（Black-Scholes 闭式解与二叉树）。
// 这些模型作为有限差分引擎的正确性基准。
package finance

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// EuroVanillaPrice 计算带连续股息率的欧式期权闭式价格。
// T <= 0 时直接返回内在价值。
func EuroVanillaPrice(t types.OptionType, s, k, r, T, sigma, q float64) float64 {
	if T <= 0 {
		return t.Payoff(s, k)
	}
	d1, d2 := dParams(s, k, r, q, sigma, T)
	if t.IsCall() {
		return s*math.Exp(-q*T)*normCDF(d1) - k*math.Exp(-r*T)*normCDF(d2)
	}
	return k*math.Exp(-r*T)*normCDF(-d2) - s*math.Exp(-q*T)*normCDF(-d1)
}

func dParams(s, k, r, q, sigma, T float64) (d1, d2 float64) {
	d1 = (math.Log(s/k) + (r-q+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 = d1 - sigma*math.Sqrt(T)
	return d1, d2
}

func normCDF(x float64) float64 {
	return (1.0 + math.Erf(x/math.Sqrt2)) / 2.0
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// BlackScholesCalculator Black-Scholes 期权定价计算器，对外使用 decimal 表示金额。
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

// BlackScholesResult 包含计算出的期权价格及其希腊字母。
type BlackScholesResult struct {
	Price decimal.Decimal `json:"price"`
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Vega  decimal.Decimal `json:"vega"`
	Theta decimal.Decimal `json:"theta"`
}

// Calculate 一次性计算期权价格及主要希腊字母。
func (bsc *BlackScholesCalculator) Calculate(optionType string, spot, strike, expiry, rate, vol, div decimal.Decimal) (*BlackScholesResult, error) {
	t, err := types.ParseOptionType(optionType)
	if err != nil {
		return nil, err
	}
	if spot.LessThanOrEqual(decimal.Zero) || strike.LessThanOrEqual(decimal.Zero) || expiry.LessThanOrEqual(decimal.Zero) || vol.LessThanOrEqual(decimal.Zero) {
		return nil, xerrors.ErrInvalidInput
	}

	s := spot.InexactFloat64()
	k := strike.InexactFloat64()
	T := expiry.InexactFloat64()
	r := rate.InexactFloat64()
	sigma := vol.InexactFloat64()
	q := div.InexactFloat64()

	d1, d2 := dParams(s, k, r, q, sigma, T)
	expRT := math.Exp(-r * T)
	expQT := math.Exp(-q * T)
	phiD1 := normPDF(d1)

	res := &BlackScholesResult{
		Price: decimal.NewFromFloat(EuroVanillaPrice(t, s, k, r, T, sigma, q)),
		Gamma: decimal.NewFromFloat(expQT * phiD1 / (s * sigma * math.Sqrt(T))),
		Vega:  decimal.NewFromFloat(s * expQT * phiD1 * math.Sqrt(T) / 100),
	}
	decay := -s * expQT * phiD1 * sigma / (2 * math.Sqrt(T))
	if t.IsCall() {
		res.Delta = decimal.NewFromFloat(expQT * normCDF(d1))
		res.Theta = decimal.NewFromFloat((decay - r*k*expRT*normCDF(d2) + q*s*expQT*normCDF(d1)) / 365)
	} else {
		res.Delta = decimal.NewFromFloat(expQT * (normCDF(d1) - 1))
		res.Theta = decimal.NewFromFloat((decay + r*k*expRT*normCDF(-d2) - q*s*expQT*normCDF(-d1)) / 365)
	}

	return res, nil
}
