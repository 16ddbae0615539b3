package application

import (
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fdpricer/algorithm/pde"
)

// ContractRequest 合约与网格参数, 各类请求共用。
type ContractRequest struct {
	OptionType string  `json:"option_type" binding:"required"`
	Strike     float64 `json:"strike"`
	Rate       float64 `json:"rate"`
	Dividend   float64 `json:"dividend"`
	Volatility float64 `json:"volatility"`
	Maturity   float64 `json:"maturity"`
	StockSteps int     `json:"stock_steps"`
	TimeSteps  int     `json:"time_steps"`
}

func (r ContractRequest) params(spot float64) pde.Params {
	return pde.Params{
		OptionType: r.OptionType,
		Spot:       spot,
		Strike:     r.Strike,
		Rate:       r.Rate,
		Dividend:   r.Dividend,
		Volatility: r.Volatility,
		Maturity:   r.Maturity,
		StockSteps: r.StockSteps,
		TimeSteps:  r.TimeSteps,
	}
}

// PriceRequest 定价请求, Style 为空时按美式处理。
type PriceRequest struct {
	ContractRequest
	Style string  `json:"style"`
	Spot  float64 `json:"spot"`
}

// PriceResult 定价结果。
type PriceResult struct {
	OptionType string          `json:"option_type"`
	Style      string          `json:"style"`
	Method     pde.Method      `json:"method"`
	Price      decimal.Decimal `json:"price"`
	GridSpot   float64         `json:"grid_spot"` // 实际取值的网格节点
	Iterations int             `json:"iterations"`
	Cached     bool            `json:"cached"`
}

// SurfaceRequest 曲面请求。
type SurfaceRequest struct {
	ContractRequest
	Style string `json:"style"`
}

// SurfaceResult 价格曲面, Values[n] 为第 n 个时间层上的价格曲线。
type SurfaceResult struct {
	Method pde.Method  `json:"method"`
	Nodes  []float64   `json:"nodes"`
	Times  []float64   `json:"times"`
	Values [][]float64 `json:"values"`
	Stats  StatsDTO    `json:"stats"`
}

// StatsDTO 时间推进统计。
type StatsDTO struct {
	Steps           int `json:"steps"`
	TotalIterations int `json:"total_iterations"`
	MaxIterations   int `json:"max_iterations"`
}

// BoundaryRequest 自由边界请求。
type BoundaryRequest struct {
	ContractRequest
	WithCurve bool `json:"with_curve"`
}

// BoundaryResult 自由边界。Boundary 为 nil 表示时间层 0 上不存在提前行权区域。
type BoundaryResult struct {
	OptionType string     `json:"option_type"`
	Method     pde.Method `json:"method"`
	Boundary   *float64   `json:"boundary"`
	Times      []float64  `json:"times,omitempty"`
	Curve      []float64  `json:"curve,omitempty"`
}

// BatchItem 批量定价中的单条结果, Result 与 Error 互斥。
type BatchItem struct {
	Index  int          `json:"index"`
	Result *PriceResult `json:"result,omitempty"`
	Error  *ItemError   `json:"error,omitempty"`
}

// ItemError 单条失败的原因。
type ItemError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ReferenceRequest 解析解与二叉树参考价请求。
type ReferenceRequest struct {
	OptionType   string  `form:"option_type" json:"option_type" binding:"required"`
	Spot         float64 `form:"spot" json:"spot"`
	Strike       float64 `form:"strike" json:"strike"`
	Rate         float64 `form:"rate" json:"rate"`
	Dividend     float64 `form:"dividend" json:"dividend"`
	Volatility   float64 `form:"volatility" json:"volatility"`
	Maturity     float64 `form:"maturity" json:"maturity"`
	LatticeSteps int     `form:"lattice_steps" json:"lattice_steps"`
}

// ReferenceResult 参考价格。
type ReferenceResult struct {
	ClosedForm       decimal.Decimal `json:"closed_form"`
	Delta            decimal.Decimal `json:"delta"`
	Gamma            decimal.Decimal `json:"gamma"`
	Vega             decimal.Decimal `json:"vega"`
	Theta            decimal.Decimal `json:"theta"`
	BinomialEuropean decimal.Decimal `json:"binomial_european"`
	BinomialAmerican decimal.Decimal `json:"binomial_american"`
	LatticeSteps     int             `json:"lattice_steps"`
}
