package pde

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// SpotBoundMultiplier 空间截断上界 S_max = SpotBoundMultiplier * K。
const SpotBoundMultiplier = 4.0

// Method 实际使用的求解方式。
type Method string

const (
	MethodCrankNicolson Method = "crank-nicolson"
	MethodPenalty       Method = "penalty"
)

// Params 定价入口的参数。
type Params struct {
	OptionType string  `json:"option_type"`
	Spot       float64 `json:"spot"`
	Strike     float64 `json:"strike"`
	Rate       float64 `json:"rate"`
	Dividend   float64 `json:"dividend"`
	Volatility float64 `json:"volatility"`
	Maturity   float64 `json:"maturity"`
	StockSteps int     `json:"stock_steps"`
	TimeSteps  int     `json:"time_steps"`
}

// Validate 校验曲面参数, 不检查 Spot。
func (p Params) Validate() (types.OptionType, error) {
	t, err := types.ParseOptionType(p.OptionType)
	if err != nil {
		return "", err
	}
	if p.StockSteps < 2 || p.TimeSteps < 1 {
		return "", xerrors.Derive(xerrors.ErrInvalidStepCount, "stock_steps=%d (min 2) time_steps=%d (min 1)", p.StockSteps, p.TimeSteps)
	}
	for name, v := range map[string]float64{"rate": p.Rate, "dividend": p.Dividend} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", xerrors.Derive(xerrors.ErrInvalidInput, "%s must be finite, got %v", name, v)
		}
	}
	for name, v := range map[string]float64{"strike": p.Strike, "volatility": p.Volatility, "maturity": p.Maturity} {
		if !(v > 0) || math.IsInf(v, 0) {
			return "", xerrors.Derive(xerrors.ErrInvalidInput, "%s must be positive and finite, got %v", name, v)
		}
	}
	return t, nil
}

func (p Params) validateSpot() error {
	if !(p.Spot >= 0) || math.IsInf(p.Spot, 0) {
		return xerrors.Derive(xerrors.ErrInvalidInput, "spot must be non-negative and finite, got %v", p.Spot)
	}
	return nil
}

// Solution 一次曲面求解的结果。
type Solution struct {
	Surface    *Surface
	Grid       *SpatialGrid
	Stats      SolveStats
	Method     Method
	OptionType types.OptionType
	Strike     float64
}

// Engine 有限差分定价引擎, 只持有不可变配置, 可被多个 goroutine 并发使用。
type Engine struct {
	logger  *slog.Logger
	penalty PenaltyConfig
}

// Option 定义引擎配置选项。
type Option func(*Engine)

// WithPenalty 设置罚函数参数。
func WithPenalty(p PenaltyConfig) Option {
	return func(e *Engine) {
		e.penalty = p
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine 创建定价引擎。
func NewEngine(opts ...Option) *Engine {
	e := &Engine{penalty: DefaultPenaltyConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Penalty 返回引擎使用的罚函数参数。
func (e *Engine) Penalty() PenaltyConfig { return e.penalty }

// Solve 构造网格与格式并推进整张曲面。
// american 为 false 时始终走无约束推进; 为 true 时, 无股息看涨期权同样走无约束推进
// (提前行权永远不是最优), 其余情况使用罚函数法。
func (e *Engine) Solve(p Params, american bool) (*Solution, error) {
	t, err := p.Validate()
	if err != nil {
		return nil, err
	}

	grid, err := StockGrid(SpotBoundMultiplier*p.Strike, p.StockSteps)
	if err != nil {
		return nil, err
	}
	op, err := BuildOperator(grid, p.Rate, p.Dividend, p.Volatility)
	if err != nil {
		return nil, err
	}
	scheme := NewCrankNicolson(op, p.Maturity/float64(p.TimeSteps))
	contract := Contract{
		OptionType: t,
		Strike:     p.Strike,
		Rate:       p.Rate,
		Dividend:   p.Dividend,
		Maturity:   p.Maturity,
		TimeSteps:  p.TimeSteps,
	}

	method := MethodCrankNicolson
	if american && !(p.Dividend == 0 && t.IsCall()) {
		method = MethodPenalty
	}

	start := time.Now()
	var (
		surf  *Surface
		stats SolveStats
	)
	if method == MethodPenalty {
		surf, stats, err = MarchAmerican(contract, grid, scheme, e.penalty)
	} else {
		surf, stats, err = MarchEuropean(contract, grid, scheme)
	}
	if err != nil {
		if errors.Is(err, xerrors.ErrPenaltyNotConverged) {
			e.log().Warn("penalty iteration did not converge",
				"option_type", t, "strike", p.Strike, "stock_steps", p.StockSteps, "time_steps", p.TimeSteps,
				"max_iterations", e.penalty.MaxIterations, "error", err)
		}
		return nil, err
	}

	e.log().Debug("pde surface solved",
		"method", method, "option_type", t, "stock_steps", p.StockSteps, "time_steps", p.TimeSteps,
		"iterations", stats.TotalIterations, "max_step_iterations", stats.MaxIterations, "cost", time.Since(start))

	return &Solution{
		Surface:    surf,
		Grid:       grid,
		Stats:      stats,
		Method:     method,
		OptionType: t,
		Strike:     p.Strike,
	}, nil
}

// PriceAt 返回距离 spot 最近的网格节点在时间层 0 上的价格。
func (s *Solution) PriceAt(spot float64) float64 {
	return s.Surface.At(s.Grid.NearestIndex(spot), 0)
}

// Boundary 时间层 0 上的自由边界, 无边界时为 NaN。
func (s *Solution) Boundary() (float64, error) {
	return BoundaryAt(s.OptionType, s.Surface, s.Grid, s.Strike)
}

// BoundaryCurve 每个时间层上的自由边界。
func (s *Solution) BoundaryCurve() ([]float64, error) {
	return BoundaryCurve(s.OptionType, s.Surface, s.Grid, s.Strike)
}

// PriceEuropean 欧式期权价格。
func (e *Engine) PriceEuropean(p Params) (float64, error) {
	return e.price(p, false)
}

// PriceAmerican 美式期权价格。
func (e *Engine) PriceAmerican(p Params) (float64, error) {
	return e.price(p, true)
}

func (e *Engine) price(p Params, american bool) (float64, error) {
	if err := p.validateSpot(); err != nil {
		return 0, err
	}
	sol, err := e.Solve(p, american)
	if err != nil {
		return 0, err
	}
	return sol.PriceAt(p.Spot), nil
}

// SurfaceEuropean 返回欧式价格曲面与空间网格。
func (e *Engine) SurfaceEuropean(p Params) (*Surface, *SpatialGrid, error) {
	sol, err := e.Solve(p, false)
	if err != nil {
		return nil, nil, err
	}
	return sol.Surface, sol.Grid, nil
}

// SurfaceAmerican 返回美式价格曲面与空间网格, 用于收敛、边界与内在价值校验。
func (e *Engine) SurfaceAmerican(p Params) (*Surface, *SpatialGrid, error) {
	sol, err := e.Solve(p, true)
	if err != nil {
		return nil, nil, err
	}
	return sol.Surface, sol.Grid, nil
}

// ExtractBoundary 时间层 0 上的美式自由边界, 无边界时为 NaN。
func (e *Engine) ExtractBoundary(p Params) (float64, error) {
	sol, err := e.Solve(p, true)
	if err != nil {
		return 0, err
	}
	return sol.Boundary()
}

// ExtractBoundaryCurve 每个时间层上的美式自由边界。
func (e *Engine) ExtractBoundaryCurve(p Params) ([]float64, error) {
	sol, err := e.Solve(p, true)
	if err != nil {
		return nil, err
	}
	return sol.BoundaryCurve()
}

var defaultEngine = NewEngine()

// PriceEuropean 使用默认配置计算欧式期权价格。
func PriceEuropean(p Params) (float64, error) { return defaultEngine.PriceEuropean(p) }

// PriceAmerican 使用默认配置计算美式期权价格。
func PriceAmerican(p Params) (float64, error) { return defaultEngine.PriceAmerican(p) }

// SurfaceAmerican 使用默认配置返回美式价格曲面与网格。
func SurfaceAmerican(p Params) (*Surface, *SpatialGrid, error) { return defaultEngine.SurfaceAmerican(p) }

// ExtractBoundary 使用默认配置提取时间层 0 上的自由边界。
func ExtractBoundary(p Params) (float64, error) { return defaultEngine.ExtractBoundary(p) }

// ExtractBoundaryCurve 使用默认配置提取自由边界曲线。
func ExtractBoundaryCurve(p Params) ([]float64, error) { return defaultEngine.ExtractBoundaryCurve(p) }
