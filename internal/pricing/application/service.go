// Package application 编排有限差分定价引擎: 参数校验、网格上限、曲面缓存、
// 并发去重、批量定价以及解析解与二叉树参考价。
package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/iter"
	"github.com/wyfcoding/fdpricer/algorithm/finance"
	"github.com/wyfcoding/fdpricer/algorithm/pde"
	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/cache"
	"github.com/wyfcoding/fdpricer/config"
	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/metrics"
	"github.com/wyfcoding/fdpricer/tracing"
	"github.com/wyfcoding/fdpricer/xerrors"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLatticeSteps = 800
	maxLatticeSteps     = 5000
)

// surfaceEntry 缓存中保存的求解结果, 网格由参数重建。
type surfaceEntry struct {
	Surface *pde.Surface   `json:"surface"`
	Method  pde.Method     `json:"method"`
	Stats   pde.SolveStats `json:"stats"`
}

// PricingService 定价应用服务, 可被多个 goroutine 并发使用。
type PricingService struct {
	engine  *pde.Engine
	limits  config.EngineConfig
	batch   config.BatchConfig
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logging.Logger
	calc    *finance.BlackScholesCalculator
	group   singleflight.Group
}

// Option 定义服务配置选项。
type Option func(*PricingService)

// WithCache 启用曲面缓存。
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *PricingService) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithMetrics 设置指标采集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PricingService) {
		s.metrics = m
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *logging.Logger) Option {
	return func(s *PricingService) {
		s.logger = l
	}
}

// NewPricingService 根据引擎与批量配置创建定价服务。
// 配置中未给出的罚函数参数使用引擎默认值。
func NewPricingService(engineCfg config.EngineConfig, batchCfg config.BatchConfig, opts ...Option) *PricingService {
	s := &PricingService{
		limits: engineCfg,
		batch:  batchCfg,
		calc:   finance.NewBlackScholesCalculator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}

	penalty := pde.DefaultPenaltyConfig()
	if engineCfg.PenaltyLambda > 0 {
		penalty.Lambda = engineCfg.PenaltyLambda
	}
	if engineCfg.PenaltyTolerance > 0 {
		penalty.Tolerance = engineCfg.PenaltyTolerance
	}
	if engineCfg.MaxIterations > 0 {
		penalty.MaxIterations = engineCfg.MaxIterations
	}
	s.engine = pde.NewEngine(pde.WithPenalty(penalty), pde.WithLogger(s.logger.Logger))
	return s
}

// Engine 返回底层定价引擎。
func (s *PricingService) Engine() *pde.Engine { return s.engine }

// Price 按 Style 计算单个合约在 Spot 处的价格。
func (s *PricingService) Price(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.Price")
	defer span.End()

	res, err := s.price(ctx, req)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	tracing.AddTag(ctx, "pricing.method", string(res.Method))
	tracing.AddTag(ctx, "pricing.cached", res.Cached)
	return res, nil
}

func (s *PricingService) price(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	style, err := parseStyle(req.Style)
	if err != nil {
		return nil, err
	}
	if !(req.Spot >= 0) || math.IsInf(req.Spot, 0) {
		return nil, xerrors.Derive(xerrors.ErrInvalidInput, "spot must be non-negative and finite, got %v", req.Spot)
	}

	sol, cached, err := s.solve(ctx, req.params(req.Spot), style == types.StyleAmerican)
	if err != nil {
		return nil, err
	}

	v := sol.PriceAt(req.Spot)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, xerrors.Derive(xerrors.ErrNonFinitePrice, "spot=%v value=%v", req.Spot, v)
	}
	return &PriceResult{
		OptionType: string(sol.OptionType),
		Style:      string(style),
		Method:     sol.Method,
		Price:      decimal.NewFromFloat(v),
		GridSpot:   sol.Grid.At(sol.Grid.NearestIndex(req.Spot)),
		Iterations: sol.Stats.TotalIterations,
		Cached:     cached,
	}, nil
}

// Surface 返回完整价格曲面。
func (s *PricingService) Surface(ctx context.Context, req SurfaceRequest) (*SurfaceResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.Surface")
	defer span.End()

	style, err := parseStyle(req.Style)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	sol, _, err := s.solve(ctx, req.params(0), style == types.StyleAmerican)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	cols := sol.Surface.Cols()
	dt := req.Maturity / float64(req.TimeSteps)
	res := &SurfaceResult{
		Method: sol.Method,
		Nodes:  sol.Grid.Nodes(),
		Times:  make([]float64, cols),
		Values: make([][]float64, cols),
		Stats:  statsDTO(sol.Stats),
	}
	for n := range cols {
		res.Times[n] = float64(n) * dt
		res.Values[n] = sol.Surface.Column(n)
	}
	return res, nil
}

// Boundary 提取美式自由边界, WithCurve 时同时返回每个时间层上的边界。
func (s *PricingService) Boundary(ctx context.Context, req BoundaryRequest) (*BoundaryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.Boundary")
	defer span.End()

	sol, _, err := s.solve(ctx, req.params(0), true)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	b, err := sol.Boundary()
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	res := &BoundaryResult{
		OptionType: string(sol.OptionType),
		Method:     sol.Method,
	}
	if !math.IsNaN(b) {
		res.Boundary = &b
	}
	if !req.WithCurve {
		return res, nil
	}

	curve, err := sol.BoundaryCurve()
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	dt := req.Maturity / float64(req.TimeSteps)
	res.Curve = curve
	res.Times = make([]float64, len(curve))
	for n := range res.Times {
		res.Times[n] = float64(n) * dt
	}
	return res, nil
}

// PriceBatch 以有限并发为一批合约定价。单条失败记录在对应条目中, 不影响其余条目。
func (s *PricingService) PriceBatch(ctx context.Context, reqs []PriceRequest) ([]BatchItem, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.PriceBatch")
	defer span.End()

	if len(reqs) == 0 {
		err := xerrors.Derive(xerrors.ErrInvalidInput, "empty batch")
		tracing.SetError(ctx, err)
		return nil, err
	}
	if s.batch.MaxItems > 0 && len(reqs) > s.batch.MaxItems {
		err := xerrors.Derive(xerrors.ErrBatchTooLarge, "items=%d max=%d", len(reqs), s.batch.MaxItems)
		tracing.SetError(ctx, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BatchSize.Observe(float64(len(reqs)))
	}
	tracing.AddTag(ctx, "batch.size", len(reqs))

	mapper := iter.Mapper[PriceRequest, BatchItem]{MaxGoroutines: s.batch.MaxConcurrency}
	items := mapper.Map(reqs, func(req *PriceRequest) BatchItem {
		res, err := s.price(ctx, *req)
		if err != nil {
			return BatchItem{Error: itemError(err)}
		}
		return BatchItem{Result: res}
	})

	failed := 0
	for i := range items {
		items[i].Index = i
		if items[i].Error != nil {
			failed++
		}
	}
	s.logger.InfoContext(ctx, "batch priced", "items", len(items), "failed", failed)
	return items, nil
}

// Reference 返回解析解 (含希腊字母) 与二叉树参考价格。
func (s *PricingService) Reference(ctx context.Context, req ReferenceRequest) (*ReferenceResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.Reference")
	defer span.End()

	res, err := s.reference(req)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	return res, nil
}

func (s *PricingService) reference(req ReferenceRequest) (*ReferenceResult, error) {
	t, err := types.ParseOptionType(req.OptionType)
	if err != nil {
		return nil, err
	}
	for name, v := range map[string]float64{
		"spot": req.Spot, "strike": req.Strike, "rate": req.Rate, "dividend": req.Dividend,
		"volatility": req.Volatility, "maturity": req.Maturity,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, xerrors.Derive(xerrors.ErrInvalidInput, "%s must be finite, got %v", name, v)
		}
	}

	steps := req.LatticeSteps
	if steps == 0 {
		steps = defaultLatticeSteps
	}
	if steps > maxLatticeSteps {
		return nil, xerrors.Derive(xerrors.ErrGridTooLarge, "lattice_steps=%d max=%d", steps, maxLatticeSteps)
	}

	d := decimal.NewFromFloat
	bs, err := s.calc.Calculate(string(t), d(req.Spot), d(req.Strike), d(req.Maturity), d(req.Rate), d(req.Volatility), d(req.Dividend))
	if err != nil {
		return nil, err
	}

	lp := finance.LatticeParams{
		S0: req.Spot, K: req.Strike, R: req.Rate, Q: req.Dividend,
		Sigma: req.Volatility, T: req.Maturity, Steps: steps,
	}
	eu, err := finance.EuropeanBinomialPrice(t, lp)
	if err != nil {
		return nil, err
	}
	am, err := finance.AmericanBinomialPrice(t, lp)
	if err != nil {
		return nil, err
	}

	return &ReferenceResult{
		ClosedForm:       bs.Price,
		Delta:            bs.Delta,
		Gamma:            bs.Gamma,
		Vega:             bs.Vega,
		Theta:            bs.Theta,
		BinomialEuropean: d(eu),
		BinomialAmerican: d(am),
		LatticeSteps:     steps,
	}, nil
}

// solve 返回曲面求解结果及其是否来自缓存。
// 相同参数的并发请求只求解一次。
func (s *PricingService) solve(ctx context.Context, p pde.Params, american bool) (*pde.Solution, bool, error) {
	t, err := p.Validate()
	if err != nil {
		return nil, false, err
	}
	if err := s.checkLimits(p); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	tracing.TagGrid(ctx, string(t), american, p.StockSteps, p.TimeSteps)
	key := s.surfaceKey(t, p, american)
	if sol, ok := s.lookup(ctx, key, t, p); ok {
		return sol, true, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		start := time.Now()
		sol, err := s.engine.Solve(p, american)
		if err != nil {
			s.recordFailure(err)
			return nil, err
		}
		s.observeSolve(sol, time.Since(start))
		s.store(context.WithoutCancel(ctx), key, sol)
		return sol, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		s.logger.DebugContext(ctx, "surface solve shared with concurrent request", "key", key)
	}
	return v.(*pde.Solution), false, nil
}

func (s *PricingService) checkLimits(p pde.Params) error {
	if s.limits.MaxStockSteps > 0 && p.StockSteps > s.limits.MaxStockSteps {
		return xerrors.Derive(xerrors.ErrGridTooLarge, "stock_steps=%d max=%d", p.StockSteps, s.limits.MaxStockSteps)
	}
	if s.limits.MaxTimeSteps > 0 && p.TimeSteps > s.limits.MaxTimeSteps {
		return xerrors.Derive(xerrors.ErrGridTooLarge, "time_steps=%d max=%d", p.TimeSteps, s.limits.MaxTimeSteps)
	}
	return nil
}

// surfaceKey 由决定曲面的全部输入组成, Spot 不参与。
func (s *PricingService) surfaceKey(t types.OptionType, p pde.Params, american bool) string {
	style := types.StyleEuropean
	if american {
		style = types.StyleAmerican
	}
	pc := s.engine.Penalty()
	return fmt.Sprintf("%s:%s:k=%g:r=%g:q=%g:v=%g:t=%g:m=%d:n=%d:l=%g:tol=%g:it=%d",
		style, t, p.Strike, p.Rate, p.Dividend, p.Volatility, p.Maturity, p.StockSteps, p.TimeSteps,
		pc.Lambda, pc.Tolerance, pc.MaxIterations)
}

func (s *PricingService) lookup(ctx context.Context, key string, t types.OptionType, p pde.Params) (*pde.Solution, bool) {
	if s.cache == nil {
		return nil, false
	}

	var entry surfaceEntry
	if err := s.cache.Get(ctx, key, &entry); err != nil {
		if !errors.Is(err, xerrors.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "surface cache lookup failed", "key", key, "error", err)
		}
		s.countLookup("miss")
		return nil, false
	}

	grid, err := pde.StockGrid(pde.SpotBoundMultiplier*p.Strike, p.StockSteps)
	if err != nil || entry.Surface == nil || entry.Surface.Rows() != grid.Len() || entry.Surface.Cols() != p.TimeSteps {
		s.logger.WarnContext(ctx, "discarding malformed cached surface", "key", key)
		s.countLookup("invalid")
		return nil, false
	}

	s.countLookup("hit")
	return &pde.Solution{
		Surface:    entry.Surface,
		Grid:       grid,
		Stats:      entry.Stats,
		Method:     entry.Method,
		OptionType: t,
		Strike:     p.Strike,
	}, true
}

func (s *PricingService) store(ctx context.Context, key string, sol *pde.Solution) {
	if s.cache == nil {
		return
	}
	entry := surfaceEntry{Surface: sol.Surface, Method: sol.Method, Stats: sol.Stats}
	if err := s.cache.Set(ctx, key, entry, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "surface cache store failed", "key", key, "error", err)
	}
}

func (s *PricingService) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *PricingService) observeSolve(sol *pde.Solution, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SolveDuration.WithLabelValues(string(sol.Method), string(sol.OptionType)).Observe(d.Seconds())
	if sol.Method == pde.MethodPenalty {
		s.metrics.PenaltyIterations.Observe(float64(sol.Stats.MaxIterations))
	}
}

func (s *PricingService) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SolveFailures.WithLabelValues(failureReason(err)).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, xerrors.ErrPenaltyNotConverged):
		return "not_converged"
	case errors.Is(err, xerrors.ErrZeroPivot):
		return "zero_pivot"
	default:
		return "other"
	}
}

// parseStyle 空值按美式处理。
func parseStyle(s string) (types.ExerciseStyle, error) {
	if s == "" {
		return types.StyleAmerican, nil
	}
	return types.ParseExerciseStyle(s)
}

func statsDTO(st pde.SolveStats) StatsDTO {
	return StatsDTO{Steps: st.Steps, TotalIterations: st.TotalIterations, MaxIterations: st.MaxIterations}
}

func itemError(err error) *ItemError {
	if e, ok := xerrors.FromError(err); ok {
		return &ItemError{Code: e.Code, Message: e.Message, Detail: e.Detail}
	}
	return &ItemError{Code: 500, Message: "internal error", Detail: err.Error()}
}
