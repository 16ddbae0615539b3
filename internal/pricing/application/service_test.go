package application

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fdpricer/algorithm/pde"
	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/cache"
	"github.com/wyfcoding/fdpricer/config"
	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/metrics"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// jsonCache 以 JSON 字节保存条目的内存缓存。
type jsonCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newJSONCache() *jsonCache { return &jsonCache{data: map[string][]byte{}} }

func (c *jsonCache) Get(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return xerrors.ErrCacheMiss
	}
	return json.Unmarshal(b, value)
}

func (c *jsonCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *jsonCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *jsonCache) Close() error { return nil }

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		PenaltyLambda:    1e3,
		PenaltyTolerance: 1e-6,
		MaxIterations:    500,
		MaxStockSteps:    400,
		MaxTimeSteps:     400,
	}
}

func newTestService(t *testing.T, opts ...Option) (*PricingService, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("fdpricer-test")
	opts = append([]Option{WithMetrics(m), WithLogger(logging.NewLogger("fdpricer", "test", "error"))}, opts...)
	return NewPricingService(testEngineConfig(), config.BatchConfig{MaxConcurrency: 4, MaxItems: 8}, opts...), m
}

func contract(optionType string, q float64, steps int) ContractRequest {
	return ContractRequest{
		OptionType: optionType,
		Strike:     100,
		Rate:       0.05,
		Dividend:   q,
		Volatility: 0.2,
		Maturity:   1,
		StockSteps: steps,
		TimeSteps:  steps,
	}
}

// metricValue 返回计数器的值或直方图的样本数, 找不到时为 0。
func metricValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			if metric.GetHistogram() != nil {
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestPriceMatchesEngine(t *testing.T) {
	svc, _ := newTestService(t)
	req := PriceRequest{ContractRequest: contract("put", 0.02, 60), Spot: 100}

	res, err := svc.Price(context.Background(), req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	want, err := pde.PriceAmerican(req.params(req.Spot))
	if err != nil {
		t.Fatalf("PriceAmerican failed: %v", err)
	}
	if !res.Price.Equal(decimal.NewFromFloat(want)) {
		t.Errorf("expected %v, got %s", want, res.Price)
	}
	if res.Style != string(types.StyleAmerican) || res.Method != pde.MethodPenalty {
		t.Errorf("unexpected style/method: %s %s", res.Style, res.Method)
	}
	if math.Abs(res.GridSpot-100) > 1e-9 {
		t.Errorf("expected grid spot near 100, got %v", res.GridSpot)
	}

	req.Style = "European"
	eu, err := svc.Price(context.Background(), req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if eu.Method != pde.MethodCrankNicolson || eu.Price.GreaterThan(res.Price) {
		t.Errorf("european %s (%s) should not exceed american %s", eu.Price, eu.Method, res.Price)
	}
}

func TestPriceUsesSurfaceCache(t *testing.T) {
	bc, err := cache.NewBigCache(time.Minute, config.BigCacheConfig{Shards: 8, MaxEntrySize: 1024, HardMaxMB: 16})
	if err != nil {
		t.Fatalf("NewBigCache failed: %v", err)
	}
	defer bc.Close()

	svc, m := newTestService(t, WithCache(bc, time.Minute))
	req := PriceRequest{ContractRequest: contract("put", 0.02, 50), Spot: 100}

	first, err := svc.Price(context.Background(), req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if first.Cached {
		t.Errorf("first request must not be served from cache")
	}
	if bc.Len() != 1 {
		t.Errorf("expected one cached surface, got %d", bc.Len())
	}

	// 同一曲面上的其他现价直接命中缓存
	req.Spot = 90
	second, err := svc.Price(context.Background(), req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if !second.Cached {
		t.Errorf("second request should hit the cache")
	}
	direct, _ := pde.PriceAmerican(req.params(90))
	if !second.Price.Equal(decimal.NewFromFloat(direct)) {
		t.Errorf("cached price %s differs from direct solve %v", second.Price, direct)
	}

	if got := metricValue(t, m, "pde_surface_cache_lookups_total", map[string]string{"result": "hit"}); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}
	if got := metricValue(t, m, "pde_surface_cache_lookups_total", map[string]string{"result": "miss"}); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}
	if got := metricValue(t, m, "pde_solve_duration_seconds", map[string]string{"method": "penalty", "option_type": "put"}); got != 1 {
		t.Errorf("expected 1 solve, got %v", got)
	}
}

func TestMalformedCacheEntryIsRecomputed(t *testing.T) {
	c := newJSONCache()
	svc, m := newTestService(t, WithCache(c, time.Minute))
	req := PriceRequest{ContractRequest: contract("put", 0.02, 30), Spot: 100}

	p := req.params(req.Spot)
	key := svc.surfaceKey(types.OptionTypePut, p, true)
	c.data[key] = []byte(`{"surface":{"data":[1,2],"rows":1,"cols":2},"method":"penalty"}`)

	res, err := svc.Price(context.Background(), req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if res.Cached {
		t.Errorf("malformed entry must not be served")
	}
	if got := metricValue(t, m, "pde_surface_cache_lookups_total", map[string]string{"result": "invalid"}); got != 1 {
		t.Errorf("expected 1 invalid lookup, got %v", got)
	}
}

func TestConcurrentPricesAgree(t *testing.T) {
	svc, _ := newTestService(t, WithCache(newJSONCache(), time.Minute))
	req := PriceRequest{ContractRequest: contract("call", 0.03, 60), Spot: 105}

	const n = 8
	prices := make([]decimal.Decimal, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Price(context.Background(), req)
			if err != nil {
				t.Errorf("Price failed: %v", err)
				return
			}
			prices[i] = res.Price
		}()
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if !prices[i].Equal(prices[0]) {
			t.Errorf("price %d = %s, want %s", i, prices[i], prices[0])
		}
	}
}

func TestPriceErrors(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name   string
		modify func(*PriceRequest)
		want   error
	}{
		{"style", func(r *PriceRequest) { r.Style = "bermudan" }, xerrors.ErrInvalidInput},
		{"spot", func(r *PriceRequest) { r.Spot = -5 }, xerrors.ErrInvalidInput},
		{"option type", func(r *PriceRequest) { r.OptionType = "digital" }, xerrors.ErrInvalidOptionType},
		{"stock steps", func(r *PriceRequest) { r.StockSteps = 1 }, xerrors.ErrInvalidStepCount},
		{"grid too large", func(r *PriceRequest) { r.StockSteps = 401 }, xerrors.ErrGridTooLarge},
		{"time grid too large", func(r *PriceRequest) { r.TimeSteps = 1000 }, xerrors.ErrGridTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := PriceRequest{ContractRequest: contract("put", 0.02, 20), Spot: 100}
			tt.modify(&req)
			if _, err := svc.Price(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPriceCanceledContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Price(ctx, PriceRequest{ContractRequest: contract("put", 0, 20), Spot: 100})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPenaltyFailureIsCounted(t *testing.T) {
	m := metrics.NewMetrics("fdpricer-test")
	cfg := testEngineConfig()
	cfg.MaxIterations = 1
	svc := NewPricingService(cfg, config.BatchConfig{MaxConcurrency: 1, MaxItems: 1}, WithMetrics(m))

	_, err := svc.Price(context.Background(), PriceRequest{ContractRequest: contract("put", 0.02, 50), Spot: 100})
	if !errors.Is(err, xerrors.ErrPenaltyNotConverged) {
		t.Fatalf("expected ErrPenaltyNotConverged, got %v", err)
	}
	if got := metricValue(t, m, "pde_solve_failures_total", map[string]string{"reason": "not_converged"}); got != 1 {
		t.Errorf("expected 1 recorded failure, got %v", got)
	}
}

func TestSurface(t *testing.T) {
	svc, _ := newTestService(t)
	req := SurfaceRequest{ContractRequest: contract("put", 0.02, 40)}

	res, err := svc.Surface(context.Background(), req)
	if err != nil {
		t.Fatalf("Surface failed: %v", err)
	}
	if len(res.Nodes) != 41 || len(res.Values) != 40 || len(res.Times) != 40 {
		t.Fatalf("unexpected shape: nodes=%d values=%d times=%d", len(res.Nodes), len(res.Values), len(res.Times))
	}
	if res.Nodes[40] != 400 {
		t.Errorf("expected S_max 400, got %v", res.Nodes[40])
	}
	if res.Times[0] != 0 || math.Abs(res.Times[1]-0.025) > 1e-15 {
		t.Errorf("unexpected time axis %v", res.Times[:2])
	}
	last := res.Values[39]
	for i, s := range res.Nodes {
		if last[i] != types.OptionTypePut.Payoff(s, 100) {
			t.Fatalf("last column must equal payoff at node %d", i)
		}
	}
	if res.Stats.Steps != 39 {
		t.Errorf("expected 39 steps, got %d", res.Stats.Steps)
	}
}

func TestBoundary(t *testing.T) {
	svc, _ := newTestService(t)

	put, err := svc.Boundary(context.Background(), BoundaryRequest{ContractRequest: contract("put", 0.02, 100), WithCurve: true})
	if err != nil {
		t.Fatalf("Boundary failed: %v", err)
	}
	if put.Boundary == nil || *put.Boundary < 70 || *put.Boundary > 100 {
		t.Errorf("unexpected put boundary %v", put.Boundary)
	}
	if len(put.Curve) != 100 || len(put.Times) != 100 {
		t.Errorf("expected 100 curve points, got %d", len(put.Curve))
	}

	call, err := svc.Boundary(context.Background(), BoundaryRequest{ContractRequest: contract("call", 0, 60)})
	if err != nil {
		t.Fatalf("Boundary failed: %v", err)
	}
	if call.Boundary != nil {
		t.Errorf("expected no boundary for a call without dividend, got %v", *call.Boundary)
	}
	if call.Curve != nil {
		t.Errorf("curve must be omitted unless requested")
	}
}

func TestPriceBatch(t *testing.T) {
	svc, m := newTestService(t)
	reqs := []PriceRequest{
		{ContractRequest: contract("put", 0.02, 30), Spot: 100},
		{ContractRequest: contract("straddle", 0.02, 30), Spot: 100},
		{ContractRequest: contract("call", 0.02, 30), Spot: 110, Style: "european"},
	}

	items, err := svc.PriceBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("PriceBatch failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, it := range items {
		if it.Index != i {
			t.Errorf("item %d has index %d", i, it.Index)
		}
	}
	if items[0].Result == nil || items[2].Result == nil {
		t.Fatalf("valid items must succeed: %+v", items)
	}
	if items[1].Error == nil || items[1].Error.Code != xerrors.ErrInvalidOptionType.Code {
		t.Errorf("expected option type error, got %+v", items[1].Error)
	}
	single, _ := svc.Price(context.Background(), reqs[2])
	if !items[2].Result.Price.Equal(single.Price) {
		t.Errorf("batch price %s differs from single price %s", items[2].Result.Price, single.Price)
	}
	if got := metricValue(t, m, "pricing_batch_size", nil); got != 1 {
		t.Errorf("expected 1 batch observation, got %v", got)
	}
}

func TestPriceBatchLimits(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.PriceBatch(context.Background(), nil); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty batch, got %v", err)
	}
	reqs := make([]PriceRequest, 9)
	if _, err := svc.PriceBatch(context.Background(), reqs); !errors.Is(err, xerrors.ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestReference(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Reference(context.Background(), ReferenceRequest{
		OptionType: "put", Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2, Maturity: 1, LatticeSteps: 400,
	})
	if err != nil {
		t.Fatalf("Reference failed: %v", err)
	}
	if math.Abs(res.ClosedForm.InexactFloat64()-5.5735) > 1e-4 {
		t.Errorf("expected closed form 5.5735, got %s", res.ClosedForm)
	}
	if res.BinomialAmerican.LessThan(res.BinomialEuropean) {
		t.Errorf("american %s below european %s", res.BinomialAmerican, res.BinomialEuropean)
	}
	if res.LatticeSteps != 400 {
		t.Errorf("expected 400 lattice steps, got %d", res.LatticeSteps)
	}

	_, err = svc.Reference(context.Background(), ReferenceRequest{
		OptionType: "put", Spot: math.NaN(), Strike: 100, Volatility: 0.2, Maturity: 1,
	})
	if !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for NaN spot, got %v", err)
	}
	_, err = svc.Reference(context.Background(), ReferenceRequest{
		OptionType: "call", Spot: 100, Strike: 100, Volatility: 0.2, Maturity: 1, LatticeSteps: maxLatticeSteps + 1,
	})
	if !errors.Is(err, xerrors.ErrGridTooLarge) {
		t.Errorf("expected ErrGridTooLarge, got %v", err)
	}
}
