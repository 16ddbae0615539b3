package finance

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fdpricer/algorithm/types"
	"github.com/wyfcoding/fdpricer/xerrors"
)

func TestEuroVanillaPrice(t *testing.T) {
	call := EuroVanillaPrice(types.OptionTypeCall, 100, 100, 0.05, 1, 0.2, 0)
	if math.Abs(call-10.4506) > 1e-4 {
		t.Errorf("expected call 10.4506, got %.6f", call)
	}
	put := EuroVanillaPrice(types.OptionTypePut, 100, 100, 0.05, 1, 0.2, 0)
	if math.Abs(put-5.5735) > 1e-4 {
		t.Errorf("expected put 5.5735, got %.6f", put)
	}

	// put-call parity: C - P = S e^{-qT} - K e^{-rT}
	s, k, r, q, T := 110.0, 100.0, 0.03, 0.02, 0.75
	c := EuroVanillaPrice(types.OptionTypeCall, s, k, r, T, 0.3, q)
	p := EuroVanillaPrice(types.OptionTypePut, s, k, r, T, 0.3, q)
	if parity := s*math.Exp(-q*T) - k*math.Exp(-r*T); math.Abs(c-p-parity) > 1e-10 {
		t.Errorf("parity violated: C-P=%.10f, want %.10f", c-p, parity)
	}

	if got := EuroVanillaPrice(types.OptionTypePut, 80, 100, 0.05, 0, 0.2, 0); got != 20 {
		t.Errorf("expected intrinsic value at expiry, got %v", got)
	}
}

func TestBlackScholesCalculator(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	d := decimal.NewFromFloat

	call, err := bsc.Calculate("call", d(100), d(100), d(1), d(0.05), d(0.2), d(0))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if math.Abs(call.Price.InexactFloat64()-10.4506) > 1e-4 {
		t.Errorf("expected price 10.4506, got %s", call.Price)
	}
	delta := call.Delta.InexactFloat64()
	if delta <= 0 || delta >= 1 {
		t.Errorf("call delta out of range: %v", delta)
	}
	if call.Gamma.InexactFloat64() <= 0 || call.Vega.InexactFloat64() <= 0 {
		t.Errorf("gamma and vega must be positive: %s %s", call.Gamma, call.Vega)
	}

	put, err := bsc.Calculate("PUT", d(100), d(100), d(1), d(0.05), d(0.2), d(0))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if math.Abs(put.Delta.InexactFloat64()-(delta-1)) > 1e-12 {
		t.Errorf("put delta should equal call delta - 1, got %s", put.Delta)
	}

	if _, err := bsc.Calculate("digital", d(100), d(100), d(1), d(0.05), d(0.2), d(0)); !errors.Is(err, xerrors.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
	if _, err := bsc.Calculate("call", d(100), d(100), d(0), d(0.05), d(0.2), d(0)); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBinomialPrices(t *testing.T) {
	p := LatticeParams{S0: 100, K: 100, R: 0.05, Q: 0.02, Sigma: 0.2, T: 1, Steps: 800}

	for _, typ := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
		eu, err := EuropeanBinomialPrice(typ, p)
		if err != nil {
			t.Fatalf("EuropeanBinomialPrice failed: %v", err)
		}
		ref := EuroVanillaPrice(typ, p.S0, p.K, p.R, p.T, p.Sigma, p.Q)
		if math.Abs(eu-ref)/ref > 1e-3 {
			t.Errorf("%s: binomial %.6f vs closed form %.6f", typ, eu, ref)
		}

		am, err := AmericanBinomialPrice(typ, p)
		if err != nil {
			t.Fatalf("AmericanBinomialPrice failed: %v", err)
		}
		if am < eu {
			t.Errorf("%s: American %.6f below European %.6f", typ, am, eu)
		}
	}

	// 无股息看涨期权提前行权无价值
	p.Q = 0
	eu, _ := EuropeanBinomialPrice(types.OptionTypeCall, p)
	am, _ := AmericanBinomialPrice(types.OptionTypeCall, p)
	if math.Abs(am-eu) > 1e-9 {
		t.Errorf("expected equal prices without dividend, got %.9f vs %.9f", am, eu)
	}

	p.Steps = 0
	if _, err := AmericanBinomialPrice(types.OptionTypePut, p); !errors.Is(err, xerrors.ErrInvalidStepCount) {
		t.Errorf("expected ErrInvalidStepCount, got %v", err)
	}
}
