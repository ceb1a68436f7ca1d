package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			MaxRiskPerTrade:      0.01,
			MaxLeverage:          20,
			MinOrderNotional:     10,
			StopLossPct:          0.003,
			TakeProfitPct:        0.005,
			CircuitBreakerGapPct: 0.05,
		},
		QuantityTiers: config.DefaultQuantityTiers,
	}
}

func neutralWeights() types.RegimeWeights {
	return types.RegimeWeights{Momentum: 1.0, MeanReversion: 1.0, VolatilityExpansion: 1.0}
}

func TestSizePositionScenario(t *testing.T) {
	// equity $5000, 1% risk, STRICT, regime multiplier 1.0, SL 0.3%:
	// budget $50, raw notional $16,666.67
	cfg := testConfig()
	intent := types.TradeIntent{Symbol: "BTCUSDT", Side: types.Buy, Price: 50_000, Tag: types.TagStrict}

	s, err := SizePosition(intent, 5_000, types.RegimeUnknown, neutralWeights(), cfg)
	if err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	if math.Abs(s.MaxLossBudget-50) > 1e-9 {
		t.Fatalf("budget = %v, want 50", s.MaxLossBudget)
	}
	// qty*SL*price recovers the budget within rounding tolerance
	recovered := s.Quantity * cfg.Risk.StopLossPct * intent.Price
	if math.Abs(recovered-s.MaxLossBudget) > intent.Price*cfg.Risk.StopLossPct*0.001 {
		t.Fatalf("qty*sl*price = %v, want ≈ %v", recovered, s.MaxLossBudget)
	}
	if s.Leverage != 4 { // ceil(16666.67/5000) with cap 20
		t.Fatalf("leverage = %d, want 4", s.Leverage)
	}
}

func TestSizePositionLeverageCap(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxLeverage = 2
	intent := types.TradeIntent{Symbol: "BTCUSDT", Side: types.Buy, Price: 50_000, Tag: types.TagStrict}

	s, err := SizePosition(intent, 5_000, types.RegimeUnknown, neutralWeights(), cfg)
	if err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	if s.Notional > 10_000+1 {
		t.Fatalf("notional %v exceeds equity*maxLeverage", s.Notional)
	}
	if s.Leverage != 2 {
		t.Fatalf("leverage = %d, want 2", s.Leverage)
	}
}

func TestSizePositionBelowMinNotional(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MinOrderNotional = 10
	intent := types.TradeIntent{Symbol: "XRPUSDT", Side: types.Buy, Price: 0.5, Tag: types.TagLoose}

	// equity $4.8, 1% risk, LOOSE 0.5x: budget $0.024, notional $8 < $10
	_, err := SizePosition(intent, 4.8, types.RegimeUnknown, neutralWeights(), cfg)
	if err == nil {
		t.Fatal("expected capital-constraint error")
	}
	if !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("expected ErrBelowMinNotional, got %v", err)
	}
}

func TestRegimeMultiplierSelection(t *testing.T) {
	cfg := testConfig()
	w := types.RegimeWeights{Momentum: 1.5, MeanReversion: 1.5, VolatilityExpansion: 1.2}
	buy := types.TradeIntent{Symbol: "BTCUSDT", Side: types.Buy, Price: 100, Tag: types.TagStrict}
	sell := types.TradeIntent{Symbol: "BTCUSDT", Side: types.Sell, Price: 100, Tag: types.TagStrict}
	equity := 10_000.0
	base := equity * cfg.Risk.MaxRiskPerTrade

	cases := []struct {
		name   string
		intent types.TradeIntent
		regime types.Regime
		want   float64
	}{
		{"aligned bull buy", buy, types.RegimeBullTrend, base * 1.5},
		{"counter-trend bull sell", sell, types.RegimeBullTrend, base * 1.0},
		{"aligned bear sell", sell, types.RegimeBearTrend, base * 1.5},
		{"ranging", buy, types.RegimeRanging, base * 1.5},
		{"high volatility damped", buy, types.RegimeHighVol, base * 0.7},
		{"compressed boosted", buy, types.RegimeCompressed, base * 1.2},
		{"unknown neutral", buy, types.RegimeUnknown, base * 1.0},
	}
	for _, tc := range cases {
		s, err := SizePosition(tc.intent, equity, tc.regime, w, cfg)
		if err != nil {
			t.Fatalf("%s: sizing failed: %v", tc.name, err)
		}
		if math.Abs(s.MaxLossBudget-tc.want) > 1e-9 {
			t.Fatalf("%s: budget = %v, want %v", tc.name, s.MaxLossBudget, tc.want)
		}
	}
}

func TestQuantityRoundingByPriceTier(t *testing.T) {
	cfg := testConfig()
	intent := types.TradeIntent{Symbol: "BTCUSDT", Side: types.Buy, Price: 45_000, Tag: types.TagStrict}
	s, err := SizePosition(intent, 5_000, types.RegimeUnknown, neutralWeights(), cfg)
	if err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	// 3-decimal tier for a 45k asset: no residual beyond 0.001
	scaled := s.Quantity * 1000
	if math.Abs(scaled-math.Floor(scaled)) > 1e-9 {
		t.Fatalf("quantity %v not rounded to 3 decimals", s.Quantity)
	}
}

func TestCheckCircuitBreaker(t *testing.T) {
	// 7% gap against a 5% breaker rejects
	ok, reason := CheckCircuitBreaker(107, 100, 0.05)
	if ok {
		t.Fatal("expected circuit breaker rejection")
	}
	if reason == "" {
		t.Fatal("expected a human-readable reason")
	}
	if ok, _ := CheckCircuitBreaker(104, 100, 0.05); !ok {
		t.Fatal("4% gap should pass a 5% breaker")
	}
	if ok, _ := CheckCircuitBreaker(100, 0, 0.05); ok {
		t.Fatal("missing reference price must not pass")
	}
}
