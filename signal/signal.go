// Package signal evaluates the short-timeframe entry rules.
//
// Rule sets run in fixed priority STRICT -> LOOSE -> RECON and the first
// match wins. STRICT and LOOSE are stochastic cross entries in trend
// direction; RECON is an RSI momentum continuation entry.
package signal

import (
	"github.com/evdnx/godec/indicator"
	"github.com/evdnx/godec/types"
)

const (
	// MinHistory is the number of short-timeframe candles required
	// before any rule is evaluated.
	MinHistory = 100

	emaFast = 9
	emaSlow = 21

	stochK       = 9
	stochSlowing = 3
	stochD       = 3

	strictOversold   = 30.0
	strictOverbought = 70.0
	looseLevel       = 50.0

	rsiPeriod    = 14
	reconBullRSI = 65.0
	reconBearRSI = 35.0
)

// snapshot carries the indicator values a single evaluation needs.
type snapshot struct {
	price     float64
	trendUp   bool
	trendDown bool
	currK     float64
	currD     float64
	prevK     float64
	prevD     float64
	rsi       float64
}

// Detect evaluates the rule sets against a short-timeframe candle window
// and returns the winning intent, or nil when nothing qualifies.
func Detect(symbol string, candles []types.Candle) *types.TradeIntent {
	if len(candles) < MinHistory {
		return nil
	}
	n := len(candles)
	close := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	for i, c := range candles {
		close[i] = c.Close
		high[i] = c.High
		low[i] = c.Low
	}

	fast := indicator.EMA(close, emaFast)
	slow := indicator.EMA(close, emaSlow)
	st := indicator.Stochastic(high, low, close, stochK, stochSlowing, stochD)

	s := snapshot{
		price:     close[n-1],
		trendUp:   indicator.Last(fast) > indicator.Last(slow),
		trendDown: indicator.Last(fast) < indicator.Last(slow),
		currK:     indicator.Last(st.K),
		currD:     indicator.Last(st.D),
		prevK:     indicator.Prev(st.K),
		prevD:     indicator.Prev(st.D),
		rsi:       indicator.Last(indicator.RSI(close, rsiPeriod)),
	}

	if tag, side, ok := evaluate(s); ok {
		return &types.TradeIntent{Symbol: symbol, Side: side, Price: s.price, Tag: tag}
	}
	return nil
}

// evaluate runs the rule sets in priority order, first match wins.
func evaluate(s snapshot) (types.StrategyTag, types.Side, bool) {
	rules := []struct {
		tag  types.StrategyTag
		eval func(snapshot) (types.Side, bool)
	}{
		{types.TagStrict, strict},
		{types.TagLoose, loose},
		{types.TagRecon, recon},
	}
	for _, r := range rules {
		if side, ok := r.eval(s); ok {
			return r.tag, side, true
		}
	}
	return "", "", false
}

func (s snapshot) stochDefined() bool {
	return !indicator.IsUndefined(s.currK) && !indicator.IsUndefined(s.currD) &&
		!indicator.IsUndefined(s.prevK) && !indicator.IsUndefined(s.prevD)
}

func (s snapshot) crossUp() bool   { return s.prevK < s.prevD && s.currK > s.currD }
func (s snapshot) crossDown() bool { return s.prevK > s.prevD && s.currK < s.currD }

// strict: stochastic cross out of an extreme, in trend direction.
func strict(s snapshot) (types.Side, bool) {
	if !s.stochDefined() {
		return "", false
	}
	if s.trendUp && s.crossUp() && s.currK < strictOversold {
		return types.Buy, true
	}
	if s.trendDown && s.crossDown() && s.currK > strictOverbought {
		return types.Sell, true
	}
	return "", false
}

// loose: the same cross logic with thresholds relaxed to the midline.
func loose(s snapshot) (types.Side, bool) {
	if !s.stochDefined() {
		return "", false
	}
	if s.trendUp && s.crossUp() && s.currK < looseLevel {
		return types.Buy, true
	}
	if s.trendDown && s.crossDown() && s.currK > looseLevel {
		return types.Sell, true
	}
	return "", false
}

// recon: RSI momentum continuation with trend agreement.
func recon(s snapshot) (types.Side, bool) {
	if indicator.IsUndefined(s.rsi) {
		return "", false
	}
	if s.trendUp && s.rsi > reconBullRSI {
		return types.Buy, true
	}
	if s.trendDown && s.rsi < reconBearRSI {
		return types.Sell, true
	}
	return "", false
}
