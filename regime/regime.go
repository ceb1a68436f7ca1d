// Package regime classifies coarse-timeframe market behaviour and maps
// each regime to the strategy weight multipliers consumed by sizing.
package regime

import (
	"github.com/evdnx/godec/indicator"
	"github.com/evdnx/godec/types"
)

const (
	minCandles       = 50
	trendFastPeriod  = 20
	trendSlowPeriod  = 50
	bandPeriod       = 20
	bandK            = 2.0
	widthHistory     = 100
	compressedPctl   = 15.0
	atrPeriod        = 14
	highVolATRPct    = 3.0
	trendUpperBuffer = 1.002
	trendLowerBuffer = 0.998
)

// Classify returns the regime for a coarse candle window. It is a pure
// function of its input: identical windows always produce identical
// output. Fewer than 50 candles yields UNKNOWN, never a guess.
func Classify(candles []types.Candle) types.Regime {
	if len(candles) < minCandles {
		return types.RegimeUnknown
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

	ema20 := indicator.Last(indicator.EMA(close, trendFastPeriod))
	ema50 := indicator.Last(indicator.EMA(close, trendSlowPeriod))

	bb := indicator.Bollinger(close, bandPeriod, bandK)
	if pctl, ok := widthPercentile(bb.Width); ok && pctl < compressedPctl {
		return types.RegimeCompressed
	}

	atr := indicator.Last(indicator.ATR(high, low, close, atrPeriod))
	last := close[n-1]
	if !indicator.IsUndefined(atr) && last > 0 && atr/last*100 > highVolATRPct {
		return types.RegimeHighVol
	}

	switch {
	case ema20 > ema50*trendUpperBuffer:
		return types.RegimeBullTrend
	case ema20 < ema50*trendLowerBuffer:
		return types.RegimeBearTrend
	}
	return types.RegimeRanging
}

// widthPercentile ranks the current band width against its trailing
// history: the fraction of defined trailing samples strictly below the
// current width, as a percentage.
func widthPercentile(width []float64) (float64, bool) {
	current := indicator.Last(width)
	if indicator.IsUndefined(current) {
		return 0, false
	}
	start := len(width) - widthHistory
	if start < 0 {
		start = 0
	}
	below, total := 0, 0
	for _, w := range width[start:] {
		if indicator.IsUndefined(w) {
			continue
		}
		total++
		if w < current {
			below++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(below) / float64(total) * 100, true
}

// weightTable is the fixed per-regime strategy weight lookup.
var weightTable = map[types.Regime]types.RegimeWeights{
	types.RegimeBullTrend:  {Momentum: 1.5, MeanReversion: 0.5, VolatilityExpansion: 1.2},
	types.RegimeBearTrend:  {Momentum: 1.5, MeanReversion: 0.5, VolatilityExpansion: 1.2},
	types.RegimeRanging:    {Momentum: 0.3, MeanReversion: 1.5, VolatilityExpansion: 0.5},
	types.RegimeCompressed: {Momentum: 1.0, MeanReversion: 0.5, VolatilityExpansion: 2.0},
	types.RegimeHighVol:    {Momentum: 0.8, MeanReversion: 0.8, VolatilityExpansion: 0.8},
}

// Weights returns the multipliers for a regime. Unknown or unmapped
// regimes default every weight to 1.0.
func Weights(r types.Regime) types.RegimeWeights {
	if w, ok := weightTable[r]; ok {
		return w
	}
	return types.RegimeWeights{Momentum: 1.0, MeanReversion: 1.0, VolatilityExpansion: 1.0}
}
