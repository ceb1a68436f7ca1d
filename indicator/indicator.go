// Package indicator provides deterministic technical indicator math over
// time-ordered series.
//
// Every function returns a slice position-aligned with its input: index i
// of the output corresponds to index i of the input, and indices before
// the warm-up window hold NaN. Short input yields an all-NaN slice,
// never a panic.
package indicator

import "math"

// Undefined is the sentinel stored before an indicator's warm-up window
// has filled.
var Undefined = math.NaN()

// IsUndefined reports whether v is the warm-up sentinel.
func IsUndefined(v float64) bool { return math.IsNaN(v) }

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Undefined
	}
	return out
}

// SMA computes the simple rolling mean over period samples.
func SMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average with smoothing factor
// 2/(period+1), seeded with the first sample. Defined from index 0.
func EMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		out[i] = ema
	}
	return out
}

// Bands holds the Bollinger Band series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64
}

// Bollinger computes SMA ± k standard deviations. The deviation is the
// population standard deviation over the window (divide by N, not N-1).
func Bollinger(values []float64, period int, k float64) Bands {
	n := len(values)
	b := Bands{
		Upper:  undefinedSeries(n),
		Middle: SMA(values, period),
		Lower:  undefinedSeries(n),
		Width:  undefinedSeries(n),
	}
	if period <= 0 || n < period {
		return b
	}
	for i := period - 1; i < n; i++ {
		mean := b.Middle[i]
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(period))
		b.Upper[i] = mean + std*k
		b.Lower[i] = mean - std*k
		b.Width[i] = b.Upper[i] - b.Lower[i]
	}
	return b
}

// trueRange builds the TR series. The first element has no prior close
// and falls back to high-low.
func trueRange(high, low, close []float64) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// ATR computes the average true range with Wilder's smoothing: the first
// value (at index period-1) is the simple mean of the first period true
// ranges, each subsequent value is (prev*(period-1)+tr)/period.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := undefinedSeries(n)
	if period <= 0 || n < period || len(high) != n || len(low) != n {
		return out
	}
	tr := trueRange(high, low, close)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// RSI computes the relative strength index with Wilder-smoothed average
// gain/loss. The first defined value sits at index period. When the
// average loss is zero RSI is 100 by convention.
func RSI(values []float64, period int) []float64 {
	n := len(values)
	out := undefinedSeries(n)
	if period <= 0 || n <= period {
		return out
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum -= d
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		d := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			// no movement at all: neutral
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Stoch holds the slowed %K and signal %D series.
type Stoch struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator: raw %K over a rolling
// kPeriod high/low window, a slowing rolling mean over the raw %K, and
// %D as a further dPeriod rolling mean of the slowed %K.
func Stochastic(high, low, close []float64, kPeriod, slowing, dPeriod int) Stoch {
	n := len(close)
	s := Stoch{K: undefinedSeries(n), D: undefinedSeries(n)}
	if kPeriod <= 0 || slowing <= 0 || dPeriod <= 0 || n < kPeriod ||
		len(high) != n || len(low) != n {
		return s
	}
	raw := undefinedSeries(n)
	for i := kPeriod - 1; i < n; i++ {
		hi, lo := high[i], low[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			hi = math.Max(hi, high[j])
			lo = math.Min(lo, low[j])
		}
		if hi == lo {
			// flat window: oscillator is undefined, carry the sentinel
			raw[i] = Undefined
			continue
		}
		raw[i] = 100 * (close[i] - lo) / (hi - lo)
	}
	s.K = rollingMean(raw, slowing)
	s.D = rollingMean(s.K, dPeriod)
	return s
}

// rollingMean averages the trailing window, propagating the sentinel
// until the window holds only defined samples.
func rollingMean(values []float64, window int) []float64 {
	n := len(values)
	out := undefinedSeries(n)
	for i := window - 1; i < n; i++ {
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if IsUndefined(values[j]) {
				ok = false
				break
			}
			sum += values[j]
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// Last returns the final value of a series, or the sentinel for an empty
// one.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return Undefined
	}
	return values[len(values)-1]
}

// Prev returns the next-to-last value of a series.
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return Undefined
	}
	return values[len(values)-2]
}
