package testutils

import "github.com/evdnx/godec/types"

// Trend builds n candles stepping by step per bar from start, with a
// half-point high/low envelope. Deterministic by construction.
func Trend(n int, start, step float64) []types.Candle {
	out := make([]types.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		price += step
		out[i] = types.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price - step,
			High:     price + 0.5,
			Low:      price - 0.5,
			Close:    price,
			Volume:   1,
		}
	}
	return out
}

// Flat builds n candles pinned at price.
func Flat(n int, price float64) []types.Candle {
	return Trend(n, price, 0)
}
