package exchange

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/evdnx/godec/types"
)

// Paper is a zero-I/O gateway returning synthetic fills. It is the
// default when credentials are absent: orders fill immediately at the
// requested price and equity/position bookkeeping happens in-memory.
type Paper struct {
	mu        sync.RWMutex
	equity    float64
	prices    map[string]float64
	candles   map[string][]types.Candle
	positions map[string]float64 // signed qty
	orders    []types.Order
}

// NewPaper creates a paper gateway with the supplied starting equity.
func NewPaper(startEquity float64) *Paper {
	return &Paper{
		equity:    startEquity,
		prices:    make(map[string]float64),
		candles:   make(map[string][]types.Candle),
		positions: make(map[string]float64),
	}
}

// SeedCandles installs a deterministic candle series for a symbol.
func (p *Paper) SeedCandles(symbol string, candles []types.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol] = candles
	if n := len(candles); n > 0 {
		p.prices[symbol] = candles[n-1].Close
	}
}

// SetPrice installs the last price used for tickers and market fills.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Paper) FetchCandles(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	series, ok := p.candles[symbol]
	if !ok {
		return nil, errors.New("paper: no candle series seeded for " + symbol)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]types.Candle, len(series))
	copy(out, series)
	return out, nil
}

func (p *Paper) FetchTicker(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, errors.New("paper: no price for " + symbol)
	}
	return price, nil
}

func (p *Paper) FetchBalance(_ context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity, nil
}

// SubmitOrder fills instantly at the order price (or the seeded last
// price for market orders).
func (p *Paper) SubmitOrder(_ context.Context, o types.Order) (types.OrderResult, error) {
	if o.Qty <= 0 {
		return types.OrderResult{}, errors.New("paper: non-positive quantity")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price := o.Price
	if price == 0 {
		price = p.prices[o.Symbol]
	}
	if price <= 0 {
		return types.OrderResult{}, errors.New("paper: no price available for " + o.Symbol)
	}
	if o.Side == types.Buy {
		p.positions[o.Symbol] += o.Qty
	} else {
		p.positions[o.Symbol] -= o.Qty
	}
	p.orders = append(p.orders, o)
	return types.OrderResult{
		OrderID:   "paper_" + uuid.New().String()[:8],
		FillPrice: price,
		Filled:    true,
	}, nil
}

// Position returns the signed paper quantity for a symbol.
func (p *Paper) Position(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}

// Orders returns a copy of every submitted order, for assertions.
func (p *Paper) Orders() []types.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Order, len(p.orders))
	copy(out, p.orders)
	return out
}
