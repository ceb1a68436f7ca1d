package testutils

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/evdnx/godec/types"
)

// MockGateway implements exchange.Gateway in-memory with scripted data
// and programmable failure modes.
type MockGateway struct {
	mu      sync.Mutex
	equity  float64
	prices  map[string]float64
	candles map[string][]types.Candle
	orders  []types.Order
	seq     int

	// failure knobs
	TickerErr  error
	CandlesErr error
	BalanceErr error
	SubmitErr  error
	// RefuseFill makes SubmitOrder succeed but report an unfilled order.
	RefuseFill bool
}

func NewMockGateway(equity float64) *MockGateway {
	return &MockGateway{
		equity:  equity,
		prices:  make(map[string]float64),
		candles: make(map[string][]types.Candle),
	}
}

func (m *MockGateway) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *MockGateway) SetCandles(symbol string, candles []types.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = candles
}

func (m *MockGateway) FetchCandles(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CandlesErr != nil {
		return nil, m.CandlesErr
	}
	series := m.candles[symbol]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]types.Candle, len(series))
	copy(out, series)
	return out, nil
}

func (m *MockGateway) FetchTicker(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TickerErr != nil {
		return 0, m.TickerErr
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, errors.New("mock: no price for " + symbol)
	}
	return price, nil
}

func (m *MockGateway) FetchBalance(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return 0, m.BalanceErr
	}
	return m.equity, nil
}

func (m *MockGateway) SubmitOrder(_ context.Context, o types.Order) (types.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return types.OrderResult{}, m.SubmitErr
	}
	m.orders = append(m.orders, o)
	if m.RefuseFill {
		return types.OrderResult{Filled: false}, nil
	}
	m.seq++
	price := o.Price
	if price == 0 {
		price = m.prices[o.Symbol]
	}
	return types.OrderResult{
		OrderID:   "mock-" + strconv.Itoa(m.seq),
		FillPrice: price,
		Filled:    true,
	}, nil
}

// Orders returns a copy of all submitted orders for assertions.
func (m *MockGateway) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}
