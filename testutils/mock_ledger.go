package testutils

import (
	"context"
	"sync"

	"github.com/evdnx/godec/types"
)

// MockLedger is an in-memory ledger with a programmable failure switch.
type MockLedger struct {
	mu      sync.Mutex
	records map[string]types.Position // keyed by order id

	InsertErr     error
	MarkClosedErr error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{records: make(map[string]types.Position)}
}

func (m *MockLedger) Insert(_ context.Context, p *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.records[p.OrderID] = *p
	return nil
}

func (m *MockLedger) MarkClosed(_ context.Context, p *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkClosedErr != nil {
		return m.MarkClosedErr
	}
	m.records[p.OrderID] = *p
	return nil
}

func (m *MockLedger) OpenPositions(_ context.Context) ([]types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Position
	for _, p := range m.records {
		if p.Status == types.StatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockLedger) BySymbol(_ context.Context, symbol string, status types.PositionStatus) ([]types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Position
	for _, p := range m.records {
		if p.Symbol != symbol {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MockLedger) Close() error { return nil }

// Record returns the stored copy for an order id.
func (m *MockLedger) Record(orderID string) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[orderID]
	return p, ok
}
