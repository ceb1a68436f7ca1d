package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/testutils"
	"github.com/evdnx/godec/types"
)

func testConfig() *config.Config {
	return &config.Config{
		ExchangeTimeout: 15 * time.Second,
		Risk: config.RiskConfig{
			MaxRiskPerTrade:      0.01,
			MaxLeverage:          20,
			MinOrderNotional:     10,
			StopLossPct:          0.003,
			TakeProfitPct:        0.005,
			CircuitBreakerGapPct: 0.05,
		},
	}
}

func openPosition(symbol string, side types.Side, entry, qty float64) *types.Position {
	return &types.Position{
		ID:         "pos-" + symbol,
		OrderID:    "ord-" + symbol,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		Quantity:   qty,
		Leverage:   1,
		Tag:        types.TagStrict,
		OpenedAt:   time.Now().UTC(),
		Status:     types.StatusOpen,
	}
}

func TestStoreSingleOpenPerSymbol(t *testing.T) {
	s := NewStore()
	if !s.Reserve("BTCUSDT") {
		t.Fatal("first reservation should succeed")
	}
	if s.Reserve("BTCUSDT") {
		t.Fatal("second reservation must fail while the first is held")
	}
	s.Commit(openPosition("BTCUSDT", types.Buy, 100, 1))
	if s.Reserve("BTCUSDT") {
		t.Fatal("reservation must fail while a position is open")
	}
	if !s.HasOpen("BTCUSDT") {
		t.Fatal("expected an open position")
	}
	s.Remove("BTCUSDT")
	if !s.Reserve("BTCUSDT") {
		t.Fatal("reservation should succeed after close")
	}
}

func TestStoreReleaseFreesReservation(t *testing.T) {
	s := NewStore()
	if !s.Reserve("ETHUSDT") {
		t.Fatal("reserve failed")
	}
	s.Release("ETHUSDT")
	if !s.Reserve("ETHUSDT") {
		t.Fatal("reserve after release failed")
	}
}

func TestStoreConcurrentReservations(t *testing.T) {
	s := NewStore()
	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Reserve("BTCUSDT") {
				wins <- struct{}{}
				s.Commit(openPosition("BTCUSDT", types.Buy, 100, 1))
			}
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("exactly one concurrent attempt may win, got %d", n)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one open position, got %d", s.Len())
	}
}

func TestTakeProfitExit(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	book := testutils.NewMockLedger()
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, book, testConfig(), log)

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	if !store.Reserve(p.Symbol) {
		t.Fatal("reserve failed")
	}
	store.Commit(p)
	if err := book.Insert(context.Background(), p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	gw.SetPrice("BTCUSDT", 100.51) // +0.51% >= 0.5% take profit
	m.ManageOpen(context.Background())

	if store.HasOpen("BTCUSDT") {
		t.Fatal("position should be closed")
	}
	if p.Status != types.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", p.Status)
	}
	if p.RealizedPnl <= 0 {
		t.Fatalf("long closed above entry must have positive pnl, got %v", p.RealizedPnl)
	}
	orders := gw.Orders()
	if len(orders) != 1 || orders[0].Side != types.Sell || orders[0].Qty != 1 {
		t.Fatalf("expected one full-quantity sell close, got %+v", orders)
	}
	rec, ok := book.Record(p.OrderID)
	if !ok || rec.Status != types.StatusClosed {
		t.Fatalf("ledger not finalized: %+v", rec)
	}
}

func TestStopLossExitShort(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	book := testutils.NewMockLedger()
	m := NewManager(store, gw, book, testConfig(), testutils.NewMockLogger())

	p := openPosition("ETHUSDT", types.Sell, 100, 2)
	store.Reserve(p.Symbol)
	store.Commit(p)

	gw.SetPrice("ETHUSDT", 100.31) // short down 0.31% <= -0.3% stop
	m.ManageOpen(context.Background())

	if p.Status != types.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", p.Status)
	}
	if p.RealizedPnl >= 0 {
		t.Fatalf("stopped short above entry must lose, got %v", p.RealizedPnl)
	}
	orders := gw.Orders()
	if len(orders) != 1 || orders[0].Side != types.Buy {
		t.Fatalf("expected a buy-to-close order, got %+v", orders)
	}
}

func TestHoldInsideBand(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	m := NewManager(store, gw, testutils.NewMockLedger(), testConfig(), testutils.NewMockLogger())

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)

	gw.SetPrice("BTCUSDT", 100.2) // +0.2%: inside the TP/SL band
	m.ManageOpen(context.Background())

	if p.Status != types.StatusOpen || !store.HasOpen("BTCUSDT") {
		t.Fatal("position must stay open inside the band")
	}
	if len(gw.Orders()) != 0 {
		t.Fatalf("no close order expected, got %+v", gw.Orders())
	}
}

func TestUnfilledCloseLeavesPositionOpen(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	gw.RefuseFill = true
	m := NewManager(store, gw, testutils.NewMockLedger(), testConfig(), testutils.NewMockLogger())

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)

	gw.SetPrice("BTCUSDT", 101)
	m.ManageOpen(context.Background())

	if p.Status != types.StatusOpen || !store.HasOpen("BTCUSDT") {
		t.Fatal("unfilled close must leave the position open for the next cycle")
	}

	// next cycle with fills restored closes it
	gw.RefuseFill = false
	m.ManageOpen(context.Background())
	if p.Status != types.StatusClosed {
		t.Fatal("expected close on the retry cycle")
	}
}

func TestCloseBlockedOnWildTicker(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, testutils.NewMockLedger(), testConfig(), log)

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)

	// bad feed: the ticker sits 100% away from the synced reference
	m.RecordPrice("BTCUSDT", 100)
	gw.SetPrice("BTCUSDT", 200)
	m.ManageOpen(context.Background())

	if p.Status != types.StatusOpen || !store.HasOpen("BTCUSDT") {
		t.Fatal("close at a wild ticker must be blocked")
	}
	if len(gw.Orders()) != 0 {
		t.Fatalf("no close order may reach the gateway, got %+v", gw.Orders())
	}
	if !log.Contains("close_order_blocked") {
		t.Fatal("expected the blocked close to be logged")
	}
}

func TestCloseReferenceFallsBackToEntry(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, testutils.NewMockLedger(), testConfig(), log)

	// no synced price yet: the entry price is the reference
	p := openPosition("ETHUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)

	gw.SetPrice("ETHUSDT", 200)
	m.ManageOpen(context.Background())

	if p.Status != types.StatusOpen || len(gw.Orders()) != 0 {
		t.Fatal("wild ticker must be blocked against the entry reference")
	}
	if !log.Contains("close_order_blocked") {
		t.Fatal("expected the blocked close to be logged")
	}
}

func TestPendingInsertReconciled(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	book := testutils.NewMockLedger()
	book.InsertErr = errors.New("disk full")
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, book, testConfig(), log)

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)
	m.EnqueueInsert(p)

	gw.SetPrice("BTCUSDT", 100.1) // inside the band, no exit
	m.ManageOpen(context.Background())
	if _, ok := book.Record(p.OrderID); ok {
		t.Fatal("insert should still be failing")
	}
	if !log.Contains("ledger_reconcile_failed") {
		t.Fatal("expected the failed retry to be logged")
	}

	// ledger recovers; the next cycle lands the row
	book.InsertErr = nil
	m.ManageOpen(context.Background())
	rec, ok := book.Record(p.OrderID)
	if !ok || rec.Status != types.StatusOpen {
		t.Fatalf("expected the opened trade in the ledger, got %+v", rec)
	}
}

func TestTickerFailureKeepsPosition(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	gw.TickerErr = errors.New("exchange unreachable")
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, testutils.NewMockLedger(), testConfig(), log)

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)

	m.ManageOpen(context.Background())
	if p.Status != types.StatusOpen {
		t.Fatal("transient ticker failure must not close the position")
	}
	if !log.Contains("exit_evaluation_failed") {
		t.Fatal("expected a logged evaluation failure")
	}
}

func TestLedgerFailureAfterFillIsReconciled(t *testing.T) {
	store := NewStore()
	gw := testutils.NewMockGateway(10_000)
	book := testutils.NewMockLedger()
	book.MarkClosedErr = errors.New("disk full")
	log := testutils.NewMockLogger()
	m := NewManager(store, gw, book, testConfig(), log)

	p := openPosition("BTCUSDT", types.Buy, 100, 1)
	store.Reserve(p.Symbol)
	store.Commit(p)
	book.InsertErr = nil
	if err := book.Insert(context.Background(), p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	gw.SetPrice("BTCUSDT", 101)
	m.ManageOpen(context.Background())

	// fill confirmed: in-memory close wins even though the write failed
	if p.Status != types.StatusClosed || store.HasOpen("BTCUSDT") {
		t.Fatal("in-memory state must reflect the confirmed fill")
	}
	if !log.Contains("ledger_write_failed_after_fill") {
		t.Fatal("expected a critical ledger log entry")
	}

	// ledger recovers; the next cycle reconciles the record
	book.MarkClosedErr = nil
	m.ManageOpen(context.Background())
	rec, ok := book.Record(p.OrderID)
	if !ok || rec.Status != types.StatusClosed {
		t.Fatalf("expected reconciled CLOSED record, got %+v", rec)
	}
}
