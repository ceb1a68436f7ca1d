package position

import (
	"context"
	"sync"
	"time"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/exchange"
	"github.com/evdnx/godec/ledger"
	"github.com/evdnx/godec/logger"
	"github.com/evdnx/godec/metrics"
	"github.com/evdnx/godec/risk"
	"github.com/evdnx/godec/types"
)

// ExitReason labels why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
)

// Manager evaluates exit conditions over open positions every cycle and
// finalizes closed trades against the ledger. OPEN -> CLOSED is the only
// transition; a failed or unfilled close leaves the position OPEN and the
// next cycle tries again.
type Manager struct {
	store   *Store
	gateway exchange.Gateway
	book    ledger.Ledger
	cfg     *config.Config
	log     logger.Logger

	// positions whose fill is confirmed but whose ledger write failed;
	// in-memory state stays authoritative until reconciled
	mu           sync.Mutex
	uninserted   []*types.Position
	unreconciled []*types.Position

	// last independently observed price per symbol, fed by the snapshot
	// sync; reference for validating close orders
	priceMu    sync.RWMutex
	lastPrices map[string]float64
}

func NewManager(store *Store, gateway exchange.Gateway, book ledger.Ledger,
	cfg *config.Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		store:      store,
		gateway:    gateway,
		book:       book,
		cfg:        cfg,
		log:        log,
		lastPrices: make(map[string]float64),
	}
}

// RecordPrice stores the last independently observed price for a symbol.
func (m *Manager) RecordPrice(symbol string, price float64) {
	m.priceMu.Lock()
	defer m.priceMu.Unlock()
	m.lastPrices[symbol] = price
}

func (m *Manager) lastPrice(symbol string) float64 {
	m.priceMu.RLock()
	defer m.priceMu.RUnlock()
	return m.lastPrices[symbol]
}

// EnqueueInsert remembers an opened position whose ledger insert failed;
// reconcile retries it each cycle until the row exists.
func (m *Manager) EnqueueInsert(p *types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uninserted = append(m.uninserted, p)
}

// ManageOpen runs one exit-evaluation pass over all open positions.
func (m *Manager) ManageOpen(ctx context.Context) {
	m.reconcile(ctx)

	for _, p := range m.store.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		if err := m.evaluate(ctx, p); err != nil {
			m.log.Warn("exit_evaluation_failed",
				logger.String("symbol", p.Symbol),
				logger.Err(err),
			)
		}
	}
}

func (m *Manager) evaluate(ctx context.Context, p *types.Position) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeTimeout)
	defer cancel()

	price, err := m.gateway.FetchTicker(callCtx, p.Symbol)
	if err != nil {
		return err
	}

	pnlPct := p.PnlPct(price)
	var reason ExitReason
	switch {
	case pnlPct >= m.cfg.Risk.TakeProfitPct:
		reason = ExitTakeProfit
	case pnlPct <= -m.cfg.Risk.StopLossPct:
		reason = ExitStopLoss
	default:
		return nil
	}

	m.log.Info("exit_triggered",
		logger.String("symbol", p.Symbol),
		logger.String("reason", string(reason)),
		logger.Float64("pnl_pct", pnlPct*100),
	)
	return m.close(ctx, p, price, reason)
}

// close submits the opposite-side order for the full original quantity
// and finalizes the position only on a confirmed fill.
func (m *Manager) close(ctx context.Context, p *types.Position, price float64, reason ExitReason) error {
	order := types.Order{
		Symbol:  p.Symbol,
		Side:    p.Side.Opposite(),
		Qty:     p.Quantity,
		Price:   price,
		Tag:     p.Tag,
		Comment: string(reason),
	}
	// validate the fresh ticker against an independent reference; before
	// the first snapshot sync the entry price stands in
	ref := m.lastPrice(p.Symbol)
	if ref == 0 {
		ref = p.EntryPrice
	}
	if ok, why := risk.CheckCircuitBreaker(price, ref, m.cfg.Risk.CircuitBreakerGapPct); !ok {
		metrics.OrdersRejected.WithLabelValues("circuit_breaker").Inc()
		m.log.Warn("close_order_blocked", logger.String("symbol", p.Symbol), logger.String("reason", why))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeTimeout)
	defer cancel()
	res, err := m.gateway.SubmitOrder(callCtx, order)
	if err != nil {
		return err
	}
	if !res.Filled {
		// unfilled close: position stays OPEN, retried on the next scan
		m.log.Warn("close_order_unfilled", logger.String("symbol", p.Symbol))
		return nil
	}

	exit := res.FillPrice
	if exit <= 0 {
		exit = price
	}
	p.Status = types.StatusClosed
	p.ExitPrice = exit
	p.ClosedAt = time.Now().UTC()
	p.RealizedPnl = (exit - p.EntryPrice) * p.Quantity * p.Direction()

	m.store.Remove(p.Symbol)
	metrics.RealizedPnl.Add(p.RealizedPnl)
	m.log.Info("position_closed",
		logger.String("symbol", p.Symbol),
		logger.String("reason", string(reason)),
		logger.Float64("exit_price", exit),
		logger.Float64("realized_pnl", p.RealizedPnl),
	)

	if err := m.book.MarkClosed(ctx, p); err != nil {
		// capital already moved; remember the record and retry next cycle
		m.log.Error("ledger_write_failed_after_fill",
			logger.String("order_id", p.OrderID),
			logger.Err(err),
		)
		m.mu.Lock()
		m.unreconciled = append(m.unreconciled, p)
		m.mu.Unlock()
	}
	return nil
}

// reconcile retries ledger writes that failed after a confirmed fill,
// inserts first so a pending close update finds its row.
func (m *Manager) reconcile(ctx context.Context) {
	m.mu.Lock()
	inserts := m.uninserted
	m.uninserted = nil
	pending := m.unreconciled
	m.unreconciled = nil
	m.mu.Unlock()

	for _, p := range inserts {
		if err := m.book.Insert(ctx, p); err != nil {
			m.log.Error("ledger_reconcile_failed",
				logger.String("order_id", p.OrderID),
				logger.Err(err),
			)
			m.mu.Lock()
			m.uninserted = append(m.uninserted, p)
			m.mu.Unlock()
		}
	}
	for _, p := range pending {
		if err := m.book.MarkClosed(ctx, p); err != nil {
			m.log.Error("ledger_reconcile_failed",
				logger.String("order_id", p.OrderID),
				logger.Err(err),
			)
			m.mu.Lock()
			m.unreconciled = append(m.unreconciled, p)
			m.mu.Unlock()
		}
	}
}
