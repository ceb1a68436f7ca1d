// Package engine orchestrates the cooperative scan, sync and regime
// tasks over the decision pipeline.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/exchange"
	"github.com/evdnx/godec/ledger"
	"github.com/evdnx/godec/logger"
	"github.com/evdnx/godec/metrics"
	"github.com/evdnx/godec/position"
	"github.com/evdnx/godec/regime"
	"github.com/evdnx/godec/risk"
	"github.com/evdnx/godec/signal"
	"github.com/evdnx/godec/types"
)

// Scanner drives one decision cycle: manage open positions first, then
// evaluate entries across the watchlist.
type Scanner struct {
	cfg     *config.Config
	gateway exchange.Gateway
	store   *position.Store
	manager *position.Manager
	book    ledger.Ledger
	log     logger.Logger

	mu           sync.RWMutex
	equity       float64
	regime       types.Regime
	weights      types.RegimeWeights
	lastPrices   map[string]float64
	disconnected bool
}

func NewScanner(cfg *config.Config, gateway exchange.Gateway, store *position.Store,
	manager *position.Manager, book ledger.Ledger, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{
		cfg:        cfg,
		gateway:    gateway,
		store:      store,
		manager:    manager,
		book:       book,
		log:        log,
		regime:     types.RegimeUnknown,
		weights:    regime.Weights(types.RegimeUnknown),
		lastPrices: make(map[string]float64),
	}
}

// ScanOnce runs a single high-frequency cycle. Per-symbol failures are
// logged and never abort the rest of the watchlist.
func (s *Scanner) ScanOnce(ctx context.Context) {
	s.manager.ManageOpen(ctx)

	for _, symbol := range s.cfg.Watchlist {
		if ctx.Err() != nil {
			return
		}
		if err := s.scanSymbol(ctx, symbol); err != nil {
			s.markDisconnected()
			s.log.Warn("scan_failed",
				logger.String("symbol", symbol),
				logger.Err(err),
			)
			continue
		}
		s.markConnected()
	}
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string) error {
	// duplicate-entry guard: one open scalp per symbol
	if s.store.HasOpen(symbol) {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	candles, err := s.gateway.FetchCandles(callCtx, symbol, s.cfg.ScanTimeframe, s.cfg.ScanLimit)
	cancel()
	if err != nil {
		return err
	}

	intent := signal.Detect(symbol, candles)
	if intent == nil {
		return nil
	}
	metrics.SignalsDetected.WithLabelValues(string(intent.Tag)).Inc()
	s.log.Info("signal_detected",
		logger.String("symbol", symbol),
		logger.String("side", string(intent.Side)),
		logger.String("strategy", string(intent.Tag)),
		logger.Float64("price", intent.Price),
	)

	// claim the symbol before sizing so a concurrent scan cannot race
	// past the guard
	if !s.store.Reserve(symbol) {
		return nil
	}
	opened, err := s.openPosition(ctx, *intent)
	if !opened {
		s.store.Release(symbol)
	}
	return err
}

// openPosition sizes, validates, submits and records an entry. It
// reports whether a position was committed under the caller's
// reservation.
func (s *Scanner) openPosition(ctx context.Context, intent types.TradeIntent) (bool, error) {
	equity, currentRegime, weights := s.snapshotState()

	sized, err := risk.SizePosition(intent, equity, currentRegime, weights, s.cfg)
	if err != nil {
		// capital constraint is a policy outcome, not a failure
		metrics.OrdersRejected.WithLabelValues("capital_constraint").Inc()
		s.log.Info("intent_dropped",
			logger.String("symbol", intent.Symbol),
			logger.Err(err),
		)
		return false, nil
	}

	lastPrice := s.lastPrice(intent.Symbol)
	if lastPrice == 0 {
		lastPrice = intent.Price
	}
	if ok, why := risk.CheckCircuitBreaker(intent.Price, lastPrice, s.cfg.Risk.CircuitBreakerGapPct); !ok {
		metrics.OrdersRejected.WithLabelValues("circuit_breaker").Inc()
		s.log.Warn("order_blocked",
			logger.String("symbol", intent.Symbol),
			logger.String("reason", why),
		)
		return false, nil
	}

	order := types.Order{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Qty:      sized.Quantity,
		Price:    intent.Price,
		Leverage: sized.Leverage,
		Tag:      intent.Tag,
		Comment:  "scalp entry",
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	res, err := s.gateway.SubmitOrder(callCtx, order)
	cancel()
	if err != nil {
		if exchange.IsRejection(err) {
			metrics.OrdersRejected.WithLabelValues("exchange").Inc()
			s.log.Error("order_refused",
				logger.String("symbol", intent.Symbol),
				logger.Err(err),
			)
			return false, nil
		}
		return false, err
	}
	if !res.Filled {
		s.log.Warn("entry_unfilled", logger.String("symbol", intent.Symbol))
		return false, nil
	}
	metrics.OrdersSubmitted.WithLabelValues(string(intent.Tag)).Inc()

	entry := res.FillPrice
	if entry <= 0 {
		entry = intent.Price
	}
	pos := &types.Position{
		ID:         uuid.New().String(),
		OrderID:    res.OrderID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		EntryPrice: entry,
		Quantity:   sized.Quantity,
		Leverage:   sized.Leverage,
		Tag:        intent.Tag,
		Regime:     currentRegime,
		OpenedAt:   time.Now().UTC(),
		Status:     types.StatusOpen,
	}
	s.store.Commit(pos)
	s.log.Info("position_opened",
		logger.String("symbol", pos.Symbol),
		logger.String("side", string(pos.Side)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("qty", pos.Quantity),
		logger.Int("leverage", pos.Leverage),
	)

	if err := s.book.Insert(ctx, pos); err != nil {
		// the fill already happened; in-memory state takes precedence and
		// the manager retries the insert each cycle
		s.log.Error("ledger_write_failed_after_fill",
			logger.String("order_id", pos.OrderID),
			logger.Err(err),
		)
		s.manager.EnqueueInsert(pos)
	}
	return true, nil
}

// SyncSnapshot refreshes cached equity and last prices (medium cadence).
func (s *Scanner) SyncSnapshot(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	equity, err := s.gateway.FetchBalance(callCtx)
	cancel()
	if err != nil {
		s.markDisconnected()
		s.log.Warn("balance_sync_failed", logger.Err(err))
		return
	}
	s.mu.Lock()
	s.equity = equity
	s.mu.Unlock()
	metrics.EquityGauge.Set(equity)

	healthy := true
	for _, symbol := range s.cfg.Watchlist {
		if ctx.Err() != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		price, err := s.gateway.FetchTicker(callCtx, symbol)
		cancel()
		if err != nil {
			s.markDisconnected()
			healthy = false
			s.log.Warn("ticker_sync_failed",
				logger.String("symbol", symbol),
				logger.Err(err),
			)
			continue
		}
		s.mu.Lock()
		s.lastPrices[symbol] = price
		s.mu.Unlock()
		s.manager.RecordPrice(symbol, price)
	}
	if healthy {
		s.markConnected()
	}
}

// RefreshRegime re-runs the classifier on the coarse timeframe (slow
// cadence). The first watchlist symbol anchors the market-wide regime.
func (s *Scanner) RefreshRegime(ctx context.Context) {
	if len(s.cfg.Watchlist) == 0 {
		return
	}
	symbol := s.cfg.Watchlist[0]
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	candles, err := s.gateway.FetchCandles(callCtx, symbol, s.cfg.RegimeTimeframe, s.cfg.RegimeLimit)
	cancel()
	if err != nil {
		s.markDisconnected()
		s.log.Warn("regime_refresh_failed", logger.Err(err))
		return
	}
	r := regime.Classify(candles)
	w := regime.Weights(r)
	s.mu.Lock()
	s.regime = r
	s.weights = w
	s.mu.Unlock()
	metrics.SetRegime(string(r))
	s.log.Info("regime_updated", logger.String("regime", string(r)))
	s.markConnected()
}

// SetEquity seeds the cached equity (startup, tests).
func (s *Scanner) SetEquity(equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity = equity
}

// Regime returns the cached regime tag.
func (s *Scanner) Regime() types.Regime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regime
}

// Disconnected reports whether the last exchange call failed.
func (s *Scanner) Disconnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disconnected
}

func (s *Scanner) snapshotState() (float64, types.Regime, types.RegimeWeights) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equity, s.regime, s.weights
}

func (s *Scanner) lastPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPrices[symbol]
}

func (s *Scanner) markDisconnected() {
	metrics.ExchangeErrors.Inc()
	metrics.Connected.Set(0)
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
}

func (s *Scanner) markConnected() {
	metrics.Connected.Set(1)
	s.mu.Lock()
	s.disconnected = false
	s.mu.Unlock()
}
