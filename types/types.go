package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Candle is a single OHLCV bar. OpenTime is milliseconds since epoch.
// Series are ordered by strictly increasing OpenTime and immutable once
// fetched.
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Regime is a coarse classification of current market behaviour,
// refreshed on the slow cadence and consumed by sizing.
type Regime string

const (
	RegimeBullTrend  Regime = "BULL_TREND"
	RegimeBearTrend  Regime = "BEAR_TREND"
	RegimeRanging    Regime = "RANGING"
	RegimeCompressed Regime = "COMPRESSED"
	RegimeHighVol    Regime = "HIGH_VOLATILITY"
	RegimeUnknown    Regime = "UNKNOWN"
)

// RegimeWeights are the per-strategy multipliers associated with a regime.
type RegimeWeights struct {
	Momentum            float64
	MeanReversion       float64
	VolatilityExpansion float64
}

// StrategyTag identifies which rule set produced a signal. The conviction
// label only affects sizing through Conviction().
type StrategyTag string

const (
	TagStrict StrategyTag = "STRICT"
	TagLoose  StrategyTag = "LOOSE"
	TagRecon  StrategyTag = "RECON"
)

// Conviction returns the sizing multiplier for the tag.
func (t StrategyTag) Conviction() float64 {
	switch t {
	case TagStrict:
		return 1.0
	case TagLoose:
		return 0.5
	case TagRecon:
		return 0.75
	}
	return 1.0
}

// TradeIntent is the transient output of a qualifying scan, consumed
// immediately by sizing.
type TradeIntent struct {
	Symbol string
	Side   Side
	Price  float64
	Tag    StrategyTag
}

// Order is a sized request handed to the exchange gateway.
// Price 0 means market.
type Order struct {
	Symbol   string
	Side     Side
	Qty      float64
	Price    float64
	Leverage int
	Tag      StrategyTag
	// meta
	Comment string
}

// OrderResult is the gateway's fill confirmation.
type OrderResult struct {
	OrderID   string
	FillPrice float64
	Filled    bool
}

type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// Position is a scalp-class position tracked from fill to exit.
// Mutated only by the lifecycle manager; CLOSED is terminal.
type Position struct {
	ID          string
	OrderID     string
	Symbol      string
	Side        Side
	EntryPrice  float64
	Quantity    float64
	Leverage    int
	Tag         StrategyTag
	Regime      Regime
	OpenedAt    time.Time
	Status      PositionStatus
	ExitPrice   float64
	ClosedAt    time.Time
	RealizedPnl float64
}

// PnlPct returns the signed fractional move from entry at price.
func (p *Position) PnlPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == Buy {
		return (price - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - price) / p.EntryPrice
}

// Direction is +1 for long, -1 for short.
func (p *Position) Direction() float64 {
	if p.Side == Buy {
		return 1
	}
	return -1
}
