// Package risk turns trade intents into sized orders under the risk
// budget, and provides the final pre-submission gate.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/godec/config"
	"github.com/evdnx/godec/types"
)

// ErrBelowMinNotional marks the capital-constraint outcome: the sized
// position came out under the venue minimum. Not a failure, a policy
// result — the intent is dropped with a log entry and nothing is
// submitted.
var ErrBelowMinNotional = errors.New("sized notional below minimum order notional")

// Sized is the result of sizing an intent.
type Sized struct {
	Notional      float64
	Quantity      float64
	Leverage      int
	MaxLossBudget float64
}

// regimeMultiplier scales the risk budget by market conditions: the
// momentum weight when the trade rides an aligned trend, the
// mean-reversion weight in a range, fixed damping in high volatility
// and a modest boost in compression.
func regimeMultiplier(side types.Side, regime types.Regime, w types.RegimeWeights) float64 {
	switch regime {
	case types.RegimeBullTrend:
		if side == types.Buy {
			return w.Momentum
		}
	case types.RegimeBearTrend:
		if side == types.Sell {
			return w.Momentum
		}
	case types.RegimeRanging:
		return w.MeanReversion
	case types.RegimeHighVol:
		return 0.7
	case types.RegimeCompressed:
		return 1.2
	}
	return 1.0
}

// SizePosition sizes an intent so that hitting the static stop loses
// exactly the risk budget. The notional is capped at equity*MaxLeverage
// and dropped entirely below MinOrderNotional.
func SizePosition(intent types.TradeIntent, equity float64, regime types.Regime,
	weights types.RegimeWeights, cfg *config.Config) (Sized, error) {

	if intent.Price <= 0 {
		return Sized{}, fmt.Errorf("invalid intent price %v", intent.Price)
	}
	if equity <= 0 {
		return Sized{}, fmt.Errorf("non-positive equity %v", equity)
	}

	rc := cfg.Risk
	baseRisk := equity * rc.MaxRiskPerTrade
	budget := baseRisk * intent.Tag.Conviction() * regimeMultiplier(intent.Side, regime, weights)

	notional := budget / rc.StopLossPct
	if levCap := equity * float64(rc.MaxLeverage); notional > levCap {
		notional = levCap
	}
	if notional < rc.MinOrderNotional {
		return Sized{}, fmt.Errorf("%w: %.2f < %.2f", ErrBelowMinNotional, notional, rc.MinOrderNotional)
	}

	qty := roundDown(notional/intent.Price, cfg.Decimals(intent.Price))
	if qty <= 0 {
		return Sized{}, fmt.Errorf("%w: quantity rounds to zero at price %.2f", ErrBelowMinNotional, intent.Price)
	}

	leverage := int(math.Ceil(notional / equity))
	if leverage < 1 {
		leverage = 1
	}
	if leverage > rc.MaxLeverage {
		leverage = rc.MaxLeverage
	}

	return Sized{
		Notional:      qty * intent.Price,
		Quantity:      qty,
		Leverage:      leverage,
		MaxLossBudget: budget,
	}, nil
}

func roundDown(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Floor(v*pow) / pow
}

// CheckCircuitBreaker is the final gate before any order reaches the
// sink: it rejects when the order price has drifted from the last known
// price by more than gapPct. Pure and synchronous, no I/O, no state.
func CheckCircuitBreaker(orderPrice, lastPrice, gapPct float64) (bool, string) {
	if lastPrice <= 0 {
		return false, "no reference price available"
	}
	gap := math.Abs(orderPrice-lastPrice) / lastPrice
	if gap > gapPct {
		return false, fmt.Sprintf("price gap %.2f%% exceeds circuit breaker %.2f%%",
			gap*100, gapPct*100)
	}
	return true, ""
}
