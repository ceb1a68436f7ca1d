// Package exchange provides the gateway to market data and order
// submission, in paper and live flavours.
package exchange

import (
	"context"
	"errors"
	"strings"

	"github.com/evdnx/godec/types"
)

// Gateway is the core-facing exchange boundary. All calls take a context
// so in-flight I/O can be abandoned on shutdown or timeout.
type Gateway interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (float64, error)
	FetchBalance(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, o types.Order) (types.OrderResult, error)
}

// RejectCause buckets exchange-side order refusals into the handful we
// recognize; anything else surfaces verbatim as RejectUnknown.
type RejectCause string

const (
	RejectAuth       RejectCause = "auth"
	RejectMargin     RejectCause = "insufficient_margin"
	RejectPermission RejectCause = "permission"
	RejectUnknown    RejectCause = "unknown"
)

// RejectionError is returned when an order was submitted and the venue
// refused it. The position is never created in that case.
type RejectionError struct {
	Cause  RejectCause
	Detail string
}

func (e *RejectionError) Error() string {
	return "order rejected (" + string(e.Cause) + "): " + e.Detail
}

// ClassifyRejection maps a raw venue message onto a RejectCause.
func ClassifyRejection(msg string) *RejectionError {
	lower := strings.ToLower(msg)
	cause := RejectUnknown
	switch {
	case strings.Contains(lower, "api key") || strings.Contains(lower, "signature") ||
		strings.Contains(lower, "auth"):
		cause = RejectAuth
	case strings.Contains(lower, "margin") || strings.Contains(lower, "insufficient") ||
		strings.Contains(lower, "balance"):
		cause = RejectMargin
	case strings.Contains(lower, "permission") || strings.Contains(lower, "not allowed") ||
		strings.Contains(lower, "forbidden"):
		cause = RejectPermission
	}
	return &RejectionError{Cause: cause, Detail: msg}
}

// IsRejection reports whether err is a venue-side order refusal, as
// opposed to a transport failure.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
