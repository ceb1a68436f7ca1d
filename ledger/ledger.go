// Package ledger persists trade records. The in-memory position store
// stays authoritative for live decisions; the ledger is the durable
// record reconciled after fills and exits.
package ledger

import (
	"context"

	"github.com/evdnx/godec/types"
)

// Ledger stores positions keyed by their unique order identifier.
type Ledger interface {
	// Insert records a freshly opened position.
	Insert(ctx context.Context, p *types.Position) error
	// MarkClosed finalizes a position after a confirmed closing fill.
	MarkClosed(ctx context.Context, p *types.Position) error
	// OpenPositions returns every record still marked OPEN.
	OpenPositions(ctx context.Context) ([]types.Position, error)
	// BySymbol returns records for a symbol filtered by status; an empty
	// status matches everything.
	BySymbol(ctx context.Context, symbol string, status types.PositionStatus) ([]types.Position, error)
	Close() error
}
