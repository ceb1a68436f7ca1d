package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evdnx/godec/types"
)

// SQLite implements Ledger on a local sqlite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and bootstraps the
// schema. Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	// WAL keeps the 1m scan from stalling on concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS trades (
			id            TEXT PRIMARY KEY,
			order_id      TEXT NOT NULL UNIQUE,
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			entry_price   REAL NOT NULL,
			quantity      REAL NOT NULL,
			leverage      INTEGER NOT NULL DEFAULT 1,
			strategy      TEXT NOT NULL,
			regime        TEXT,
			status        TEXT NOT NULL DEFAULT 'OPEN',
			opened_at     INTEGER NOT NULL,
			exit_price    REAL,
			closed_at     INTEGER,
			realized_pnl  REAL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

func (s *SQLite) Insert(ctx context.Context, p *types.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, order_id, symbol, side, entry_price, quantity, leverage,
			 strategy, regime, status, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.Symbol, string(p.Side), p.EntryPrice, p.Quantity,
		p.Leverage, string(p.Tag), string(p.Regime), string(p.Status),
		p.OpenedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", p.OrderID, err)
	}
	return nil
}

func (s *SQLite) MarkClosed(ctx context.Context, p *types.Position) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, exit_price = ?, closed_at = ?, realized_pnl = ?
		WHERE order_id = ?`,
		string(types.StatusClosed), p.ExitPrice, p.ClosedAt.UnixMilli(),
		p.RealizedPnl, p.OrderID,
	)
	if err != nil {
		return fmt.Errorf("close trade %s: %w", p.OrderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("close trade %s: no such record", p.OrderID)
	}
	return nil
}

func (s *SQLite) OpenPositions(ctx context.Context) ([]types.Position, error) {
	return s.query(ctx, `SELECT `+columns+` FROM trades WHERE status = ? ORDER BY opened_at`,
		string(types.StatusOpen))
}

func (s *SQLite) BySymbol(ctx context.Context, symbol string, status types.PositionStatus) ([]types.Position, error) {
	if status == "" {
		return s.query(ctx, `SELECT `+columns+` FROM trades WHERE symbol = ? ORDER BY opened_at`, symbol)
	}
	return s.query(ctx, `SELECT `+columns+` FROM trades WHERE symbol = ? AND status = ? ORDER BY opened_at`,
		symbol, string(status))
}

const columns = `id, order_id, symbol, side, entry_price, quantity, leverage,
	strategy, regime, status, opened_at, exit_price, closed_at, realized_pnl`

func (s *SQLite) query(ctx context.Context, q string, args ...interface{}) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var side, tag, regime, status string
		var openedAt int64
		var exitPrice, realizedPnl sql.NullFloat64
		var closedAt sql.NullInt64
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Symbol, &side, &p.EntryPrice,
			&p.Quantity, &p.Leverage, &tag, &regime, &status, &openedAt,
			&exitPrice, &closedAt, &realizedPnl); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		p.Side = types.Side(side)
		p.Tag = types.StrategyTag(tag)
		p.Regime = types.Regime(regime)
		p.Status = types.PositionStatus(status)
		p.OpenedAt = time.UnixMilli(openedAt).UTC()
		if exitPrice.Valid {
			p.ExitPrice = exitPrice.Float64
		}
		if closedAt.Valid {
			p.ClosedAt = time.UnixMilli(closedAt.Int64).UTC()
		}
		if realizedPnl.Valid {
			p.RealizedPnl = realizedPnl.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
