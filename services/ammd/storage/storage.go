package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Storage wraps the ammd persistence layer.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("ammd storage path must be configured")

// FileDSN converts a filesystem path into a sqlite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return abs, nil
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StrategyRecord is the persisted form of a registered strategy instance.
type StrategyRecord struct {
	ID            string
	Maker         string
	TokenIn       string
	TokenOut      string
	Curve         string
	FeeBps        uint32
	PriceLow      string
	PriceHigh     string
	Amplification uint64
	Nonce         uint64
	BalanceIn     string
	BalanceOut    string
	CreatedAt     int64
}

// SaveStrategy upserts the strategy row, including its committed balances.
func (s *Storage) SaveStrategy(ctx context.Context, rec StrategyRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("strategy id required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO strategies(id, maker, token_in, token_out, curve, fee_bps, price_low, price_high, amplification, nonce, balance_in, balance_out, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            balance_in = excluded.balance_in,
            balance_out = excluded.balance_out,
            updated_at = excluded.updated_at
    `, rec.ID, rec.Maker, rec.TokenIn, rec.TokenOut, rec.Curve, rec.FeeBps,
		rec.PriceLow, rec.PriceHigh, rec.Amplification, rec.Nonce,
		rec.BalanceIn, rec.BalanceOut, rec.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save strategy: %w", err)
	}
	return nil
}

// UpdateBalances persists the committed reserves after a settled swap.
func (s *Storage) UpdateBalances(ctx context.Context, strategyID, balanceIn, balanceOut string) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	result, err := s.db.ExecContext(ctx, `
        UPDATE strategies SET balance_in = ?, balance_out = ?, updated_at = ? WHERE id = ?
    `, balanceIn, balanceOut, time.Now().UTC(), strategyID)
	if err != nil {
		return fmt.Errorf("update balances: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("strategy %s not persisted", strategyID)
	}
	return nil
}

// LoadStrategies returns every persisted strategy in creation order.
func (s *Storage) LoadStrategies(ctx context.Context) ([]StrategyRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, maker, token_in, token_out, curve, fee_bps, price_low, price_high, amplification, nonce, balance_in, balance_out, created_at
        FROM strategies
        ORDER BY created_at ASC, id ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()
	records := make([]StrategyRecord, 0)
	for rows.Next() {
		var rec StrategyRecord
		if err := rows.Scan(&rec.ID, &rec.Maker, &rec.TokenIn, &rec.TokenOut, &rec.Curve, &rec.FeeBps,
			&rec.PriceLow, &rec.PriceHigh, &rec.Amplification, &rec.Nonce, &rec.BalanceIn, &rec.BalanceOut, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	return records, nil
}

// SwapRecord is one committed swap in the settlement ledger.
type SwapRecord struct {
	SwapID      string
	StrategyID  string
	Taker       string
	Direction   string
	AmountIn    string
	AmountOut   string
	PriceAfter  string
	CommittedAt int64
}

// RecordSwap appends a committed swap to the ledger.
func (s *Storage) RecordSwap(ctx context.Context, rec SwapRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if strings.TrimSpace(rec.SwapID) == "" {
		return fmt.Errorf("swap id required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO swaps(swap_id, strategy_id, taker, direction, amount_in, amount_out, price_after, committed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rec.SwapID, rec.StrategyID, rec.Taker, rec.Direction,
		rec.AmountIn, rec.AmountOut, rec.PriceAfter, rec.CommittedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// ListSwaps returns the most recent committed swaps for a strategy, newest first.
func (s *Storage) ListSwaps(ctx context.Context, strategyID string, limit int) ([]SwapRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT swap_id, strategy_id, taker, direction, amount_in, amount_out, price_after, committed_at
        FROM swaps
        WHERE strategy_id = ?
        ORDER BY id DESC
        LIMIT ?
    `, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("query swaps: %w", err)
	}
	defer rows.Close()
	records := make([]SwapRecord, 0, limit)
	for rows.Next() {
		var rec SwapRecord
		if err := rows.Scan(&rec.SwapID, &rec.StrategyID, &rec.Taker, &rec.Direction,
			&rec.AmountIn, &rec.AmountOut, &rec.PriceAfter, &rec.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swaps: %w", err)
	}
	return records, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
    id TEXT PRIMARY KEY,
    maker TEXT NOT NULL,
    token_in TEXT NOT NULL,
    token_out TEXT NOT NULL,
    curve TEXT NOT NULL,
    fee_bps INTEGER NOT NULL,
    price_low TEXT NOT NULL,
    price_high TEXT NOT NULL,
    amplification INTEGER NOT NULL,
    nonce INTEGER NOT NULL,
    balance_in TEXT NOT NULL,
    balance_out TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS swaps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    swap_id TEXT NOT NULL UNIQUE,
    strategy_id TEXT NOT NULL,
    taker TEXT NOT NULL,
    direction TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    amount_out TEXT NOT NULL,
    price_after TEXT NOT NULL,
    committed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_swaps_strategy ON swaps(strategy_id, id);
`
