package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

// SQLStore keeps accounts in the accounts table. Collections are stored as
// JSON documents and validated once when loaded.
type SQLStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// NewSQLStore wraps an open database whose schema is already applied.
func NewSQLStore(db *sqlx.DB, timeout time.Duration) *SQLStore {
	return &SQLStore{
		db:      db,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type accountRow struct {
	Version           int64     `db:"version"`
	Cash              float64   `db:"cash"`
	TotalValue        float64   `db:"total_value"`
	MaxItemsPerSymbol int       `db:"max_items_per_symbol"`
	Positions         string    `db:"positions"`
	Inventory         string    `db:"inventory"`
	TradeHistory      string    `db:"trade_history"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (s *SQLStore) Load(ctx context.Context, userID string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row accountRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT version, cash, total_value, max_items_per_symbol, positions, inventory, trade_history, updated_at
		FROM accounts WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no account for %q", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	p := &broker.Portfolio{
		Cash:              row.Cash,
		TotalValue:        row.TotalValue,
		MaxItemsPerSymbol: row.MaxItemsPerSymbol,
	}
	if err := decodeColumns(row, p); err != nil {
		return nil, decodeFailed(userID, err)
	}
	if err := p.Normalize(); err != nil {
		return nil, decodeFailed(userID, err)
	}

	return &Record{UserID: userID, Version: row.Version, Portfolio: p, UpdatedAt: row.UpdatedAt}, nil
}

func decodeColumns(row accountRow, p *broker.Portfolio) error {
	if err := json.Unmarshal([]byte(row.Positions), &p.Positions); err != nil {
		return fmt.Errorf("decoding positions: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Inventory), &p.Inventory); err != nil {
		return fmt.Errorf("decoding inventory: %w", err)
	}
	if err := json.Unmarshal([]byte(row.TradeHistory), &p.TradeHistory); err != nil {
		return fmt.Errorf("decoding trade history: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, userID string, p *broker.Portfolio, expected int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return 0, fmt.Errorf("encoding positions: %w", err)
	}
	inventory, err := json.Marshal(p.Inventory)
	if err != nil {
		return 0, fmt.Errorf("encoding inventory: %w", err)
	}
	history, err := json.Marshal(p.TradeHistory)
	if err != nil {
		return 0, fmt.Errorf("encoding trade history: %w", err)
	}

	next := expected + 1
	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO accounts (user_id, version, cash, total_value, max_items_per_symbol, positions, inventory, trade_history, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO NOTHING`),
			userID, next, p.Cash, p.TotalValue, p.MaxItemsPerSymbol,
			string(positions), string(inventory), string(history), s.now())
	} else {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE accounts
			SET version = ?, cash = ?, total_value = ?, max_items_per_symbol = ?,
				positions = ?, inventory = ?, trade_history = ?, updated_at = ?
			WHERE user_id = ? AND version = ?`),
			next, p.Cash, p.TotalValue, p.MaxItemsPerSymbol,
			string(positions), string(inventory), string(history), s.now(),
			userID, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to save account: %w", err)
	}
	if n == 0 {
		return 0, core.WrapError(core.ErrVersionConflict,
			fmt.Errorf("account %q changed since version %d", userID, expected))
	}
	return next, nil
}
