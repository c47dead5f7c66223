package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
)

// SQLLog stores the audit trail in the trade_records, recharge_records and
// memberships tables.
type SQLLog struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSQLLog wraps an open database whose schema is already applied.
func NewSQLLog(db *sqlx.DB, timeout time.Duration) *SQLLog {
	return &SQLLog{db: db, timeout: timeout}
}

type tradeRow struct {
	ID         string    `db:"id"`
	Symbol     string    `db:"symbol"`
	Action     string    `db:"action"`
	Quantity   int       `db:"quantity"`
	Price      float64   `db:"price"`
	Total      float64   `db:"total"`
	Cost       float64   `db:"cost"`
	PnLAmount  float64   `db:"pnl_amount"`
	PnLPercent float64   `db:"pnl_percent"`
	TradedAt   time.Time `db:"traded_at"`
}

func (r tradeRow) record() broker.TradeRecord {
	return broker.TradeRecord{
		ID:         r.ID,
		Time:       r.TradedAt,
		Symbol:     r.Symbol,
		Action:     core.Action(r.Action),
		Quantity:   r.Quantity,
		Price:      r.Price,
		Total:      r.Total,
		Cost:       r.Cost,
		PnLAmount:  r.PnLAmount,
		PnLPercent: r.PnLPercent,
	}
}

func (l *SQLLog) RecordTrade(ctx context.Context, userID string, t broker.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO trade_records (id, user_id, symbol, action, quantity, price, total, cost, pnl_amount, pnl_percent, traded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, userID, t.Symbol, string(t.Action), t.Quantity, t.Price, t.Total, t.Cost, t.PnLAmount, t.PnLPercent, t.Time)
	if err != nil {
		return fmt.Errorf("failed to insert trade record: %w", err)
	}
	return nil
}

func (l *SQLLog) Trades(ctx context.Context, userID string, limit int) ([]broker.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, action, quantity, price, total, cost, pnl_amount, pnl_percent, traded_at
		FROM trade_records WHERE user_id = ?
		ORDER BY traded_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []tradeRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query trade records: %w", err)
	}
	out := make([]broker.TradeRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (l *SQLLog) Stats(ctx context.Context, userID string) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var s Stats
	err := l.db.GetContext(ctx, &s, l.db.Rebind(`
		SELECT COUNT(*) AS total_trades,
		       COALESCE(SUM(CASE WHEN action = 'buy' THEN 1 ELSE 0 END), 0) AS buy_trades,
		       COALESCE(SUM(CASE WHEN action = 'sell' THEN 1 ELSE 0 END), 0) AS sell_trades,
		       COALESCE(SUM(CASE WHEN action = 'sell' AND pnl_amount > 0 THEN 1 ELSE 0 END), 0) AS profitable_trades,
		       COALESCE(SUM(CASE WHEN action = 'sell' THEN pnl_amount ELSE 0 END), 0) AS total_pnl
		FROM trade_records WHERE user_id = ?`), userID)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query trade stats: %w", err)
	}
	return s.withWinRate(), nil
}

func (l *SQLLog) CreateRecharge(ctx context.Context, r Recharge) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO recharge_records (id, user_id, amount, kind, status, created_at, expires_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.Amount, string(r.Kind), string(r.Status), r.CreatedAt, r.ExpiresAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recharge: %w", err)
	}
	return nil
}

const rechargeColumns = `id, user_id, amount, kind, status, created_at, expires_at, completed_at`

func (l *SQLLog) Recharge(ctx context.Context, userID, id string) (*Recharge, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var r Recharge
	err := l.db.GetContext(ctx, &r, l.db.Rebind(`
		SELECT `+rechargeColumns+` FROM recharge_records WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rechargeNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recharge: %w", err)
	}
	return &r, nil
}

func (l *SQLLog) MarkCompleted(ctx context.Context, userID, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, l.db.Rebind(`
		UPDATE recharge_records SET status = ?, completed_at = ?
		WHERE id = ? AND user_id = ? AND status = ?`),
		string(RechargeCompleted), at, id, userID, string(RechargePending))
	if err != nil {
		return fmt.Errorf("failed to complete recharge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete recharge: %w", err)
	}
	if n == 0 {
		if _, err := l.Recharge(ctx, userID, id); err != nil {
			return err
		}
		return alreadyProcessed(id)
	}
	return nil
}

func (l *SQLLog) Recharges(ctx context.Context, userID string) ([]Recharge, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out := []Recharge{}
	err := l.db.SelectContext(ctx, &out, l.db.Rebind(`
		SELECT `+rechargeColumns+` FROM recharge_records WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recharges: %w", err)
	}
	return out, nil
}

func (l *SQLLog) SetMembership(ctx context.Context, m Membership) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO memberships (user_id, level, active, started_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			level = excluded.level, active = excluded.active,
			started_at = excluded.started_at, expires_at = excluded.expires_at`),
		m.UserID, m.Level, m.Active, m.StartedAt, m.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (l *SQLLog) Membership(ctx context.Context, userID string, now time.Time) (*Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var m Membership
	err := l.db.GetContext(ctx, &m, l.db.Rebind(`
		SELECT user_id, level, active, started_at, expires_at FROM memberships WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return basicMembership(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	if m.settle(now) {
		if _, err := l.db.ExecContext(ctx, l.db.Rebind(`
			UPDATE memberships SET active = ? WHERE user_id = ?`), false, userID); err != nil {
			return nil, fmt.Errorf("failed to expire membership: %w", err)
		}
	}
	return &m, nil
}
