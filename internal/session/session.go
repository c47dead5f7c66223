// Package session serialises each user's ledger operations: load the
// portfolio, apply one mutation, persist it with an optimistic version and
// append to the audit log.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/broker"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/pricing"
	"github.com/newthinker/skinquant/internal/storage/account"
	"github.com/newthinker/skinquant/internal/storage/audit"
)

// Quoter supplies the current price when an order leaves it unset.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (pricing.Quote, error)
}

// Observer receives trade outcomes, typically for metrics.
type Observer interface {
	ObserveTrade(action, status string)
	ObserveRejection(kind string)
	ObservePersistenceFailure()
}

// Config holds account defaults and membership terms.
type Config struct {
	InitialCash        float64
	MaxItemsPerSymbol  int
	PremiumBonus       float64
	PremiumDays        int
	RechargeExpiryDays int
}

// DefaultConfig mirrors the defaults of a new account.
func DefaultConfig() Config {
	return Config{
		InitialCash:        broker.DefaultCash,
		MaxItemsPerSymbol:  broker.DefaultMaxItemsPerSymbol,
		PremiumBonus:       900000,
		PremiumDays:        30,
		RechargeExpiryDays: 30,
	}
}

// Manager runs ledger operations for many users.
type Manager struct {
	store    account.Store
	audit    audit.Log
	ledger   *broker.Ledger
	quotes   Quoter
	cfg      Config
	locks    *keyedMutex
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudit enables the trade and recharge log.
func WithAudit(l audit.Log) Option { return func(m *Manager) { m.audit = l } }

// WithQuoter sets the price source for market orders.
func WithQuoter(q Quoter) Option { return func(m *Manager) { m.quotes = q } }

// WithObserver reports trade outcomes.
func WithObserver(o Observer) Option { return func(m *Manager) { m.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock overrides the clock used for recharges and memberships.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager.
func NewManager(store account.Store, ledger *broker.Ledger, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot is a user's portfolio with its valuation.
type Snapshot struct {
	UserID    string            `json:"user_id"`
	Version   int64             `json:"version"`
	Portfolio *broker.Portfolio `json:"portfolio"`
	Valuation broker.Valuation  `json:"valuation"`
}

// Portfolio loads the user's portfolio, creating the default one in
// memory when none is stored, and values it at current prices.
func (m *Manager) Portfolio(ctx context.Context, userID string) (*Snapshot, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	rec, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.warmPrices(ctx, rec.Portfolio)

	return &Snapshot{
		UserID:    userID,
		Version:   rec.Version,
		Portfolio: rec.Portfolio,
		Valuation: m.ledger.Value(rec.Portfolio),
	}, nil
}

// Buy purchases qty units. A zero price uses the current market price.
func (m *Manager) Buy(ctx context.Context, userID, symbol string, qty int, price float64) (broker.Outcome, error) {
	return m.trade(ctx, userID, core.ActionBuy, symbol, qty, price)
}

// Sell sells qty unlocked units. A zero price uses the current market price.
func (m *Manager) Sell(ctx context.Context, userID, symbol string, qty int, price float64) (broker.Outcome, error) {
	return m.trade(ctx, userID, core.ActionSell, symbol, qty, price)
}

// trade returns a rejected Outcome with a nil error for ledger rejections.
// When the portfolio could not be saved the accepted Outcome is returned
// with Durable false together with a PERSISTENCE_FAILED error.
func (m *Manager) trade(ctx context.Context, userID string, action core.Action, symbol string, qty int, price float64) (broker.Outcome, error) {
	if err := validUser(userID); err != nil {
		return broker.Outcome{}, err
	}
	fallback := false
	if price == 0 && m.quotes != nil {
		q, err := m.quotes.Quote(ctx, symbol)
		if err != nil {
			return broker.Outcome{}, err
		}
		price, fallback = q.Price, q.Default
		if fallback {
			m.logger.Warn("no market price, using default",
				zap.String("user", userID),
				zap.String("symbol", symbol),
				zap.Float64("price", price),
			)
		}
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	var outcome broker.Outcome
	_, err := m.mutate(ctx, userID, func(p *broker.Portfolio) bool {
		if action == core.ActionBuy {
			outcome = m.ledger.Buy(p, symbol, qty, price)
		} else {
			outcome = m.ledger.Sell(p, symbol, qty, price)
		}
		return outcome.Accepted
	})
	outcome.DefaultPrice = fallback

	switch {
	case err != nil && !outcome.Accepted:
		return outcome, err
	case !outcome.Accepted:
		m.logger.Info("trade rejected",
			zap.String("user", userID),
			zap.String("action", string(action)),
			zap.String("symbol", symbol),
			zap.Int("quantity", qty),
			zap.String("code", string(outcome.Rejection.Code)),
			zap.String("reason", outcome.Rejection.Reason),
		)
		m.observeTrade(action, "rejected")
		if m.observer != nil {
			m.observer.ObserveRejection(string(outcome.Rejection.Code))
		}
		return outcome, nil
	case err != nil:
		m.observeTrade(action, "not_durable")
		return outcome, err
	}

	outcome.Durable = true
	m.observeTrade(action, "accepted")
	m.record(ctx, userID, *outcome.Trade)
	return outcome, nil
}

// mutate loads, applies fn and saves when fn reports a change. A version
// conflict is retried once against a fresh load.
func (m *Manager) mutate(ctx context.Context, userID string, fn func(p *broker.Portfolio) bool) (*account.Record, error) {
	for attempt := 0; ; attempt++ {
		rec, err := m.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !fn(rec.Portfolio) {
			return rec, nil
		}

		version, err := m.store.Save(ctx, userID, rec.Portfolio, rec.Version)
		if err == nil {
			rec.Version = version
			return rec, nil
		}
		if errors.Is(err, core.ErrVersionConflict) && attempt == 0 {
			m.logger.Warn("account changed concurrently, retrying", zap.String("user", userID))
			continue
		}

		m.logger.Error("failed to persist account", zap.String("user", userID), zap.Error(err))
		if m.observer != nil {
			m.observer.ObservePersistenceFailure()
		}
		return rec, core.WrapError(core.ErrPersistenceFailed, err)
	}
}

// load returns the stored record or a fresh default portfolio at version 0.
func (m *Manager) load(ctx context.Context, userID string) (*account.Record, error) {
	rec, err := m.store.Load(ctx, userID)
	if errors.Is(err, core.ErrNoData) {
		p := broker.NewPortfolio(m.cfg.InitialCash, m.cfg.MaxItemsPerSymbol)
		return &account.Record{UserID: userID, Portfolio: p}, nil
	}
	return rec, err
}

func (m *Manager) warmPrices(ctx context.Context, p *broker.Portfolio) {
	if m.quotes == nil {
		return
	}
	for symbol := range p.Positions {
		if _, err := m.quotes.Quote(ctx, symbol); err != nil {
			m.logger.Debug("price unavailable for valuation", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (m *Manager) record(ctx context.Context, userID string, t broker.TradeRecord) {
	if m.audit == nil {
		return
	}
	if err := m.audit.RecordTrade(ctx, userID, t); err != nil {
		m.logger.Error("failed to append trade record", zap.String("user", userID), zap.String("trade", t.ID), zap.Error(err))
	}
}

func (m *Manager) observeTrade(action core.Action, status string) {
	if m.observer != nil {
		m.observer.ObserveTrade(string(action), status)
	}
}

// Trades returns the user's most recent trades, newest first.
func (m *Manager) Trades(ctx context.Context, userID string, limit int) ([]broker.TradeRecord, error) {
	if m.audit != nil {
		return m.audit.Trades(ctx, userID, limit)
	}
	rec, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	h := rec.Portfolio.TradeHistory
	out := make([]broker.TradeRecord, 0, len(h))
	for i := len(h) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, h[i])
	}
	return out, nil
}

// Stats summarises the user's trades from the audit log, or from the
// portfolio history when no log is configured.
func (m *Manager) Stats(ctx context.Context, userID string) (audit.Stats, error) {
	if err := validUser(userID); err != nil {
		return audit.Stats{}, err
	}
	if m.audit != nil {
		return m.audit.Stats(ctx, userID)
	}
	rec, err := m.load(ctx, userID)
	if err != nil {
		return audit.Stats{}, err
	}
	return audit.ComputeStats(rec.Portfolio.TradeHistory), nil
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.Errorf(core.ErrInvalidOrder, "user id is required")
	}
	return nil
}

func (m *Manager) requireAudit() error {
	if m.audit == nil {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("recharges need an audit log"))
	}
	return nil
}
