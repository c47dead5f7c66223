// Package sqldb opens the relational database shared by the account store
// and the audit log.
package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/newthinker/skinquant/internal/core"
)

// Config holds database connection configuration.
type Config struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// DefaultQueryTimeout bounds each statement when none is configured.
const DefaultQueryTimeout = 5 * time.Second

// Open connects, pings and applies the schema.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres", "sqlite3":
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unsupported database driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "database dsn is required for %s", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Driver == "sqlite3" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Schema is portable between postgres and sqlite. JSON documents are
// stored as text.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id              TEXT PRIMARY KEY,
		version              BIGINT NOT NULL,
		cash                 DOUBLE PRECISION NOT NULL,
		total_value          DOUBLE PRECISION NOT NULL,
		max_items_per_symbol INTEGER NOT NULL,
		positions            TEXT NOT NULL,
		inventory            TEXT NOT NULL,
		trade_history        TEXT NOT NULL,
		updated_at           TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trade_records (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		action      TEXT NOT NULL,
		quantity    INTEGER NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		total       DOUBLE PRECISION NOT NULL,
		cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
		pnl_amount  DOUBLE PRECISION NOT NULL DEFAULT 0,
		pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		traded_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_records_user ON trade_records (user_id, traded_at)`,
	`CREATE TABLE IF NOT EXISTS recharge_records (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		amount       DOUBLE PRECISION NOT NULL,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		expires_at   TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		user_id    TEXT PRIMARY KEY,
		level      TEXT NOT NULL,
		active     BOOLEAN NOT NULL,
		started_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,
}

// Migrate applies Schema idempotently.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Timeout returns the configured query timeout or the default.
func (c Config) Timeout() time.Duration {
	if c.QueryTimeout > 0 {
		return c.QueryTimeout
	}
	return DefaultQueryTimeout
}
