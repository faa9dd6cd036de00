package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the Postgres migrations for local SQLite runs and tests.
// Enum columns become TEXT and partial indexes are dropped.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL UNIQUE,
		wallet_address TEXT NOT NULL DEFAULT '',
		referral_code TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		total_balance NUMERIC NOT NULL DEFAULT 0,
		available_balance NUMERIC NOT NULL DEFAULT 0,
		total_invested NUMERIC NOT NULL DEFAULT 0,
		roi_balance NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		crypto_amount NUMERIC NOT NULL,
		token TEXT NOT NULL,
		exchange_rate NUMERIC NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		annotation TEXT,
		claimed_by TEXT,
		claimed_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_kind_status
		ON ledger_entries (account_id, kind, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS referral_edges (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL REFERENCES accounts(id),
		referee_id TEXT NOT NULL REFERENCES accounts(id),
		level INTEGER NOT NULL CHECK (level IN (1, 2)),
		total_earnings NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE (referee_id, level),
		CHECK (referrer_id <> referee_id)
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_window (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		opens_at DATETIME,
		closes_at DATETIME,
		updated_by TEXT,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// ApplySQLiteSchema creates the ledger tables on a SQLite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
