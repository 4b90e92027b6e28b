package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations are applied in order on startup. Statements are idempotent so
// repeated application is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL UNIQUE,
		balance      BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		held_balance BIGINT NOT NULL DEFAULT 0 CHECK (held_balance >= 0),
		total_earned BIGINT NOT NULL DEFAULT 0,
		total_spent  BIGINT NOT NULL DEFAULT 0,
		currency     TEXT NOT NULL DEFAULT 'USD',
		version      BIGINT NOT NULL DEFAULT 1,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS account_entries (
		id             TEXT PRIMARY KEY,
		account_id     TEXT NOT NULL REFERENCES accounts(id),
		entry_type     TEXT NOT NULL,
		amount         BIGINT NOT NULL,
		balance_after  BIGINT NOT NULL,
		held_after     BIGINT NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		project_id     TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_entries_account
		ON account_entries (account_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id             TEXT PRIMARY KEY,
		payer_id       TEXT NOT NULL,
		payee_id       TEXT NOT NULL,
		project_id     TEXT NOT NULL DEFAULT '',
		milestone_id   TEXT NOT NULL DEFAULT '',
		amount         BIGINT NOT NULL CHECK (amount > 0),
		currency       TEXT NOT NULL DEFAULT 'USD',
		platform_fee   BIGINT NOT NULL DEFAULT 0,
		processing_fee BIGINT NOT NULL DEFAULT 0,
		status         TEXT NOT NULL,
		retryable      BOOLEAN NOT NULL DEFAULT FALSE,
		events         JSONB NOT NULL DEFAULT '[]',
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_project
		ON transactions (project_id)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		assignee_id   TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		budget_total  BIGINT NOT NULL,
		agreed_budget BIGINT NOT NULL DEFAULT 0,
		currency      TEXT NOT NULL DEFAULT 'USD',
		start_date    TIMESTAMPTZ,
		end_date      TIMESTAMPTZ,
		milestones    JSONB NOT NULL DEFAULT '[]',
		bids          JSONB NOT NULL DEFAULT '[]',
		completion    JSONB NOT NULL DEFAULT '{}',
		health_score  INT NOT NULL DEFAULT 100,
		version       BIGINT NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner
		ON projects (owner_id, created_at DESC)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
