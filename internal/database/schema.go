package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Schema creates the settlement tables. Balances are never stored: an
// account's balance is the sum of its ledger_entries. Constraint names are
// referenced by store/postgres when mapping unique violations.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL DEFAULT 'personal',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS departments (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL DEFAULT '',
		organization_id  TEXT NOT NULL DEFAULT '',
		budget_limit     NUMERIC(20, 2) NOT NULL CHECK (budget_limit >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS department_members (
		user_id        TEXT PRIMARY KEY,
		department_id  TEXT NOT NULL REFERENCES departments(id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		amount           NUMERIC(20, 2) NOT NULL,
		category         TEXT NOT NULL DEFAULT '',
		type             TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		from_account_id  TEXT NOT NULL,
		to_account_id    TEXT NOT NULL,
		occurred_at      TIMESTAMPTZ NOT NULL,
		status           TEXT NOT NULL,
		idempotency_key  TEXT,
		parent_id        TEXT REFERENCES transactions(id),
		reasons          TEXT NOT NULL DEFAULT '',
		department_id    TEXT REFERENCES departments(id),
		is_flagged       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE transactions DROP CONSTRAINT IF EXISTS transactions_idempotency_key_key`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_user_idempotency_key_key ON transactions(user_id, idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_department ON transactions(department_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_parent ON transactions(parent_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq             BIGSERIAL PRIMARY KEY,
		id              TEXT NOT NULL UNIQUE,
		account_id      TEXT NOT NULL REFERENCES accounts(id),
		user_id         TEXT NOT NULL,
		type            TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
		amount          NUMERIC(20, 2) NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		occurred_at     TIMESTAMPTZ NOT NULL,
		hash            TEXT NOT NULL,
		prev_hash       TEXT NOT NULL DEFAULT '',
		transaction_id  TEXT NOT NULL REFERENCES transactions(id),
		is_reversal     BOOLEAN NOT NULL DEFAULT FALSE,
		original_hash   TEXT NOT NULL DEFAULT '',
		CONSTRAINT ledger_entries_hash_key UNIQUE (hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id)`,
}

// SystemAccount is provisioned by Migrate so income and expense postings
// always have a counterparty.
type SystemAccount struct {
	ID   string
	Name string
}

// Migrate applies Schema and upserts the system accounts.
func Migrate(ctx context.Context, db *sql.DB, systemAccounts ...SystemAccount) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	for _, acc := range systemAccounts {
		_, err := db.ExecContext(ctx,
			`INSERT INTO accounts (id, user_id, name, type) VALUES ($1, 'system', $2, 'system')
			ON CONFLICT (id) DO NOTHING`, acc.ID, acc.Name)
		if err != nil {
			return fmt.Errorf("error provisioning system account %s: %w", acc.ID, err)
		}
	}
	log.Printf("Database schema applied (%d statements, %d system accounts)", len(Schema), len(systemAccounts))
	return nil
}
