// Package store defines the persistence boundary of the settlement core.
//
// The ledger is append-only: there is no method that updates or deletes a
// LedgerEntry. Transactions are written once as PENDING (or, for reversals,
// SUCCESS) and afterwards only move forward through their status.
//
// Two implementations exist: store/postgres for production and store/memory
// for tests and local runs.
package store

import (
	"context"
	"time"

	"github.com/ledgerx/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Store is the non-transactional surface used by the submission API, the
// status reads and the worker's bookkeeping outside the atomic unit.
type Store interface {
	// CreateTransaction inserts a new transaction. An idempotency key reused
	// by the same user yields an error wrapping models.ErrDuplicateSubmission.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)

	// MarkProcessing moves a PENDING (or redelivered PROCESSING) transaction
	// to PROCESSING and records its department. Terminal rows are untouched.
	MarkProcessing(ctx context.Context, id string, departmentID *string) error
	// MarkFailed moves a non-terminal transaction to FAILED with the reason.
	MarkFailed(ctx context.Context, id string, reason string) error
	// FlagTransaction annotates a transaction without touching its status.
	FlagTransaction(ctx context.Context, id string, reason string) error
	// HasReversal reports whether a child reversal already exists.
	HasReversal(ctx context.Context, id string) (bool, error)

	LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error)
	// LedgerEntries returns entries with from <= timestamp < to in chain order.
	LedgerEntries(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error)
	AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// DepartmentBudgetForUser returns nil, nil when the user has no department.
	DepartmentBudgetForUser(ctx context.Context, userID string) (*models.DepartmentBudget, error)

	// WithTx runs fn as one atomic unit. Any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the atomic unit of work the settlement worker and the reversal
// engine write through.
type Tx interface {
	// LockTransaction takes an exclusive lock on the transaction row and returns its current state.
	LockTransaction(ctx context.Context, id string) (*models.Transaction, error)
	// LockDepartment serializes budget checks for one department.
	LockDepartment(ctx context.Context, departmentID string) error
	// DepartmentSpend sums SUCCESS and PROCESSING amounts for the department in
	// [from, to), leaving out excludeID.
	DepartmentSpend(ctx context.Context, departmentID string, from, to time.Time, excludeID string) (decimal.Decimal, error)

	// LockAccount takes an exclusive lock on the account row. Missing accounts
	// yield models.ErrNotFound, lock waits past the timeout models.ErrLockTimeout.
	LockAccount(ctx context.Context, accountID string) (*models.Account, error)
	AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// ChainTip returns the hash of the most recently appended entry, or "".
	ChainTip(ctx context.Context) (string, error)
	// InsertLedgerEntry appends an entry. A duplicate hash yields models.ErrIntegrity.
	InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error

	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	HasReversal(ctx context.Context, id string) (bool, error)
	LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error)
	// MarkSettled moves the transaction to SUCCESS inside the unit that wrote its entries.
	MarkSettled(ctx context.Context, id string) error
}
