package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the settlement lifecycle of a transaction.
// Transitions only move forward: PENDING -> PROCESSING -> SUCCESS | FAILED.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusSuccess    TransactionStatus = "SUCCESS"
	StatusFailed     TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TransactionType is the kind of money movement requested.
type TransactionType string

const (
	TypeExpense  TransactionType = "expense"
	TypeIncome   TransactionType = "income"
	TypeTransfer TransactionType = "transfer"
	TypeReversal TransactionType = "reversal"
)

// Transaction is the settlement unit wrapping a debit/credit pair.
type Transaction struct {
	ID             string            `json:"id" db:"id"`
	UserID         string            `json:"userId" db:"user_id"`
	Amount         decimal.Decimal   `json:"amount" db:"amount"`
	Category       string            `json:"category" db:"category"`
	Type           TransactionType   `json:"type" db:"type"`
	Description    string            `json:"description,omitempty" db:"description"`
	FromAccountID  string            `json:"fromAccountId" db:"from_account_id"`
	ToAccountID    string            `json:"toAccountId" db:"to_account_id"`
	Timestamp      time.Time         `json:"timestamp" db:"occurred_at"`
	Status         TransactionStatus `json:"status" db:"status"`
	IdempotencyKey *string           `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	ParentID       *string           `json:"parentId,omitempty" db:"parent_id"`
	Reasons        string            `json:"reasons,omitempty" db:"reasons"`
	DepartmentID   *string           `json:"departmentId,omitempty" db:"department_id"`
	IsFlagged      bool              `json:"isFlagged" db:"is_flagged"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" db:"updated_at"`
}

// TransactionDetail is a transaction together with its postings.
type TransactionDetail struct {
	*Transaction  `json:"transaction"`
	LedgerEntries []LedgerEntry `json:"ledgerEntries"`
}

// Event topics emitted after a settlement outcome is committed.
const (
	EventTransactionCreated  = "transaction.created"
	EventTransactionFailed   = "transaction.failed"
	EventTransactionReversed = "transaction.reversed"
)

// TransactionEvent is the payload handed to downstream consumers.
type TransactionEvent struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transactionId"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Reason        string          `json:"reason,omitempty"`
	ParentID      string          `json:"parentId,omitempty"`
}
