package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the side of a posting
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// Flip returns the opposite side, used when mirroring entries for a reversal.
func (e EntryType) Flip() EntryType {
	if e == EntryDebit {
		return EntryCredit
	}
	return EntryDebit
}

// LedgerEntry is one immutable signed posting against one account.
// Debits carry a negative amount, credits a positive one, so an account's
// balance is the plain sum of its entries.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"accountId" db:"account_id"`
	UserID        string          `json:"userId" db:"user_id"`
	Type          EntryType       `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Category      string          `json:"category" db:"category"`
	Timestamp     time.Time       `json:"timestamp" db:"occurred_at"`
	Hash          string          `json:"hash" db:"hash"`
	PrevHash      string          `json:"prevHash" db:"prev_hash"`
	TransactionID string          `json:"transactionId" db:"transaction_id"`
	IsReversal    bool            `json:"isReversal" db:"is_reversal"`
	OriginalHash  string          `json:"originalHash,omitempty" db:"original_hash"`
}

// AccountType distinguishes user-owned accounts from the tenant's system accounts.
type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountSystem   AccountType = "system"
	AccountBusiness AccountType = "business"
)

// Account is an addressable balance bucket. It deliberately has no balance
// column: the balance is always the sum of the account's ledger entries.
type Account struct {
	ID        string      `json:"id" db:"id"`
	UserID    string      `json:"userId" db:"user_id"`
	Name      string      `json:"name" db:"name"`
	Type      AccountType `json:"type" db:"type"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// DepartmentBudget is the monthly spending ceiling of a department.
type DepartmentBudget struct {
	DepartmentID   string          `json:"departmentId" db:"id"`
	Name           string          `json:"name" db:"name"`
	OrganizationID string          `json:"organizationId" db:"organization_id"`
	BudgetLimit    decimal.Decimal `json:"budgetLimit" db:"budget_limit"`
}
