package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors, matched with errors.Is.
var (
	// ErrValidation is returned for malformed submissions. Nothing is written.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateSubmission is returned when an idempotency key has already been used.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrBudgetExceeded is returned when a settlement would breach the department's monthly cap.
	ErrBudgetExceeded = errors.New("department budget exceeded")

	// ErrInsufficientFunds is returned when the sender's derived balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLockTimeout is returned when an account or department lock could not be taken in time.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrNotFound is returned when a transaction, account or department does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity is returned on a duplicate ledger hash or a broken chain.
	ErrIntegrity = errors.New("ledger integrity violation")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DuplicateSubmissionError carries the transaction already holding the key, when known.
type DuplicateSubmissionError struct {
	IdempotencyKey        string
	ExistingTransactionID string
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("duplicate idempotency key %q", e.IdempotencyKey)
}

func (e *DuplicateSubmissionError) Unwrap() error {
	return ErrDuplicateSubmission
}

// BudgetExceededError is recorded verbatim in the transaction's reasons.
type BudgetExceededError struct {
	DepartmentID string
	Limit        decimal.Decimal
	CurrentSpend decimal.Decimal
	Requested    decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("Department budget exceeded. Limit: %s, Current: %s, Requested: %s",
		e.Limit.StringFixed(2), e.CurrentSpend.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// InsufficientFundsError is recorded verbatim in the transaction's reasons.
type InsufficientFundsError struct {
	AccountID string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient funds. Available: %s, Required: %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsRetryable returns true if the error is transient and the job should go back to the queue.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateSubmission)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
