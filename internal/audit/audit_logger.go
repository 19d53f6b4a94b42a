package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp     time.Time       `json:"timestamp"`
	EventType     string          `json:"event_type"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Details       any             `json:"details"`
}

// Logger writes settlement audit events as single JSON lines.
type Logger struct {
	logf func(format string, v ...any)
}

func NewLogger() *Logger {
	return &Logger{logf: log.Printf}
}

func (a *Logger) LogSettled(transactionID, fromAccount, toAccount string, amount decimal.Decimal, debitHash, creditHash string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "SETTLED",
		TransactionID: transactionID,
		AccountID:     fromAccount,
		Amount:        amount,
		Status:        "SUCCESS",
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
			"debit_hash":   debitHash,
			"credit_hash":  creditHash,
		},
	})
}

func (a *Logger) LogRejected(transactionID, accountID string, amount decimal.Decimal, reason string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "REJECTED",
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        "FAILED",
		Details:       map[string]string{"reason": reason},
	})
}

func (a *Logger) LogReversed(reversalID, originalID string, amount decimal.Decimal, reason string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "REVERSED",
		TransactionID: reversalID,
		Amount:        amount,
		Status:        "SUCCESS",
		Details: map[string]string{
			"original_transaction_id": originalID,
			"reason":                  reason,
		},
	})
}

func (a *Logger) LogDeadLetter(transactionID string, attempts int, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "DEAD_LETTER",
		TransactionID: transactionID,
		Status:        "FAILED",
		Details:       map[string]any{"attempts": attempts, "error": err.Error()},
	})
}

func (a *Logger) LogError(transactionID, accountID string, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	a.logf("AUDIT: %s", string(data))
}
