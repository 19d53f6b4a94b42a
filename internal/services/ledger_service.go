package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store"
	"github.com/shopspring/decimal"
)

// Posting describes one double-entry movement.
type Posting struct {
	TransactionID string
	UserID        string
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Category      string
	Timestamp     time.Time
}

// DoubleLedgerService writes balanced, hash-chained postings inside a unit of work.
type DoubleLedgerService struct {
	newID func() string
}

func NewDoubleLedgerService() *DoubleLedgerService {
	return &DoubleLedgerService{newID: uuid.NewString}
}

// PostTransfer debits p.FromAccountID with -amount and credits p.ToAccountID with
// +amount. Non-system senders must hold at least amount.
func (s *DoubleLedgerService) PostTransfer(ctx context.Context, tx store.Tx, p Posting) (*models.LedgerEntry, *models.LedgerEntry, error) {
	if p.FromAccountID == p.ToAccountID {
		return nil, nil, &models.ValidationError{Field: "to", Message: "must differ from the sending account"}
	}
	if !p.Amount.IsPositive() {
		return nil, nil, &models.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	// Lock accounts in consistent order to prevent deadlocks
	firstLock, secondLock := p.FromAccountID, p.ToAccountID
	if p.FromAccountID > p.ToAccountID {
		firstLock, secondLock = p.ToAccountID, p.FromAccountID
	}

	fromAccount, err := tx.LockAccount(ctx, firstLock)
	if err != nil {
		return nil, nil, err
	}
	toAccount, err := tx.LockAccount(ctx, secondLock)
	if err != nil {
		return nil, nil, err
	}
	if firstLock != p.FromAccountID {
		fromAccount, toAccount = toAccount, fromAccount
	}

	if fromAccount.Type != models.AccountSystem {
		balance, err := tx.AccountBalance(ctx, fromAccount.ID)
		if err != nil {
			return nil, nil, err
		}
		if balance.LessThan(p.Amount) {
			return nil, nil, &models.InsufficientFundsError{AccountID: fromAccount.ID, Available: balance, Required: p.Amount}
		}
	}

	tip, err := tx.ChainTip(ctx)
	if err != nil {
		return nil, nil, err
	}

	debit := &models.LedgerEntry{
		ID:            s.newID(),
		AccountID:     fromAccount.ID,
		UserID:        ownerOr(fromAccount, p.UserID),
		Type:          models.EntryDebit,
		Amount:        p.Amount.Neg(),
		Category:      p.Category,
		Timestamp:     p.Timestamp,
		PrevHash:      tip,
		TransactionID: p.TransactionID,
	}
	debit.Hash = audit.HashEntry(*debit, "")

	credit := &models.LedgerEntry{
		ID:            s.newID(),
		AccountID:     toAccount.ID,
		UserID:        ownerOr(toAccount, p.UserID),
		Type:          models.EntryCredit,
		Amount:        p.Amount,
		Category:      p.Category,
		Timestamp:     p.Timestamp,
		PrevHash:      debit.Hash,
		TransactionID: p.TransactionID,
	}
	credit.Hash = audit.HashEntry(*credit, "")

	if err := tx.InsertLedgerEntry(ctx, debit); err != nil {
		return nil, nil, fmt.Errorf("append debit entry: %w", err)
	}
	if err := tx.InsertLedgerEntry(ctx, credit); err != nil {
		return nil, nil, fmt.Errorf("append credit entry: %w", err)
	}
	return debit, credit, nil
}

// PostReversal appends one mirrored entry per original entry under
// reversalTxID. Each mirror flips the entry type, negates the amount, points
// back at the original hash and mixes a fresh token into its own hash.
func (s *DoubleLedgerService) PostReversal(ctx context.Context, tx store.Tx, reversalTxID string, originals []models.LedgerEntry, at time.Time) ([]models.LedgerEntry, error) {
	tip, err := tx.ChainTip(ctx)
	if err != nil {
		return nil, err
	}

	reversed := make([]models.LedgerEntry, 0, len(originals))
	for _, orig := range originals {
		entry := models.LedgerEntry{
			ID:            s.newID(),
			AccountID:     orig.AccountID,
			UserID:        orig.UserID,
			Type:          orig.Type.Flip(),
			Amount:        orig.Amount.Neg(),
			Category:      orig.Category,
			Timestamp:     at,
			PrevHash:      tip,
			TransactionID: reversalTxID,
			IsReversal:    true,
			OriginalHash:  orig.Hash,
		}
		entry.Hash = audit.HashEntry(entry, s.newID())

		if err := tx.InsertLedgerEntry(ctx, &entry); err != nil {
			return nil, fmt.Errorf("append reversal of entry %s: %w", orig.ID, err)
		}
		reversed = append(reversed, entry)
		tip = entry.Hash
	}
	return reversed, nil
}

func ownerOr(account *models.Account, fallback string) string {
	if account.UserID != "" {
		return account.UserID
	}
	return fallback
}
