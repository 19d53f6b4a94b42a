package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/store"
	"github.com/shopspring/decimal"
)

const (
	reasonQueueUnavailable = "Settlement queue unavailable"

	// amountScale matches the NUMERIC(20, 2) columns.
	amountScale = 2

	handoffTimeout = 5 * time.Second
)

var maxAmount = decimal.New(1, 18)

// ErrQueueUnavailable is returned when a transaction was persisted but could not be enqueued.
var ErrQueueUnavailable = errors.New("settlement queue unavailable")

// JobQueue is the producer side of the settlement queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// SubmitRequest is the body of POST /transactions. "from"/"to" and
// "fromAccount"/"toAccount" are accepted interchangeably. The transaction
// time is always the server's.
type SubmitRequest struct {
	From        string                 `json:"from,omitempty" validate:"omitempty,max=64"`
	To          string                 `json:"to,omitempty" validate:"omitempty,max=64"`
	FromAccount string                 `json:"fromAccount,omitempty" validate:"omitempty,max=64"`
	ToAccount   string                 `json:"toAccount,omitempty" validate:"omitempty,max=64"`
	Amount      decimal.Decimal        `json:"amount" swaggertype:"string" example:"100.00"`
	Description string                 `json:"description,omitempty" validate:"max=500"`
	Category    string                 `json:"category,omitempty" validate:"max=64"`
	Type        models.TransactionType `json:"type" validate:"required,oneof=expense income transfer" example:"transfer"`
}

func (r SubmitRequest) source() string {
	if r.From != "" {
		return r.From
	}
	return r.FromAccount
}

func (r SubmitRequest) destination() string {
	if r.To != "" {
		return r.To
	}
	return r.ToAccount
}

// SubmitResponse is the 202 body.
type SubmitResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status" example:"ACCEPTED"`
}

// SubmissionService accepts transactions for asynchronous settlement.
type SubmissionService struct {
	store          store.Store
	queue          JobQueue
	incomeAccount  string
	expenseAccount string
	listLimit      int
	now            func() time.Time
}

func NewSubmissionService(st store.Store, q JobQueue, incomeAccount, expenseAccount string, listLimit int) *SubmissionService {
	if listLimit < 1 {
		listLimit = 50
	}
	return &SubmissionService{
		store:          st,
		queue:          q,
		incomeAccount:  incomeAccount,
		expenseAccount: expenseAccount,
		listLimit:      listLimit,
		now:            time.Now,
	}
}

// ResolveAccounts applies the implicit system counterparty for expenses and income.
func (s *SubmissionService) ResolveAccounts(txType models.TransactionType, from, to string) (string, string, error) {
	switch txType {
	case models.TypeExpense:
		if from == "" {
			return "", "", &models.ValidationError{Field: "from", Message: "required for expense"}
		}
		if s.expenseAccount == "" {
			return "", "", fmt.Errorf("system expense account not configured")
		}
		to = s.expenseAccount
	case models.TypeIncome:
		if to == "" {
			return "", "", &models.ValidationError{Field: "to", Message: "required for income"}
		}
		if s.incomeAccount == "" {
			return "", "", fmt.Errorf("system income account not configured")
		}
		from = s.incomeAccount
	case models.TypeTransfer:
		if from == "" || to == "" {
			return "", "", &models.ValidationError{Field: "from,to", Message: "both required for transfer"}
		}
	default:
		return "", "", &models.ValidationError{Field: "type", Message: "must be one of expense, income, transfer"}
	}

	if from == to {
		return "", "", &models.ValidationError{Field: "to", Message: "must differ from the sending account"}
	}
	return from, to, nil
}

// ValidateAmount rejects amounts the ledger columns cannot store exactly.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &models.ValidationError{Field: "amount", Message: "must be a positive number"}
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return &models.ValidationError{Field: "amount", Message: "at most 2 decimal places"}
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return &models.ValidationError{Field: "amount", Message: "too large"}
	}
	return nil
}

// Submit persists a PENDING transaction and enqueues it. It never settles synchronously.
func (s *SubmissionService) Submit(ctx context.Context, userID string, req SubmitRequest, idempotencyKey string) (*SubmitResponse, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	from, to, err := s.ResolveAccounts(req.Type, req.source(), req.destination())
	if err != nil {
		return nil, err
	}
	if req.Type != models.TypeIncome {
		if err := s.checkSender(ctx, userID, from); err != nil {
			return nil, err
		}
	}

	// Postgres keeps microseconds; hashes must survive the round trip.
	timestamp := s.now().UTC().Truncate(time.Microsecond)

	tx := &models.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        req.Amount,
		Category:      categoryFor(req),
		Type:          req.Type,
		Description:   strings.TrimSpace(req.Description),
		FromAccountID: from,
		ToAccountID:   to,
		Timestamp:     timestamp,
		Status:        models.StatusPending,
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		tx.IdempotencyKey = &key
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	// The row is committed; the handoff must finish even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffTimeout)
	defer cancel()

	job := queue.Job{
		ID:            tx.ID,
		TransactionID: tx.ID,
		UserID:        userID,
		FromAccount:   from,
		ToAccount:     to,
		Amount:        tx.Amount,
		Description:   tx.Description,
		Type:          tx.Type,
		Timestamp:     tx.Timestamp,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		log.Printf("[SUBMIT] Enqueue failed for %s: %v", tx.ID, err)
		if markErr := s.store.MarkFailed(ctx, tx.ID, reasonQueueUnavailable); markErr != nil {
			log.Printf("[SUBMIT] Failed to mark %s as failed: %v", tx.ID, markErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	log.Printf("[SUBMIT] Accepted %s %s %s (%s -> %s)", tx.ID, tx.Type, tx.Amount, from, to)
	return &SubmitResponse{TransactionID: tx.ID, Status: "ACCEPTED"}, nil
}

// checkSender only lets users spend from their own accounts.
func (s *SubmissionService) checkSender(ctx context.Context, userID, accountID string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Type == models.AccountSystem || account.UserID != userID {
		return fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	return nil
}

func categoryFor(req SubmitRequest) string {
	if req.Type == models.TypeTransfer {
		return "transfer"
	}
	if c := strings.TrimSpace(req.Category); c != "" {
		return strings.ToLower(c)
	}
	return "others"
}

// Get returns the transaction with its ledger entries. Other users' transactions are reported as not found.
func (s *SubmissionService) Get(ctx context.Context, userID, id string) (*models.TransactionDetail, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && tx.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	entries, err := s.store.LedgerEntriesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TransactionDetail{Transaction: tx, LedgerEntries: entries}, nil
}

// List returns the user's most recent transactions, newest first.
func (s *SubmissionService) List(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, s.listLimit)
}

// AccountBalance is the derived balance of an account.
type AccountBalance struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance" swaggertype:"string"`
	AsOf      time.Time       `json:"asOf"`
}

// Balance derives the account balance from its ledger entries. Only the
// owner may read a personal or business account.
func (s *SubmissionService) Balance(ctx context.Context, userID, accountID string) (*AccountBalance, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Type != models.AccountSystem && userID != "" && account.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	balance, err := s.store.AccountBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountBalance{AccountID: accountID, Balance: balance, AsOf: s.now().UTC()}, nil
}
