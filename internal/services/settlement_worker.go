package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/store"
)

var errAlreadySettled = errors.New("transaction already settled")

// SettlementWorker turns a PENDING transaction into SUCCESS or FAILED.
type SettlementWorker struct {
	store            store.Store
	ledger           *DoubleLedgerService
	events           events.Publisher
	audit            *audit.Logger
	location         *time.Location
	strictBudgetLock bool
	now              func() time.Time
}

func NewSettlementWorker(st store.Store, ledger *DoubleLedgerService, publisher events.Publisher, auditLogger *audit.Logger, location *time.Location, strictBudgetLock bool) *SettlementWorker {
	if location == nil {
		location = time.UTC
	}
	return &SettlementWorker{
		store:            st,
		ledger:           ledger,
		events:           publisher,
		audit:            auditLogger,
		location:         location,
		strictBudgetLock: strictBudgetLock,
		now:              time.Now,
	}
}

// WithClock replaces the clock used to pick the budget month.
func (w *SettlementWorker) WithClock(now func() time.Time) *SettlementWorker {
	w.now = now
	return w
}

// Process settles one job. Business rejections are recorded on the
// transaction and reported as nil so the job is acknowledged; only lock
// timeouts and infrastructure failures are returned for the queue to retry.
func (w *SettlementWorker) Process(ctx context.Context, job queue.Job) error {
	tx, err := w.store.GetTransaction(ctx, job.TransactionID)
	if models.IsNotFound(err) {
		log.Printf("[WORKER] Transaction %s not found, dropping job", job.TransactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if tx.Status.IsTerminal() {
		log.Printf("[WORKER] Transaction %s already %s, skipping redelivery", tx.ID, tx.Status)
		return nil
	}

	budget, err := w.store.DepartmentBudgetForUser(ctx, tx.UserID)
	if err != nil {
		return err
	}
	var departmentID *string
	if budget != nil {
		id := budget.DepartmentID
		departmentID = &id
	}

	if err := w.store.MarkProcessing(ctx, tx.ID, departmentID); err != nil {
		return err
	}
	log.Printf("[WORKER] Processing transaction %s (%s %s: %s -> %s)", tx.ID, tx.Type, tx.Amount, tx.FromAccountID, tx.ToAccountID)

	var debit, credit *models.LedgerEntry
	err = w.store.WithTx(ctx, func(utx store.Tx) error {
		current, err := utx.LockTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return errAlreadySettled
		}

		if budget != nil {
			if err := w.checkBudget(ctx, utx, budget, current); err != nil {
				return err
			}
		}

		debit, credit, err = w.ledger.PostTransfer(ctx, utx, Posting{
			TransactionID: current.ID,
			UserID:        current.UserID,
			FromAccountID: current.FromAccountID,
			ToAccountID:   current.ToAccountID,
			Amount:        current.Amount,
			Category:      current.Category,
			Timestamp:     current.Timestamp,
		})
		if err != nil {
			return err
		}
		return utx.MarkSettled(ctx, current.ID)
	})

	switch {
	case err == nil:
		log.Printf("[WORKER] Transaction %s settled", tx.ID)
		w.audit.LogSettled(tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, debit.Hash, credit.Hash)
		w.publish(ctx, models.EventTransactionCreated, tx, "")
		return nil

	case errors.Is(err, errAlreadySettled):
		log.Printf("[WORKER] Transaction %s settled by another worker, skipping", tx.ID)
		return nil

	case models.IsRetryable(err):
		log.Printf("[WORKER] Transaction %s hit lock contention, returning to queue: %v", tx.ID, err)
		w.audit.LogError(tx.ID, tx.FromAccountID, err)
		return err
	}

	reason := err.Error()
	if markErr := w.store.MarkFailed(ctx, tx.ID, reason); markErr != nil {
		log.Printf("[WORKER] Failed to record failure of %s: %v", tx.ID, markErr)
		return markErr
	}

	if errors.Is(err, models.ErrIntegrity) {
		w.audit.LogError(tx.ID, tx.FromAccountID, err)
	} else {
		w.audit.LogRejected(tx.ID, tx.FromAccountID, tx.Amount, reason)
	}
	log.Printf("[WORKER] Transaction %s failed: %s", tx.ID, reason)
	w.publish(ctx, models.EventTransactionFailed, tx, reason)
	return nil
}

func (w *SettlementWorker) checkBudget(ctx context.Context, utx store.Tx, budget *models.DepartmentBudget, tx *models.Transaction) error {
	if w.strictBudgetLock {
		if err := utx.LockDepartment(ctx, budget.DepartmentID); err != nil {
			return err
		}
	}

	from, to := MonthWindow(w.now(), w.location)
	spend, err := utx.DepartmentSpend(ctx, budget.DepartmentID, from, to, tx.ID)
	if err != nil {
		return err
	}

	if spend.Add(tx.Amount).GreaterThan(budget.BudgetLimit) {
		return &models.BudgetExceededError{
			DepartmentID: budget.DepartmentID,
			Limit:        budget.BudgetLimit,
			CurrentSpend: spend,
			Requested:    tx.Amount,
		}
	}
	log.Printf("[WORKER] Budget check for department %s: %s/%s", budget.DepartmentID, spend.StringFixed(2), budget.BudgetLimit.StringFixed(2))
	return nil
}

// OnDeadLetter marks the transaction FAILED once the queue has given up on it.
func (w *SettlementWorker) OnDeadLetter(ctx context.Context, job queue.Job, cause error) {
	w.audit.LogDeadLetter(job.TransactionID, job.Attempts, cause)
	if err := w.store.MarkFailed(ctx, job.TransactionID, cause.Error()); err != nil {
		log.Printf("[WORKER] Failed to mark dead-lettered transaction %s: %v", job.TransactionID, err)
		return
	}
	tx, err := w.store.GetTransaction(ctx, job.TransactionID)
	if err != nil {
		return
	}
	if tx.Status == models.StatusFailed {
		w.publish(ctx, models.EventTransactionFailed, tx, cause.Error())
	}
}

func (w *SettlementWorker) publish(ctx context.Context, topic string, tx *models.Transaction, reason string) {
	if w.events == nil {
		return
	}
	w.events.Publish(ctx, models.TransactionEvent{
		Type:          topic,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Description:   tx.Description,
		Timestamp:     tx.Timestamp,
		Reason:        reason,
	})
}

// MonthWindow returns [start of month, start of next month) for t in loc.
func MonthWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
