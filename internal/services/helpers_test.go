package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	incomeAccount  = "system-income"
	expenseAccount = "system-expense"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job queue.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) take() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs
}

type fixture struct {
	store     *memory.Store
	queue     *fakeQueue
	bus       *events.Bus
	ledger    *DoubleLedgerService
	worker    *SettlementWorker
	submit    *SubmissionService
	policy    *StandardReversalPolicy
	reversals *ReversalService
	audits    *AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.AddAccount(models.Account{ID: incomeAccount, UserID: "system", Type: models.AccountSystem})
	st.AddAccount(models.Account{ID: expenseAccount, UserID: "system", Type: models.AccountSystem})
	st.AddAccount(models.Account{ID: "A", UserID: "user-1", Type: models.AccountPersonal})
	st.AddAccount(models.Account{ID: "B", UserID: "user-2", Type: models.AccountPersonal})

	q := &fakeQueue{}
	bus := events.NewBus()
	auditLogger := audit.NewLogger()
	ledger := NewDoubleLedgerService()

	worker := NewSettlementWorker(st, ledger, bus, auditLogger, time.UTC, true).
		WithClock(func() time.Time { return fixedNow })

	submit := NewSubmissionService(st, q, incomeAccount, expenseAccount, 50)
	submit.now = func() time.Time { return fixedNow }

	policy := NewStandardReversalPolicy(st, 30*24*time.Hour)
	policy.now = func() time.Time { return fixedNow.Add(time.Hour) }

	engine := NewReversalEngine(st, ledger)
	engine.now = func() time.Time { return fixedNow.Add(time.Hour) }

	return &fixture{
		store:     st,
		queue:     q,
		bus:       bus,
		ledger:    ledger,
		worker:    worker,
		submit:    submit,
		policy:    policy,
		reversals: NewReversalService(st, policy, engine, bus, auditLogger),
		audits:    NewAuditService(st),
	}
}

// fund seeds an opening credit for the account.
func (f *fixture) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	entry := models.LedgerEntry{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		UserID:        "seed",
		Type:          models.EntryCredit,
		Amount:        decimal.NewFromInt(amount),
		Category:      "opening",
		Timestamp:     fixedNow.Add(-24 * time.Hour),
		TransactionID: "opening-" + accountID,
	}
	entry.Hash = audit.HashEntry(entry, "")
	f.store.SeedEntry(entry)
}

// drain processes every queued job and waits for event handlers.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for _, job := range f.queue.take() {
		require.NoError(t, f.worker.Process(context.Background(), job))
	}
	f.bus.Wait()
}

func (f *fixture) submitAndSettle(t *testing.T, userID string, req SubmitRequest) *models.TransactionDetail {
	t.Helper()
	resp, err := f.submit.Submit(context.Background(), userID, req, "")
	require.NoError(t, err)
	f.drain(t)
	detail, err := f.submit.Get(context.Background(), userID, resp.TransactionID)
	require.NoError(t, err)
	return detail
}

func balance(t *testing.T, f *fixture, accountID string) decimal.Decimal {
	t.Helper()
	b, err := f.store.AccountBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
