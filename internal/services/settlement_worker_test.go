package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/store"
	"github.com/ledgerx/backend/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []models.TransactionEvent
}

func (r *eventRecorder) record(ctx context.Context, event models.TransactionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []models.TransactionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TransactionEvent(nil), r.events...)
}

func (f *fixture) record(topics ...string) *eventRecorder {
	r := &eventRecorder{}
	for _, topic := range topics {
		f.bus.Subscribe(topic, r.record)
	}
	return r
}

func TestSettlementWorker_SettlesTransfer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 500)
	rec := f.record(models.EventTransactionCreated, models.EventTransactionFailed)

	detail := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(100), Type: models.TypeTransfer})

	assert.Equal(t, models.StatusSuccess, detail.Status)
	require.Len(t, detail.LedgerEntries, 2)
	assert.Equal(t, "A", detail.LedgerEntries[0].AccountID)
	assert.Equal(t, "-100", detail.LedgerEntries[0].Amount.String())
	assert.Equal(t, "B", detail.LedgerEntries[1].AccountID)
	assert.Equal(t, "100", detail.LedgerEntries[1].Amount.String())
	assert.True(t, detail.LedgerEntries[0].Amount.Add(detail.LedgerEntries[1].Amount).IsZero())

	assert.Equal(t, "400", balance(t, f, "A").String())
	assert.Equal(t, "100", balance(t, f, "B").String())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTransactionCreated, events[0].Type)
	assert.Equal(t, detail.ID, events[0].TransactionID)
}

func TestSettlementWorker_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 50)
	rec := f.record(models.EventTransactionFailed)

	detail := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(100), Type: models.TypeTransfer})

	assert.Equal(t, models.StatusFailed, detail.Status)
	assert.Contains(t, detail.Reasons, "Insufficient funds")
	assert.Empty(t, detail.LedgerEntries)
	assert.Equal(t, "50", balance(t, f, "A").String())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, detail.Reasons, events[0].Reason)
}

func TestSettlementWorker_DepartmentBudget(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 5000)
	f.store.AddDepartment(models.DepartmentBudget{DepartmentID: "dept-1", Name: "Ops", BudgetLimit: dec(1000)}, "user-1")

	dept := "dept-1"
	prior := func(id string, status models.TransactionStatus, amount int64, at time.Time) {
		f.store.SeedTransaction(models.Transaction{
			ID: id, UserID: "user-1", Amount: dec(amount), Type: models.TypeExpense,
			FromAccountID: "A", ToAccountID: expenseAccount, Timestamp: at,
			Status: status, DepartmentID: &dept,
		})
	}
	prior("spent", models.StatusSuccess, 950, fixedNow.Add(-2*time.Hour))
	prior("failed", models.StatusFailed, 900, fixedNow.Add(-time.Hour))
	prior("last-month", models.StatusSuccess, 900, fixedNow.AddDate(0, -1, 0))

	over := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", Amount: dec(100), Type: models.TypeExpense, Category: "Travel"})
	assert.Equal(t, models.StatusFailed, over.Status)
	assert.Contains(t, over.Reasons, "budget")
	assert.Equal(t, "Department budget exceeded. Limit: 1000.00, Current: 950.00, Requested: 100.00", over.Reasons)
	require.NotNil(t, over.DepartmentID)
	assert.Equal(t, "dept-1", *over.DepartmentID)
	assert.Empty(t, over.LedgerEntries)

	within := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", Amount: dec(40), Type: models.TypeExpense})
	assert.Equal(t, models.StatusSuccess, within.Status)
	assert.Equal(t, "others", within.Category)
	assert.Equal(t, expenseAccount, within.ToAccountID)

	// 990 of 1000 is now spent.
	last := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", Amount: dec(11), Type: models.TypeExpense})
	assert.Equal(t, models.StatusFailed, last.Status)
	assert.Contains(t, last.Reasons, "Current: 990.00")
}

func TestSettlementWorker_RedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 500)

	resp, err := f.submit.Submit(context.Background(), "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(100), Type: models.TypeTransfer}, "")
	require.NoError(t, err)
	jobs := f.queue.take()
	require.Len(t, jobs, 1)

	require.NoError(t, f.worker.Process(context.Background(), jobs[0]))
	require.NoError(t, f.worker.Process(context.Background(), jobs[0]))
	f.bus.Wait()

	entries, err := f.store.LedgerEntriesFor(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "400", balance(t, f, "A").String())
}

func TestSettlementWorker_UnknownTransactionIsDropped(t *testing.T) {
	f := newFixture(t)
	err := f.worker.Process(context.Background(), queue.Job{TransactionID: "missing"})
	assert.NoError(t, err)
}

type lockTimeoutStore struct {
	*memory.Store
}

func (s lockTimeoutStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return fmt.Errorf("lock account A: %w", models.ErrLockTimeout)
}

func TestSettlementWorker_LockTimeoutIsRetried(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 500)
	resp, err := f.submit.Submit(context.Background(), "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(100), Type: models.TypeTransfer}, "")
	require.NoError(t, err)
	job := f.queue.take()[0]

	worker := NewSettlementWorker(lockTimeoutStore{f.store}, f.ledger, f.bus, audit.NewLogger(), time.UTC, true)
	err = worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))

	tx, err := f.store.GetTransaction(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, tx.Status)
}

func TestSettlementWorker_OnDeadLetter(t *testing.T) {
	f := newFixture(t)
	rec := f.record(models.EventTransactionFailed)
	resp, err := f.submit.Submit(context.Background(), "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(100), Type: models.TypeTransfer}, "")
	require.NoError(t, err)
	job := f.queue.take()[0]
	job.Attempts = 3

	f.worker.OnDeadLetter(context.Background(), job, errors.New("lock timeout"))
	f.bus.Wait()

	tx, err := f.store.GetTransaction(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.Equal(t, "lock timeout", tx.Reasons)
	require.Len(t, rec.all(), 1)

	// A settled transaction is left alone.
	f.fund(t, "A", 500)
	settled := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(10), Type: models.TypeTransfer})
	f.worker.OnDeadLetter(context.Background(), queue.Job{TransactionID: settled.ID}, errors.New("late"))
	after, err := f.store.GetTransaction(context.Background(), settled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, after.Status)
}

func TestMonthWindow(t *testing.T) {
	lagos := time.FixedZone("WAT", 60*60)

	// 23:30 UTC on Jan 31 is already February in Lagos.
	from, to := MonthWindow(time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC), lagos)
	assert.Equal(t, time.February, from.Month())
	assert.Equal(t, 1, from.Day())
	assert.Equal(t, time.March, to.Month())

	from, to = MonthWindow(time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestSettlementWorker_BudgetCapUsesServerTime(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 10000)
	f.store.AddDepartment(models.DepartmentBudget{DepartmentID: "dept-1", Name: "Ops", BudgetLimit: dec(1000)}, "user-1")

	var statuses []models.TransactionStatus
	for i := 0; i < 3; i++ {
		detail := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", Amount: dec(1000), Type: models.TypeExpense})
		assert.True(t, detail.Timestamp.Equal(fixedNow), "occurred at %s", detail.Timestamp)
		statuses = append(statuses, detail.Status)
	}

	assert.Equal(t, []models.TransactionStatus{models.StatusSuccess, models.StatusFailed, models.StatusFailed}, statuses)
	assert.Equal(t, "9000", balance(t, f, "A").String())
}

func TestSettlementWorker_ConcurrentDrainsConserveBalance(t *testing.T) {
	const (
		workers = 16
		opening = 500
		amount  = 100
	)
	f := newFixture(t)
	f.fund(t, "A", opening)

	ids := make([]string, 0, workers)
	for i := 0; i < workers; i++ {
		to := "B"
		if i%2 == 1 {
			to = expenseAccount
		}
		req := SubmitRequest{From: "A", To: to, Amount: dec(amount), Type: models.TypeTransfer}
		if to == expenseAccount {
			req = SubmitRequest{From: "A", Amount: dec(amount), Type: models.TypeExpense}
		}
		resp, err := f.submit.Submit(context.Background(), "user-1", req, "")
		require.NoError(t, err)
		ids = append(ids, resp.TransactionID)
	}

	jobs := f.queue.take()
	require.Len(t, jobs, workers)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, job := range jobs {
		wg.Add(1)
		go func(job queue.Job) {
			defer wg.Done()
			errs <- f.worker.Process(context.Background(), job)
		}(job)
	}
	wg.Wait()
	close(errs)
	f.bus.Wait()
	for err := range errs {
		require.NoError(t, err)
	}

	ctx := context.Background()
	succeeded := 0
	posted := dec(0)
	for _, id := range ids {
		tx, err := f.store.GetTransaction(ctx, id)
		require.NoError(t, err)
		entries, err := f.store.LedgerEntriesFor(ctx, id)
		require.NoError(t, err)

		switch tx.Status {
		case models.StatusSuccess:
			succeeded++
			require.Len(t, entries, 2)
			assert.True(t, entries[0].Amount.Add(entries[1].Amount).IsZero())
			for _, e := range entries {
				if e.AccountID == "A" {
					posted = posted.Add(e.Amount)
				}
			}
		case models.StatusFailed:
			assert.Contains(t, tx.Reasons, "Insufficient funds")
			assert.Empty(t, entries)
		default:
			t.Fatalf("transaction %s left in %s", id, tx.Status)
		}
	}

	assert.Equal(t, opening/amount, succeeded)
	assert.LessOrEqual(t, int64(succeeded*amount), int64(opening))

	finalA := balance(t, f, "A")
	assert.True(t, finalA.Equal(dec(opening).Add(posted)), "A=%s posted=%s", finalA, posted)
	assert.False(t, finalA.IsNegative())
	total := finalA.Add(balance(t, f, "B")).Add(balance(t, f, expenseAccount))
	assert.Equal(t, fmt.Sprint(opening), total.String())
}
