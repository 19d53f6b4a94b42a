package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCreateTransaction_DuplicateIdempotencyKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &models.Transaction{ID: "tx-1", UserID: "u1", Amount: decimal.NewFromInt(10), Status: models.StatusPending, IdempotencyKey: strPtr("k1")}
	require.NoError(t, s.CreateTransaction(ctx, first))

	second := &models.Transaction{ID: "tx-2", UserID: "u1", Amount: decimal.NewFromInt(10), Status: models.StatusPending, IdempotencyKey: strPtr("k1")}
	err := s.CreateTransaction(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicateSubmission))

	var dup *models.DuplicateSubmissionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "tx-1", dup.ExistingTransactionID)

	found, err := s.FindByIdempotencyKey(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", found.ID)
}

func TestCreateTransaction_IdempotencyKeyScopedPerUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateTransaction(ctx, &models.Transaction{ID: "tx-1", UserID: "u1", Amount: decimal.NewFromInt(10), Status: models.StatusPending, IdempotencyKey: strPtr("k1")}))
	require.NoError(t, s.CreateTransaction(ctx, &models.Transaction{ID: "tx-2", UserID: "u2", Amount: decimal.NewFromInt(10), Status: models.StatusPending, IdempotencyKey: strPtr("k1")}))

	found, err := s.FindByIdempotencyKey(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.Equal(t, "tx-2", found.ID)

	_, err = s.FindByIdempotencyKey(ctx, "u3", "k1")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestWithTx_RollbackDiscardsStagedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AddAccount(models.Account{ID: "A", Type: models.AccountPersonal})

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertLedgerEntry(ctx, &models.LedgerEntry{ID: "e1", AccountID: "A", Amount: decimal.NewFromInt(5), Hash: "h1"}))
		balance, err := tx.AccountBalance(ctx, "A")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(5)))
		return errors.New("boom")
	})
	require.Error(t, err)

	balance, err := s.AccountBalance(ctx, "A")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	tip, err := chainTip(t, s)
	require.NoError(t, err)
	assert.Empty(t, tip)
}

func chainTip(t *testing.T, s *Store) (string, error) {
	t.Helper()
	var tip string
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		tip, err = tx.ChainTip(context.Background())
		return err
	})
	return tip, err
}

func TestInsertLedgerEntry_DuplicateHashIsIntegrityError(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SeedEntry(models.LedgerEntry{ID: "e0", AccountID: "A", Amount: decimal.NewFromInt(1), Hash: "same"})

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertLedgerEntry(ctx, &models.LedgerEntry{ID: "e1", AccountID: "A", Amount: decimal.NewFromInt(1), Hash: "same"})
	})
	assert.True(t, errors.Is(err, models.ErrIntegrity))
}

func TestDepartmentSpend_CountsSuccessAndProcessingOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AddDepartment(models.DepartmentBudget{DepartmentID: "d1", BudgetLimit: decimal.NewFromInt(1000)}, "u1")

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	s.SeedTransaction(models.Transaction{ID: "ok", DepartmentID: strPtr("d1"), Amount: decimal.NewFromInt(500), Status: models.StatusSuccess, Timestamp: now})
	s.SeedTransaction(models.Transaction{ID: "inflight", DepartmentID: strPtr("d1"), Amount: decimal.NewFromInt(200), Status: models.StatusProcessing, Timestamp: now})
	s.SeedTransaction(models.Transaction{ID: "failed", DepartmentID: strPtr("d1"), Amount: decimal.NewFromInt(300), Status: models.StatusFailed, Timestamp: now})
	s.SeedTransaction(models.Transaction{ID: "lastmonth", DepartmentID: strPtr("d1"), Amount: decimal.NewFromInt(400), Status: models.StatusSuccess, Timestamp: from.Add(-time.Hour)})
	s.SeedTransaction(models.Transaction{ID: "self", DepartmentID: strPtr("d1"), Amount: decimal.NewFromInt(50), Status: models.StatusProcessing, Timestamp: now})

	var spend decimal.Decimal
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.LockDepartment(ctx, "d1"))
		var err error
		spend, err = tx.DepartmentSpend(ctx, "d1", from, to, "self")
		return err
	})
	require.NoError(t, err)
	assert.True(t, spend.Equal(decimal.NewFromInt(700)), "got %s", spend)

	budget, err := s.DepartmentBudgetForUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, budget)
	assert.Equal(t, "d1", budget.DepartmentID)

	none, err := s.DepartmentBudgetForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMarkFailed_LeavesTerminalRowsAlone(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SeedTransaction(models.Transaction{ID: "done", Status: models.StatusSuccess})

	require.NoError(t, s.MarkFailed(ctx, "done", "late failure"))
	tx, err := s.GetTransaction(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, tx.Status)
	assert.Empty(t, tx.Reasons)

	_, err = s.GetTransaction(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestListTransactions_NewestFirstWithLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		s.SeedTransaction(models.Transaction{ID: id, UserID: "u1", Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}
	s.SeedTransaction(models.Transaction{ID: "other", UserID: "u2", Timestamp: base})

	txs, err := s.ListTransactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t3", txs[0].ID)
	assert.Equal(t, "t2", txs[1].ID)
}

func TestHasReversal(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SeedTransaction(models.Transaction{ID: "orig", Status: models.StatusSuccess})

	reversed, err := s.HasReversal(ctx, "orig")
	require.NoError(t, err)
	assert.False(t, reversed)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertTransaction(ctx, &models.Transaction{ID: "rev", ParentID: strPtr("orig"), Status: models.StatusSuccess})
	}))

	reversed, err = s.HasReversal(ctx, "orig")
	require.NoError(t, err)
	assert.True(t, reversed)
}
