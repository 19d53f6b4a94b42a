package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerx/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReversalService_Reverse(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "A", 500)
	rec := f.record(models.EventTransactionReversed)
	ctx := context.Background()

	original := f.submitAndSettle(t, "user-1", SubmitRequest{From: "A", To: "B", Amount: dec(200), Type: models.TypeTransfer})
	require.Equal(t, models.StatusSuccess, original.Status)

	reversal, err := f.reversals.Reverse(ctx, "user-1", original.ID, "customer dispute")
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, models.StatusSuccess, reversal.Status)
	assert.Equal(t, models.TypeReversal, reversal.Type)
	assert.Equal(t, "-200", reversal.Amount.String())
	assert.Equal(t, "B", reversal.FromAccountID)
	assert.Equal(t, "A", reversal.ToAccountID)
	require.NotNil(t, reversal.ParentID)
	assert.Equal(t, original.ID, *reversal.ParentID)
	assert.Equal(t, "Reversal: customer dispute", reversal.Reasons)

	require.Len(t, reversal.LedgerEntries, 2)
	for i, mirror := range reversal.LedgerEntries {
		orig := original.LedgerEntries[i]
		assert.Equal(t, orig.AccountID, mirror.AccountID)
		assert.True(t, orig.Amount.Add(mirror.Amount).IsZero())
		assert.Equal(t, orig.Type.Flip(), mirror.Type)
		assert.Equal(t, orig.Hash, mirror.OriginalHash)
		assert.NotEqual(t, orig.Hash, mirror.Hash)
	}

	// Balances return to their pre-transaction values.
	assert.Equal(t, "500", balance(t, f, "A").String())
	assert.Equal(t, "0", balance(t, f, "B").String())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, reversal.ID, events[0].TransactionID)
	assert.Equal(t, original.ID, events[0].ParentID)

	// The original is untouched.
	after, err := f.store.GetTransaction(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, after.Status)

	t.Run("only once", func(t *testing.T) {
		_, err := f.reversals.Reverse(ctx, "user-1", original.ID, "again")
		assert.True(t, errors.Is(err, ErrNotReversible))
	})

	t.Run("never a reversal", func(t *testing.T) {
		_, err := f.reversals.Reverse(ctx, "user-1", reversal.ID, "undo")
		assert.True(t, errors.Is(err, ErrNotReversible))
	})

	t.Run("other users see not found", func(t *testing.T) {
		_, err := f.reversals.Reverse(ctx, "user-2", original.ID, "steal")
		assert.True(t, models.IsNotFound(err))
	})
}

func TestStandardReversalPolicy_Eligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	settled := &models.Transaction{ID: "tx-1", Status: models.StatusSuccess, Type: models.TypeTransfer, Timestamp: fixedNow}
	assert.NoError(t, f.policy.Eligible(ctx, settled))

	failed := *settled
	failed.Status = models.StatusFailed
	assert.True(t, errors.Is(f.policy.Eligible(ctx, &failed), ErrNotReversible))

	pending := *settled
	pending.Status = models.StatusPending
	assert.True(t, errors.Is(f.policy.Eligible(ctx, &pending), ErrNotReversible))

	old := *settled
	old.Timestamp = fixedNow.Add(-31 * 24 * time.Hour)
	err := f.policy.Eligible(ctx, &old)
	assert.True(t, errors.Is(err, ErrNotReversible))
	assert.Contains(t, err.Error(), "30 days")
}

func TestReversalEngine_MissingOriginal(t *testing.T) {
	f := newFixture(t)
	engine := NewReversalEngine(f.store, f.ledger)

	_, err := engine.Reverse(context.Background(), "missing", "n/a", nil)
	assert.True(t, models.IsNotFound(err))
}
