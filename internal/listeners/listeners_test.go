package listeners

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSettled(st *memory.Store, id string, amount int64) {
	st.SeedTransaction(models.Transaction{
		ID: id, UserID: "user-1", Amount: decimal.NewFromInt(amount), Type: models.TypeTransfer,
		FromAccountID: "A", ToAccountID: "B", Timestamp: time.Now().UTC(), Status: models.StatusSuccess,
	})
}

func TestFraudListener(t *testing.T) {
	st := memory.New()
	seedSettled(st, "big", 15000)
	seedSettled(st, "small", 9000)
	seedSettled(st, "edge", 10000)

	bus := events.NewBus()
	NewFraudListener(st, decimal.NewFromInt(10000)).Attach(bus)

	ctx := context.Background()
	for _, id := range []string{"big", "small", "edge"} {
		tx, err := st.GetTransaction(ctx, id)
		require.NoError(t, err)
		bus.Publish(ctx, models.TransactionEvent{Type: models.EventTransactionCreated, TransactionID: id, Amount: tx.Amount})
	}
	// Failed outcomes are never flagged.
	bus.Publish(ctx, models.TransactionEvent{Type: models.EventTransactionFailed, TransactionID: "small", Amount: decimal.NewFromInt(50000)})
	bus.Wait()

	big, err := st.GetTransaction(ctx, "big")
	require.NoError(t, err)
	assert.True(t, big.IsFlagged)
	assert.Equal(t, "High value transaction > 10000", big.Reasons)
	assert.Equal(t, models.StatusSuccess, big.Status)

	for _, id := range []string{"small", "edge"} {
		tx, err := st.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.False(t, tx.IsFlagged, id)
	}
}

func TestFraudListener_MissingTransaction(t *testing.T) {
	st := memory.New()
	l := NewFraudListener(st, decimal.NewFromInt(10))

	assert.NotPanics(t, func() {
		l.Handle(context.Background(), models.TransactionEvent{TransactionID: "gone", Amount: decimal.NewFromInt(100)})
	})
}

type capturedAdvice struct {
	mu   sync.Mutex
	docs map[string]string
}

func (c *capturedAdvice) sink(ctx context.Context, transactionID, document string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[transactionID] = document
	return nil
}

func TestSettlementAdvice(t *testing.T) {
	captured := &capturedAdvice{docs: make(map[string]string)}
	bus := events.NewBus()
	NewSettlementAdvice(captured.sink).Attach(bus)

	ctx := context.Background()
	bus.Publish(ctx, models.TransactionEvent{Type: models.EventTransactionCreated, TransactionID: "tx-ok", Amount: decimal.NewFromInt(10)})
	bus.Publish(ctx, models.TransactionEvent{Type: models.EventTransactionFailed, TransactionID: "tx-bad", Amount: decimal.NewFromInt(10), Reason: "Insufficient funds"})
	bus.Publish(ctx, models.TransactionEvent{Type: models.EventTransactionReversed, TransactionID: "tx-rev"})
	bus.Wait()

	require.Len(t, captured.docs, 2)

	ok := captured.docs["tx-ok"]
	assert.True(t, strings.HasPrefix(ok, "<?xml"))
	assert.Contains(t, ok, StatusSettled)
	assert.Contains(t, ok, "tx-ok")

	bad := captured.docs["tx-bad"]
	assert.Contains(t, bad, StatusRejected)
	assert.NotContains(t, bad, StatusSettled)
}

func TestSettlementAdvice_SinkError(t *testing.T) {
	advice := NewSettlementAdvice(func(ctx context.Context, transactionID, document string) error {
		return errors.New("downstream unavailable")
	})
	assert.NotPanics(t, func() {
		advice.Handle(context.Background(), models.TransactionEvent{Type: models.EventTransactionCreated, TransactionID: "tx-1"})
	})
}

func TestMax35(t *testing.T) {
	assert.Equal(t, "short", max35("short"))
	assert.Equal(t, "0f8fad5bd9cb469fa16570867728950e", max35("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Len(t, max35(strings.Repeat("x", 40)), 35)
}
