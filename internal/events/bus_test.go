package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/ledgerx/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createdEvent() models.TransactionEvent {
	return models.TransactionEvent{
		Type:          models.EventTransactionCreated,
		TransactionID: "tx-1",
		UserID:        "user-1",
		Amount:        decimal.NewFromInt(250),
		Timestamp:     time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func TestBus_DeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus()
	var created, failed int32

	bus.Subscribe(models.EventTransactionCreated, func(ctx context.Context, e models.TransactionEvent) {
		atomic.AddInt32(&created, 1)
	})
	bus.Subscribe(models.EventTransactionCreated, func(ctx context.Context, e models.TransactionEvent) {
		atomic.AddInt32(&created, 1)
	})
	bus.Subscribe(models.EventTransactionFailed, func(ctx context.Context, e models.TransactionEvent) {
		atomic.AddInt32(&failed, 1)
	})

	bus.Publish(context.Background(), createdEvent())
	bus.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&created))
	assert.Equal(t, int32(0), atomic.LoadInt32(&failed))
}

func TestBus_PanickingHandlerDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []string

	bus.Subscribe(models.EventTransactionCreated, func(ctx context.Context, e models.TransactionEvent) {
		panic("listener bug")
	})
	bus.Subscribe(models.EventTransactionCreated, func(ctx context.Context, e models.TransactionEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.TransactionID)
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), createdEvent())
		bus.Wait()
	})
	assert.Equal(t, []string{"tx-1"}, got)
}

func TestBus_HandlersOutliveCancelledContext(t *testing.T) {
	bus := NewBus()
	var ctxErr error
	bus.Subscribe(models.EventTransactionCreated, func(ctx context.Context, e models.TransactionEvent) {
		ctxErr = ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, createdEvent())
	bus.Wait()
	assert.NoError(t, ctxErr)
}

func TestRedisPublisher_PublishesToTopicChannel(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(rdb)
	event := createdEvent()

	data, err := json.Marshal(event)
	require.NoError(t, err)
	mock.ExpectPublish("events:transaction.created", string(data)).SetVal(1)

	bus := NewBus()
	pub.Attach(bus, models.EventTransactionCreated)
	bus.Publish(context.Background(), event)
	bus.Wait()

	assert.NoError(t, mock.ExpectationsWereMet())
}
