// Package listeners reacts to committed settlement outcomes. Nothing here can
// change a transaction's status.
package listeners

import (
	"context"
	"fmt"
	"log"

	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Flagger marks a transaction for review.
type Flagger interface {
	FlagTransaction(ctx context.Context, id, reason string) error
}

// FraudListener flags settled transactions above a fixed threshold.
type FraudListener struct {
	store     Flagger
	threshold decimal.Decimal
}

func NewFraudListener(store Flagger, threshold decimal.Decimal) *FraudListener {
	return &FraudListener{store: store, threshold: threshold}
}

func (l *FraudListener) Attach(bus *events.Bus) {
	bus.Subscribe(models.EventTransactionCreated, l.Handle)
}

func (l *FraudListener) Handle(ctx context.Context, event models.TransactionEvent) {
	if !event.Amount.Abs().GreaterThan(l.threshold) {
		return
	}
	reason := fmt.Sprintf("High value transaction > %s", l.threshold.String())
	if err := l.store.FlagTransaction(ctx, event.TransactionID, reason); err != nil {
		log.Printf("[FRAUD] Failed to flag %s: %v", event.TransactionID, err)
		return
	}
	log.Printf("[FRAUD] Flagged transaction %s: %s", event.TransactionID, reason)
}
