// Package events dispatches settlement outcomes to downstream consumers after
// commit. Delivery is fire-and-forget: a slow or failing handler never blocks
// or alters the settlement that produced the event.
package events

import (
	"context"
	"log"
	"sync"

	"github.com/ledgerx/backend/internal/models"
)

type Handler func(ctx context.Context, event models.TransactionEvent)

// Publisher is what the settlement path depends on.
type Publisher interface {
	Publish(ctx context.Context, event models.TransactionEvent)
}

// Bus is an in-process topic router.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	inflight sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish hands the event to every subscriber of event.Type on its own
// goroutine and returns immediately.
func (b *Bus) Publish(ctx context.Context, event models.TransactionEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("[EVENTS] Handler for %s panicked on %s: %v", event.Type, event.TransactionID, rec)
				}
			}()
			h(ctx, event)
		}(h)
	}
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}
