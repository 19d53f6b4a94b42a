package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/ledgerx/backend/internal/models"
)

const channelPrefix = "events:"

// RedisPublisher forwards events to Redis pub/sub so consumers in other
// processes can follow settlement outcomes.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func Channel(topic string) string {
	return channelPrefix + topic
}

// Handle publishes one event. Failures are logged and dropped.
func (p *RedisPublisher) Handle(ctx context.Context, event models.TransactionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENTS] Failed to encode %s for %s: %v", event.Type, event.TransactionID, err)
		return
	}
	if err := p.rdb.Publish(ctx, Channel(event.Type), string(data)).Err(); err != nil {
		log.Printf("[EVENTS] Failed to publish %s for %s: %v", event.Type, event.TransactionID, err)
	}
}

// Attach subscribes the publisher to the given topics on the bus.
func (p *RedisPublisher) Attach(bus *Bus, topics ...string) {
	for _, topic := range topics {
		bus.Subscribe(topic, p.Handle)
	}
}
