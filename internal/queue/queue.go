// Package queue is an at-least-once settlement job queue on Redis lists.
//
// A job moves waiting -> active atomically on dequeue (BRPOPLPUSH) and stays
// in the active list until it is acknowledged or retried, so a consumer that
// dies mid-job leaves it recoverable. Jobs that exhaust their attempts are
// parked in the dead list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ledgerx/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Job is the settlement request handed from the submission API to the worker.
type Job struct {
	ID            string                 `json:"id"`
	TransactionID string                 `json:"transactionId"`
	UserID        string                 `json:"userId"`
	FromAccount   string                 `json:"fromAccount"`
	ToAccount     string                 `json:"toAccount"`
	Amount        decimal.Decimal        `json:"amount"`
	Description   string                 `json:"description"`
	Type          models.TransactionType `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	Attempts      int                    `json:"attempts"`
	LastError     string                 `json:"lastError,omitempty"`
}

// ErrNoConnection is returned by producer-side calls when the queue has no Redis client.
var ErrNoConnection = errors.New("queue: redis client not connected")

// Delivery is a dequeued job together with the exact payload held in the active list.
type Delivery struct {
	Job Job
	raw string
}

// Metrics are point-in-time queue counters.
type Metrics struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Failed    int64 `json:"failed"`
	Completed int64 `json:"completed"`
	Depth     int64 `json:"depth"`
}

type RedisQueue struct {
	rdb         *redis.Client
	name        string
	maxAttempts int
}

func NewRedisQueue(rdb *redis.Client, name string, maxAttempts int) *RedisQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RedisQueue{rdb: rdb, name: name, maxAttempts: maxAttempts}
}

func (q *RedisQueue) key(list string) string {
	return fmt.Sprintf("settlement:%s:%s", q.name, list)
}

func (q *RedisQueue) WaitingKey() string   { return q.key("waiting") }
func (q *RedisQueue) ActiveKey() string    { return q.key("active") }
func (q *RedisQueue) DeadKey() string      { return q.key("dead") }
func (q *RedisQueue) CompletedKey() string { return q.key("completed") }

// Enqueue pushes the job onto the waiting list. Job.ID defaults to the transaction id.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if q.rdb == nil {
		return ErrNoConnection
	}
	if job.ID == "" {
		job.ID = job.TransactionID
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.WaitingKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when
// nothing arrived in time.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.WaitingKey(), q.ActiveKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Printf("[QUEUE] Malformed job payload moved to dead list: %v", err)
		if pushErr := q.rdb.LPush(ctx, q.DeadKey(), raw).Err(); pushErr != nil {
			return nil, fmt.Errorf("dead-letter malformed job: %w", pushErr)
		}
		if remErr := q.rdb.LRem(ctx, q.ActiveKey(), 1, raw).Err(); remErr != nil {
			return nil, fmt.Errorf("remove malformed job: %w", remErr)
		}
		return nil, nil
	}
	return &Delivery{Job: job, raw: raw}, nil
}

// Ack removes a finished job from the active list and counts it as completed.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.ActiveKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	if err := q.rdb.Incr(ctx, q.CompletedKey()).Err(); err != nil {
		return fmt.Errorf("count completed job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Retry records the failure and requeues the job, or parks it in the dead list
// once it has reached the attempt limit. The returned bool reports dead-lettering.
// The new payload is pushed before the old one is removed, so a crash in
// between redelivers rather than loses the job.
func (q *RedisQueue) Retry(ctx context.Context, d *Delivery, cause error) (bool, error) {
	job := d.Job
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encode job: %w", err)
	}

	dead := job.Attempts >= q.maxAttempts
	target := q.WaitingKey()
	if dead {
		target = q.DeadKey()
	}
	if err := q.rdb.LPush(ctx, target, string(data)).Err(); err != nil {
		return false, fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	if err := q.rdb.LRem(ctx, q.ActiveKey(), 1, d.raw).Err(); err != nil {
		return dead, fmt.Errorf("remove retried job %s: %w", job.ID, err)
	}
	d.Job = job
	return dead, nil
}

// Recover moves every job left in the active list back to waiting. Call it
// before any consumer starts; jobs in flight elsewhere would be duplicated.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.ActiveKey(), q.WaitingKey()).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("recover active jobs: %w", err)
		}
		moved++
	}
	if moved > 0 {
		log.Printf("[QUEUE] Recovered %d orphaned job(s) into %s", moved, q.WaitingKey())
	}
	return moved, nil
}

func (q *RedisQueue) Metrics(ctx context.Context) (*Metrics, error) {
	if q.rdb == nil {
		return nil, ErrNoConnection
	}
	waiting, err := q.rdb.LLen(ctx, q.WaitingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	active, err := q.rdb.LLen(ctx, q.ActiveKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	failed, err := q.rdb.LLen(ctx, q.DeadKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	completed, err := q.rdb.Get(ctx, q.CompletedKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}

	return &Metrics{
		Waiting:   waiting,
		Active:    active,
		Failed:    failed,
		Completed: completed,
		Depth:     waiting + active,
	}, nil
}
