package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Handler processes one job. A nil return acknowledges it; any error sends it
// back through Retry.
type Handler func(ctx context.Context, job Job) error

// DeadLetterFunc is called once a job has been moved to the dead list.
type DeadLetterFunc func(ctx context.Context, job Job, cause error)

// Runner drives a fixed pool of consumers over a RedisQueue.
type Runner struct {
	queue        *RedisQueue
	handler      Handler
	onDeadLetter DeadLetterFunc
	concurrency  int
	pollTimeout  time.Duration
	backoff      time.Duration
}

func NewRunner(q *RedisQueue, handler Handler, concurrency int, pollTimeout time.Duration) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Runner{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
		backoff:     time.Second,
	}
}

func (r *Runner) OnDeadLetter(fn DeadLetterFunc) {
	r.onDeadLetter = fn
}

// Run blocks until ctx is cancelled and every consumer has finished its current job.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.consume(ctx, id)
		}(i)
	}
	log.Printf("[WORKER] %d consumer(s) started on %s", r.concurrency, r.queue.WaitingKey())
	wg.Wait()
	log.Printf("[WORKER] All consumers stopped")
}

func (r *Runner) consume(ctx context.Context, id int) {
	for ctx.Err() == nil {
		d, err := r.queue.Dequeue(ctx, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WORKER %d] Dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff):
			}
			continue
		}
		if d == nil {
			continue
		}
		// An in-flight job finishes even if shutdown starts meanwhile.
		r.Handle(context.WithoutCancel(ctx), d)
	}
}

// Handle runs the handler for one delivery and settles it with the queue.
func (r *Runner) Handle(ctx context.Context, d *Delivery) {
	err := r.invoke(ctx, d.Job)
	if err == nil {
		if ackErr := r.queue.Ack(ctx, d); ackErr != nil {
			log.Printf("[QUEUE] %v", ackErr)
		}
		return
	}

	log.Printf("[WORKER] Job %s attempt %d failed: %v", d.Job.ID, d.Job.Attempts+1, err)
	dead, retryErr := r.queue.Retry(ctx, d, err)
	if retryErr != nil {
		log.Printf("[QUEUE] %v", retryErr)
	}
	if dead {
		log.Printf("[QUEUE] Job %s dead-lettered after %d attempt(s)", d.Job.ID, d.Job.Attempts)
		if r.onDeadLetter != nil {
			r.onDeadLetter(ctx, d.Job, err)
		}
	}
}

func (r *Runner) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing job %s: %v", job.ID, rec)
		}
	}()
	return r.handler(ctx, job)
}
