// Package app wires the settlement components shared by the API server and the worker.
package app

import (
	"context"
	"database/sql"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/config"
	"github.com/ledgerx/backend/internal/database"
	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/listeners"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/queue"
	"github.com/ledgerx/backend/internal/services"
	"github.com/ledgerx/backend/internal/store"
	"github.com/ledgerx/backend/internal/store/postgres"
)

type Components struct {
	Config      *config.Settlement
	Store       store.Store
	Queue       *queue.RedisQueue
	Bus         *events.Bus
	Worker      *services.SettlementWorker
	Submissions *services.SubmissionService
	Reversals   *services.ReversalService
	Audits      *services.AuditService
}

// Migrate applies the schema and provisions the configured system accounts.
func Migrate(ctx context.Context, db *sql.DB, cfg *config.Settlement) error {
	return database.Migrate(ctx, db,
		database.SystemAccount{ID: cfg.SystemIncomeAccountID, Name: "System Income"},
		database.SystemAccount{ID: cfg.SystemExpenseAccountID, Name: "System Expense"},
	)
}

// Build wires the services on top of Postgres and Redis. rdb may be nil, in
// which case submissions fail with the queue unavailable.
func Build(db *sql.DB, rdb *redis.Client, cfg *config.Settlement) *Components {
	return BuildWithStore(postgres.New(db, cfg.LockTimeout), rdb, cfg)
}

func BuildWithStore(st store.Store, rdb *redis.Client, cfg *config.Settlement) *Components {
	auditLogger := audit.NewLogger()
	ledger := services.NewDoubleLedgerService()
	bus := events.NewBus()
	q := queue.NewRedisQueue(rdb, cfg.QueueName, cfg.MaxAttempts)

	policy := services.NewStandardReversalPolicy(st, cfg.ReversalWindow)
	engine := services.NewReversalEngine(st, ledger)

	return &Components{
		Config:      cfg,
		Store:       st,
		Queue:       q,
		Bus:         bus,
		Worker:      services.NewSettlementWorker(st, ledger, bus, auditLogger, cfg.BudgetLocation, cfg.StrictBudgetLock),
		Submissions: services.NewSubmissionService(st, q, cfg.SystemIncomeAccountID, cfg.SystemExpenseAccountID, cfg.TransactionListSize),
		Reversals:   services.NewReversalService(st, policy, engine, bus, auditLogger),
		Audits:      services.NewAuditService(st),
	}
}

// AttachListeners subscribes the downstream consumers to the event bus.
func (c *Components) AttachListeners(rdb *redis.Client) {
	listeners.NewFraudListener(c.Store, c.Config.HighValueThreshold).Attach(c.Bus)
	listeners.NewSettlementAdvice(listeners.LogSink).Attach(c.Bus)
	if rdb != nil {
		events.NewRedisPublisher(rdb).Attach(c.Bus,
			models.EventTransactionCreated,
			models.EventTransactionFailed,
			models.EventTransactionReversed,
		)
	}
}

// RunWorker recovers orphaned jobs and consumes the queue until ctx is
// cancelled, then waits for in-flight event handlers.
func (c *Components) RunWorker(ctx context.Context) {
	if _, err := c.Queue.Recover(ctx); err != nil {
		log.Printf("[WORKER] Queue recovery failed: %v", err)
	}

	runner := queue.NewRunner(c.Queue, c.Worker.Process, c.Config.Concurrency, c.Config.PollTimeout)
	runner.OnDeadLetter(c.Worker.OnDeadLetter)
	runner.Run(ctx)
	c.Bus.Wait()
}
