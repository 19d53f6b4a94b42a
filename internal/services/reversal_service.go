package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerx/backend/internal/audit"
	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store"
)

// ErrNotReversible is returned when a transaction fails the reversal policy.
var ErrNotReversible = errors.New("transaction cannot be reversed")

// =============================================================================
// ENGINE - mechanical compensating write
// =============================================================================

// ReversalGuard runs under the lock on the original transaction, before any write.
type ReversalGuard func(ctx context.Context, tx store.Tx, original *models.Transaction) error

// ReversalEngine writes the child transaction and mirrored entries. It trusts
// its caller's eligibility decision and runs no budget or balance checks.
type ReversalEngine struct {
	store  store.Store
	ledger *DoubleLedgerService
	now    func() time.Time
}

func NewReversalEngine(st store.Store, ledger *DoubleLedgerService) *ReversalEngine {
	return &ReversalEngine{store: st, ledger: ledger, now: time.Now}
}

// Reverse creates the reversal of originalID. A missing original yields models.ErrNotFound.
func (e *ReversalEngine) Reverse(ctx context.Context, originalID, reason string, guard ReversalGuard) (*models.TransactionDetail, error) {
	var detail *models.TransactionDetail

	err := e.store.WithTx(ctx, func(utx store.Tx) error {
		original, err := utx.LockTransaction(ctx, originalID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, utx, original); err != nil {
				return err
			}
		}

		entries, err := utx.LedgerEntriesFor(ctx, original.ID)
		if err != nil {
			return err
		}

		at := e.now().UTC().Truncate(time.Microsecond)
		parentID := original.ID
		reversal := &models.Transaction{
			ID:            uuid.NewString(),
			UserID:        original.UserID,
			Amount:        original.Amount.Neg(),
			Category:      original.Category,
			Type:          models.TypeReversal,
			Description:   fmt.Sprintf("Reversal of %s", original.ID),
			FromAccountID: original.ToAccountID,
			ToAccountID:   original.FromAccountID,
			Timestamp:     at,
			Status:        models.StatusSuccess,
			ParentID:      &parentID,
			Reasons:       "Reversal: " + reason,
			DepartmentID:  original.DepartmentID,
		}
		if err := utx.InsertTransaction(ctx, reversal); err != nil {
			return err
		}

		mirrored, err := e.ledger.PostReversal(ctx, utx, reversal.ID, entries, at)
		if err != nil {
			return err
		}
		detail = &models.TransactionDetail{Transaction: reversal, LedgerEntries: mirrored}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// =============================================================================
// POLICY - may this transaction be reversed
// =============================================================================

// ReversalPolicy decides eligibility. Rejections wrap ErrNotReversible.
type ReversalPolicy interface {
	Eligible(ctx context.Context, tx *models.Transaction) error
}

// StandardReversalPolicy allows reversing a settled, non-reversal transaction
// once, within a window of its timestamp.
type StandardReversalPolicy struct {
	store  store.Store
	window time.Duration
	now    func() time.Time
}

func NewStandardReversalPolicy(st store.Store, window time.Duration) *StandardReversalPolicy {
	return &StandardReversalPolicy{store: st, window: window, now: time.Now}
}

func (p *StandardReversalPolicy) Eligible(ctx context.Context, tx *models.Transaction) error {
	if tx.Status != models.StatusSuccess {
		return fmt.Errorf("%w: only settled transactions can be reversed (status %s)", ErrNotReversible, tx.Status)
	}
	if tx.ParentID != nil || tx.Type == models.TypeReversal {
		return fmt.Errorf("%w: a reversal cannot itself be reversed", ErrNotReversible)
	}
	if p.window > 0 && p.now().Sub(tx.Timestamp) > p.window {
		return fmt.Errorf("%w: older than %d days", ErrNotReversible, int(p.window.Hours()/24))
	}
	reversed, err := p.store.HasReversal(ctx, tx.ID)
	if err != nil {
		return err
	}
	if reversed {
		return fmt.Errorf("%w: transaction already reversed", ErrNotReversible)
	}
	return nil
}

// =============================================================================
// SERVICE - policy, then engine, then notifications
// =============================================================================

type ReversalService struct {
	store  store.Store
	policy ReversalPolicy
	engine *ReversalEngine
	events events.Publisher
	audit  *audit.Logger
}

func NewReversalService(st store.Store, policy ReversalPolicy, engine *ReversalEngine, publisher events.Publisher, auditLogger *audit.Logger) *ReversalService {
	return &ReversalService{store: st, policy: policy, engine: engine, events: publisher, audit: auditLogger}
}

// Reverse checks ownership and eligibility of id, then reverses it.
func (s *ReversalService) Reverse(ctx context.Context, userID, id, reason string) (*models.TransactionDetail, error) {
	original, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && original.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if err := s.policy.Eligible(ctx, original); err != nil {
		return nil, err
	}

	detail, err := s.engine.Reverse(ctx, id, reason, notAlreadyReversed)
	if err != nil {
		log.Printf("[REVERSAL] Reversal of %s failed: %v", id, err)
		return nil, err
	}

	reversal := detail.Transaction
	log.Printf("[REVERSAL] Transaction %s reversed by %s", id, reversal.ID)
	s.audit.LogReversed(reversal.ID, id, original.Amount, reason)
	if s.events != nil {
		s.events.Publish(ctx, models.TransactionEvent{
			Type:          models.EventTransactionReversed,
			TransactionID: reversal.ID,
			UserID:        reversal.UserID,
			Amount:        reversal.Amount,
			Description:   reversal.Description,
			Timestamp:     reversal.Timestamp,
			Reason:        reason,
			ParentID:      id,
		})
	}
	return detail, nil
}

// notAlreadyReversed closes the window between the policy check and the write.
func notAlreadyReversed(ctx context.Context, tx store.Tx, original *models.Transaction) error {
	reversed, err := tx.HasReversal(ctx, original.ID)
	if err != nil {
		return err
	}
	if reversed {
		return fmt.Errorf("%w: transaction already reversed", ErrNotReversible)
	}
	return nil
}
