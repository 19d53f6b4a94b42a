// Package memory is an in-memory implementation of store.Store.
//
// Units of work are serialized behind a single mutex, which is stricter than
// the per-account locking of the Postgres store, and their writes are staged
// and applied only when fn returns nil. Used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store"
	"github.com/shopspring/decimal"
)

type Store struct {
	unit sync.Mutex
	mu   sync.RWMutex

	accounts     map[string]models.Account
	transactions map[string]models.Transaction
	txOrder      []string
	entries      []models.LedgerEntry
	hashes       map[string]struct{}
	idemKeys     map[string]string
	departments  map[string]models.DepartmentBudget
	userDept     map[string]string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
		hashes:       make(map[string]struct{}),
		idemKeys:     make(map[string]string),
		departments:  make(map[string]models.DepartmentBudget),
		userDept:     make(map[string]string),
	}
}

// =============================================================================
// SEEDING - provisioning normally done by external setup tooling
// =============================================================================

func (s *Store) AddAccount(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	s.accounts[account.ID] = account
}

// AddDepartment registers a budget and assigns users to it.
func (s *Store) AddDepartment(budget models.DepartmentBudget, userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[budget.DepartmentID] = budget
	for _, u := range userIDs {
		s.userDept[u] = budget.DepartmentID
	}
}

// SeedEntry appends a posting directly, bypassing settlement. Opening balances only.
func (s *Store) SeedEntry(entry models.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if entry.Hash != "" {
		s.hashes[entry.Hash] = struct{}{}
	}
}

// SeedTransaction stores a transaction as-is, e.g. prior spend of a department.
func (s *Store) SeedTransaction(tx models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTransaction(tx)
}

// =============================================================================
// STORE
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s already exists: %w", tx.ID, models.ErrIntegrity)
	}
	if tx.IdempotencyKey != nil {
		if existing, ok := s.idemKeys[idemKey(tx.UserID, *tx.IdempotencyKey)]; ok {
			return &models.DuplicateSubmissionError{IdempotencyKey: *tx.IdempotencyKey, ExistingTransactionID: existing}
		}
	}
	now := time.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.putTransaction(*tx)
	return nil
}

func (s *Store) putTransaction(tx models.Transaction) {
	if _, exists := s.transactions[tx.ID]; !exists {
		s.txOrder = append(s.txOrder, tx.ID)
	}
	s.transactions[tx.ID] = tx
	if tx.IdempotencyKey != nil {
		s.idemKeys[idemKey(tx.UserID, *tx.IdempotencyKey)] = tx.ID
	}
}

func idemKey(userID, key string) string {
	return userID + "\x00" + key
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	return &tx, nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error) {
	s.mu.RLock()
	id, ok := s.idemKeys[idemKey(userID, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("idempotency key %q: %w", key, models.ErrNotFound)
	}
	return s.GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Transaction{}
	for _, id := range s.txOrder {
		if tx := s.transactions[id]; tx.UserID == userID {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkProcessing(ctx context.Context, id string, departmentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if tx.Status.IsTerminal() {
		return nil
	}
	tx.Status = models.StatusProcessing
	tx.DepartmentID = departmentID
	tx.UpdatedAt = time.Now()
	s.transactions[id] = tx
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if tx.Status.IsTerminal() {
		return nil
	}
	tx.Status = models.StatusFailed
	tx.Reasons = reason
	tx.UpdatedAt = time.Now()
	s.transactions[id] = tx
	return nil
}

func (s *Store) FlagTransaction(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	tx.IsFlagged = true
	tx.Reasons = appendReason(tx.Reasons, reason)
	tx.UpdatedAt = time.Now()
	s.transactions[id] = tx
	return nil
}

func appendReason(existing, reason string) string {
	if existing == "" {
		return reason
	}
	return existing + "; " + reason
}

func (s *Store) HasReversal(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if tx.ParentID != nil && *tx.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesFor(s.entries, transactionID), nil
}

func entriesFor(entries []models.LedgerEntry, transactionID string) []models.LedgerEntry {
	result := []models.LedgerEntry{}
	for _, e := range entries {
		if e.TransactionID == transactionID {
			result = append(result, e)
		}
	}
	return result
}

func (s *Store) LedgerEntries(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []models.LedgerEntry{}
	for _, e := range s.entries {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balanceOf(s.entries, accountID), nil
}

func balanceOf(entries []models.LedgerEntry, accountID string) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if e.AccountID == accountID {
			balance = balance.Add(e.Amount)
		}
	}
	return balance
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return &account, nil
}

func (s *Store) DepartmentBudgetForUser(ctx context.Context, userID string) (*models.DepartmentBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deptID, ok := s.userDept[userID]
	if !ok {
		return nil, nil
	}
	budget, ok := s.departments[deptID]
	if !ok {
		return nil, nil
	}
	return &budget, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.unit.Lock()
	defer s.unit.Unlock()

	t := &memTx{s: s, txs: make(map[string]models.Transaction)}
	if err := fn(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range t.txOrder {
		s.putTransaction(t.txs[id])
	}
	for _, e := range t.entries {
		s.entries = append(s.entries, e)
		s.hashes[e.Hash] = struct{}{}
	}
	return nil
}

// =============================================================================
// UNIT OF WORK - staged writes, read-through to the store
// =============================================================================

type memTx struct {
	s       *Store
	txs     map[string]models.Transaction
	txOrder []string
	entries []models.LedgerEntry
}

func (t *memTx) transaction(id string) (models.Transaction, bool) {
	if tx, ok := t.txs[id]; ok {
		return tx, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tx, ok := t.s.transactions[id]
	return tx, ok
}

func (t *memTx) stage(tx models.Transaction) {
	if _, ok := t.txs[tx.ID]; !ok {
		t.txOrder = append(t.txOrder, tx.ID)
	}
	t.txs[tx.ID] = tx
}

func (t *memTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *memTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, ok := t.transaction(id)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	return &tx, nil
}

func (t *memTx) LockDepartment(ctx context.Context, departmentID string) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if _, ok := t.s.departments[departmentID]; !ok {
		return fmt.Errorf("department %s: %w", departmentID, models.ErrNotFound)
	}
	return nil
}

func (t *memTx) DepartmentSpend(ctx context.Context, departmentID string, from, to time.Time, excludeID string) (decimal.Decimal, error) {
	t.s.mu.RLock()
	merged := make(map[string]models.Transaction, len(t.s.transactions)+len(t.txs))
	for id, tx := range t.s.transactions {
		merged[id] = tx
	}
	t.s.mu.RUnlock()
	for id, tx := range t.txs {
		merged[id] = tx
	}

	spend := decimal.Zero
	for id, tx := range merged {
		if id == excludeID || tx.DepartmentID == nil || *tx.DepartmentID != departmentID {
			continue
		}
		if tx.Status != models.StatusSuccess && tx.Status != models.StatusProcessing {
			continue
		}
		if tx.Timestamp.Before(from) || !tx.Timestamp.Before(to) {
			continue
		}
		spend = spend.Add(tx.Amount)
	}
	return spend, nil
}

func (t *memTx) LockAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return t.s.GetAccount(ctx, accountID)
}

func (t *memTx) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	t.s.mu.RLock()
	balance := balanceOf(t.s.entries, accountID)
	t.s.mu.RUnlock()
	return balance.Add(balanceOf(t.entries, accountID)), nil
}

func (t *memTx) ChainTip(ctx context.Context) (string, error) {
	if n := len(t.entries); n > 0 {
		return t.entries[n-1].Hash, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if n := len(t.s.entries); n > 0 {
		return t.s.entries[n-1].Hash, nil
	}
	return "", nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	t.s.mu.RLock()
	_, dup := t.s.hashes[entry.Hash]
	t.s.mu.RUnlock()
	for _, e := range t.entries {
		if e.Hash == entry.Hash {
			dup = true
		}
	}
	if dup {
		return fmt.Errorf("duplicate ledger hash %s: %w", entry.Hash, models.ErrIntegrity)
	}
	t.entries = append(t.entries, *entry)
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if _, exists := t.transaction(tx.ID); exists {
		return fmt.Errorf("transaction %s already exists: %w", tx.ID, models.ErrIntegrity)
	}
	now := time.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	t.stage(*tx)
	return nil
}

func (t *memTx) HasReversal(ctx context.Context, id string) (bool, error) {
	for _, tx := range t.txs {
		if tx.ParentID != nil && *tx.ParentID == id {
			return true, nil
		}
	}
	return t.s.HasReversal(ctx, id)
}

func (t *memTx) LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	t.s.mu.RLock()
	result := entriesFor(t.s.entries, transactionID)
	t.s.mu.RUnlock()
	return append(result, entriesFor(t.entries, transactionID)...), nil
}

func (t *memTx) MarkSettled(ctx context.Context, id string) error {
	tx, ok := t.transaction(id)
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	tx.Status = models.StatusSuccess
	tx.UpdatedAt = time.Now()
	t.stage(tx)
	return nil
}
