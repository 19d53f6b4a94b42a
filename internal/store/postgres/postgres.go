// Package postgres implements store.Store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/store"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Constraint names from database.Schema, used to tell unique violations apart.
const (
	idempotencyConstraint = "transactions_user_idempotency_key_key"
	ledgerHashConstraint  = "ledger_entries_hash_key"

	uniqueViolation  = "23505"
	lockNotAvailable = "55P03"
)

const transactionColumns = `id, user_id, amount, category, type, description, from_account_id, to_account_id,
	occurred_at, status, idempotency_key, parent_id, reasons, department_id, is_flagged, created_at, updated_at`

const entryColumns = `id, account_id, user_id, type, amount, category, occurred_at, hash, prev_hash,
	transaction_id, is_reversal, original_hash`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New returns a Store. lockTimeout bounds every row lock taken inside WithTx.
func New(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// mapError translates driver errors into the models error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			switch pqErr.Constraint {
			case idempotencyConstraint:
				return fmt.Errorf("%w: %v", models.ErrDuplicateSubmission, err)
			case ledgerHashConstraint:
				return fmt.Errorf("%w: duplicate ledger hash: %v", models.ErrIntegrity, err)
			}
		case lockNotAvailable:
			return fmt.Errorf("%w: %v", models.ErrLockTimeout, err)
		}
	}
	return err
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return mapError(err)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx                    models.Transaction
		idemKey, parent, dept sql.NullString
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Category, &tx.Type, &tx.Description,
		&tx.FromAccountID, &tx.ToAccountID, &tx.Timestamp, &tx.Status,
		&idemKey, &parent, &tx.Reasons, &dept, &tx.IsFlagged, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.IdempotencyKey = ptr(idemKey)
	tx.ParentID = ptr(parent)
	tx.DepartmentID = ptr(dept)
	return &tx, nil
}

func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(
		&e.ID, &e.AccountID, &e.UserID, &e.Type, &e.Amount, &e.Category, &e.Timestamp,
		&e.Hash, &e.PrevHash, &e.TransactionID, &e.IsReversal, &e.OriginalHash,
	)
	return e, err
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getTransaction(ctx context.Context, q querier, id string, forUpdate bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tx, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("transaction", id, err)
	}
	return tx, nil
}

func getAccount(ctx context.Context, q querier, id string, forUpdate bool) (*models.Account, error) {
	query := `SELECT id, user_id, name, type, created_at FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var a models.Account
	err := q.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.CreatedAt)
	if err != nil {
		return nil, notFound("account", id, err)
	}
	return &a, nil
}

func accountBalance(ctx context.Context, q querier, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, q querier, tx *models.Transaction) error {
	now := time.Now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tx.ID, tx.UserID, tx.Amount, tx.Category, tx.Type, tx.Description,
		tx.FromAccountID, tx.ToAccountID, tx.Timestamp, tx.Status,
		nullable(tx.IdempotencyKey), nullable(tx.ParentID), tx.Reasons, nullable(tx.DepartmentID),
		tx.IsFlagged, tx.CreatedAt, tx.UpdatedAt,
	)
	return mapError(err)
}

// =============================================================================
// STORE
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	err := insertTransaction(ctx, s.db, tx)
	if errors.Is(err, models.ErrDuplicateSubmission) && tx.IdempotencyKey != nil {
		dup := &models.DuplicateSubmissionError{IdempotencyKey: *tx.IdempotencyKey}
		if existing, findErr := s.FindByIdempotencyKey(ctx, tx.UserID, *tx.IdempotencyKey); findErr == nil {
			dup.ExistingTransactionID = existing.ID
		}
		return dup
	}
	return err
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if err != nil {
		return nil, notFound("idempotency key", key, err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) MarkProcessing(ctx context.Context, id string, departmentID *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = 'PROCESSING', department_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`,
		id, nullable(departmentID))
	return mapError(err)
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = 'FAILED', reasons = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`,
		id, reason)
	return mapError(err)
}

func (s *Store) FlagTransaction(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET is_flagged = TRUE,
			reasons = CASE WHEN reasons = '' THEN $2 ELSE reasons || '; ' || $2 END,
			updated_at = NOW()
		WHERE id = $1`,
		id, reason)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) HasReversal(ctx context.Context, id string) (bool, error) {
	return hasReversal(ctx, s.db, id)
}

func hasReversal(ctx context.Context, q querier, id string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE parent_id = $1)`, id,
	).Scan(&exists)
	return exists, mapError(err)
}

func (s *Store) LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY seq`, transactionID)
}

func (s *Store) LedgerEntries(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY seq`,
		from, to)
}

func (s *Store) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return accountBalance(ctx, s.db, accountID)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getAccount(ctx, s.db, id, false)
}

func (s *Store) DepartmentBudgetForUser(ctx context.Context, userID string) (*models.DepartmentBudget, error) {
	var b models.DepartmentBudget
	err := s.db.QueryRowContext(ctx,
		`SELECT d.id, d.name, d.organization_id, d.budget_limit
		FROM department_members m JOIN departments d ON d.id = m.department_id
		WHERE m.user_id = $1`, userID,
	).Scan(&b.DepartmentID, &b.Name, &b.OrganizationID, &b.BudgetLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return mapError(sqlTx.Commit())
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func (t *pgTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return getTransaction(ctx, t.tx, id, false)
}

func (t *pgTx) LockDepartment(ctx context.Context, departmentID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM departments WHERE id = $1 FOR UPDATE`, departmentID).Scan(&id)
	if err != nil {
		return notFound("department", departmentID, err)
	}
	return nil
}

func (t *pgTx) DepartmentSpend(ctx context.Context, departmentID string, from, to time.Time, excludeID string) (decimal.Decimal, error) {
	var spend decimal.Decimal
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE department_id = $1 AND status IN ('SUCCESS', 'PROCESSING')
		AND occurred_at >= $2 AND occurred_at < $3 AND id <> $4`,
		departmentID, from, to, excludeID,
	).Scan(&spend)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	return spend, nil
}

func (t *pgTx) LockAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return getAccount(ctx, t.tx, accountID, true)
}

func (t *pgTx) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return accountBalance(ctx, t.tx, accountID)
}

func (t *pgTx) ChainTip(ctx context.Context) (string, error) {
	var hash string
	err := t.tx.QueryRowContext(ctx, `SELECT hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, mapError(err)
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.AccountID, e.UserID, e.Type, e.Amount, e.Category, e.Timestamp,
		e.Hash, e.PrevHash, e.TransactionID, e.IsReversal, e.OriginalHash,
	)
	return mapError(err)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return insertTransaction(ctx, t.tx, tx)
}

func (t *pgTx) HasReversal(ctx context.Context, id string) (bool, error) {
	return hasReversal(ctx, t.tx, id)
}

func (t *pgTx) LedgerEntriesFor(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, t.tx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY seq`, transactionID)
}

func (t *pgTx) MarkSettled(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET status = 'SUCCESS', updated_at = NOW() WHERE id = $1`, id)
	return mapError(err)
}
