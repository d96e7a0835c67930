package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/pkg/utils"

	"github.com/google/uuid"
)

// MutateFunc receives the locked wallet and returns the wallet to store and the journal
// entry to append. A nil wallet means "no change"; an entry requires a wallet.
// It may run more than once when the transaction is retried, so it must be pure.
type MutateFunc func(w Wallet) (*Wallet, *Transaction, error)

// Repository persists wallets and their journal.
type Repository interface {
	GetOrCreate(ctx context.Context, tenantID, userID string) (Wallet, error)
	// Mutate locks the (tenant, user) wallet, creating it if needed, and commits fn's
	// result atomically. The entry's Seq is filled on success.
	Mutate(ctx context.Context, tenantID, userID string, fn MutateFunc) (Wallet, error)
	// ListTransactions returns up to limit journal rows, newest first.
	ListTransactions(ctx context.Context, tenantID, userID string, limit int) ([]Transaction, error)
	// Snapshot returns the wallet and its full journal (oldest first) from one consistent read.
	Snapshot(ctx context.Context, tenantID, userID string) (Wallet, []Transaction, error)
}

// NOTE: This repository assumes the following tables exist (see internal/db/migrations):
// - wallets (UNIQUE (tenant_id, user_id); CHECKs keep money columns non-negative)
// - wallet_transactions (append-only; a trigger rejects UPDATE and DELETE)

type PostgresRepo struct {
	db      *sql.DB
	retries int
	clock   func() time.Time
}

// NewPostgresRepo returns a repository that retries serialization failures and
// deadlocks up to retries times.
func NewPostgresRepo(db *sql.DB, retries int) *PostgresRepo {
	return &PostgresRepo{db: db, retries: retries, clock: time.Now}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PostgresRepo) GetOrCreate(ctx context.Context, tenantID, userID string) (Wallet, error) {
	if err := ensureWallet(ctx, r.db, tenantID, userID, r.clock().UTC()); err != nil {
		return Wallet{}, err
	}
	return getWallet(ctx, r.db, tenantID, userID, "")
}

func (r *PostgresRepo) Mutate(ctx context.Context, tenantID, userID string, fn MutateFunc) (Wallet, error) {
	var out Wallet
	err := utils.WithTxRetry(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, r.retries, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureWallet(ctx, tx, tenantID, userID, r.clock().UTC()); err != nil {
			return err
		}
		w, err := getWallet(ctx, tx, tenantID, userID, "FOR UPDATE")
		if err != nil {
			return err
		}

		next, e, err := fn(w)
		if err != nil {
			return err
		}
		if next == nil {
			out = w
			return nil
		}
		if err := updateWallet(ctx, tx, *next); err != nil {
			return err
		}
		if e != nil {
			if err := insertTransaction(ctx, tx, e); err != nil {
				return err
			}
		}
		out = *next
		return nil
	})
	return out, err
}

func (r *PostgresRepo) ListTransactions(ctx context.Context, tenantID, userID string, limit int) ([]Transaction, error) {
	const q = selectTransactions + `
WHERE tenant_id = $1 AND user_id = $2
ORDER BY seq DESC
LIMIT $3
`
	return queryTransactions(ctx, r.db, q, tenantID, userID, limit)
}

func (r *PostgresRepo) Snapshot(ctx context.Context, tenantID, userID string) (Wallet, []Transaction, error) {
	var (
		w   Wallet
		txs []Transaction
	)
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		w, err = getWallet(ctx, tx, tenantID, userID, "")
		if err != nil {
			return err
		}
		const q = selectTransactions + `
WHERE tenant_id = $1 AND user_id = $2
ORDER BY seq ASC
`
		txs, err = queryTransactions(ctx, tx, q, tenantID, userID)
		return err
	})
	return w, txs, err
}

func ensureWallet(ctx context.Context, q queryer, tenantID, userID string, now time.Time) error {
	// Concurrent creators race on the unique key; the loser's insert is a no-op.
	const stmt = `
INSERT INTO wallets (id, tenant_id, user_id, deposit_balance, credit_limit, credit_used, is_active, created_at, updated_at)
VALUES ($1, $2, $3, 0, 0, 0, TRUE, $4, $4)
ON CONFLICT (tenant_id, user_id) DO NOTHING
`
	_, err := q.ExecContext(ctx, stmt, uuid.NewString(), tenantID, userID, now)
	return err
}

func getWallet(ctx context.Context, q queryer, tenantID, userID, lock string) (Wallet, error) {
	query := `
SELECT id, tenant_id, user_id, deposit_balance, credit_limit, credit_used, is_active, created_at, updated_at
FROM wallets
WHERE tenant_id = $1 AND user_id = $2
` + lock
	var w Wallet
	if err := q.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&w.ID,
		&w.TenantID,
		&w.UserID,
		&w.DepositBalance,
		&w.CreditLimit,
		&w.CreditUsed,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, apperr.NotFound("wallet")
		}
		return Wallet{}, err
	}
	return w, nil
}

func updateWallet(ctx context.Context, tx *sql.Tx, w Wallet) error {
	const q = `
UPDATE wallets
SET deposit_balance = $3, credit_limit = $4, credit_used = $5, is_active = $6, updated_at = $7
WHERE tenant_id = $1 AND id = $2
`
	res, err := tx.ExecContext(ctx, q, w.TenantID, w.ID, w.DepositBalance, w.CreditLimit, w.CreditUsed, w.IsActive, w.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("update wallet %s: %d rows affected", w.ID, n)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, e *Transaction) error {
	const q = `
INSERT INTO wallet_transactions (
  id, wallet_id, tenant_id, user_id, type, amount, deposit_delta, credit_used_delta,
  balance_after, credit_used_after, description, order_id, admin_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
RETURNING seq
`
	return tx.QueryRowContext(ctx, q,
		e.ID,
		e.WalletID,
		e.TenantID,
		e.UserID,
		e.Type,
		e.Amount,
		e.DepositDelta,
		e.CreditUsedDelta,
		e.BalanceAfter,
		e.CreditUsedAfter,
		e.Description,
		utils.NullString(e.OrderID),
		utils.NullString(e.AdminID),
		e.CreatedAt,
	).Scan(&e.Seq)
}

const selectTransactions = `
SELECT id, seq, wallet_id, tenant_id, user_id, type, amount, deposit_delta, credit_used_delta,
       balance_after, credit_used_after, description, order_id, admin_id, created_at
FROM wallet_transactions`

func queryTransactions(ctx context.Context, q queryer, query string, args ...any) ([]Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t       Transaction
			orderID sql.NullString
			adminID sql.NullString
		)
		if err := rows.Scan(
			&t.ID,
			&t.Seq,
			&t.WalletID,
			&t.TenantID,
			&t.UserID,
			&t.Type,
			&t.Amount,
			&t.DepositDelta,
			&t.CreditUsedDelta,
			&t.BalanceAfter,
			&t.CreditUsedAfter,
			&t.Description,
			&orderID,
			&adminID,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.OrderID = orderID.String
		t.AdminID = adminID.String
		out = append(out, t)
	}
	return out, rows.Err()
}
