package reporting

import (
	"context"
	"database/sql"
	"time"

	"license-commerce/internal/wallet"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) OverlimitWallets(ctx context.Context, tenantID string) ([]wallet.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, deposit_balance, credit_limit, credit_used, is_active, created_at, updated_at
		FROM wallets
		WHERE tenant_id = $1 AND credit_used > credit_limit
		ORDER BY credit_used - credit_limit DESC, user_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wallet.Wallet
	for rows.Next() {
		var w wallet.Wallet
		if err := rows.Scan(&w.ID, &w.TenantID, &w.UserID, &w.DepositBalance, &w.CreditLimit, &w.CreditUsed,
			&w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TotalsByType(ctx context.Context, tenantID, userID string, from, to time.Time) (map[wallet.TransactionType]TypeTotals, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(deposit_delta), 0), COALESCE(SUM(credit_used_delta), 0)
		FROM wallet_transactions
		WHERE tenant_id = $1
		  AND ($2 = '' OR user_id = $2)
		  AND created_at >= $3 AND created_at < $4
		GROUP BY type`, tenantID, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[wallet.TransactionType]TypeTotals)
	for rows.Next() {
		var (
			typ string
			t   TypeTotals
		)
		if err := rows.Scan(&typ, &t.Count, &t.Amount, &t.DepositDelta, &t.CreditUsedDelta); err != nil {
			return nil, err
		}
		out[wallet.TransactionType(typ)] = t
	}
	return out, rows.Err()
}
