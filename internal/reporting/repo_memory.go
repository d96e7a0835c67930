package reporting

import (
	"context"
	"errors"
	"time"

	"license-commerce/internal/wallet"
)

// Source is the read side of an in-memory wallet store (wallet.MemoryRepo).
type Source interface {
	AllWallets() []wallet.Wallet
	AllTransactions() []wallet.Transaction
}

// MemoryRepo aggregates over an in-memory wallet store for tests and local runs.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	src Source
}

func NewMemoryRepo(src Source) *MemoryRepo { return &MemoryRepo{src: src} }

func (r *MemoryRepo) OverlimitWallets(ctx context.Context, tenantID string) ([]wallet.Wallet, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	var out []wallet.Wallet
	for _, w := range r.src.AllWallets() {
		if w.TenantID == tenantID && w.CreditUsed.GreaterThan(w.CreditLimit) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *MemoryRepo) TotalsByType(ctx context.Context, tenantID, userID string, from, to time.Time) (map[wallet.TransactionType]TypeTotals, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	out := make(map[wallet.TransactionType]TypeTotals)
	for _, tx := range r.src.AllTransactions() {
		if tx.TenantID != tenantID || (userID != "" && tx.UserID != userID) {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		t := out[tx.Type]
		t.Count++
		t.Amount = t.Amount.Add(tx.Amount)
		t.DepositDelta = t.DepositDelta.Add(tx.DepositDelta)
		t.CreditUsedDelta = t.CreditUsedDelta.Add(tx.CreditUsedDelta)
		out[tx.Type] = t
	}
	return out, nil
}
