package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/internal/wallet"
)

var ErrInvalidRequest = apperr.Validation("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Every method filters by tenant. Aggregates are read from the immutable
// wallet journal, never from the mutable wallet rows.
type Repository interface {
	OverlimitWallets(ctx context.Context, tenantID string) ([]wallet.Wallet, error)
	TotalsByType(ctx context.Context, tenantID, userID string, from, to time.Time) (map[wallet.TransactionType]TypeTotals, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// OverlimitWallets lists the tenant's wallets with credit_used > credit_limit, largest excess first.
func (s *Service) OverlimitWallets(ctx context.Context, tenantID string) ([]OverlimitWallet, error) {
	if tenantID == "" {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	rows, err := s.repo.OverlimitWallets(ctx, tenantID)
	if err != nil {
		return nil, apperr.FromStore("list overlimit wallets", err)
	}
	out := make([]OverlimitWallet, 0, len(rows))
	for _, w := range rows {
		if !w.Balance().IsOverlimit {
			continue
		}
		out = append(out, OverlimitWallet{
			WalletID:    w.ID,
			UserID:      w.UserID,
			CreditLimit: w.CreditLimit,
			CreditUsed:  w.CreditUsed,
			Excess:      w.CreditUsed.Sub(w.CreditLimit),
			UpdatedAt:   w.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Excess.Cmp(out[j].Excess); c != 0 {
			return c > 0
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// SpendSummary aggregates journal rows created in [From, To).
func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.TenantID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	totals, err := s.repo.TotalsByType(ctx, req.TenantID, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, apperr.FromStore("aggregate journal", err)
	}
	out := SpendSummary{TenantID: req.TenantID, UserID: req.UserID, Range: req.Range}
	for typ, t := range totals {
		out.add(typ, t)
	}
	return out, nil
}
