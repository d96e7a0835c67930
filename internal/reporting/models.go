package reporting

import (
	"time"

	"license-commerce/internal/wallet"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// OverlimitWallet is a wallet whose credit_used exceeds its credit_limit, which happens
// after an admin lowers the limit below current usage.
type OverlimitWallet struct {
	WalletID    string          `json:"wallet_id"`
	UserID      string          `json:"user_id"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	CreditUsed  decimal.Decimal `json:"credit_used"`
	Excess      decimal.Decimal `json:"excess"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SpendSummaryRequest requests aggregated journal metrics.
// Tenant isolation: TenantID is required. UserID optionally narrows to one wallet.
type SpendSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id,omitempty"`
	Range    TimeRange `json:"range"`
}

// TypeTotals aggregates the journal rows of a single transaction type.
type TypeTotals struct {
	Count           int
	Amount          decimal.Decimal
	DepositDelta    decimal.Decimal
	CreditUsedDelta decimal.Decimal
}

type SpendSummary struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id,omitempty"`
	Range    TimeRange `json:"range"`

	PaymentCount        int             `json:"payment_count"`
	TotalPayments       decimal.Decimal `json:"total_payments"`
	PaidFromDeposit     decimal.Decimal `json:"paid_from_deposit"`
	PaidFromCredit      decimal.Decimal `json:"paid_from_credit"`
	TotalRefunds        decimal.Decimal `json:"total_refunds"`
	TotalDeposits       decimal.Decimal `json:"total_deposits"`
	TotalCreditPayments decimal.Decimal `json:"total_credit_payments"`

	// NetDepositDelta is the signed change of all deposit balances over the range.
	NetDepositDelta decimal.Decimal `json:"net_deposit_delta"`
	// NetCreditUsedDelta is the signed change of all credit usage over the range.
	NetCreditUsedDelta decimal.Decimal `json:"net_credit_used_delta"`
}

func (s *SpendSummary) add(typ wallet.TransactionType, t TypeTotals) {
	s.NetDepositDelta = s.NetDepositDelta.Add(t.DepositDelta)
	s.NetCreditUsedDelta = s.NetCreditUsedDelta.Add(t.CreditUsedDelta)
	switch typ {
	case wallet.TransactionTypePayment:
		s.PaymentCount += t.Count
		s.TotalPayments = s.TotalPayments.Add(t.Amount)
		s.PaidFromDeposit = s.PaidFromDeposit.Add(t.DepositDelta.Neg())
		s.PaidFromCredit = s.PaidFromCredit.Add(t.CreditUsedDelta)
	case wallet.TransactionTypeRefund:
		s.TotalRefunds = s.TotalRefunds.Add(t.Amount)
	case wallet.TransactionTypeDeposit:
		s.TotalDeposits = s.TotalDeposits.Add(t.Amount)
	case wallet.TransactionTypeCreditPayment:
		s.TotalCreditPayments = s.TotalCreditPayments.Add(t.Amount)
	case wallet.TransactionTypeCreditLimit:
		// limit changes move no money
	}
}
