package wallet

import (
	"license-commerce/internal/apperr"

	"github.com/shopspring/decimal"
)

// ledgerState is the money triple a journal entry transitions.
// Live mutations and Replay both go through apply, so the projection and the fold of
// the journal cannot drift apart unless a row is written outside this package.
type ledgerState struct {
	deposit decimal.Decimal
	limit   decimal.Decimal
	used    decimal.Decimal
}

func stateOf(w Wallet) ledgerState {
	return ledgerState{deposit: w.DepositBalance, limit: w.CreditLimit, used: w.CreditUsed}
}

func stateOfBalance(b Balance) ledgerState {
	return ledgerState{deposit: b.DepositBalance, limit: b.CreditLimit, used: b.CreditUsed}
}

func (s ledgerState) balance() Balance {
	avail := s.limit.Sub(s.used)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return Balance{
		DepositBalance:  s.deposit,
		CreditLimit:     s.limit,
		CreditUsed:      s.used,
		AvailableCredit: avail,
		TotalAvailable:  s.deposit.Add(avail),
		IsOverlimit:     s.used.GreaterThan(s.limit),
	}
}

func (s ledgerState) equal(o ledgerState) bool {
	return s.deposit.Equal(o.deposit) && s.limit.Equal(o.limit) && s.used.Equal(o.used)
}

// apply returns the state after an entry of the given type and magnitude.
// Callers validate admission (canPay) before applying a payment.
func (s ledgerState) apply(typ TransactionType, amount decimal.Decimal) ledgerState {
	switch typ {
	case TransactionTypeDeposit:
		s.deposit = s.deposit.Add(amount)
	case TransactionTypeCreditLimit:
		s.limit = amount
	case TransactionTypeCreditPayment:
		s.used = decimal.Max(decimal.Zero, s.used.Sub(amount))
	case TransactionTypePayment:
		fromDeposit := decimal.Min(s.deposit, amount)
		s.deposit = s.deposit.Sub(fromDeposit)
		s.used = s.used.Add(amount.Sub(fromDeposit))
	case TransactionTypeRefund:
		// Credit is restored first; what is left goes back to the deposit.
		toCredit := decimal.Min(s.used, amount)
		s.used = s.used.Sub(toCredit)
		s.deposit = s.deposit.Add(amount.Sub(toCredit))
	}
	return s
}

// canPay is the admission check: deposit plus unused credit must cover the amount.
func (s ledgerState) canPay(amount decimal.Decimal) bool {
	return s.balance().TotalAvailable.GreaterThanOrEqual(amount)
}

func paymentMethod(before, after ledgerState) PaymentMethod {
	usedDeposit := before.deposit.GreaterThan(after.deposit)
	usedCredit := after.used.GreaterThan(before.used)
	switch {
	case usedDeposit && usedCredit:
		return PaymentMethodDepositAndCredit
	case usedCredit:
		return PaymentMethodCredit
	default:
		return PaymentMethodDeposit
	}
}

// entry fills the amount, deltas and snapshots of a journal row.
func entry(typ TransactionType, amount decimal.Decimal, before, after ledgerState) Transaction {
	return Transaction{
		Type:            typ,
		Amount:          amount,
		DepositDelta:    after.deposit.Sub(before.deposit),
		CreditUsedDelta: after.used.Sub(before.used),
		BalanceAfter:    after.deposit,
		CreditUsedAfter: after.used,
	}
}

// Replay folds a journal, oldest entry first, into a balance.
// It also returns how many entries carry a snapshot that disagrees with the fold.
func Replay(txs []Transaction) (Balance, int) {
	var s ledgerState
	mismatches := 0
	for _, t := range txs {
		s = s.apply(t.Type, t.Amount)
		if !s.deposit.Equal(t.BalanceAfter) || !s.used.Equal(t.CreditUsedAfter) {
			mismatches++
		}
	}
	return s.balance(), mismatches
}

func validateAmount(field string, d decimal.Decimal, allowZero bool) error {
	if d.IsNegative() {
		return apperr.Validation("%s must not be negative", field)
	}
	if d.IsZero() && !allowZero {
		return apperr.Validation("%s must be greater than zero", field)
	}
	if !d.Equal(d.Round(2)) {
		return apperr.Validation("%s must have at most 2 decimal places", field)
	}
	return nil
}

func validateOwner(userID, tenantID string) error {
	if userID == "" || tenantID == "" {
		return apperr.Validation("user_id and tenant_id are required")
	}
	return nil
}
