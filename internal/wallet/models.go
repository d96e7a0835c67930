package wallet

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-(tenant, user) account row.
//
// The row is a projection of the transaction journal: every change to the three money
// columns is written in the same database transaction as exactly one journal row.
// Wallets are never hard-deleted; IsActive=false soft-deactivates them.
type Wallet struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	UserID   string `json:"user_id" db:"user_id"`

	DepositBalance decimal.Decimal `json:"deposit_balance" db:"deposit_balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit" db:"credit_limit"`
	CreditUsed     decimal.Decimal `json:"credit_used" db:"credit_used"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Balance is the derived view of a wallet's money state.
type Balance struct {
	DepositBalance  decimal.Decimal
	CreditLimit     decimal.Decimal
	CreditUsed      decimal.Decimal
	AvailableCredit decimal.Decimal
	TotalAvailable  decimal.Decimal
	IsOverlimit     bool
}

// Balance derives availability from the stored columns.
func (w Wallet) Balance() Balance {
	return stateOf(w).balance()
}

// MarshalJSON renders money as fixed two-decimal strings, never negative.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DepositBalance  string `json:"deposit_balance"`
		CreditLimit     string `json:"credit_limit"`
		CreditUsed      string `json:"credit_used"`
		AvailableCredit string `json:"available_credit"`
		TotalAvailable  string `json:"total_available"`
		IsOverlimit     bool   `json:"is_overlimit"`
	}{
		DepositBalance:  money(b.DepositBalance),
		CreditLimit:     money(b.CreditLimit),
		CreditUsed:      money(b.CreditUsed),
		AvailableCredit: money(b.AvailableCredit),
		TotalAvailable:  money(b.TotalAvailable),
		IsOverlimit:     b.IsOverlimit,
	})
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d.StringFixed(2)
}

// TransactionType categorizes journal rows. Keep stable; stored in Postgres.
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeCreditLimit   TransactionType = "credit_limit"
	TransactionTypeCreditPayment TransactionType = "credit_payment"
	TransactionTypePayment       TransactionType = "payment"
	TransactionTypeRefund        TransactionType = "refund"
)

// Transaction is an immutable journal entry.
//
// Amount is the magnitude the caller asked for (for credit_limit: the new ceiling).
// DepositDelta and CreditUsedDelta are the signed effects actually applied, and the
// *After fields snapshot the wallet right after the entry.
type Transaction struct {
	ID       string `json:"id" db:"id"`
	Seq      int64  `json:"seq" db:"seq"`
	WalletID string `json:"wallet_id" db:"wallet_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	UserID   string `json:"user_id" db:"user_id"`

	Type TransactionType `json:"type" db:"type"`

	Amount          decimal.Decimal `json:"amount" db:"amount"`
	DepositDelta    decimal.Decimal `json:"deposit_delta" db:"deposit_delta"`
	CreditUsedDelta decimal.Decimal `json:"credit_used_delta" db:"credit_used_delta"`
	BalanceAfter    decimal.Decimal `json:"balance_after" db:"balance_after"`
	CreditUsedAfter decimal.Decimal `json:"credit_used_after" db:"credit_used_after"`

	Description string `json:"description,omitempty" db:"description"`
	OrderID     string `json:"order_id,omitempty" db:"order_id"`
	AdminID     string `json:"admin_id,omitempty" db:"admin_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PaymentMethod reports how a payment was funded.
type PaymentMethod string

const (
	PaymentMethodDeposit           PaymentMethod = "deposit"
	PaymentMethodCredit            PaymentMethod = "credit"
	PaymentMethodDepositAndCredit  PaymentMethod = "deposit_and_credit"
	PaymentMethodInsufficientFunds PaymentMethod = "insufficient_funds"
)

// PaymentResult is the outcome of ProcessPayment. Insufficient funds is a normal
// outcome (Success=false), not an error.
type PaymentResult struct {
	Success       bool          `json:"success"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Transaction   *Transaction  `json:"transaction,omitempty"`
	Balance       Balance       `json:"balance"`
}

// Summary is the read model returned to customers and admins.
type Summary struct {
	Wallet             Wallet        `json:"wallet"`
	Balance            Balance       `json:"balance"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}

// Reconciliation compares the stored wallet to the fold of its journal.
type Reconciliation struct {
	WalletID string  `json:"wallet_id"`
	Stored   Balance `json:"stored"`
	Folded   Balance `json:"folded"`
	Entries  int     `json:"entries"`
	// SnapshotMismatches counts journal rows whose *After snapshot disagrees with the fold.
	SnapshotMismatches int  `json:"snapshot_mismatches"`
	Consistent         bool `json:"consistent"`
}
