package wallet

import (
	"context"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service provides wallet ledger operations.
//
// Money invariants:
// - No balance change without exactly one journal row, written in the same transaction
// - Journal is append-only (immutable)
// - The admission check and the debit of a payment run under the wallet row lock
//
// Tenancy invariant:
// - tenant_id is required and enforced in all queries
type Service struct {
	repo Repository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

const (
	defaultSummaryEntries = 10
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 500
)

// ErrWalletInactive is returned for mutations on a soft-deactivated wallet.
var ErrWalletInactive = apperr.Validation("wallet is inactive")

// entryMeta carries the attribution fields of a journal row.
type entryMeta struct {
	description string
	orderID     string
	adminID     string
}

func (s *Service) GetOrCreateWallet(ctx context.Context, tenantID, userID string) (Wallet, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Wallet{}, err
	}
	w, err := s.repo.GetOrCreate(ctx, tenantID, userID)
	return w, apperr.FromStore("get or create wallet", err)
}

// GetWalletSummary returns the stored balance and the newest journal rows.
func (s *Service) GetWalletSummary(ctx context.Context, tenantID, userID string, recent int) (Summary, error) {
	w, err := s.GetOrCreateWallet(ctx, tenantID, userID)
	if err != nil {
		return Summary{}, err
	}
	if recent <= 0 {
		recent = defaultSummaryEntries
	}
	txs, err := s.repo.ListTransactions(ctx, tenantID, userID, recent)
	if err != nil {
		return Summary{}, apperr.FromStore("list transactions", err)
	}
	return Summary{Wallet: w, Balance: w.Balance(), RecentTransactions: txs}, nil
}

func (s *Service) AddDeposit(ctx context.Context, tenantID, userID string, amount decimal.Decimal, description, adminID string) (Transaction, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Transaction{}, err
	}
	if err := validateAmount("amount", amount, false); err != nil {
		return Transaction{}, err
	}
	return s.post(ctx, "add deposit", tenantID, userID, TransactionTypeDeposit, amount, entryMeta{description: description, adminID: adminID})
}

func (s *Service) SetCreditLimit(ctx context.Context, tenantID, userID string, newLimit decimal.Decimal, adminID string) (Transaction, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Transaction{}, err
	}
	if err := validateAmount("credit_limit", newLimit, true); err != nil {
		return Transaction{}, err
	}
	desc := "credit limit set to " + newLimit.StringFixed(2)
	return s.post(ctx, "set credit limit", tenantID, userID, TransactionTypeCreditLimit, newLimit, entryMeta{description: desc, adminID: adminID})
}

// RecordCreditPayment reduces credit used, floored at zero.
func (s *Service) RecordCreditPayment(ctx context.Context, tenantID, userID string, amount decimal.Decimal, description, adminID string) (Transaction, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Transaction{}, err
	}
	if err := validateAmount("amount", amount, false); err != nil {
		return Transaction{}, err
	}
	return s.post(ctx, "record credit payment", tenantID, userID, TransactionTypeCreditPayment, amount, entryMeta{description: description, adminID: adminID})
}

// Refund returns money for an order: credit used is restored first, the rest goes to the deposit.
func (s *Service) Refund(ctx context.Context, tenantID, userID string, amount decimal.Decimal, orderID, description, adminID string) (Transaction, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Transaction{}, err
	}
	if err := validateAmount("amount", amount, false); err != nil {
		return Transaction{}, err
	}
	return s.post(ctx, "refund", tenantID, userID, TransactionTypeRefund, amount, entryMeta{description: description, orderID: orderID, adminID: adminID})
}

// ProcessPayment debits the deposit first and puts any shortfall on credit.
//
// If deposit plus unused credit does not cover the amount, the result is
// {Success:false, PaymentMethod:"insufficient_funds"} with a nil error and nothing is written.
func (s *Service) ProcessPayment(ctx context.Context, tenantID, userID string, amount decimal.Decimal, orderID, description string) (PaymentResult, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return PaymentResult{}, err
	}
	if err := validateAmount("amount", amount, false); err != nil {
		return PaymentResult{}, err
	}
	if orderID == "" {
		return PaymentResult{}, apperr.Validation("order_id is required")
	}

	now := s.clock().UTC()
	var result PaymentResult

	_, err := s.repo.Mutate(ctx, tenantID, userID, func(w Wallet) (*Wallet, *Transaction, error) {
		if !w.IsActive {
			return nil, nil, ErrWalletInactive
		}
		before := stateOf(w)
		if !before.canPay(amount) {
			result = PaymentResult{Success: false, PaymentMethod: PaymentMethodInsufficientFunds, Balance: before.balance()}
			return nil, nil, nil
		}
		after := before.apply(TransactionTypePayment, amount)
		e := s.newEntry(w, TransactionTypePayment, amount, before, after, entryMeta{description: description, orderID: orderID}, now)
		next := withState(w, after, now)
		result = PaymentResult{Success: true, PaymentMethod: paymentMethod(before, after), Transaction: &e, Balance: after.balance()}
		return &next, &e, nil
	})
	if err != nil {
		return PaymentResult{}, apperr.FromStore("process payment", err)
	}

	paymentsTotal.WithLabelValues(string(result.PaymentMethod)).Inc()
	log := logger.From(ctx).With("tenant_id", tenantID, "user_id", userID, "order_id", orderID)
	if result.Success {
		ledgerOpsTotal.WithLabelValues(string(TransactionTypePayment)).Inc()
		log.Info("payment applied", "amount", amount.StringFixed(2), "method", result.PaymentMethod)
	} else {
		log.Info("payment rejected", "amount", amount.StringFixed(2), "reason", result.PaymentMethod)
	}
	return result, nil
}

// GetTransactionHistory returns journal rows newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, tenantID, userID string, limit int) ([]Transaction, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	txs, err := s.repo.ListTransactions(ctx, tenantID, userID, limit)
	return txs, apperr.FromStore("list transactions", err)
}

// Reconcile folds the whole journal and compares it with the stored wallet.
func (s *Service) Reconcile(ctx context.Context, tenantID, userID string) (Reconciliation, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Reconciliation{}, err
	}
	w, journal, err := s.repo.Snapshot(ctx, tenantID, userID)
	if err != nil {
		return Reconciliation{}, apperr.FromStore("wallet snapshot", err)
	}
	folded, mismatches := Replay(journal)
	stored := w.Balance()
	consistent := mismatches == 0 && stateOf(w).equal(stateOfBalance(folded))

	if !consistent {
		logger.From(ctx).Warn("wallet projection disagrees with journal",
			"tenant_id", tenantID, "user_id", userID, "wallet_id", w.ID, "snapshot_mismatches", mismatches)
	}
	return Reconciliation{
		WalletID:           w.ID,
		Stored:             stored,
		Folded:             folded,
		Entries:            len(journal),
		SnapshotMismatches: mismatches,
		Consistent:         consistent,
	}, nil
}

// SetActive soft-(de)activates a wallet. Balances are untouched, so no journal row is written.
func (s *Service) SetActive(ctx context.Context, tenantID, userID string, active bool, adminID string) (Wallet, error) {
	if err := validateOwner(userID, tenantID); err != nil {
		return Wallet{}, err
	}
	if adminID == "" {
		return Wallet{}, apperr.Validation("admin_id is required")
	}
	now := s.clock().UTC()
	w, err := s.repo.Mutate(ctx, tenantID, userID, func(w Wallet) (*Wallet, *Transaction, error) {
		if w.IsActive == active {
			return nil, nil, nil
		}
		next := w
		next.IsActive = active
		next.UpdatedAt = now
		return &next, nil, nil
	})
	if err != nil {
		return Wallet{}, apperr.FromStore("set wallet active", err)
	}
	logger.From(ctx).Info("wallet activation changed",
		"tenant_id", tenantID, "user_id", userID, "active", active, "admin_id", adminID)
	return w, nil
}

// post applies one non-payment journal entry under the wallet lock.
func (s *Service) post(ctx context.Context, op, tenantID, userID string, typ TransactionType, amount decimal.Decimal, meta entryMeta) (Transaction, error) {
	now := s.clock().UTC()
	var posted *Transaction

	_, err := s.repo.Mutate(ctx, tenantID, userID, func(w Wallet) (*Wallet, *Transaction, error) {
		if !w.IsActive {
			return nil, nil, ErrWalletInactive
		}
		before := stateOf(w)
		after := before.apply(typ, amount)
		e := s.newEntry(w, typ, amount, before, after, meta, now)
		next := withState(w, after, now)
		posted = &e
		return &next, &e, nil
	})
	if err != nil {
		return Transaction{}, apperr.FromStore(op, err)
	}

	ledgerOpsTotal.WithLabelValues(string(typ)).Inc()
	logger.From(ctx).Info("ledger entry posted",
		"tenant_id", tenantID, "user_id", userID, "type", typ,
		"amount", amount.StringFixed(2), "admin_id", meta.adminID)
	return *posted, nil
}

func (s *Service) newEntry(w Wallet, typ TransactionType, amount decimal.Decimal, before, after ledgerState, meta entryMeta, now time.Time) Transaction {
	e := entry(typ, amount, before, after)
	e.ID = uuid.NewString()
	e.WalletID = w.ID
	e.TenantID = w.TenantID
	e.UserID = w.UserID
	e.Description = meta.description
	e.OrderID = meta.orderID
	e.AdminID = meta.adminID
	e.CreatedAt = now
	return e
}

func withState(w Wallet, s ledgerState, now time.Time) Wallet {
	w.DepositBalance = s.deposit
	w.CreditLimit = s.limit
	w.CreditUsed = s.used
	w.UpdatedAt = now
	return w
}
