package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
//
// Mutate holds a per-wallet mutex for the whole unit of work, standing in for the
// row lock, and stages changes so a failure leaves nothing behind.
type MemoryRepo struct {
	mu      sync.Mutex
	wallets map[walletKey]Wallet
	journal map[walletKey][]Transaction
	locks   map[walletKey]*sync.Mutex
	seq     int64

	failInsert error
}

type walletKey struct{ tenantID, userID string }

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		wallets: make(map[walletKey]Wallet),
		journal: make(map[walletKey][]Transaction),
		locks:   make(map[walletKey]*sync.Mutex),
	}
}

// FailInserts makes every following journal insert fail with err (nil resets).
func (r *MemoryRepo) FailInserts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failInsert = err
}

// Put overwrites a stored wallet without a journal row, simulating out-of-band drift.
func (r *MemoryRepo) Put(w Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[walletKey{w.TenantID, w.UserID}] = w
}

func (r *MemoryRepo) GetOrCreate(ctx context.Context, tenantID, userID string) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(walletKey{tenantID, userID}), nil
}

func (r *MemoryRepo) Mutate(ctx context.Context, tenantID, userID string, fn MutateFunc) (Wallet, error) {
	k := walletKey{tenantID, userID}
	lock := r.walletLock(k)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Wallet{}, err
	}

	r.mu.Lock()
	w := r.getOrCreateLocked(k)
	r.mu.Unlock()

	next, e, err := fn(w)
	if err != nil {
		return Wallet{}, err
	}
	if next == nil {
		return w, nil
	}
	if err := checkConstraints(*next); err != nil {
		return Wallet{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e != nil {
		if r.failInsert != nil {
			return Wallet{}, r.failInsert
		}
		r.seq++
		e.Seq = r.seq
		r.journal[k] = append(r.journal[k], *e)
	}
	r.wallets[k] = *next
	return *next, nil
}

func (r *MemoryRepo) ListTransactions(ctx context.Context, tenantID, userID string, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.journal[walletKey{tenantID, userID}]
	out := make([]Transaction, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (r *MemoryRepo) Snapshot(ctx context.Context, tenantID, userID string) (Wallet, []Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := walletKey{tenantID, userID}
	w := r.getOrCreateLocked(k)
	out := make([]Transaction, len(r.journal[k]))
	copy(out, r.journal[k])
	return w, out, nil
}

// AllWallets returns every stored wallet; used by in-memory report sources.
func (r *MemoryRepo) AllWallets() []Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, w)
	}
	return out
}

// AllTransactions returns every journal row in commit order.
func (r *MemoryRepo) AllTransactions() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, txs := range r.journal {
		out = append(out, txs...)
	}
	// seq is global, so commit order is seq order.
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *MemoryRepo) getOrCreateLocked(k walletKey) Wallet {
	if w, ok := r.wallets[k]; ok {
		return w
	}
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		TenantID:  k.tenantID,
		UserID:    k.userID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.wallets[k] = w
	return w
}

func (r *MemoryRepo) walletLock(k walletKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[k]
	if !ok {
		l = &sync.Mutex{}
		r.locks[k] = l
	}
	return l
}

var errCheckViolation = errors.New("check constraint violated")

// checkConstraints mirrors the table CHECKs on the money columns.
func checkConstraints(w Wallet) error {
	if w.DepositBalance.IsNegative() || w.CreditLimit.IsNegative() || w.CreditUsed.IsNegative() {
		return fmt.Errorf("wallet %s: %w", w.ID, errCheckViolation)
	}
	return nil
}
