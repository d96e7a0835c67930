package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/pkg/utils"
)

// ErrOrderNotFound is returned for unknown orders.
var ErrOrderNotFound = apperr.NotFound("order")

// ErrIllegalTransition is returned when an order is not in the expected status.
var ErrIllegalTransition = fmt.Errorf("%w: illegal order status transition", apperr.ErrConflict)

// ErrCheckoutInProgress is returned when the same cart version already has a pending or paid order.
var ErrCheckoutInProgress = fmt.Errorf("%w: cart already checked out", apperr.ErrConflict)

// OrderStore persists orders and their lines.
type OrderStore interface {
	// Create fails with ErrCheckoutInProgress when another pending or paid order holds
	// the same (tenant, user, cart_seq).
	Create(ctx context.Context, o Order) error
	// Transition moves an order from one status to another, recording the payment method.
	Transition(ctx context.Context, tenantID, orderID string, from, to OrderStatus, method string, now time.Time) error
	Get(ctx context.Context, tenantID, orderID string) (Order, error)
}

// NOTE: This store assumes the orders and order_lines tables exist (see internal/db/migrations),
// with orders_open_cart_seq_idx unique over (tenant_id, user_id, cart_seq) for open orders.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Create(ctx context.Context, o Order) error {
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO orders (id, tenant_id, user_id, status, total, payment_method, note, cart_seq, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
`
		if _, err := tx.ExecContext(ctx, q, o.ID, o.TenantID, o.UserID, o.Status, o.Total,
			utils.NullString(o.PaymentMethod), utils.NullString(o.Note), o.CartSeq, o.CreatedAt); err != nil {
			return err
		}
		const ql = `
INSERT INTO order_lines (order_id, line_no, product_id, name, unit_price, quantity)
VALUES ($1, $2, $3, $4, $5, $6)
`
		for i, l := range o.Lines {
			if _, err := tx.ExecContext(ctx, ql, o.ID, i+1, l.ProductID, l.Name, l.UnitPrice, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if utils.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrCheckoutInProgress, err)
	}
	return err
}

func (s *PostgresStore) Transition(ctx context.Context, tenantID, orderID string, from, to OrderStatus, method string, now time.Time) error {
	if !from.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	const q = `
UPDATE orders
SET status = $4, payment_method = $5, updated_at = $6
WHERE tenant_id = $1 AND id = $2 AND status = $3
`
	res, err := s.db.ExecContext(ctx, q, tenantID, orderID, from, to, utils.NullString(method), now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, tenantID, orderID); err != nil {
			return err
		}
		return ErrIllegalTransition
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, orderID string) (Order, error) {
	const q = `
SELECT id, tenant_id, user_id, status, total, payment_method, note, cart_seq, created_at, updated_at
FROM orders
WHERE tenant_id = $1 AND id = $2
`
	var (
		o       Order
		method  sql.NullString
		note    sql.NullString
		cartSeq sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, q, tenantID, orderID).Scan(
		&o.ID, &o.TenantID, &o.UserID, &o.Status, &o.Total, &method, &note, &cartSeq, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.PaymentMethod = method.String
	o.Note = note.String
	o.CartSeq = cartSeq.Int64

	const ql = `
SELECT product_id, name, unit_price, quantity
FROM order_lines
WHERE order_id = $1
ORDER BY line_no
`
	rows, err := s.db.QueryContext(ctx, ql, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Lines = make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Name, &l.UnitPrice, &l.Quantity); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// MemoryStore is an in-memory OrderStore useful for tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{orders: make(map[string]Order)} }

func (s *MemoryStore) Create(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, other := range s.orders {
		if other.TenantID == o.TenantID && other.UserID == o.UserID && other.CartSeq == o.CartSeq &&
			other.Status != OrderStatusPaymentFailed {
			return ErrCheckoutInProgress
		}
	}
	o.Lines = append([]Line(nil), o.Lines...)
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) Transition(ctx context.Context, tenantID, orderID string, from, to OrderStatus, method string, now time.Time) error {
	if !from.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return ErrIllegalTransition
	}
	o.Status = to
	o.PaymentMethod = method
	o.UpdatedAt = now
	s.orders[orderID] = o
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}
