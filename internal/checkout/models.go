package checkout

import (
	"time"

	"license-commerce/internal/wallet"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusPaymentFailed
}

// CanTransitionTo allows pending → paid and pending → payment_failed only.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.IsTerminal()
}

type Order struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	UserID        string          `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Note          string          `json:"note,omitempty"`
	// CartSeq is the cart's newest event when it was priced. At most one pending or
	// paid order exists per (tenant, user, cart_seq).
	CartSeq   int64     `json:"cart_seq"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Line is the cart item as priced at checkout time.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Result is the outcome of a checkout. A failed payment is reported through
// Payment.Success=false with the order in payment_failed, not as an error.
type Result struct {
	Order   Order                `json:"order"`
	Payment wallet.PaymentResult `json:"payment"`
}

// orderEvent is the payload published for order outcomes.
type orderEvent struct {
	OrderID       string          `json:"order_id"`
	TenantID      string          `json:"tenant_id"`
	UserID        string          `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
}
