// Package checkout turns a cart into a paid (or payment_failed) order.
package checkout

import (
	"context"
	"errors"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/internal/cart"
	"license-commerce/internal/notify"
	"license-commerce/internal/wallet"
	"license-commerce/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the part of the cart service checkout needs.
type Cart interface {
	PriceCart(ctx context.Context, tenantID, userID string) (cart.Priced, error)
	ClearPurchased(ctx context.Context, tenantID, userID string, seq int64, bought []cart.Item) (int, error)
}

// Payer is the part of the wallet service checkout needs.
type Payer interface {
	ProcessPayment(ctx context.Context, tenantID, userID string, amount decimal.Decimal, orderID, description string) (wallet.PaymentResult, error)
}

// ErrEmptyCart is returned when there is nothing to check out.
var ErrEmptyCart = apperr.Validation("cart is empty, nothing to checkout")

type Service struct {
	cart   Cart
	payer  Payer
	orders OrderStore
	pub    notify.Publisher
	clock  func() time.Time
}

func NewService(c Cart, payer Payer, orders OrderStore, pub notify.Publisher) *Service {
	if pub == nil {
		pub = notify.Noop{}
	}
	return &Service{cart: c, payer: payer, orders: orders, pub: pub, clock: time.Now}
}

// Checkout prices the cart, creates a pending order and charges the wallet for it.
//
// On success the order becomes paid and the purchased items leave the cart. On insufficient
// funds the order becomes payment_failed and the cart is kept; this is not an error.
// A second checkout of the same cart version fails with ErrCheckoutInProgress before any
// money moves.
func (s *Service) Checkout(ctx context.Context, tenantID, userID, note string) (Result, error) {
	if tenantID == "" || userID == "" {
		return Result{}, apperr.Validation("tenant_id and user_id are required")
	}
	log := logger.From(ctx).With("tenant_id", tenantID, "user_id", userID)

	priced, err := s.cart.PriceCart(ctx, tenantID, userID)
	if err != nil {
		return Result{}, err
	}
	items := priced.Items
	if len(items) == 0 {
		return Result{}, ErrEmptyCart
	}

	now := s.clock().UTC()
	order := Order{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Status:    OrderStatusPending,
		Total:     cart.Total(items),
		Note:      note,
		CartSeq:   priced.Seq,
		Lines:     make([]Line, 0, len(items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range items {
		order.Lines = append(order.Lines, Line{ProductID: it.ProductID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, ErrCheckoutInProgress) {
			log.Warn("duplicate checkout rejected", "cart_seq", priced.Seq)
		}
		return Result{}, apperr.FromStore("create order", err)
	}
	log = log.With("order_id", order.ID)

	pay, err := s.payer.ProcessPayment(ctx, tenantID, userID, order.Total, order.ID, "order "+order.ID)
	if err != nil {
		// The ledger rolled back; the order can never be paid.
		if terr := s.orders.Transition(ctx, tenantID, order.ID, OrderStatusPending, OrderStatusPaymentFailed, "", s.clock().UTC()); terr != nil {
			log.Error("mark order failed after payment error", "err", terr)
		}
		return Result{}, err
	}

	if !pay.Success {
		if err := s.finish(ctx, &order, OrderStatusPaymentFailed, string(pay.PaymentMethod)); err != nil {
			return Result{}, err
		}
		log.Info("checkout rejected", "total", order.Total.StringFixed(2), "reason", pay.PaymentMethod)
		s.publish(ctx, notify.SubjectOrderPaymentFailed, order)
		return Result{Order: order, Payment: pay}, nil
	}

	if err := s.finish(ctx, &order, OrderStatusPaid, string(pay.PaymentMethod)); err != nil {
		// Money moved; the journal row references the order id for follow-up.
		log.Error("order paid but status update failed", "err", err)
		return Result{}, err
	}
	if _, err := s.cart.ClearPurchased(ctx, tenantID, userID, priced.Seq, items); err != nil {
		log.Error("order paid but cart clear failed", "err", err)
	}
	log.Info("checkout completed", "total", order.Total.StringFixed(2), "method", pay.PaymentMethod)
	s.publish(ctx, notify.SubjectOrderPaid, order)
	return Result{Order: order, Payment: pay}, nil
}

func (s *Service) finish(ctx context.Context, o *Order, to OrderStatus, method string) error {
	now := s.clock().UTC()
	if err := s.orders.Transition(ctx, o.TenantID, o.ID, o.Status, to, method, now); err != nil {
		return apperr.FromStore("update order status", err)
	}
	o.Status = to
	o.PaymentMethod = method
	o.UpdatedAt = now
	return nil
}

// publish is best-effort; a broker outage must not fail a completed checkout.
func (s *Service) publish(ctx context.Context, subject string, o Order) {
	ev := orderEvent{
		OrderID:       o.ID,
		TenantID:      o.TenantID,
		UserID:        o.UserID,
		Status:        o.Status,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
	}
	if err := s.pub.Publish(ctx, subject, ev); err != nil {
		logger.From(ctx).Warn("order event publish failed", "subject", subject, "order_id", o.ID, "err", err)
	}
}

// Order returns a single order of the tenant.
func (s *Service) Order(ctx context.Context, tenantID, orderID string) (Order, error) {
	o, err := s.orders.Get(ctx, tenantID, orderID)
	return o, apperr.FromStore("get order", err)
}
