package checkout

import (
	"context"
	"regexp"
	"testing"

	"license-commerce/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	insertOrderSQL = regexp.QuoteMeta(`INSERT INTO orders (id, tenant_id, user_id, status, total, payment_method, note, cart_seq,`)
	insertLineSQL  = regexp.QuoteMeta(`INSERT INTO order_lines`)
	transitionSQL  = regexp.QuoteMeta(`UPDATE orders SET status = $4`)
	selectOrderSQL = regexp.QuoteMeta(`FROM orders WHERE tenant_id = $1 AND id = $2`)
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func pendingOrder() Order {
	return Order{
		ID:        "7b0f1a52-0000-4000-8000-000000000001",
		TenantID:  tenant,
		UserID:    user,
		Status:    OrderStatusPending,
		Total:     decimal.RequireFromString("75.50"),
		CartSeq:   3,
		CreatedAt: f0(),
		Lines: []Line{
			{ProductID: "p1", Name: "Office suite", UnitPrice: decimal.RequireFromString("30.00"), Quantity: 2},
			{ProductID: "p2", Name: "Antivirus", UnitPrice: decimal.RequireFromString("15.50"), Quantity: 1},
		},
	}
}

func TestPostgresStoreCreate_WritesOrderAndLines(t *testing.T) {
	s, mock := newMockStore(t)
	o := pendingOrder()

	mock.ExpectBegin()
	mock.ExpectExec(insertOrderSQL).
		WithArgs(o.ID, tenant, user, string(OrderStatusPending), sqlmock.AnyArg(), nil, nil, int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLineSQL).WithArgs(o.ID, 1, "p1", "Office suite", sqlmock.AnyArg(), 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLineSQL).WithArgs(o.ID, 2, "p2", "Antivirus", sqlmock.AnyArg(), 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreate_SameCartVersionConflicts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertOrderSQL).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_open_cart_seq_idx"})
	mock.ExpectRollback()

	err := s.Create(context.Background(), pendingOrder())
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTransition_StaleStatusIsIllegal(t *testing.T) {
	s, mock := newMockStore(t)
	o := pendingOrder()

	mock.ExpectExec(transitionSQL).
		WithArgs(tenant, o.ID, string(OrderStatusPending), string(OrderStatusPaid), "deposit_only", f0()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectOrderSQL).WithArgs(tenant, o.ID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "status", "total", "payment_method", "note", "cart_seq", "created_at", "updated_at"}).
			AddRow(o.ID, tenant, user, "paid", "75.50", "deposit_only", nil, int64(3), f0(), f0()),
	)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM order_lines WHERE order_id = $1`)).WithArgs(o.ID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "unit_price", "quantity"}))

	err := s.Transition(context.Background(), tenant, o.ID, OrderStatusPending, OrderStatusPaid, "deposit_only", f0())
	assert.ErrorIs(t, err, ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
