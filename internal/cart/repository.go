package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"license-commerce/pkg/utils"

	"github.com/google/uuid"
)

// Tx is a unit of work over one user's cart. Every method runs inside the same
// store transaction, serialized against other units of work for the same user.
type Tx interface {
	// AppendEvent assigns the next sequence number (max+1, starting at 1) and writes e.
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context) ([]Event, error)
	// LastSeq is the sequence number of the newest event, 0 for an empty log.
	LastSeq(ctx context.Context) (int64, error)
	// Items is ListItems read inside the unit of work.
	Items(ctx context.Context) ([]Item, error)

	GetViewRow(ctx context.Context, productID string) (ViewRow, bool, error)
	PutViewRow(ctx context.Context, row ViewRow) error
	DeleteViewRow(ctx context.Context, productID string) error
	// ClearView deletes all rows and returns how many existed.
	ClearView(ctx context.Context) (int, error)
	View(ctx context.Context) ([]ViewRow, error)
	// ReplaceView swaps the whole view for rows.
	ReplaceView(ctx context.Context, rows []ViewRow) error
}

// Repository persists cart events and the materialized cart view.
type Repository interface {
	WithUserLock(ctx context.Context, tenantID, userID string, fn func(ctx context.Context, tx Tx) error) error
	// ListItems joins the view with active products, most recently updated first.
	ListItems(ctx context.Context, tenantID, userID string) ([]Item, error)
	// ListEvents returns the log ordered by sequence number.
	ListEvents(ctx context.Context, tenantID, userID string) ([]Event, error)
}

// NOTE: This repository assumes the following tables exist (see internal/db/migrations):
// - cart_events (append-only; UNIQUE (tenant_id, user_id, seq))
// - cart_view (PK (tenant_id, user_id, product_id); CHECK quantity > 0)
// - products

type PostgresRepo struct {
	db      *sql.DB
	retries int
}

func NewPostgresRepo(db *sql.DB, retries int) *PostgresRepo {
	return &PostgresRepo{db: db, retries: retries}
}

func (r *PostgresRepo) WithUserLock(ctx context.Context, tenantID, userID string, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTxRetry(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, r.retries, func(ctx context.Context, tx *sql.Tx) error {
		// Transaction-scoped advisory lock serializes sequence assignment and view updates per user.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "cart:"+tenantID+":"+userID); err != nil {
			return err
		}
		return fn(ctx, &pgTx{tx: tx, tenantID: tenantID, userID: userID})
	})
}

func (r *PostgresRepo) ListItems(ctx context.Context, tenantID, userID string) ([]Item, error) {
	return queryItems(ctx, r.db, tenantID, userID)
}

func (r *PostgresRepo) ListEvents(ctx context.Context, tenantID, userID string) ([]Event, error) {
	return queryEvents(ctx, r.db, tenantID, userID)
}

type pgTx struct {
	tx       *sql.Tx
	tenantID string
	userID   string
}

func (t *pgTx) LastSeq(ctx context.Context) (int64, error) {
	const q = `SELECT COALESCE(MAX(seq), 0) FROM cart_events WHERE tenant_id = $1 AND user_id = $2`
	var seq int64
	err := t.tx.QueryRowContext(ctx, q, t.tenantID, t.userID).Scan(&seq)
	return seq, err
}

func (t *pgTx) Items(ctx context.Context) ([]Item, error) {
	return queryItems(ctx, t.tx, t.tenantID, t.userID)
}

func (t *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	last, err := t.LastSeq(ctx)
	if err != nil {
		return err
	}
	e.Seq = last + 1
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.TenantID, e.UserID = t.tenantID, t.userID

	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	const q = `
INSERT INTO cart_events (id, tenant_id, user_id, seq, event_type, product_id, quantity, event_data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err = t.tx.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.UserID,
		e.Seq,
		e.Type,
		utils.NullString(e.ProductID),
		sql.NullInt64{Int64: int64(e.Quantity), Valid: e.Quantity != 0},
		string(data),
		e.CreatedAt,
	)
	return err
}

func (t *pgTx) Events(ctx context.Context) ([]Event, error) {
	return queryEvents(ctx, t.tx, t.tenantID, t.userID)
}

func (t *pgTx) GetViewRow(ctx context.Context, productID string) (ViewRow, bool, error) {
	const q = `
SELECT tenant_id, user_id, product_id, quantity, last_event_id, last_updated
FROM cart_view
WHERE tenant_id = $1 AND user_id = $2 AND product_id = $3
`
	var v ViewRow
	err := t.tx.QueryRowContext(ctx, q, t.tenantID, t.userID, productID).Scan(
		&v.TenantID, &v.UserID, &v.ProductID, &v.Quantity, &v.LastEventID, &v.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ViewRow{}, false, nil
	}
	if err != nil {
		return ViewRow{}, false, err
	}
	return v, true, nil
}

func (t *pgTx) PutViewRow(ctx context.Context, row ViewRow) error {
	const q = `
INSERT INTO cart_view (tenant_id, user_id, product_id, quantity, last_event_id, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tenant_id, user_id, product_id)
DO UPDATE SET quantity = EXCLUDED.quantity,
              last_event_id = EXCLUDED.last_event_id,
              last_updated = EXCLUDED.last_updated
`
	_, err := t.tx.ExecContext(ctx, q, t.tenantID, t.userID, row.ProductID, row.Quantity, row.LastEventID, row.LastUpdated)
	return err
}

func (t *pgTx) DeleteViewRow(ctx context.Context, productID string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM cart_view WHERE tenant_id = $1 AND user_id = $2 AND product_id = $3`,
		t.tenantID, t.userID, productID)
	return err
}

func (t *pgTx) ClearView(ctx context.Context) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_view WHERE tenant_id = $1 AND user_id = $2`, t.tenantID, t.userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *pgTx) View(ctx context.Context) ([]ViewRow, error) {
	const q = `
SELECT tenant_id, user_id, product_id, quantity, last_event_id, last_updated
FROM cart_view
WHERE tenant_id = $1 AND user_id = $2
ORDER BY product_id
`
	rows, err := t.tx.QueryContext(ctx, q, t.tenantID, t.userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ViewRow, 0)
	for rows.Next() {
		var v ViewRow
		if err := rows.Scan(&v.TenantID, &v.UserID, &v.ProductID, &v.Quantity, &v.LastEventID, &v.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) ReplaceView(ctx context.Context, rows []ViewRow) error {
	if _, err := t.ClearView(ctx); err != nil {
		return err
	}
	for _, row := range rows {
		if err := t.PutViewRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryItems(ctx context.Context, q queryer, tenantID, userID string) ([]Item, error) {
	const query = `
SELECT v.product_id, p.name, p.price, v.quantity, v.last_updated
FROM cart_view v
JOIN products p ON p.tenant_id = v.tenant_id AND p.id = v.product_id
WHERE v.tenant_id = $1 AND v.user_id = $2 AND p.is_active = TRUE
ORDER BY v.last_updated DESC, v.product_id
`
	rows, err := q.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.UnitPrice, &it.Quantity, &it.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func queryEvents(ctx context.Context, q queryer, tenantID, userID string) ([]Event, error) {
	const query = `
SELECT id, tenant_id, user_id, seq, event_type, product_id, quantity, event_data, created_at
FROM cart_events
WHERE tenant_id = $1 AND user_id = $2
ORDER BY seq ASC
`
	rows, err := q.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e         Event
			productID sql.NullString
			quantity  sql.NullInt64
			data      []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Seq, &e.Type, &productID, &quantity, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ProductID = productID.String
		e.Quantity = int(quantity.Int64)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event %s data: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
