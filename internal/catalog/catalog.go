// Package catalog provides read-only product lookups for the cart.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"license-commerce/internal/apperr"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Price is the current list price; carts snapshot it.
type Product struct {
	ID        string          `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ErrProductNotFound is returned for unknown or inactive products.
var ErrProductNotFound = apperr.NotFound("product")

// Repository looks up products inside a tenant.
type Repository interface {
	// GetActive returns an active product or ErrProductNotFound.
	GetActive(ctx context.Context, tenantID, productID string) (Product, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetActive(ctx context.Context, tenantID, productID string) (Product, error) {
	const q = `
SELECT id, tenant_id, name, price, is_active, created_at
FROM products
WHERE tenant_id = $1 AND id = $2 AND is_active = TRUE
`
	var p Product
	if err := r.db.QueryRowContext(ctx, q, tenantID, productID).Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Price,
		&p.IsActive,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// MemoryRepo is an in-memory product table useful for tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	products map[string]Product // key: tenantID + "/" + productID
}

func NewMemoryRepo(products ...Product) *MemoryRepo {
	r := &MemoryRepo{products: make(map[string]Product)}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

func (r *MemoryRepo) Put(p Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.TenantID+"/"+p.ID] = p
}

// Get returns a product regardless of its active flag.
func (r *MemoryRepo) Get(tenantID, productID string) (Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[tenantID+"/"+productID]
	return p, ok
}

func (r *MemoryRepo) GetActive(ctx context.Context, tenantID, productID string) (Product, error) {
	p, ok := r.Get(tenantID, productID)
	if !ok || !p.IsActive {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}
