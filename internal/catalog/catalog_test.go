package catalog

import (
	"context"
	"errors"
	"testing"

	"license-commerce/internal/apperr"

	"github.com/shopspring/decimal"
)

func TestMemoryRepo_GetActive(t *testing.T) {
	r := NewMemoryRepo(
		Product{ID: "p1", TenantID: "t1", Name: "Pro license", Price: decimal.RequireFromString("49.90"), IsActive: true},
		Product{ID: "p2", TenantID: "t1", Name: "Retired", Price: decimal.NewFromInt(5), IsActive: false},
	)
	ctx := context.Background()

	p, err := r.GetActive(ctx, "t1", "p1")
	if err != nil || p.Name != "Pro license" {
		t.Fatalf("unexpected %+v %v", p, err)
	}
	if _, err := r.GetActive(ctx, "t1", "p2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("inactive product must be not found, got %v", err)
	}
	if _, err := r.GetActive(ctx, "t2", "p1"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("products are tenant scoped, got %v", err)
	}
}
