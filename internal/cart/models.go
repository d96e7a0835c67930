package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a cart mutation. Keep stable; stored in Postgres.
type EventType string

const (
	EventItemAdded   EventType = "ITEM_ADDED"
	EventItemUpdated EventType = "ITEM_UPDATED"
	EventItemRemoved EventType = "ITEM_REMOVED"
	EventCartCleared EventType = "CART_CLEARED"
)

// Event is an immutable entry of a user's cart log.
// Seq is gap-free per (tenant, user) and starts at 1.
type Event struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Seq       int64     `json:"sequence_number" db:"seq"`
	Type      EventType `json:"event_type" db:"event_type"`
	ProductID string    `json:"product_id,omitempty" db:"product_id"` // empty for CART_CLEARED
	Quantity  int       `json:"quantity,omitempty" db:"quantity"`     // zero for REMOVED and CLEARED
	Data      EventData `json:"event_data" db:"event_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventData is the audit snapshot carried by an event (JSONB column).
type EventData struct {
	ProductName      string           `json:"product_name,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	PreviousQuantity *int             `json:"previous_quantity,omitempty"`
	RemovedItemCount *int             `json:"removed_item_count,omitempty"`
}

// ViewRow is one row of the materialized cart. Quantity is always positive.
type ViewRow struct {
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ProductID   string    `json:"product_id" db:"product_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	LastEventID string    `json:"last_event_id" db:"last_event_id"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// Item is a cart line joined with the catalog.
type Item struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Priced is a cart read together with the sequence number of its newest event.
type Priced struct {
	Items []Item `json:"items"`
	Seq   int64  `json:"sequence_number"`
}

// LineTotal is UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the line totals of items.
func Total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

func intPtr(n int) *int { return &n }
