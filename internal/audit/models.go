package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Audit writes are best-effort; callers never fail a ledger or cart operation on them.
type Event struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Type     EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// SubjectUserID is the customer whose wallet or cart was acted on.
	SubjectUserID string `json:"subject_user_id,omitempty" db:"subject_user_id"`
	Action        string `json:"action" db:"action"`
	Message       string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON with operation details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeWalletAdminAction EventType = "wallet_admin_action"
	EventTypeCartRebuild       EventType = "cart_rebuild"
)

// Actor identifies who performed an audited action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
