package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"license-commerce/pkg/logger"
	"license-commerce/pkg/utils"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information.
// Audit is internal-only and not exposed to tenant customers.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" || e.Action == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogWalletAction records an admin mutation of a customer's wallet.
func (s *Service) LogWalletAction(ctx context.Context, tenantID string, actor Actor, subjectUserID, action string, details any) {
	s.record(ctx, Event{
		TenantID:      tenantID,
		Type:          EventTypeWalletAdminAction,
		ActorUserID:   actor.UserID,
		ActorRole:     actor.Role,
		IPAddress:     actor.IP,
		SubjectUserID: subjectUserID,
		Action:        action,
		Message:       "wallet " + action,
	}, details)
}

// LogCartRebuild records an admin-triggered rebuild of a cart view.
func (s *Service) LogCartRebuild(ctx context.Context, tenantID string, actor Actor, subjectUserID string, rows int) {
	s.record(ctx, Event{
		TenantID:      tenantID,
		Type:          EventTypeCartRebuild,
		ActorUserID:   actor.UserID,
		ActorRole:     actor.Role,
		IPAddress:     actor.IP,
		SubjectUserID: subjectUserID,
		Action:        "rebuild",
		Message:       "cart view rebuilt from events",
	}, map[string]int{"rows": rows})
}

// record is best-effort: failures are logged, never returned.
func (s *Service) record(ctx context.Context, e Event, details any) {
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Metadata = string(b)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "action", e.Action, "err", err)
	}
}

// PostgresRepo appends to audit_events. The table rejects UPDATE and DELETE via trigger.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata sql.NullString
	if e.Metadata != "" {
		metadata = sql.NullString{String: e.Metadata, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, tenant_id, type, actor_user_id, actor_role, ip_address, subject_user_id, action, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)`,
		e.ID, e.TenantID, string(e.Type),
		utils.NullString(e.ActorUserID), utils.NullString(e.ActorRole), utils.NullString(e.IPAddress),
		utils.NullString(e.SubjectUserID), e.Action, e.Message, metadata, e.CreatedAt,
	)
	return err
}
