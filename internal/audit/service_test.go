package audit

import (
	"context"
	"errors"
	"testing"
)

func TestService_AppendRequiresTenantTypeAndAction(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if err := svc.Append(ctx, Event{Type: EventTypeWalletAdminAction, Action: "deposit"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event without tenant, got %v", err)
	}
	if err := svc.Append(ctx, Event{TenantID: "t", Action: "deposit"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event without type, got %v", err)
	}
	if err := svc.Append(ctx, Event{TenantID: "t", Type: EventTypeCartRebuild}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event without action, got %v", err)
	}
}

func TestService_LogWalletAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	svc.LogWalletAction(context.Background(), "t1", Actor{UserID: "admin-1", Role: "finance", IP: "1.2.3.4"}, "user-9", "deposit",
		map[string]string{"amount": "100.00"})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.Type != EventTypeWalletAdminAction || e.Action != "deposit" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.IPAddress != "1.2.3.4" || e.SubjectUserID != "user-9" {
		t.Fatalf("expected actor and subject captured, got %+v", e)
	}
	if e.Metadata != `{"amount":"100.00"}` {
		t.Fatalf("unexpected metadata %q", e.Metadata)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_LogCartRebuild(t *testing.T) {
	repo := NewMemoryRepo()
	NewService(repo).LogCartRebuild(context.Background(), "t1", Actor{UserID: "admin-1"}, "user-9", 4)

	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != EventTypeCartRebuild {
		t.Fatalf("expected one cart_rebuild event, got %+v", evs)
	}
	if evs[0].Metadata != `{"rows":4}` {
		t.Fatalf("unexpected metadata %q", evs[0].Metadata)
	}
}

func TestService_LogIsBestEffort(t *testing.T) {
	svc := NewService(nil)
	// Must not panic or block when the repository is missing.
	svc.LogWalletAction(context.Background(), "t1", Actor{}, "u", "activate", nil)
}

func TestService_FailedAppendDoesNotSurface(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailWith(errors.New("audit store down"))
	svc := NewService(repo)

	svc.LogCartRebuild(context.Background(), "t1", Actor{UserID: "admin-1"}, "user-9", 2)
	if n := len(repo.Events()); n != 0 {
		t.Fatalf("expected nothing recorded, got %d", n)
	}

	repo.FailWith(nil)
	svc.LogCartRebuild(context.Background(), "t1", Actor{UserID: "admin-1"}, "user-9", 2)
	if n := len(repo.Events()); n != 1 {
		t.Fatalf("expected recording to resume, got %d", n)
	}
}

func TestMemoryRepo_BySubjectIsTenantScoped(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	svc.LogWalletAction(ctx, "t1", Actor{UserID: "admin-1"}, "user-9", "deposit", nil)
	svc.LogWalletAction(ctx, "t2", Actor{UserID: "admin-2"}, "user-9", "refund", nil)
	svc.LogWalletAction(ctx, "t1", Actor{UserID: "admin-1"}, "user-3", "deactivate", nil)

	got := repo.BySubject("t1", "user-9")
	if len(got) != 1 || got[0].Action != "deposit" {
		t.Fatalf("expected only t1's deposit for user-9, got %+v", got)
	}

	dup := got[0]
	if err := repo.Append(ctx, dup); err == nil {
		t.Fatalf("expected duplicate id to be refused")
	}
}
