package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepo keeps audit events in insertion order. Like the audit_events table it
// refuses a second event with the same id.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
	fail   error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{ids: make(map[string]struct{})} }

// FailWith makes every following Append return err (nil resets).
func (r *MemoryRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if _, dup := r.ids[e.ID]; dup {
		return fmt.Errorf("audit event %s already recorded", e.ID)
	}
	r.ids[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns every recorded event.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// BySubject returns the events of one tenant that acted on userID.
func (r *MemoryRepo) BySubject(tenantID, userID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.TenantID == tenantID && e.SubjectUserID == userID {
			out = append(out, e)
		}
	}
	return out
}
