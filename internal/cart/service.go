// Package cart implements the event-sourced cart: an append-only event log per
// (tenant, user) and a materialized view kept in step with it.
package cart

import (
	"context"
	"errors"
	"time"

	"license-commerce/internal/apperr"
	"license-commerce/internal/catalog"
	"license-commerce/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// ErrItemNotInCart is returned when updating or removing a product the cart does not hold.
var ErrItemNotInCart = apperr.NotFound("cart item")

type Service struct {
	repo     Repository
	products catalog.Repository
	cache    Cache
	sfg      singleflight.Group // Prevents cache stampede
	clock    func() time.Time
}

// NewService wires the cart. cache may be nil, in which case reads always hit the store.
func NewService(repo Repository, products catalog.Repository, cache Cache) *Service {
	return &Service{repo: repo, products: products, cache: cache, clock: time.Now}
}

// AddToCart appends ITEM_ADDED and increments (or inserts) the view row in one transaction.
func (s *Service) AddToCart(ctx context.Context, tenantID, userID, productID string, qty int) (Item, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return Item{}, err
	}
	if productID == "" {
		return Item{}, apperr.Validation("product_id is required")
	}
	if qty <= 0 {
		return Item{}, apperr.Validation("quantity must be greater than zero")
	}
	p, err := s.products.GetActive(ctx, tenantID, productID)
	if err != nil {
		return Item{}, apperr.FromStore("product lookup", err)
	}

	e := Event{
		Type:      EventItemAdded,
		ProductID: productID,
		Quantity:  qty,
		Data:      EventData{ProductName: p.Name, UnitPrice: &p.Price},
	}
	var row ViewRow
	err = s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		cur, exists, err := tx.GetViewRow(ctx, productID)
		if err != nil {
			return err
		}
		row, err = s.append(ctx, tx, e, cur, exists)
		return err
	})
	if err != nil {
		return Item{}, apperr.FromStore("add to cart", err)
	}

	s.afterMutation(ctx, tenantID, userID, EventItemAdded)
	return Item{ProductID: productID, Name: p.Name, UnitPrice: p.Price, Quantity: row.Quantity, LastUpdated: row.LastUpdated}, nil
}

// UpdateCartItem overwrites the quantity of a product already in the cart.
// A quantity of zero or less removes the item.
func (s *Service) UpdateCartItem(ctx context.Context, tenantID, userID, productID string, qty int) (Item, error) {
	if qty <= 0 {
		if err := s.RemoveCartItem(ctx, tenantID, userID, productID); err != nil {
			return Item{}, err
		}
		return Item{ProductID: productID, Quantity: 0}, nil
	}
	if err := validateOwner(tenantID, userID); err != nil {
		return Item{}, err
	}
	if productID == "" {
		return Item{}, apperr.Validation("product_id is required")
	}
	p, err := s.products.GetActive(ctx, tenantID, productID)
	if err != nil {
		return Item{}, apperr.FromStore("product lookup", err)
	}

	var row ViewRow
	err = s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		cur, exists, err := tx.GetViewRow(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrItemNotInCart
		}
		e := Event{
			Type:      EventItemUpdated,
			ProductID: productID,
			Quantity:  qty,
			Data:      EventData{ProductName: p.Name, UnitPrice: &p.Price, PreviousQuantity: intPtr(cur.Quantity)},
		}
		row, err = s.append(ctx, tx, e, cur, exists)
		return err
	})
	if err != nil {
		return Item{}, apperr.FromStore("update cart item", err)
	}

	s.afterMutation(ctx, tenantID, userID, EventItemUpdated)
	return Item{ProductID: productID, Name: p.Name, UnitPrice: p.Price, Quantity: row.Quantity, LastUpdated: row.LastUpdated}, nil
}

// RemoveCartItem appends ITEM_REMOVED and deletes the view row.
func (s *Service) RemoveCartItem(ctx context.Context, tenantID, userID, productID string) error {
	if err := validateOwner(tenantID, userID); err != nil {
		return err
	}
	if productID == "" {
		return apperr.Validation("product_id is required")
	}

	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		cur, exists, err := tx.GetViewRow(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrItemNotInCart
		}
		e := Event{
			Type:      EventItemRemoved,
			ProductID: productID,
			Data:      EventData{PreviousQuantity: intPtr(cur.Quantity)},
		}
		_, err = s.append(ctx, tx, e, cur, exists)
		return err
	})
	if err != nil {
		return apperr.FromStore("remove cart item", err)
	}

	s.afterMutation(ctx, tenantID, userID, EventItemRemoved)
	return nil
}

// ClearCart appends CART_CLEARED and empties the view. It returns how many rows were removed;
// clearing an empty cart still records the event and returns 0.
func (s *Service) ClearCart(ctx context.Context, tenantID, userID string) (int, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return 0, err
	}

	var removed int
	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		n, err := tx.ClearView(ctx)
		if err != nil {
			return err
		}
		removed = n
		e := Event{Type: EventCartCleared, Data: EventData{RemovedItemCount: intPtr(n)}, CreatedAt: s.now()}
		return tx.AppendEvent(ctx, &e)
	})
	if err != nil {
		return 0, apperr.FromStore("clear cart", err)
	}

	s.afterMutation(ctx, tenantID, userID, EventCartCleared)
	return removed, nil
}

// GetCartItems is the fast read path: view joined with active products, never the event log.
// Results are cached per user; concurrent misses for the same user share one store read.
func (s *Service) GetCartItems(ctx context.Context, tenantID, userID string) ([]Item, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return nil, err
	}
	if s.cache == nil {
		return s.Snapshot(ctx, tenantID, userID)
	}

	key := cacheKey(tenantID, userID)
	v, err, _ := s.sfg.Do(key, func() (any, error) {
		items, err := s.cache.Get(ctx, tenantID, userID)
		if err == nil {
			cacheRequestsTotal.WithLabelValues("hit").Inc()
			return items, nil
		}
		if errors.Is(err, ErrCacheMiss) {
			cacheRequestsTotal.WithLabelValues("miss").Inc()
		} else {
			cacheRequestsTotal.WithLabelValues("error").Inc()
			logger.From(ctx).Warn("cart cache get failed", "tenant_id", tenantID, "user_id", userID, "err", err)
		}

		// The generation is read before the store so rows from a racing mutation
		// are never cached under the generation that mutation invalidated.
		gen, genErr := s.cache.Generation(ctx, tenantID, userID)
		items, err = s.repo.ListItems(ctx, tenantID, userID)
		if err != nil {
			return nil, apperr.FromStore("list cart items", err)
		}
		if genErr != nil {
			return items, nil
		}
		if _, err := s.cache.Set(ctx, tenantID, userID, gen, items); err != nil {
			logger.From(ctx).Warn("cart cache set failed", "tenant_id", tenantID, "user_id", userID, "err", err)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Item), nil
}

// Snapshot reads the cart straight from the store, bypassing the cache.
func (s *Service) Snapshot(ctx context.Context, tenantID, userID string) ([]Item, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, tenantID, userID)
	return items, apperr.FromStore("list cart items", err)
}

// PriceCart reads the joined items together with the sequence number of the newest
// event, both under the user's lock, so a checkout knows exactly which cart it priced.
func (s *Service) PriceCart(ctx context.Context, tenantID, userID string) (Priced, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return Priced{}, err
	}
	var out Priced
	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		var err error
		if out.Seq, err = tx.LastSeq(ctx); err != nil {
			return err
		}
		out.Items, err = tx.Items(ctx)
		return err
	})
	if err != nil {
		return Priced{}, apperr.FromStore("price cart", err)
	}
	return out, nil
}

// ClearPurchased takes a paid checkout out of the cart. If the log has not moved past
// seq the cart is cleared with CART_CLEARED; otherwise only the bought quantities are
// taken off, so items added after pricing stay. It returns how many rows changed.
func (s *Service) ClearPurchased(ctx context.Context, tenantID, userID string, seq int64, bought []Item) (int, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return 0, err
	}

	var (
		changed  int
		appended []EventType
	)
	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		changed, appended = 0, appended[:0]
		last, err := tx.LastSeq(ctx)
		if err != nil {
			return err
		}
		if last == seq {
			n, err := tx.ClearView(ctx)
			if err != nil {
				return err
			}
			changed = n
			e := Event{Type: EventCartCleared, Data: EventData{RemovedItemCount: intPtr(n)}, CreatedAt: s.now()}
			appended = append(appended, EventCartCleared)
			return tx.AppendEvent(ctx, &e)
		}

		for _, it := range bought {
			cur, exists, err := tx.GetViewRow(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			e := Event{
				Type:      EventItemRemoved,
				ProductID: it.ProductID,
				Data:      EventData{ProductName: it.Name, PreviousQuantity: intPtr(cur.Quantity)},
			}
			if left := cur.Quantity - it.Quantity; left > 0 {
				price := it.UnitPrice
				e.Type = EventItemUpdated
				e.Quantity = left
				e.Data.UnitPrice = &price
			}
			if _, err := s.append(ctx, tx, e, cur, exists); err != nil {
				return err
			}
			changed++
			appended = append(appended, e.Type)
		}
		return nil
	})
	if err != nil {
		return 0, apperr.FromStore("clear purchased items", err)
	}

	for _, typ := range appended {
		eventsTotal.WithLabelValues(string(typ)).Inc()
	}
	s.invalidate(ctx, tenantID, userID)
	if len(appended) > 0 && appended[0] != EventCartCleared {
		logger.From(ctx).Info("cart changed during checkout, removed purchased items only",
			"tenant_id", tenantID, "user_id", userID, "priced_seq", seq, "rows", changed)
	}
	return changed, nil
}

// RebuildCartFromEvents replaces the view with the fold of the event log. Idempotent.
func (s *Service) RebuildCartFromEvents(ctx context.Context, tenantID, userID string) (int, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return 0, err
	}

	var n int
	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		events, err := tx.Events(ctx)
		if err != nil {
			return err
		}
		rows := Replay(events)
		n = len(rows)
		return tx.ReplaceView(ctx, rows)
	})
	if err != nil {
		return 0, apperr.FromStore("rebuild cart", err)
	}

	rebuildsTotal.Inc()
	s.invalidate(ctx, tenantID, userID)
	logger.From(ctx).Info("cart view rebuilt", "tenant_id", tenantID, "user_id", userID, "rows", n)
	return n, nil
}

// VerifyCart reports whether the view equals the fold of the event log.
func (s *Service) VerifyCart(ctx context.Context, tenantID, userID string) (bool, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return false, err
	}

	var ok bool
	err := s.repo.WithUserLock(ctx, tenantID, userID, func(ctx context.Context, tx Tx) error {
		events, err := tx.Events(ctx)
		if err != nil {
			return err
		}
		view, err := tx.View(ctx)
		if err != nil {
			return err
		}
		ok = sameView(view, Replay(events))
		return nil
	})
	if err != nil {
		return false, apperr.FromStore("verify cart", err)
	}
	if !ok {
		logger.From(ctx).Warn("cart view disagrees with event log", "tenant_id", tenantID, "user_id", userID)
	}
	return ok, nil
}

// ListEvents returns the user's cart log in sequence order.
func (s *Service) ListEvents(ctx context.Context, tenantID, userID string) ([]Event, error) {
	if err := validateOwner(tenantID, userID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, tenantID, userID)
	return events, apperr.FromStore("list cart events", err)
}

// append writes e and applies the same transition Replay uses to the current row.
func (s *Service) append(ctx context.Context, tx Tx, e Event, cur ViewRow, exists bool) (ViewRow, error) {
	e.CreatedAt = s.now()
	if err := tx.AppendEvent(ctx, &e); err != nil {
		return ViewRow{}, err
	}
	next, keep := step(cur, exists, e)
	if !keep {
		return ViewRow{}, tx.DeleteViewRow(ctx, e.ProductID)
	}
	return next, tx.PutViewRow(ctx, next)
}

// now is truncated to the store's timestamp precision so a rebuilt view matches the live one.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Service) afterMutation(ctx context.Context, tenantID, userID string, typ EventType) {
	eventsTotal.WithLabelValues(string(typ)).Inc()
	s.invalidate(ctx, tenantID, userID)
	logger.From(ctx).Debug("cart event appended", "tenant_id", tenantID, "user_id", userID, "type", typ)
}

func (s *Service) invalidate(ctx context.Context, tenantID, userID string) {
	if s.cache == nil {
		return
	}
	// Detached from the request so a cancelled client cannot leave a stale entry behind.
	ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx2, tenantID, userID); err != nil {
		logger.From(ctx).Warn("cart cache invalidate failed", "tenant_id", tenantID, "user_id", userID, "err", err)
	}
}

func validateOwner(tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return apperr.Validation("tenant_id and user_id are required")
	}
	return nil
}
