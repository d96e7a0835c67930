package cart

import (
	"context"
	"errors"
	"sort"
	"sync"

	"license-commerce/internal/catalog"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
//
// WithUserLock holds a per-user mutex and works on a staged copy that is only
// committed when fn succeeds.
type MemoryRepo struct {
	products catalog.Repository

	mu    sync.Mutex
	carts map[cartKey]*memCart
	locks map[cartKey]*sync.Mutex

	failAppend error
}

type cartKey struct{ tenantID, userID string }

type memCart struct {
	events []Event
	view   map[string]ViewRow
}

func (c *memCart) clone() *memCart {
	out := &memCart{
		events: append([]Event(nil), c.events...),
		view:   make(map[string]ViewRow, len(c.view)),
	}
	for k, v := range c.view {
		out.view[k] = v
	}
	return out
}

func NewMemoryRepo(products catalog.Repository) *MemoryRepo {
	return &MemoryRepo{
		products: products,
		carts:    make(map[cartKey]*memCart),
		locks:    make(map[cartKey]*sync.Mutex),
	}
}

// FailAppends makes every following AppendEvent fail with err (nil resets).
func (r *MemoryRepo) FailAppends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAppend = err
}

// CorruptView overwrites the view without an event, simulating a lost projection update.
func (r *MemoryRepo) CorruptView(tenantID, userID string, rows []ViewRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cartLocked(cartKey{tenantID, userID})
	c.view = make(map[string]ViewRow, len(rows))
	for _, row := range rows {
		c.view[row.ProductID] = row
	}
}

func (r *MemoryRepo) WithUserLock(ctx context.Context, tenantID, userID string, fn func(ctx context.Context, tx Tx) error) error {
	k := cartKey{tenantID, userID}
	lock := r.userLock(k)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	staged := r.cartLocked(k).clone()
	failAppend := r.failAppend
	r.mu.Unlock()

	tx := &memTx{key: k, cart: staged, products: r.products, failAppend: failAppend}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	r.carts[k] = staged
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) ListItems(ctx context.Context, tenantID, userID string) ([]Item, error) {
	r.mu.Lock()
	rows := make([]ViewRow, 0)
	for _, v := range r.cartLocked(cartKey{tenantID, userID}).view {
		rows = append(rows, v)
	}
	r.mu.Unlock()
	return joinItems(ctx, r.products, tenantID, rows)
}

// joinItems mirrors the store join: rows of inactive or unknown products are dropped.
func joinItems(ctx context.Context, products catalog.Repository, tenantID string, rows []ViewRow) ([]Item, error) {
	out := make([]Item, 0, len(rows))
	for _, v := range rows {
		p, err := products.GetActive(ctx, tenantID, v.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Item{
			ProductID:   v.ProductID,
			Name:        p.Name,
			UnitPrice:   p.Price,
			Quantity:    v.Quantity,
			LastUpdated: v.LastUpdated,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (r *MemoryRepo) ListEvents(ctx context.Context, tenantID, userID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.cartLocked(cartKey{tenantID, userID}).events...), nil
}

func (r *MemoryRepo) cartLocked(k cartKey) *memCart {
	c, ok := r.carts[k]
	if !ok {
		c = &memCart{view: make(map[string]ViewRow)}
		r.carts[k] = c
	}
	return c
}

func (r *MemoryRepo) userLock(k cartKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[k]
	if !ok {
		l = &sync.Mutex{}
		r.locks[k] = l
	}
	return l
}

type memTx struct {
	key        cartKey
	cart       *memCart
	products   catalog.Repository
	failAppend error
}

func (t *memTx) LastSeq(ctx context.Context) (int64, error) {
	if n := len(t.cart.events); n > 0 {
		return t.cart.events[n-1].Seq, nil
	}
	return 0, nil
}

func (t *memTx) Items(ctx context.Context) ([]Item, error) {
	rows := make([]ViewRow, 0, len(t.cart.view))
	for _, v := range t.cart.view {
		rows = append(rows, v)
	}
	return joinItems(ctx, t.products, t.key.tenantID, rows)
}

func (t *memTx) AppendEvent(ctx context.Context, e *Event) error {
	if t.failAppend != nil {
		return t.failAppend
	}
	last, _ := t.LastSeq(ctx)
	e.Seq = last + 1
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.TenantID, e.UserID = t.key.tenantID, t.key.userID
	t.cart.events = append(t.cart.events, *e)
	return nil
}

func (t *memTx) Events(ctx context.Context) ([]Event, error) {
	return append([]Event{}, t.cart.events...), nil
}

func (t *memTx) GetViewRow(ctx context.Context, productID string) (ViewRow, bool, error) {
	v, ok := t.cart.view[productID]
	return v, ok, nil
}

func (t *memTx) PutViewRow(ctx context.Context, row ViewRow) error {
	if row.Quantity <= 0 {
		return errors.New("cart_view quantity must be positive")
	}
	row.TenantID, row.UserID = t.key.tenantID, t.key.userID
	t.cart.view[row.ProductID] = row
	return nil
}

func (t *memTx) DeleteViewRow(ctx context.Context, productID string) error {
	delete(t.cart.view, productID)
	return nil
}

func (t *memTx) ClearView(ctx context.Context) (int, error) {
	n := len(t.cart.view)
	clear(t.cart.view)
	return n, nil
}

func (t *memTx) View(ctx context.Context) ([]ViewRow, error) {
	out := make([]ViewRow, 0, len(t.cart.view))
	for _, v := range t.cart.view {
		out = append(out, v)
	}
	sortRows(out)
	return out, nil
}

func (t *memTx) ReplaceView(ctx context.Context, rows []ViewRow) error {
	clear(t.cart.view)
	for _, row := range rows {
		if err := t.PutViewRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
