// Package memory is a transactional in-process implementation of the repository ports. It backs
// the service and handler tests and the STORAGE_DRIVER=memory mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

type txKey struct{}

// Store serialises transactions on one mutex and restores a snapshot when a transaction fails.
type Store struct {
	mu    sync.Mutex
	state state
}

type state struct {
	products  map[string]domain.ProductSnapshot
	addresses map[string]domain.Address
	orders    map[uuid.UUID]*domain.Order
	byNumber  map[string]uuid.UUID
	byIntent  map[string]uuid.UUID
	events    map[string]domain.ProviderEvent
}

func New() *Store {
	return &Store{state: state{
		products:  make(map[string]domain.ProductSnapshot),
		addresses: make(map[string]domain.Address),
		orders:    make(map[uuid.UUID]*domain.Order),
		byNumber:  make(map[string]uuid.UUID),
		byIntent:  make(map[string]uuid.UUID),
		events:    make(map[string]domain.ProviderEvent),
	}}
}

func (s state) clone() state {
	c := state{
		products:  make(map[string]domain.ProductSnapshot, len(s.products)),
		addresses: make(map[string]domain.Address, len(s.addresses)),
		orders:    make(map[uuid.UUID]*domain.Order, len(s.orders)),
		byNumber:  make(map[string]uuid.UUID, len(s.byNumber)),
		byIntent:  make(map[string]uuid.UUID, len(s.byIntent)),
		events:    make(map[string]domain.ProviderEvent, len(s.events)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.byNumber {
		c.byNumber[k] = v
	}
	for k, v := range s.byIntent {
		c.byIntent[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// locked runs fn under the store mutex unless ctx already holds it through RunInTx.
func (s *Store) locked(ctx context.Context, fn func() error) error {
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = saved
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// AddProduct creates or replaces a catalog row.
func (s *Store) AddProduct(p domain.ProductSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

func (s *Store) AddAddress(a domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.addresses[a.ID] = a
}

// Stock returns the current stock of a product, -1 when unknown.
func (s *Store) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[productID]
	if !ok {
		return -1
	}
	return p.Stock
}

// OrderCount is the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

// Reserve and Release implement the stock ledger.

func (s *Store) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.Newf(domain.ErrInvalidQuantity, "quantity for product %s must be positive", productID)
	}
	return s.locked(ctx, func() error {
		p, ok := s.state.products[productID]
		if !ok {
			return domain.Newf(domain.ErrProductNotFound, "product %s not found", productID)
		}
		if p.Stock < qty {
			return domain.Newf(domain.ErrInsufficientStock, "product %s: requested %d, available %d", productID, qty, p.Stock)
		}
		p.Stock -= qty
		s.state.products[productID] = p
		return nil
	})
}

func (s *Store) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.Newf(domain.ErrInvalidQuantity, "quantity for product %s must be positive", productID)
	}
	return s.locked(ctx, func() error {
		p, ok := s.state.products[productID]
		if !ok {
			return domain.Newf(domain.ErrProductNotFound, "product %s not found", productID)
		}
		p.Stock += qty
		s.state.products[productID] = p
		return nil
	})
}

func (s *Store) FetchActiveProducts(ctx context.Context, ids []string) (domain.Catalog, error) {
	out := make(domain.Catalog, len(ids))
	err := s.locked(ctx, func() error {
		for _, id := range ids {
			if p, ok := s.state.products[id]; ok && p.Active {
				out[id] = p
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) FindAddress(ctx context.Context, id string) (*domain.Address, error) {
	var out *domain.Address
	err := s.locked(ctx, func() error {
		a, ok := s.state.addresses[id]
		if !ok {
			return domain.Newf(domain.ErrAddressNotFound, "address %s not found", id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (s *Store) MarkProcessed(ctx context.Context, ev domain.ProviderEvent) (bool, error) {
	first := false
	err := s.locked(ctx, func() error {
		if _, seen := s.state.events[ev.ID]; seen {
			return nil
		}
		s.state.events[ev.ID] = ev
		first = true
		return nil
	})
	return first, err
}

func (s *Store) Insert(ctx context.Context, o *domain.Order) error {
	return s.locked(ctx, func() error {
		if _, taken := s.state.byNumber[o.OrderNumber]; taken {
			return domain.Newf(domain.ErrOrderNumberCollision, "order number %s is taken", o.OrderNumber)
		}
		if _, taken := s.state.orders[o.ID]; taken {
			return domain.Transient(domain.CodeStorageUnavailable, "duplicate order id", nil)
		}
		stored := o.Clone()
		stored.Address = nil
		s.state.orders[o.ID] = stored
		s.state.byNumber[o.OrderNumber] = o.ID
		if o.PaymentIntentID != nil {
			s.state.byIntent[*o.PaymentIntentID] = o.ID
		}
		return nil
	})
}

func (s *Store) FindByNumber(ctx context.Context, orderNumber string, _ bool) (*domain.Order, error) {
	var out *domain.Order
	err := s.locked(ctx, func() error {
		id, ok := s.state.byNumber[orderNumber]
		if !ok {
			return domain.Newf(domain.ErrOrderNotFound, "order %s not found", orderNumber)
		}
		out = s.hydrate(s.state.orders[id])
		return nil
	})
	return out, err
}

func (s *Store) FindByPaymentIntent(ctx context.Context, intentID string, _ bool) (*domain.Order, error) {
	var out *domain.Order
	err := s.locked(ctx, func() error {
		id, ok := s.state.byIntent[intentID]
		if !ok {
			return domain.Newf(domain.ErrOrderNotFound, "no order for payment intent %s", intentID)
		}
		out = s.hydrate(s.state.orders[id])
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]domain.Order, int, error) {
	page = page.Normalize()
	var (
		out   []domain.Order
		total int
	)
	err := s.locked(ctx, func() error {
		matched := make([]*domain.Order, 0, len(s.state.orders))
		for _, o := range s.state.orders {
			if filter.UserID != "" && o.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			matched = append(matched, o)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID.String() > matched[j].ID.String()
		})
		total = len(matched)
		start := min(page.Offset(), total)
		end := min(start+page.Limit, total)
		for _, o := range matched[start:end] {
			c := s.hydrate(o)
			if a, ok := s.state.addresses[o.AddressID]; ok {
				c.Address = &a
			}
			out = append(out, *c)
		}
		return nil
	})
	return out, total, err
}

func (s *Store) UpdateStatus(ctx context.Context, o *domain.Order) error {
	return s.locked(ctx, func() error {
		stored, ok := s.state.orders[o.ID]
		if !ok {
			return domain.Newf(domain.ErrOrderNotFound, "order %s not found", o.OrderNumber)
		}
		stored.Status = o.Status
		stored.PaymentStatus = o.PaymentStatus
		stored.UpdatedAt = o.UpdatedAt
		return nil
	})
}

func (s *Store) SetPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return false, domain.Newf(domain.ErrOrderNotFound, "order %s not found", orderID)
	}
	set := false
	err = s.locked(ctx, func() error {
		stored, ok := s.state.orders[id]
		if !ok {
			return domain.Newf(domain.ErrOrderNotFound, "order %s not found", orderID)
		}
		if stored.PaymentIntentID != nil {
			return nil
		}
		if _, taken := s.state.byIntent[intentID]; taken {
			return domain.Transient(domain.CodeStorageUnavailable, "payment intent already bound to another order", nil)
		}
		v := intentID
		stored.PaymentIntentID = &v
		stored.UpdatedAt = time.Now().UTC()
		s.state.byIntent[intentID] = id
		set = true
		return nil
	})
	return set, err
}

// hydrate copies a stored order and fills the line-item display fields from the catalog.
func (s *Store) hydrate(o *domain.Order) *domain.Order {
	c := o.Clone()
	for i := range c.Items {
		if p, ok := s.state.products[c.Items[i].ProductID]; ok {
			c.Items[i].ProductName = p.Name
			c.Items[i].ProductSlug = p.Slug
			c.Items[i].ProductImageURL = p.ImageURL
		}
	}
	return c
}
