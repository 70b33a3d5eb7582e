package cart

import (
	"context"
	"sync"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
	"github.com/shopspring/decimal"
)

const MaxQuantity = 99

// Persister keeps the cart across restarts.
type Persister interface {
	LoadCart(ctx context.Context) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
}

// Store is the client-side cart. Items keep insertion order, there is at most
// one item per product and an item with quantity 0 is never stored.
type Store struct {
	mu        sync.RWMutex
	id        int64
	items     []domain.CartItem
	persister Persister

	// persistMu is taken before mu is released so saves land in mutation order.
	persistMu sync.Mutex
}

func NewStore(persister Persister) *Store {
	return &Store{persister: persister}
}

// Load restores the persisted cart, if any.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	c, err := s.persister.LoadCart(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.id = c.ID
	s.items = normalize(c.Items)
	s.mu.Unlock()
	return nil
}

func (s *Store) Add(ctx context.Context, item domain.CartItem) error {
	if item.ProductID <= 0 {
		return ErrInvalidProductID
	}
	if item.Quantity <= 0 || item.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if item.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	s.mu.Lock()
	if i := s.indexOf(item.ProductID); i >= 0 {
		merged := s.items[i].Quantity + item.Quantity
		if merged > MaxQuantity {
			s.mu.Unlock()
			return ErrInvalidQuantity
		}
		s.items[i].Quantity = merged
		if item.Name != "" {
			s.items[i].Name = item.Name
		}
		if !item.UnitPrice.IsZero() {
			s.items[i].UnitPrice = item.UnitPrice
		}
	} else {
		s.items = append(s.items, item)
	}
	s.commitLocked(ctx)
	return nil
}

// Update sets the quantity of an item; quantity 0 removes it.
func (s *Store) Update(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 {
		return ErrInvalidProductID
	}
	if quantity < 0 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	i := s.indexOf(productID)
	if i < 0 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if quantity == 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	} else {
		s.items[i].Quantity = quantity
	}
	s.commitLocked(ctx)
	return nil
}

func (s *Store) Remove(ctx context.Context, productID int64) error {
	return s.Update(ctx, productID, 0)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.id = 0
	s.items = nil
	s.commitLocked(ctx)
}

// Replace swaps the whole cart, e.g. for the server's copy after a sync.
func (s *Store) Replace(ctx context.Context, c domain.Cart) {
	s.mu.Lock()
	s.id = c.ID
	s.items = normalize(c.Items)
	s.commitLocked(ctx)
}

func (s *Store) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) ID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Store) Total() decimal.Decimal {
	c := s.Snapshot()
	return c.Total()
}

func (s *Store) Count() int {
	c := s.Snapshot()
	return c.Count()
}

func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

func (s *Store) indexOf(productID int64) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() domain.Cart {
	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	return domain.Cart{ID: s.id, Items: items}
}

// commitLocked releases mu and saves the state it guarded. Readers are not
// blocked by the save.
func (s *Store) commitLocked(ctx context.Context) {
	if s.persister == nil {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshotLocked()
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Unlock()

	if err := s.persister.SaveCart(ctx, snapshot); err != nil {
		logging.Error(ctx, "cart", "persist", err)
	}
}

// normalize drops empty lines and folds duplicate products into one item.
func normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	pos := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID <= 0 {
			continue
		}
		if i, ok := pos[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		pos[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
