package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPersister struct {
	m     sync.Mutex
	cart  domain.Cart
	saves int
	err   error
}

func (m *mockPersister) LoadCart(context.Context) (domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.cart, m.err
}

func (m *mockPersister) SaveCart(_ context.Context, c domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.cart = c
	return nil
}

// recordingPersister keeps every saved cart in order. The first save blocks
// until release is closed.
type recordingPersister struct {
	m       sync.Mutex
	saved   []domain.Cart
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *recordingPersister) LoadCart(context.Context) (domain.Cart, error) {
	return domain.Cart{}, nil
}

func (p *recordingPersister) SaveCart(_ context.Context, c domain.Cart) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	p.m.Lock()
	defer p.m.Unlock()
	p.saved = append(p.saved, c)
	return nil
}

func (p *recordingPersister) last() domain.Cart {
	p.m.Lock()
	defer p.m.Unlock()
	return p.saved[len(p.saved)-1]
}

func item(id int64, qty int, price string) domain.CartItem {
	return domain.CartItem{
		ProductID: id,
		Name:      "product",
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestAdd_MergesSameProduct(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	require.NoError(t, s.Add(ctx, item(1, 2, "100")))
	require.NoError(t, s.Add(ctx, item(2, 1, "50")))
	require.NoError(t, s.Add(ctx, item(1, 3, "100")))

	c := s.Snapshot()
	require.Len(t, c.Items, 2)
	assert.Equal(t, int64(1), c.Items[0].ProductID)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, 6, s.Count())
	assert.True(t, decimal.NewFromInt(550).Equal(s.Total()))
}

func TestAdd_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	tests := []struct {
		name string
		item domain.CartItem
		err  error
	}{
		{"zero product_id", item(0, 1, "1"), ErrInvalidProductID},
		{"zero quantity", item(1, 0, "1"), ErrInvalidQuantity},
		{"quantity too high", item(1, 100, "1"), ErrInvalidQuantity},
		{"negative price", item(1, 1, "-1"), ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Add(ctx, tt.item), tt.err)
		})
	}
	assert.True(t, s.IsEmpty())
}

func TestAdd_MergedQuantityOverLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Add(ctx, item(1, 90, "1")))

	assert.ErrorIs(t, s.Add(ctx, item(1, 10, "1")), ErrInvalidQuantity)
	assert.Equal(t, 90, s.Count())
}

func TestUpdate_ZeroRemoves(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Add(ctx, item(1, 2, "10")))
	require.NoError(t, s.Add(ctx, item(2, 2, "10")))

	require.NoError(t, s.Update(ctx, 1, 0))

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(2), c.Items[0].ProductID)
	for _, it := range c.Items {
		assert.NotZero(t, it.Quantity)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := NewStore(nil)
	assert.ErrorIs(t, s.Update(context.Background(), 7, 1), ErrItemNotFound)
	assert.ErrorIs(t, s.Remove(context.Background(), 7), ErrItemNotFound)
}

func TestReplace_NormalizesItems(t *testing.T) {
	s := NewStore(nil)

	s.Replace(context.Background(), domain.Cart{
		ID: 12,
		Items: []domain.CartItem{
			item(1, 1, "10"),
			item(2, 0, "10"),
			item(1, 2, "10"),
		},
	})

	c := s.Snapshot()
	assert.Equal(t, int64(12), c.ID)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestClear_ResetsID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	s.Replace(ctx, domain.Cart{ID: 3, Items: []domain.CartItem{item(1, 1, "1")}})

	s.Clear(ctx)

	assert.True(t, s.IsEmpty())
	assert.Equal(t, int64(0), s.ID())
}

func TestSnapshot_IsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Add(ctx, item(1, 1, "1")))

	c := s.Snapshot()
	c.Items[0].Quantity = 50

	assert.Equal(t, 1, s.Count())
}

func TestPersister_LoadAndSave(t *testing.T) {
	ctx := context.Background()
	p := &mockPersister{cart: domain.Cart{Items: []domain.CartItem{item(9, 2, "5")}}}
	s := NewStore(p)

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.Add(ctx, item(10, 1, "5")))
	assert.Len(t, p.cart.Items, 2)
	assert.Equal(t, 1, p.saves)
}

func TestPersister_SaveErrorIsAbsorbed(t *testing.T) {
	p := &mockPersister{err: errors.New("disk full")}
	s := NewStore(p)

	err := s.Add(context.Background(), item(1, 1, "1"))

	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())
}

func TestPersister_SavesInMutationOrder(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(p)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Add(ctx, item(1, 1, "10")))
	}()
	<-p.entered
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Add(ctx, item(2, 1, "10")))
	}()
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	require.Len(t, p.saved, 2)
	assert.Len(t, p.saved[0].Items, 1)
	assert.Len(t, p.last().Items, 2)
}

func TestPersister_ConcurrentMutationsKeepLatestCart(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{entered: make(chan struct{}), release: make(chan struct{})}
	close(p.release)
	s := NewStore(p)

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, s.Add(ctx, item(id, 1, "10")))
			assert.NoError(t, s.Update(ctx, id, 3))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, s.Snapshot(), p.last())
	last := p.last()
	assert.Equal(t, 60, last.Count())
}
