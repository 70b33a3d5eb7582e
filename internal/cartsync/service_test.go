package cartsync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

type mockCartAPI struct {
	mu sync.Mutex

	mergeCart *domain.Cart
	mergeErr  error
	getCart   *domain.Cart
	getErr    error
	putCart   *domain.Cart
	putErr    error

	mergeCalls int
	getCalls   int
	putCalls   int
	lastCreds  backend.Credentials
	mergedKey  string
	mergedWith []domain.CartItem
}

func (m *mockCartAPI) GetCart(_ context.Context, creds backend.Credentials) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	m.lastCreds = creds
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getCart, nil
}

func (m *mockCartAPI) MergeCart(_ context.Context, creds backend.Credentials, key string, items []domain.CartItem) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeCalls++
	m.lastCreds = creds
	m.mergedKey = key
	m.mergedWith = items
	if m.mergeErr != nil {
		return nil, m.mergeErr
	}
	return m.mergeCart, nil
}

func (m *mockCartAPI) ReplaceCart(_ context.Context, creds backend.Credentials, items []domain.CartItem) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	m.lastCreds = creds
	if m.putErr != nil {
		return nil, m.putErr
	}
	if m.putCart != nil {
		return m.putCart, nil
	}
	return &domain.Cart{ID: 1, Items: items}, nil
}

type fixture struct {
	sessions *session.Static
	api      *mockCartAPI
	guests   *guest.Store
	cart     *cart.Store
	views    *cache.MemoryViewCache
	metrics  *metrics.ClientMetrics
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewStatic(domain.Session{State: domain.AuthStateAnonymous}),
		api:      &mockCartAPI{},
		guests:   guest.NewStore(&guest.MemoryKeyStore{}),
		cart:     cart.NewStore(nil),
		views:    cache.NewMemoryViewCache(),
		metrics:  metrics.NewClientMetrics(nil),
	}
	f.svc = NewService(f.sessions, f.api, f.guests, f.cart, f.views, f.metrics)
	return f
}

func cartItem(id int64, qty int) domain.CartItem {
	return domain.CartItem{ProductID: id, Name: "item", UnitPrice: decimal.NewFromInt(100), Quantity: qty}
}

// guestWithItems plays an anonymous visit that fills the cart, then logs in.
func (f *fixture) guestWithItems(t *testing.T, items ...domain.CartItem) guest.Key {
	t.Helper()
	ctx := context.Background()
	res := f.svc.Reconcile(ctx)
	require.Equal(t, OutcomeGuest, res.Outcome)
	for _, it := range items {
		require.NoError(t, f.cart.Add(ctx, it))
	}
	key, ok := f.guests.Current(ctx)
	require.True(t, ok)
	return key
}

func (f *fixture) login(token string) {
	f.sessions.Set(domain.Session{State: domain.AuthStateAuthenticated, Token: token})
}

func TestReconcile_Anonymous_EnsuresGuestKeyAndKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cart.Add(ctx, cartItem(1, 2)))

	res := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeGuest, res.Outcome)
	assert.Equal(t, StateSettled, f.svc.State())
	_, ok := f.guests.Current(ctx)
	assert.True(t, ok)
	assert.Equal(t, 2, f.cart.Count())
	assert.Zero(t, f.api.getCalls+f.api.mergeCalls)
}

func TestReconcile_Loading_DoesNothing(t *testing.T) {
	f := newFixture(t)
	f.sessions.Set(domain.Session{State: domain.AuthStateLoading})

	res := f.svc.Reconcile(context.Background())

	assert.Equal(t, OutcomeWaiting, res.Outcome)
	assert.Equal(t, StateUninitialized, f.svc.State())
	_, ok := f.guests.Current(context.Background())
	assert.False(t, ok, "no guest key while the session is loading")
}

func TestReconcile_Login_MergeSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.guestWithItems(t, cartItem(1, 2), cartItem(2, 1))

	serverCart := &domain.Cart{ID: 77, Items: []domain.CartItem{cartItem(1, 3), cartItem(2, 1), cartItem(5, 1)}}
	f.api.mergeCart = serverCart
	f.login("tok")
	require.NoError(t, f.views.Set(ctx, cache.ViewCart, []byte("stale")))

	res := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, *serverCart, f.cart.Snapshot())
	assert.Equal(t, string(key), f.api.mergedKey)
	assert.Len(t, f.api.mergedWith, 2)
	assert.Equal(t, backend.Credentials{Token: "tok"}, f.api.lastCreds)
	_, ok := f.guests.Current(ctx)
	assert.False(t, ok, "guest key must be discarded after merge")
	_, err := f.views.Get(ctx, cache.ViewCart)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CartSyncs.WithLabelValues(string(OutcomeMerged))))
}

func TestReconcile_Login_MergeFails_FallbackFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guestWithItems(t, cartItem(1, 2))

	fetched := &domain.Cart{ID: 9, Items: []domain.CartItem{cartItem(4, 1)}}
	f.api.mergeErr = errBackend
	f.api.getCart = fetched
	f.login("tok")

	res := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, *fetched, f.cart.Snapshot())
	assert.Equal(t, 1, f.api.mergeCalls, "merge is not retried")
	assert.Equal(t, 1, f.api.getCalls)
	_, ok := f.guests.Current(ctx)
	assert.False(t, ok)
}

func TestReconcile_Login_MergeAndFetchFail_ClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guestWithItems(t, cartItem(1, 2), cartItem(3, 3))

	f.api.mergeErr = errBackend
	f.api.getErr = errBackend
	f.login("tok")

	res := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeCleared, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
	assert.Equal(t, StateSettled, f.svc.State())
	_, ok := f.guests.Current(ctx)
	assert.False(t, ok)
}

func TestReconcile_Login_MergeFails_NoServerCart(t *testing.T) {
	f := newFixture(t)
	f.guestWithItems(t, cartItem(1, 2))
	f.api.mergeErr = errBackend
	f.api.getErr = backend.ErrCartNotFound
	f.login("tok")

	res := f.svc.Reconcile(context.Background())

	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
}

func TestReconcile_Resume_FetchesAuthenticatedCart(t *testing.T) {
	f := newFixture(t)
	fetched := &domain.Cart{ID: 3, Items: []domain.CartItem{cartItem(8, 2)}}
	f.api.getCart = fetched
	f.login("tok")

	res := f.svc.Reconcile(context.Background())

	assert.Equal(t, OutcomeFetched, res.Outcome)
	assert.Equal(t, *fetched, f.cart.Snapshot())
	assert.Zero(t, f.api.mergeCalls)
}

func TestReconcile_Login_EmptyGuestCartSkipsMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guestWithItems(t)
	f.api.getCart = &domain.Cart{ID: 3, Items: []domain.CartItem{cartItem(8, 2)}}
	f.login("tok")

	res := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeFetched, res.Outcome)
	assert.Zero(t, f.api.mergeCalls)
	_, ok := f.guests.Current(ctx)
	assert.False(t, ok)
}

func TestReconcile_Resume_NotFoundClearsCart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cart.Add(context.Background(), cartItem(1, 1)))
	f.api.getErr = backend.ErrCartNotFound
	f.login("tok")

	res := f.svc.Reconcile(context.Background())

	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
}

func TestReconcile_Resume_FetchErrorClearsCart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cart.Add(context.Background(), cartItem(1, 1)))
	f.api.getErr = errBackend
	f.login("tok")

	res := f.svc.Reconcile(context.Background())

	assert.Equal(t, OutcomeCleared, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
}

func TestReconcile_IsIdempotentForSamePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guestWithItems(t, cartItem(1, 2))
	serverCart := &domain.Cart{ID: 77, Items: []domain.CartItem{cartItem(1, 2)}}
	f.api.mergeCart = serverCart
	f.login("tok")

	first := f.svc.Reconcile(ctx)
	second := f.svc.Reconcile(ctx)
	third := f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeMerged, first.Outcome)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, OutcomeSkipped, third.Outcome)
	assert.Equal(t, 1, f.api.mergeCalls)
	assert.Equal(t, 0, f.api.getCalls)
	assert.Equal(t, first.Cart, third.Cart)
}

func TestReconcile_ConcurrentCallsMergeOnce(t *testing.T) {
	f := newFixture(t)
	f.guestWithItems(t, cartItem(1, 2))
	f.api.mergeCart = &domain.Cart{ID: 1, Items: []domain.CartItem{cartItem(1, 2)}}
	f.login("tok")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Reconcile(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.api.mergeCalls)
}

func TestReconcile_AnonymousReEvaluationIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, OutcomeGuest, f.svc.Reconcile(ctx).Outcome)
	// the guest key now exists, so the pair differs, but the auth state did not change
	assert.Equal(t, OutcomeSkipped, f.svc.Reconcile(ctx).Outcome)
}

func TestReconcile_ExpiredSessionStartsGuestSessionAndMergesOnNextLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guestWithItems(t, cartItem(1, 1))
	f.api.mergeCart = &domain.Cart{ID: 1, Items: []domain.CartItem{cartItem(1, 1)}}
	f.login("tok")
	require.Equal(t, OutcomeMerged, f.svc.Reconcile(ctx).Outcome)

	// token expired without an explicit logout
	f.sessions.Set(domain.Session{State: domain.AuthStateAnonymous})
	res := f.svc.Reconcile(ctx)
	require.Equal(t, OutcomeGuest, res.Outcome)
	key, ok := f.guests.Current(ctx)
	require.True(t, ok)

	require.NoError(t, f.cart.Add(ctx, cartItem(7, 2)))
	f.api.mergeCart = &domain.Cart{ID: 2, Items: []domain.CartItem{cartItem(1, 1), cartItem(7, 2)}}
	f.login("tok2")
	res = f.svc.Reconcile(ctx)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, 2, f.api.mergeCalls)
	assert.Equal(t, string(key), f.api.mergedKey)
	require.Len(t, f.api.mergedWith, 2)
	assert.Equal(t, int64(7), f.api.mergedWith[1].ProductID)
	assert.Equal(t, 3, f.cart.Count())
	_, ok = f.guests.Current(ctx)
	assert.False(t, ok)
}

func TestLogout_ResetsAndStartsNewGuestSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.guestWithItems(t, cartItem(1, 1))
	f.api.mergeCart = &domain.Cart{ID: 1, Items: []domain.CartItem{cartItem(1, 1)}}
	f.login("tok")
	require.Equal(t, OutcomeMerged, f.svc.Reconcile(ctx).Outcome)

	f.svc.Logout(ctx)
	f.sessions.Set(domain.Session{State: domain.AuthStateAnonymous})

	assert.True(t, f.cart.IsEmpty())
	assert.Equal(t, StateUninitialized, f.svc.State())
	assert.Equal(t, OutcomeGuest, f.svc.Reconcile(ctx).Outcome)
	next, ok := f.guests.Current(ctx)
	require.True(t, ok)
	assert.NotEqual(t, first, next)
}

func TestPush_AuthenticatedReplacesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login("tok")
	require.NoError(t, f.cart.Add(ctx, cartItem(1, 2)))
	f.api.putCart = &domain.Cart{ID: 12, Items: []domain.CartItem{cartItem(1, 2)}}

	require.NoError(t, f.svc.Push(ctx))

	assert.Equal(t, 1, f.api.putCalls)
	assert.Equal(t, int64(12), f.cart.ID())
}

func TestPush_AnonymousIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Push(context.Background()))
	assert.Zero(t, f.api.putCalls)
}

func TestPush_ErrorIsReturnedAndCartKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login("tok")
	require.NoError(t, f.cart.Add(ctx, cartItem(1, 2)))
	f.api.putErr = errBackend

	err := f.svc.Push(ctx)

	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, 2, f.cart.Count())
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StateUninitialized, StateSyncing))
	assert.True(t, CanTransitionTo(StateSyncing, StateSettled))
	assert.True(t, CanTransitionTo(StateSettled, StateSyncing))
	assert.False(t, CanTransitionTo(StateSyncing, StateSyncing))
	assert.False(t, CanTransitionTo(StateUninitialized, StateSettled))
}
