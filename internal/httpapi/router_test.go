package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/cartsync"
	"github.com/ndunguloren96/ltronix-shop/internal/checkout"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeBackend plays the shop backend for every handler.
type fakeBackend struct {
	mu sync.Mutex

	products   map[int64]domain.Product
	orders     []domain.Order
	ordersErr  error
	serverCart *domain.Cart
	mergeErr   error
	putErr     error
	initErr    error
	statuses   []domain.TransactionStatus

	orderCalls int
	mergeCalls int
	putCalls   int
	initCalls  int
	lastCreds  backend.Credentials
}

type backendCalls struct {
	orders int
	merge  int
	put    int
	init   int
	creds  backend.Credentials
}

func (f *fakeBackend) calls() backendCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return backendCalls{
		orders: f.orderCalls,
		merge:  f.mergeCalls,
		put:    f.putCalls,
		init:   f.initCalls,
		creds:  f.lastCreds,
	}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: map[int64]domain.Product{
			1: {ID: 1, Name: "Smartphone", Price: decimal.NewFromInt(15000), Stock: 10},
			2: {ID: 2, Name: "Earbuds", Price: decimal.RequireFromString("2499.50"), Stock: 3},
		},
	}
}

func (f *fakeBackend) GetProduct(_ context.Context, creds backend.Credentials, id int64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreds = creds
	p, ok := f.products[id]
	if !ok {
		return nil, &backend.APIError{Status: http.StatusNotFound, Message: "Product not found."}
	}
	return &p, nil
}

func (f *fakeBackend) ListOrders(_ context.Context, creds backend.Credentials) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	f.lastCreds = creds
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func (f *fakeBackend) GetCart(context.Context, backend.Credentials) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serverCart == nil {
		return nil, backend.ErrCartNotFound
	}
	c := *f.serverCart
	return &c, nil
}

func (f *fakeBackend) MergeCart(_ context.Context, _ backend.Credentials, _ string, items []domain.CartItem) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeCalls++
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	return &domain.Cart{ID: 77, Items: items}, nil
}

func (f *fakeBackend) ReplaceCart(_ context.Context, _ backend.Credentials, items []domain.CartItem) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &domain.Cart{ID: 77, Items: items}, nil
}

func (f *fakeBackend) InitiatePayment(_ context.Context, creds backend.Credentials, orderID int64, phone string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	f.lastCreds = creds
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &domain.Transaction{
		ID:      501,
		OrderID: orderID,
		Phone:   phone,
		Amount:  decimal.NewFromInt(15000),
		Status:  domain.TransactionStatusPending,
	}, nil
}

func (f *fakeBackend) GetTransaction(_ context.Context, _ backend.Credentials, id int64) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := domain.TransactionStatusPending
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	tx := &domain.Transaction{ID: id, OrderID: 9, Status: status, Amount: decimal.NewFromInt(15000)}
	if status == domain.TransactionStatusCompleted {
		tx.ReceiptNumber = "QK7Y2LMN3P"
	}
	return tx, nil
}

type testServer struct {
	srv     *httptest.Server
	backend *fakeBackend
	tokens  *session.TokenResolver
	guests  *guest.Store
	cart    *cart.Store
	views   *cache.MemoryViewCache
	orch    *checkout.Orchestrator
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	fb := newFakeBackend()
	m := metrics.NewClientMetrics(nil)
	tokens := session.NewTokenResolver(&session.MemoryTokenSource{})
	guests := guest.NewStore(&guest.MemoryKeyStore{})
	store := cart.NewStore(nil)
	views := cache.NewMemoryViewCache()

	syncer := cartsync.NewService(tokens, fb, guests, store, views, m)
	orch := checkout.NewOrchestrator(tokens, guests, fb, store, checkout.Config{
		PollInterval: 10 * time.Millisecond,
		PollBudget:   300 * time.Millisecond,
	}, checkout.WithViews(views), checkout.WithMetrics(m))
	t.Cleanup(orch.Stop)

	timeout := 5 * time.Second
	router := NewRouter(Handlers{
		Session:  NewSessionHandler(tokens, syncer, views, timeout),
		Cart:     NewCartHandler(store, syncer, fb, tokens, guests, views, timeout),
		Checkout: NewCheckoutHandler(orch, timeout),
		Orders:   NewOrdersHandler(fb, tokens, views, timeout),
		Sync:     syncer,
		Metrics:  metrics.Handler(nil),
	}, timeout)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		srv:     srv,
		backend: fb,
		tokens:  tokens,
		guests:  guests,
		cart:    store,
		views:   views,
		orch:    orch,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func signedToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 12,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}
