package cartsync

import (
	"context"
	"errors"
	"sync"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
)

const component = "cartsync"

type CartAPI interface {
	GetCart(ctx context.Context, creds backend.Credentials) (*domain.Cart, error)
	MergeCart(ctx context.Context, creds backend.Credentials, guestKey string, items []domain.CartItem) (*domain.Cart, error)
	ReplaceCart(ctx context.Context, creds backend.Credentials, items []domain.CartItem) (*domain.Cart, error)
}

type GuestIdentity interface {
	Ensure(ctx context.Context) (guest.Key, error)
	Current(ctx context.Context) (guest.Key, bool)
	Discard(ctx context.Context) error
}

type Result struct {
	Outcome Outcome
	Cart    domain.Cart
}

// runKey is the (auth state value, guest key) pair a reconciliation ran for.
type runKey struct {
	state    domain.AuthState
	token    string
	guestKey string
}

// Service keeps the local cart consistent with exactly one of the guest cart
// or the authenticated backend cart.
type Service struct {
	sessions session.Resolver
	api      CartAPI
	guests   GuestIdentity
	cart     *cart.Store
	views    cache.ViewCache
	metrics  *metrics.ClientMetrics

	mu         sync.Mutex
	state      State
	settledFor runKey
	seen       map[runKey]struct{}
}

func NewService(sessions session.Resolver, api CartAPI, guests GuestIdentity, store *cart.Store, views cache.ViewCache, m *metrics.ClientMetrics) *Service {
	if views == nil {
		views = cache.NopViewCache{}
	}
	return &Service{
		sessions: sessions,
		api:      api,
		guests:   guests,
		cart:     store,
		views:    views,
		metrics:  m,
		state:    StateUninitialized,
		seen:     make(map[runKey]struct{}),
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconcile runs the sync state machine for the current session. It never
// fails: backend errors degrade to an empty local cart and are logged.
func (s *Service) Reconcile(ctx context.Context) Result {
	sess := s.sessions.Current(ctx)
	if sess.State == domain.AuthStateLoading {
		return Result{Outcome: OutcomeWaiting, Cart: s.cart.Snapshot()}
	}

	key, _ := s.guests.Current(ctx)
	run := runKey{state: sess.State, token: sess.Token, guestKey: string(key)}
	if !s.begin(run) {
		return Result{Outcome: OutcomeSkipped, Cart: s.cart.Snapshot()}
	}

	var outcome Outcome
	if sess.IsAuthenticated() {
		outcome = s.reconcileAuthenticated(ctx, sess, key)
	} else {
		outcome = s.reconcileGuest(ctx)
	}
	s.settle(run)

	if s.metrics != nil {
		s.metrics.CartSyncs.WithLabelValues(string(outcome)).Inc()
	}
	logging.Log(ctx, logging.Fields{Component: component, Event: "reconciled", Status: string(outcome)})
	return Result{Outcome: outcome, Cart: s.cart.Snapshot()}
}

func (s *Service) begin(run runKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransitionTo(s.state, StateSyncing) {
		return false
	}
	if s.state == StateSettled && s.settledFor.state == run.state && s.settledFor.token == run.token {
		return false
	}
	// An auth state change (login, or a token expiring) opens a new session,
	// so runs recorded for the previous one no longer apply.
	if s.settledFor.state != run.state {
		s.seen = make(map[runKey]struct{})
	}
	if _, done := s.seen[run]; done {
		return false
	}
	s.seen[run] = struct{}{}
	s.state = StateSyncing
	return true
}

func (s *Service) settle(run runKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSettled
	s.settledFor = run
}

func (s *Service) reconcileAuthenticated(ctx context.Context, sess domain.Session, key guest.Key) Outcome {
	creds := backend.Credentials{Token: sess.Token}
	defer s.invalidateCartView(ctx)

	local := s.cart.Snapshot()
	if key != "" && !local.IsEmpty() {
		defer s.discardGuest(ctx)

		merged, err := s.api.MergeCart(ctx, creds, string(key), local.Items)
		if err == nil {
			s.cart.Replace(ctx, *merged)
			return OutcomeMerged
		}
		logging.Error(ctx, component, "merge_failed", err)

		fetched, errFetch := s.api.GetCart(ctx, creds)
		switch {
		case errFetch == nil:
			s.cart.Replace(ctx, *fetched)
			return OutcomeFallback
		case errors.Is(errFetch, backend.ErrCartNotFound):
			s.cart.Clear(ctx)
			return OutcomeEmpty
		default:
			logging.Error(ctx, component, "fallback_fetch_failed", errFetch)
			s.cart.Clear(ctx)
			return OutcomeCleared
		}
	}

	if key != "" {
		defer s.discardGuest(ctx)
	}
	fetched, err := s.api.GetCart(ctx, creds)
	switch {
	case err == nil:
		s.cart.Replace(ctx, *fetched)
		return OutcomeFetched
	case errors.Is(err, backend.ErrCartNotFound):
		s.cart.Clear(ctx)
		return OutcomeEmpty
	default:
		logging.Error(ctx, component, "fetch_failed", err)
		s.cart.Clear(ctx)
		return OutcomeCleared
	}
}

func (s *Service) reconcileGuest(ctx context.Context) Outcome {
	if _, err := s.guests.Ensure(ctx); err != nil {
		logging.Error(ctx, component, "guest_key_failed", err)
	}
	return OutcomeGuest
}

// Push sends the local cart to the backend after a shopper's change. Guest
// carts stay on this client, so anonymous sessions are a no-op.
func (s *Service) Push(ctx context.Context) error {
	sess := s.sessions.Current(ctx)
	if !sess.IsAuthenticated() {
		return nil
	}

	updated, err := s.api.ReplaceCart(ctx, backend.Credentials{Token: sess.Token}, s.cart.Snapshot().Items)
	if err != nil {
		logging.Error(ctx, component, "push_failed", err)
		return err
	}
	s.cart.Replace(ctx, *updated)
	s.invalidateCartView(ctx)
	return nil
}

// Logout forgets the guest identity and the local cart and re-arms the guard
// so the next Reconcile starts a fresh anonymous session.
func (s *Service) Logout(ctx context.Context) {
	s.discardGuest(ctx)
	s.cart.Clear(ctx)
	s.invalidateCartView(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUninitialized
	s.settledFor = runKey{}
	s.seen = make(map[runKey]struct{})
}

func (s *Service) discardGuest(ctx context.Context) {
	if err := s.guests.Discard(ctx); err != nil {
		logging.Error(ctx, component, "guest_discard_failed", err)
	}
}

func (s *Service) invalidateCartView(ctx context.Context) {
	if err := s.views.Invalidate(ctx, cache.ViewCart); err != nil {
		logging.Error(ctx, component, "cache_invalidate_failed", err)
	}
}
