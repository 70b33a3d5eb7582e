package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
)

// Resolver exposes the current authentication state. Nothing downstream
// depends on how the session is obtained.
type Resolver interface {
	Current(ctx context.Context) domain.Session
}

// TokenSource persists the bearer token between runs.
type TokenSource interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

var ErrNoToken = errors.New("no token stored")

// TokenResolver derives the session from a stored bearer token. The token's
// signature is checked by the backend; here only the expiry is inspected.
type TokenResolver struct {
	mu      sync.RWMutex
	source  TokenSource
	loading bool
	now     func() time.Time
}

func NewTokenResolver(source TokenSource) *TokenResolver {
	return &TokenResolver{source: source, now: time.Now}
}

func (r *TokenResolver) Current(ctx context.Context) domain.Session {
	r.mu.RLock()
	loading := r.loading
	r.mu.RUnlock()
	if loading {
		return domain.Session{State: domain.AuthStateLoading}
	}

	token, err := r.source.LoadToken(ctx)
	if err != nil || token == "" {
		return domain.Session{State: domain.AuthStateAnonymous}
	}
	if expired(token, r.now()) {
		return domain.Session{State: domain.AuthStateAnonymous}
	}
	return domain.Session{State: domain.AuthStateAuthenticated, Token: token}
}

// SetToken stores a new token; the session reports loading while it is written.
func (r *TokenResolver) SetToken(ctx context.Context, token string) error {
	if _, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return err
	}
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
	}()
	return r.source.SaveToken(ctx, token)
}

func (r *TokenResolver) ClearToken(ctx context.Context) error {
	return r.source.DeleteToken(ctx)
}

func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

// Static always reports the session it was given.
type Static struct {
	mu      sync.RWMutex
	session domain.Session
}

func NewStatic(s domain.Session) *Static {
	return &Static{session: s}
}

func (s *Static) Current(context.Context) domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Static) Set(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// MemoryTokenSource keeps the token in process memory.
type MemoryTokenSource struct {
	mu    sync.RWMutex
	token string
}

func (m *MemoryTokenSource) LoadToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *MemoryTokenSource) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenSource) DeleteToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
