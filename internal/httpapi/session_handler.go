package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cartsync"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
)

// TokenManager stores and clears the bearer token behind the session.
type TokenManager interface {
	session.Resolver
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

type CartSyncer interface {
	Reconciler
	Push(ctx context.Context) error
	Logout(ctx context.Context)
}

type SessionHandler struct {
	tokens  TokenManager
	sync    CartSyncer
	views   cache.ViewCache
	timeout time.Duration
}

func NewSessionHandler(tokens TokenManager, sync CartSyncer, views cache.ViewCache, timeout time.Duration) *SessionHandler {
	return &SessionHandler{
		tokens:  tokens,
		sync:    sync,
		views:   views,
		timeout: timeout,
	}
}

type LoginRequestDTO struct {
	Token string `json:"token"`
}

type SessionResponseDTO struct {
	State   domain.AuthState `json:"state"`
	Outcome cartsync.Outcome `json:"cart_sync,omitempty"`
	Cart    *CartResponseDTO `json:"cart,omitempty"`
}

// POST /api/v1/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "missing_token", "token is required")
		return
	}

	if err := h.tokens.SetToken(ctx, req.Token); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_token", "token is not a valid JWT")
		return
	}

	result := h.sync.Reconcile(ctx)
	if err := h.views.Invalidate(ctx, cache.ViewOrders); err != nil {
		logging.Error(ctx, "httpapi", "cache_invalidate_failed", err)
	}

	cart := toCartResponse(result.Cart)
	respondJSON(w, http.StatusOK, SessionResponseDTO{
		State:   h.tokens.Current(ctx).State,
		Outcome: result.Outcome,
		Cart:    &cart,
	})
}

// DELETE /api/v1/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.tokens.ClearToken(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "could not clear the session")
		return
	}
	h.sync.Logout(ctx)
	if err := h.views.Invalidate(ctx, cache.ViewOrders); err != nil {
		logging.Error(ctx, "httpapi", "cache_invalidate_failed", err)
	}

	cart := toCartResponse(domain.Cart{})
	respondJSON(w, http.StatusOK, SessionResponseDTO{
		State: h.tokens.Current(ctx).State,
		Cart:  &cart,
	})
}

// GET /api/v1/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionResponseDTO{
		State: h.tokens.Current(r.Context()).State,
	})
}
