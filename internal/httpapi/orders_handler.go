package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
)

type OrderLister interface {
	ListOrders(ctx context.Context, creds backend.Credentials) ([]domain.Order, error)
}

type OrdersHandler struct {
	orders   OrderLister
	sessions session.Resolver
	views    cache.ViewCache
	timeout  time.Duration
}

func NewOrdersHandler(orders OrderLister, sessions session.Resolver, views cache.ViewCache, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		sessions: sessions,
		views:    views,
		timeout:  timeout,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := h.sessions.Current(ctx)
	if !sess.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "sign in to see your orders")
		return
	}

	orders, err := cache.GetJSON[[]domain.Order](ctx, h.views, cache.ViewOrders)
	if err == nil {
		respondJSON(w, http.StatusOK, orders)
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logging.Error(ctx, "httpapi", "cache_get_failed", err)
	}

	orders, err = h.orders.ListOrders(ctx, backend.Credentials{Token: sess.Token})
	if err != nil {
		handleBackendError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	if err := cache.SetJSON(ctx, h.views, cache.ViewOrders, orders); err != nil {
		logging.Error(ctx, "httpapi", "cache_set_failed", err)
	}
	respondJSON(w, http.StatusOK, orders)
}
