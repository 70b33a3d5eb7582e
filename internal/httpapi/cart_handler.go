package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/pkg/logging"
	"github.com/shopspring/decimal"
)

type Catalog interface {
	GetProduct(ctx context.Context, creds backend.Credentials, productID int64) (*domain.Product, error)
}

type CartHandler struct {
	cart     *cart.Store
	sync     CartSyncer
	catalog  Catalog
	sessions session.Resolver
	guests   backend.GuestKeys
	views    cache.ViewCache
	timeout  time.Duration
}

func NewCartHandler(store *cart.Store, sync CartSyncer, catalog Catalog, sessions session.Resolver, guests backend.GuestKeys, views cache.ViewCache, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:     store,
		sync:     sync,
		catalog:  catalog,
		sessions: sessions,
		guests:   guests,
		views:    views,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemDTO struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponseDTO struct {
	ID    int64           `json:"id,omitempty"`
	Items []CartItemDTO   `json:"items"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`

	// SyncPending is set when the change was saved locally but the backend
	// copy could not be updated.
	SyncPending bool `json:"sync_pending,omitempty"`
}

func toCartResponse(c domain.Cart) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CartItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
		})
	}
	return CartResponseDTO{
		ID:    c.ID,
		Items: items,
		Total: c.Total(),
		Count: c.Count(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := cache.GetJSON[CartResponseDTO](ctx, h.views, cache.ViewCart)
	if err == nil {
		respondJSON(w, http.StatusOK, view)
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logging.Error(ctx, "httpapi", "cache_get_failed", err)
	}

	view = toCartResponse(h.cart.Snapshot())
	if err := cache.SetJSON(ctx, h.views, cache.ViewCart, view); err != nil {
		logging.Error(ctx, "httpapi", "cache_set_failed", err)
	}
	respondJSON(w, http.StatusOK, view)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > cart.MaxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	creds := backend.ResolveCredentials(ctx, h.sessions, h.guests)
	product, err := h.catalog.GetProduct(ctx, creds, req.ProductID)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	err = h.cart.Add(ctx, domain.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.pushedCart(ctx))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// quantity 0 removes the item
	if req.Quantity < 0 || req.Quantity > cart.MaxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	if err := h.cart.Update(ctx, productID, req.Quantity); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.pushedCart(ctx))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.cart.Remove(ctx, productID); err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.pushedCart(ctx))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.cart.Clear(ctx)
	respondJSON(w, http.StatusOK, h.pushedCart(ctx))
}

// pushedCart mirrors the local cart to the backend for signed-in shoppers,
// drops the cached view and returns the cart to send back. The local change
// stands even when the backend cannot be reached.
func (h *CartHandler) pushedCart(ctx context.Context) CartResponseDTO {
	errPush := h.sync.Push(ctx)
	if err := h.views.Invalidate(ctx, cache.ViewCart); err != nil {
		logging.Error(ctx, "httpapi", "cache_invalidate_failed", err)
	}
	resp := toCartResponse(h.cart.Snapshot())
	resp.SyncPending = errPush != nil
	return resp
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrInvalidProductID):
		respondError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
	case errors.Is(err, cart.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "invalid_price", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
