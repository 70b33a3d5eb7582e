package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	pathCart      = "/api/v1/orders/cart/"
	pathCartMerge = "/api/v1/orders/cart/merge/"
)

type cartItemDTO struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

type cartDTO struct {
	ID    int64         `json:"id"`
	Items []cartItemDTO `json:"items"`
}

type itemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type replaceCartRequestDTO struct {
	Items []itemRequestDTO `json:"items"`
}

type mergeCartRequestDTO struct {
	GuestSessionKey string           `json:"guest_session_key"`
	Items           []itemRequestDTO `json:"items"`
}

func (d cartDTO) toDomain() *domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.CartItem{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
		})
	}
	return &domain.Cart{ID: d.ID, Items: items}
}

func toItemRequests(items []domain.CartItem) []itemRequestDTO {
	out := make([]itemRequestDTO, 0, len(items))
	for _, it := range items {
		out = append(out, itemRequestDTO{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// GetCart fetches the cart owned by creds. A missing cart is ErrCartNotFound.
// Concurrent calls with the same credentials share one request; the shared
// request outlives any single caller's cancellation and is bounded by the
// client timeout instead.
func (c *Client) GetCart(ctx context.Context, creds Credentials) (*domain.Cart, error) {
	ch := c.sfg.DoChan(creds.key(), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var dto cartDTO
		errGet := c.do(flightCtx, "get_cart", http.MethodGet, pathCart, creds, nil, &dto)
		var apiErr *APIError
		if errors.As(errGet, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrCartNotFound
		}
		if errGet != nil {
			return nil, errGet
		}
		return dto.toDomain(), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	}
}

// ReplaceCart submits the full desired item list.
func (c *Client) ReplaceCart(ctx context.Context, creds Credentials, items []domain.CartItem) (*domain.Cart, error) {
	var dto cartDTO
	req := replaceCartRequestDTO{Items: toItemRequests(items)}
	if err := c.do(ctx, "replace_cart", http.MethodPost, pathCart, creds, req, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// MergeCart moves a guest cart into the authenticated user's cart.
func (c *Client) MergeCart(ctx context.Context, creds Credentials, guestKey string, items []domain.CartItem) (*domain.Cart, error) {
	var dto cartDTO
	req := mergeCartRequestDTO{GuestSessionKey: guestKey, Items: toItemRequests(items)}
	if err := c.do(ctx, "merge_cart", http.MethodPost, pathCartMerge, creds, req, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}
