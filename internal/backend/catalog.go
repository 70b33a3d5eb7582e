package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
)

const (
	pathOrders  = "/api/v1/orders/"
	pathProduct = "/api/v1/products/%d/"
)

func (c *Client) ListOrders(ctx context.Context, creds Credentials) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	if err := c.do(ctx, "list_orders", http.MethodGet, pathOrders, creds, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetProduct is used to fill name and price when an item is added by id.
func (c *Client) GetProduct(ctx context.Context, creds Credentials, productID int64) (*domain.Product, error) {
	var p domain.Product
	if err := c.do(ctx, "get_product", http.MethodGet, fmt.Sprintf(pathProduct, productID), creds, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
