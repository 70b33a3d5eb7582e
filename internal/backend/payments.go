package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ndunguloren96/ltronix-shop/internal/domain"
)

const (
	pathSTKPush     = "/api/v1/payments/stk-push/"
	pathTransaction = "/api/v1/payments/transactions/%d/"
)

type initiatePaymentRequestDTO struct {
	OrderID     int64  `json:"order_id"`
	PhoneNumber string `json:"phone_number"`
}

// InitiatePayment starts an STK push; the returned transaction is PENDING.
func (c *Client) InitiatePayment(ctx context.Context, creds Credentials, orderID int64, phone string) (*domain.Transaction, error) {
	var tx domain.Transaction
	req := initiatePaymentRequestDTO{OrderID: orderID, PhoneNumber: phone}
	if err := c.do(ctx, "initiate_payment", http.MethodPost, pathSTKPush, creds, req, &tx); err != nil {
		return nil, err
	}
	if tx.Status == "" {
		tx.Status = domain.TransactionStatusPending
	}
	return &tx, nil
}

func (c *Client) GetTransaction(ctx context.Context, creds Credentials, transactionID int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	path := fmt.Sprintf(pathTransaction, transactionID)
	if err := c.do(ctx, "get_transaction", http.MethodGet, path, creds, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
