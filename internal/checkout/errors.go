package checkout

import "errors"

var (
	ErrInvalidPhone      = errors.New("enter a valid M-Pesa phone number, e.g. 0712345678")
	ErrEmptyCart         = errors.New("cart is empty, nothing to pay for")
	ErrInvalidOrder      = errors.New("order_id must be positive")
	ErrPaymentInProgress = errors.New("please wait while we confirm your payment")
)
