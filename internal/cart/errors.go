package cart

import "errors"

var (
	ErrInvalidProductID = errors.New("product_id must be positive")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 99")
	ErrInvalidPrice     = errors.New("unit price must not be negative")
	ErrItemNotFound     = errors.New("item not in cart")
)
