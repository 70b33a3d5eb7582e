package domain

import "github.com/shopspring/decimal"

// Cart is identified by a server id once persisted; guest carts have ID 0.
type Cart struct {
	ID    int64      `json:"id,omitempty"`
	Items []CartItem `json:"items"`
}

type CartItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// IsGuest reports whether the cart only lives on this client.
func (c *Cart) IsGuest() bool {
	return c.ID == 0
}
